package feed

import (
	"github.com/mivox/fedicache/db"
	"github.com/mivox/fedicache/domain"
	"github.com/mivox/fedicache/filter"
)

// ThreadItem is one row of an assembled thread view. The marker flags drive
// the connector lines a view draws between directly linked replies.
type ThreadItem struct {
	db.StatusInfo

	// IsContextParent marks the status the thread was opened on.
	IsContextParent bool
	// IsReplyInContext reports that this row directly replies to the row
	// right above it.
	IsReplyInContext bool
	// HasReplyFollowing reports that the row right below directly replies
	// to this one.
	HasReplyFollowing bool
}

// Thread assembles one thread view from its materialized context rows:
// ancestors, then the focused status, then descendants. Ancestors and
// descendants pass the thread filter; the focused status never gets
// filtered, the viewer asked for it. Reply markers are computed on the rows
// that survive, so a filtered-out link breaks the drawn chain.
func Thread(rows db.ThreadRows, m *filter.Matcher) []ThreadItem {
	items := make([]ThreadItem, 0, len(rows.Ancestors)+1+len(rows.Descendants))
	for i := range rows.Ancestors {
		if dropped(m, domain.FilterContextThread, &rows.Ancestors[i]) {
			continue
		}
		items = append(items, ThreadItem{StatusInfo: rows.Ancestors[i]})
	}
	if rows.Parent != nil {
		items = append(items, ThreadItem{StatusInfo: *rows.Parent, IsContextParent: true})
	}
	for i := range rows.Descendants {
		if dropped(m, domain.FilterContextThread, &rows.Descendants[i]) {
			continue
		}
		items = append(items, ThreadItem{StatusInfo: rows.Descendants[i]})
	}

	markReplyChain(items)
	return items
}

func markReplyChain(items []ThreadItem) {
	for i := 1; i < len(items); i++ {
		if items[i].Status.InReplyToID != "" && items[i].Status.InReplyToID == items[i-1].Status.ID {
			items[i].IsReplyInContext = true
			items[i-1].HasReplyFollowing = true
		}
	}
}

// Package feed turns cached rows into the item lists a view renders:
// timelines with load-more gaps spliced in, profiles with their pinned
// section, threads with reply-chain markers. Filtering happens here, before
// anything reaches a view.
package feed

import (
	"github.com/mivox/fedicache/db"
	"github.com/mivox/fedicache/domain"
	"github.com/mivox/fedicache/filter"
)

// Item is one renderable feed entry, either a status or a load-more control.
type Item interface {
	feedItem()
}

// StatusItem renders one status row.
type StatusItem struct {
	db.StatusInfo
	Pinned bool
}

// LoadMoreItem renders the control standing in for a stretch of the feed
// that is not cached yet.
type LoadMoreItem struct {
	Gap domain.Gap
}

func (StatusItem) feedItem()   {}
func (LoadMoreItem) feedItem() {}

// ContextFor maps a timeline onto the filter context its rules run under.
// Favourites and bookmarks are deliberate collections and stay unfiltered.
func ContextFor(tl domain.Timeline) domain.FilterContext {
	switch tl.Kind {
	case domain.TimelineHome, domain.TimelineList:
		return domain.FilterContextHome
	case domain.TimelineLocal, domain.TimelineFederated, domain.TimelineHashtag:
		return domain.FilterContextPublic
	case domain.TimelineProfile:
		return domain.FilterContextAccount
	}
	return ""
}

// Timeline assembles one timeline's item list: rows pass the filter, then
// each gap marker splices a load-more control in right below its anchor
// status. A gap whose anchor got filtered away or evicted stays invisible
// until the next refresh re-anchors it.
func Timeline(tl domain.Timeline, rows []db.StatusInfo, gaps []domain.Gap, m *filter.Matcher) []Item {
	ctx := ContextFor(tl)
	gapAfter := make(map[string]domain.Gap, len(gaps))
	for _, g := range gaps {
		gapAfter[g.AfterStatusID] = g
	}

	items := make([]Item, 0, len(rows)+len(gaps))
	for i := range rows {
		if dropped(m, ctx, &rows[i]) {
			continue
		}
		items = append(items, StatusItem{StatusInfo: rows[i]})
		if g, ok := gapAfter[rows[i].Status.ID]; ok {
			items = append(items, LoadMoreItem{Gap: g})
		}
	}
	return items
}

// Profile assembles a profile feed: the pinned section first, then the
// regular rows with anything already pinned left out so no status shows
// twice.
func Profile(pinned, rows []db.StatusInfo, gaps []domain.Gap, m *filter.Matcher) []Item {
	items := make([]Item, 0, len(pinned)+len(rows)+len(gaps))
	pinnedIDs := make(map[string]bool, len(pinned))
	for i := range pinned {
		if dropped(m, domain.FilterContextAccount, &pinned[i]) {
			continue
		}
		pinnedIDs[pinned[i].Status.ID] = true
		items = append(items, StatusItem{StatusInfo: pinned[i], Pinned: true})
	}

	gapAfter := make(map[string]domain.Gap, len(gaps))
	for _, g := range gaps {
		gapAfter[g.AfterStatusID] = g
	}
	for i := range rows {
		if pinnedIDs[rows[i].Status.ID] || dropped(m, domain.FilterContextAccount, &rows[i]) {
			continue
		}
		items = append(items, StatusItem{StatusInfo: rows[i]})
		if g, ok := gapAfter[rows[i].Status.ID]; ok {
			items = append(items, LoadMoreItem{Gap: g})
		}
	}
	return items
}

func dropped(m *filter.Matcher, ctx domain.FilterContext, si *db.StatusInfo) bool {
	return m != nil && ctx != "" && m.MatchStatus(ctx, &si.Status)
}

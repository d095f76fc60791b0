package db

import (
	"database/sql"

	"github.com/mivox/fedicache/domain"
)

// GapFill tells InsertTimelinePage the page was fetched into a recorded gap
// rather than at the top of the feed. AfterStatusID and BeforeStatusID name
// the gap being filled; Complete reports that the page reached the far edge
// so nothing is missing anymore.
type GapFill struct {
	AfterStatusID  string
	BeforeStatusID string
	Complete       bool
}

// InsertTimelinePage merges one fetched page (newest first) into a timeline.
//
// With fill == nil the page came from a refresh at the top: when it does not
// reach down to the newest cached entry, a gap marker records the unknown
// stretch in between. With fill set, the named marker is consumed and, when
// the page stopped short of the gap's far edge, replaced by a narrower one
// anchored at the oldest status actually fetched.
func (s *Store) InsertTimelinePage(tl domain.Timeline, statuses []*domain.Status, fill *GapFill) error {
	tlID := tl.ID()
	tables := []string{TableTimelineStatuses, TableTimelineGaps, TableStatuses, TableAccounts}
	return s.wrapWrite(tables, func(tx *sql.Tx) error {
		prevNewest, err := newestTimelineStatusID(tx, tlID)
		if err != nil {
			return err
		}

		for _, st := range statuses {
			if err := s.upsertStatus(tx, st); err != nil {
				return err
			}
		}
		if err := insertMembership(tx, tl, statuses); err != nil {
			return err
		}

		pageOldest, pageNewest := pageBounds(statuses)

		if fill != nil {
			_, err := tx.Exec(`DELETE FROM timeline_gaps WHERE timeline_id = ? AND after_status_id = ?`,
				tlID, fill.AfterStatusID)
			if err != nil {
				return err
			}
			if !fill.Complete && len(statuses) > 0 && !pageContains(statuses, fill.BeforeStatusID) {
				if err := recordGap(tx, tlID, pageOldest, fill.BeforeStatusID); err != nil {
					return err
				}
			}
		} else if prevNewest != "" && len(statuses) > 0 &&
			domain.CompareStatusIDs(pageOldest, prevNewest) > 0 {
			// The refreshed page floats entirely above everything cached;
			// whatever lies between is unknown.
			if err := recordGap(tx, tlID, pageOldest, prevNewest); err != nil {
				return err
			}
		}

		if len(statuses) > 0 {
			return pruneSpannedGaps(tx, tlID, pageOldest, pageNewest)
		}
		return nil
	})
}

func insertMembership(tx *sql.Tx, tl domain.Timeline, statuses []*domain.Status) error {
	tlID := tl.ID()
	if !tl.Ordered() {
		for _, st := range statuses {
			_, err := tx.Exec(`INSERT INTO timeline_statuses(timeline_id, status_id) VALUES (?, ?)
				ON CONFLICT(timeline_id, status_id) DO NOTHING`, tlID, st.ID)
			if err != nil {
				return err
			}
		}
		return nil
	}

	// Ordered feeds keep the server's delivery order via explicit positions
	// appended past the current tail.
	var next int64
	err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM timeline_statuses WHERE timeline_id = ?`,
		tlID).Scan(&next)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		res, err := tx.Exec(`INSERT INTO timeline_statuses(timeline_id, status_id, position) VALUES (?, ?, ?)
			ON CONFLICT(timeline_id, status_id) DO NOTHING`, tlID, st.ID, next)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			next++
		}
	}
	return nil
}

func newestTimelineStatusID(tx *sql.Tx, tlID string) (string, error) {
	var id string
	err := tx.QueryRow(`SELECT status_id FROM timeline_statuses WHERE timeline_id = ?
		ORDER BY length(status_id) DESC, status_id DESC LIMIT 1`, tlID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

func recordGap(tx *sql.Tx, tlID, afterID, beforeID string) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO timeline_gaps(timeline_id, after_status_id, before_status_id)
		VALUES (?, ?, ?)`, tlID, afterID, beforeID)
	return err
}

// pageBounds returns the oldest and newest status id of a page.
func pageBounds(statuses []*domain.Status) (oldest, newest string) {
	for _, st := range statuses {
		if oldest == "" || domain.CompareStatusIDs(st.ID, oldest) < 0 {
			oldest = st.ID
		}
		if newest == "" || domain.CompareStatusIDs(st.ID, newest) > 0 {
			newest = st.ID
		}
	}
	return oldest, newest
}

func pageContains(statuses []*domain.Status, id string) bool {
	for _, st := range statuses {
		if st.ID == id {
			return true
		}
	}
	return false
}

// pruneSpannedGaps drops gap markers whose whole range falls inside the
// fetched page: the page proved there is nothing missing there. Id ordering
// is the snowflake one, so comparison happens here rather than in SQL.
func pruneSpannedGaps(tx *sql.Tx, tlID, pageOldest, pageNewest string) error {
	rows, err := tx.Query(`SELECT after_status_id, before_status_id FROM timeline_gaps WHERE timeline_id = ?`, tlID)
	if err != nil {
		return err
	}
	var spanned []string
	for rows.Next() {
		var after, before string
		if err := rows.Scan(&after, &before); err != nil {
			rows.Close()
			return err
		}
		if domain.CompareStatusIDs(after, pageNewest) <= 0 &&
			domain.CompareStatusIDs(before, pageOldest) >= 0 {
			spanned = append(spanned, after)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, after := range spanned {
		_, err := tx.Exec(`DELETE FROM timeline_gaps WHERE timeline_id = ? AND after_status_id = ?`, tlID, after)
		if err != nil {
			return err
		}
	}
	return nil
}

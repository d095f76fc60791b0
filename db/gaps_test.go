package db

import (
	"testing"

	"github.com/mivox/fedicache/domain"
)

func insertPage(t *testing.T, s *Store, tl domain.Timeline, fill *GapFill, ids ...string) {
	t.Helper()
	acc := testAccount("a1", "alice")
	statuses := make([]*domain.Status, len(ids))
	for i, id := range ids {
		statuses[i] = testStatus(id, acc)
	}
	if err := s.InsertTimelinePage(tl, statuses, fill); err != nil {
		t.Fatalf("InsertTimelinePage failed: %v", err)
	}
}

func TestRefreshRecordsGap(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")

	// A later refresh lands entirely above the cached rows; the stretch in
	// between is unknown.
	insertPage(t, s, tl, nil, "10", "9")

	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	if gaps[0].AfterStatusID != "9" || gaps[0].BeforeStatusID != "5" {
		t.Errorf("Expected gap (9,5), got (%s,%s)", gaps[0].AfterStatusID, gaps[0].BeforeStatusID)
	}
}

func TestRefreshOverlappingPageRecordsNoGap(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")
	insertPage(t, s, tl, nil, "7", "6", "5")

	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected no gaps, got %+v", gaps)
	}
}

func TestGapFillCompleteRemovesMarker(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")
	insertPage(t, s, tl, nil, "10", "9")

	fill := &GapFill{AfterStatusID: "9", BeforeStatusID: "5", Complete: true}
	insertPage(t, s, tl, fill, "8", "7", "6")

	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected no gaps after complete fill, got %+v", gaps)
	}

	infos, err := s.TimelineStatuses(tl, 0)
	if err != nil {
		t.Fatalf("TimelineStatuses failed: %v", err)
	}
	if len(infos) != 7 {
		t.Errorf("Expected 7 cached rows, got %d", len(infos))
	}
}

func TestGapFillPartialNarrowsMarker(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")
	insertPage(t, s, tl, nil, "10")

	// The fill page stops short of the far edge; the marker narrows to the
	// oldest status actually fetched.
	fill := &GapFill{AfterStatusID: "10", BeforeStatusID: "5", Complete: false}
	insertPage(t, s, tl, fill, "9", "8")

	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	if gaps[0].AfterStatusID != "8" || gaps[0].BeforeStatusID != "5" {
		t.Errorf("Expected narrowed gap (8,5), got (%s,%s)", gaps[0].AfterStatusID, gaps[0].BeforeStatusID)
	}
}

func TestGapFillReachingEdgeRemovesMarker(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")
	insertPage(t, s, tl, nil, "10")

	// The page contains the far edge even though the server did not flag
	// completion, so nothing is missing anymore.
	fill := &GapFill{AfterStatusID: "10", BeforeStatusID: "5", Complete: false}
	insertPage(t, s, tl, fill, "9", "8", "7", "6", "5")

	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected no gaps, got %+v", gaps)
	}
}

func TestSpannedGapPruned(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")
	insertPage(t, s, tl, nil, "10", "9")

	// A big overlapping refresh covers the recorded gap completely.
	insertPage(t, s, tl, nil, "11", "10", "9", "8", "7", "6", "5", "4")

	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected spanned gap pruned, got %+v", gaps)
	}
}

func TestGapsAreScopedPerTimeline(t *testing.T) {
	s := setupTestStore(t)
	home := domain.HomeTimeline()
	local := domain.LocalTimeline()

	insertPage(t, s, home, nil, "5", "4")
	insertPage(t, s, home, nil, "10", "9")
	insertPage(t, s, local, nil, "10", "9")

	gaps, err := s.TimelineGaps(local)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected local timeline without gaps, got %+v", gaps)
	}
}

func TestOrderedTimelineKeepsInsertionOrder(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.ListTimeline("l1", "Friends")

	// Ids deliberately out of snowflake order; the stored position wins.
	insertPage(t, s, tl, nil, "3", "100", "7")
	insertPage(t, s, tl, nil, "50")

	infos, err := s.TimelineStatuses(tl, 0)
	if err != nil {
		t.Fatalf("TimelineStatuses failed: %v", err)
	}
	want := []string{"3", "100", "7", "50"}
	if len(infos) != len(want) {
		t.Fatalf("Expected %d rows, got %d", len(want), len(infos))
	}
	for i, id := range want {
		if infos[i].Status.ID != id {
			t.Errorf("Expected %s at position %d, got %s", id, i, infos[i].Status.ID)
		}
	}
}

func TestClearTimelineKeepsStatuses(t *testing.T) {
	s := setupTestStore(t)
	tl := domain.HomeTimeline()

	insertPage(t, s, tl, nil, "5", "4")
	insertPage(t, s, tl, nil, "10", "9")

	if err := s.ClearTimeline(tl); err != nil {
		t.Fatalf("ClearTimeline failed: %v", err)
	}

	infos, err := s.TimelineStatuses(tl, 0)
	if err != nil {
		t.Fatalf("TimelineStatuses failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected empty timeline, got %d rows", len(infos))
	}
	gaps, err := s.TimelineGaps(tl)
	if err != nil {
		t.Fatalf("TimelineGaps failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected no gaps, got %+v", gaps)
	}

	// The statuses themselves stay cached for other feeds.
	if _, err := s.StatusInfoByID("10"); err != nil {
		t.Errorf("Expected status still cached, got %v", err)
	}
}

package db

import (
	"errors"
	"testing"
	"time"

	"github.com/mivox/fedicache/domain"
)

// setupTestStore opens an in-memory store with blob sealing enabled so the
// crypto path is always exercised.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", "test-pass")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAccount(id, acct string) *domain.Account {
	return &domain.Account{
		ID:          id,
		Username:    acct,
		Acct:        acct,
		DisplayName: "Test " + acct,
		CreatedAt:   time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testStatus(id string, acc *domain.Account) *domain.Status {
	return &domain.Status{
		ID:        id,
		Account:   acc,
		CreatedAt: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		Content:   "<p>hello from " + id + "</p>",
	}
}

func TestStatusRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	acc := testAccount("a1", "alice")
	st := testStatus("100", acc)
	st.SpoilerText = "cw"
	st.Visibility = domain.VisibilityUnlisted
	st.Sensitive = true
	st.Poll = &domain.Poll{
		ID:         "p1",
		Multiple:   true,
		VotesCount: 7,
		Options:    []domain.PollOption{{Title: "yes", VotesCount: 4}, {Title: "no", VotesCount: 3}},
	}
	st.Card = &domain.Card{URL: "https://example.com", Title: "Example"}
	st.Attachments = []domain.Attachment{{ID: "m1", Type: "image", URL: "https://example.com/m1.png"}}
	st.Tags = []domain.Tag{{Name: "golang"}}

	if err := s.UpsertStatuses([]*domain.Status{st}); err != nil {
		t.Fatalf("UpsertStatuses failed: %v", err)
	}

	si, err := s.StatusInfoByID("100")
	if err != nil {
		t.Fatalf("StatusInfoByID failed: %v", err)
	}
	if si.Status.Content != st.Content {
		t.Errorf("Expected content %q, got %q", st.Content, si.Status.Content)
	}
	if si.Status.SpoilerText != "cw" {
		t.Errorf("Expected spoiler %q, got %q", "cw", si.Status.SpoilerText)
	}
	if si.Status.Visibility != domain.VisibilityUnlisted {
		t.Errorf("Expected visibility unlisted, got %s", si.Status.Visibility)
	}
	if !si.Status.CreatedAt.Equal(st.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", st.CreatedAt, si.Status.CreatedAt)
	}
	if si.Status.Poll == nil || len(si.Status.Poll.Options) != 2 {
		t.Fatalf("Expected poll with 2 options, got %+v", si.Status.Poll)
	}
	if si.Status.Poll.Options[0].Title != "yes" {
		t.Errorf("Expected first poll option yes, got %s", si.Status.Poll.Options[0].Title)
	}
	if si.Status.Card == nil || si.Status.Card.Title != "Example" {
		t.Errorf("Expected card Example, got %+v", si.Status.Card)
	}
	if len(si.Status.Attachments) != 1 || si.Status.Attachments[0].ID != "m1" {
		t.Errorf("Expected one attachment m1, got %+v", si.Status.Attachments)
	}
	if si.Account.Acct != "alice" {
		t.Errorf("Expected author alice, got %s", si.Account.Acct)
	}
	if si.Relationship != nil {
		t.Errorf("Expected nil relationship, got %+v", si.Relationship)
	}
}

func TestStatusInfoByIDNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.StatusInfoByID("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpsertKeepsDependents(t *testing.T) {
	s := setupTestStore(t)

	acc := testAccount("a1", "alice")
	if err := s.UpsertStatuses([]*domain.Status{testStatus("100", acc)}); err != nil {
		t.Fatalf("UpsertStatuses failed: %v", err)
	}

	// Refreshing the author must not disturb their cached statuses.
	acc.DisplayName = "Alice Renamed"
	if err := s.UpsertAccounts([]*domain.Account{acc}); err != nil {
		t.Fatalf("UpsertAccounts failed: %v", err)
	}

	si, err := s.StatusInfoByID("100")
	if err != nil {
		t.Fatalf("StatusInfoByID failed: %v", err)
	}
	if si.Account.DisplayName != "Alice Renamed" {
		t.Errorf("Expected renamed author, got %s", si.Account.DisplayName)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	s := setupTestStore(t)

	alice := testAccount("a1", "alice")
	bob := testAccount("a2", "bob")
	original := testStatus("100", alice)
	boost := testStatus("200", bob)
	boost.Reblog = original

	if err := s.UpsertStatuses([]*domain.Status{boost}); err != nil {
		t.Fatalf("UpsertStatuses failed: %v", err)
	}

	if err := s.DeleteAccount("a1"); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	if _, err := s.StatusInfoByID("100"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected original status gone, got %v", err)
	}
	// The boost points at a deleted status and cascades with it.
	if _, err := s.StatusInfoByID("200"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected boost gone, got %v", err)
	}
	if _, err := s.AccountInfoByID("a2"); err != nil {
		t.Errorf("Expected bob untouched, got %v", err)
	}
}

func TestDeleteStatusCascadesBoost(t *testing.T) {
	s := setupTestStore(t)

	boost := testStatus("200", testAccount("a2", "bob"))
	boost.Reblog = testStatus("100", testAccount("a1", "alice"))
	if err := s.UpsertStatuses([]*domain.Status{boost}); err != nil {
		t.Fatalf("UpsertStatuses failed: %v", err)
	}

	if err := s.DeleteStatus("100"); err != nil {
		t.Fatalf("DeleteStatus failed: %v", err)
	}
	if _, err := s.StatusInfoByID("200"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected boost of deleted status gone, got %v", err)
	}
}

func TestRelationshipJoin(t *testing.T) {
	s := setupTestStore(t)

	if err := s.UpsertAccounts([]*domain.Account{testAccount("a1", "alice")}); err != nil {
		t.Fatalf("UpsertAccounts failed: %v", err)
	}
	rel := &domain.Relationship{AccountID: "a1", Following: true, ShowingReblogs: true}
	if err := s.UpsertRelationships([]*domain.Relationship{rel}); err != nil {
		t.Fatalf("UpsertRelationships failed: %v", err)
	}

	ai, err := s.AccountInfoByID("a1")
	if err != nil {
		t.Fatalf("AccountInfoByID failed: %v", err)
	}
	if ai.Relationship == nil || !ai.Relationship.Following {
		t.Errorf("Expected following relationship, got %+v", ai.Relationship)
	}
}

func TestReplaceFiltersClears(t *testing.T) {
	s := setupTestStore(t)

	rules := []domain.Filter{
		{ID: "f1", Phrase: "spoiler", Contexts: []domain.FilterContext{domain.FilterContextHome}},
		{ID: "f2", Phrase: "politics", Contexts: []domain.FilterContext{domain.FilterContextPublic}},
	}
	if err := s.ReplaceFilters(rules); err != nil {
		t.Fatalf("ReplaceFilters failed: %v", err)
	}

	got, err := s.Filters()
	if err != nil {
		t.Fatalf("Filters failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 filters, got %d", len(got))
	}

	// The server dropping every rule must clear the cache too.
	if err := s.ReplaceFilters(nil); err != nil {
		t.Fatalf("ReplaceFilters failed: %v", err)
	}
	got, err = s.Filters()
	if err != nil {
		t.Fatalf("Filters failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no filters, got %d", len(got))
	}
}

func TestReplaceListAccounts(t *testing.T) {
	s := setupTestStore(t)

	if err := s.ReplaceLists([]domain.List{{ID: "l1", Title: "Friends"}}); err != nil {
		t.Fatalf("ReplaceLists failed: %v", err)
	}
	members := []*domain.Account{testAccount("a1", "alice"), testAccount("a2", "bob")}
	if err := s.ReplaceListAccounts("l1", members); err != nil {
		t.Fatalf("ReplaceListAccounts failed: %v", err)
	}

	got, err := s.ListAccounts("l1")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(got))
	}

	// Shrinking the membership drops the missing account.
	if err := s.ReplaceListAccounts("l1", members[:1]); err != nil {
		t.Fatalf("ReplaceListAccounts failed: %v", err)
	}
	got, err = s.ListAccounts("l1")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(got) != 1 || got[0].Account.ID != "a1" {
		t.Errorf("Expected only alice, got %+v", got)
	}
}

func TestContentToggles(t *testing.T) {
	s := setupTestStore(t)

	if err := s.UpsertStatuses([]*domain.Status{testStatus("100", testAccount("a1", "alice"))}); err != nil {
		t.Fatalf("UpsertStatuses failed: %v", err)
	}

	if err := s.SetContentToggled("100", true); err != nil {
		t.Fatalf("SetContentToggled failed: %v", err)
	}
	if err := s.SetAttachmentsToggled("100", true); err != nil {
		t.Fatalf("SetAttachmentsToggled failed: %v", err)
	}

	si, err := s.StatusInfoByID("100")
	if err != nil {
		t.Fatalf("StatusInfoByID failed: %v", err)
	}
	if !si.ShowingContent || !si.ShowingAttachments {
		t.Errorf("Expected both toggles set, got content=%v attachments=%v", si.ShowingContent, si.ShowingAttachments)
	}

	if err := s.SetContentToggled("100", false); err != nil {
		t.Fatalf("SetContentToggled failed: %v", err)
	}
	si, err = s.StatusInfoByID("100")
	if err != nil {
		t.Fatalf("StatusInfoByID failed: %v", err)
	}
	if si.ShowingContent {
		t.Error("Expected content toggle cleared")
	}
}

func TestAccountLists(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.CreateAccountList([]*domain.Account{testAccount("a2", "bob"), testAccount("a1", "alice")})
	if err != nil {
		t.Fatalf("CreateAccountList failed: %v", err)
	}

	got, err := s.AccountListAccounts(id)
	if err != nil {
		t.Fatalf("AccountListAccounts failed: %v", err)
	}
	if len(got) != 2 || got[0].Account.ID != "a2" || got[1].Account.ID != "a1" {
		t.Errorf("Expected stored order bob, alice, got %+v", got)
	}

	if err := s.SetAccountListAccounts(id, []*domain.Account{testAccount("a3", "carol")}); err != nil {
		t.Fatalf("SetAccountListAccounts failed: %v", err)
	}
	got, err = s.AccountListAccounts(id)
	if err != nil {
		t.Fatalf("AccountListAccounts failed: %v", err)
	}
	if len(got) != 1 || got[0].Account.ID != "a3" {
		t.Errorf("Expected only carol, got %+v", got)
	}

	if err := s.ReleaseAccountList(id); err != nil {
		t.Fatalf("ReleaseAccountList failed: %v", err)
	}
	got, err = s.AccountListAccounts(id)
	if err != nil {
		t.Fatalf("AccountListAccounts failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected released list empty, got %+v", got)
	}
}

func TestClosedStoreRefusesWrites(t *testing.T) {
	s, err := Open(":memory:", "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err = s.UpsertAccounts([]*domain.Account{testAccount("a1", "alice")})
	if !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed, got %v", err)
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	inst := &domain.Instance{
		Domain:    "example.social",
		Title:     "Example",
		Version:   "4.2.0",
		Stats:     &domain.InstanceStats{UserCount: 12, StatusCount: 345},
		UpdatedAt: time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertInstance(inst); err != nil {
		t.Fatalf("UpsertInstance failed: %v", err)
	}

	got, err := s.InstanceByDomain("example.social")
	if err != nil {
		t.Fatalf("InstanceByDomain failed: %v", err)
	}
	if got.Title != "Example" || got.Stats == nil || got.Stats.StatusCount != 345 {
		t.Errorf("Expected instance round trip, got %+v", got)
	}
}

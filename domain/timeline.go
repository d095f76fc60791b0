package domain

import "strings"

// TimelineKind discriminates the timeline union. Every consumption site
// switches exhaustively over it.
type TimelineKind string

const (
	TimelineHome       TimelineKind = "home"
	TimelineLocal      TimelineKind = "local"
	TimelineFederated  TimelineKind = "federated"
	TimelineFavourites TimelineKind = "favourites"
	TimelineBookmarks  TimelineKind = "bookmarks"
	TimelineList       TimelineKind = "list"
	TimelineHashtag    TimelineKind = "hashtag"
	TimelineProfile    TimelineKind = "profile"
)

// ProfileCollection selects which slice of an account's posts a profile
// timeline shows.
type ProfileCollection string

const (
	ProfileStatuses ProfileCollection = "statuses"
	ProfileReplies  ProfileCollection = "statuses_and_replies"
	ProfileMedia    ProfileCollection = "media"
)

// Timeline names one feed. Only the fields belonging to Kind are populated.
type Timeline struct {
	Kind       TimelineKind
	ListID     string
	ListTitle  string
	Hashtag    string
	AccountID  string
	Collection ProfileCollection
}

func HomeTimeline() Timeline       { return Timeline{Kind: TimelineHome} }
func LocalTimeline() Timeline      { return Timeline{Kind: TimelineLocal} }
func FederatedTimeline() Timeline  { return Timeline{Kind: TimelineFederated} }
func FavouritesTimeline() Timeline { return Timeline{Kind: TimelineFavourites} }
func BookmarksTimeline() Timeline  { return Timeline{Kind: TimelineBookmarks} }

func ListTimeline(id, title string) Timeline {
	return Timeline{Kind: TimelineList, ListID: id, ListTitle: title}
}

func HashtagTimeline(tag string) Timeline {
	return Timeline{Kind: TimelineHashtag, Hashtag: tag}
}

func ProfileTimeline(accountID string, collection ProfileCollection) Timeline {
	return Timeline{Kind: TimelineProfile, AccountID: accountID, Collection: collection}
}

// ID returns the canonical discriminated identity under which the timeline's
// membership and gap rows are stored.
func (t Timeline) ID() string {
	switch t.Kind {
	case TimelineHome, TimelineLocal, TimelineFederated, TimelineFavourites, TimelineBookmarks:
		return string(t.Kind)
	case TimelineList:
		return "list:" + t.ListID
	case TimelineHashtag:
		return "tag:" + strings.ToLower(t.Hashtag)
	case TimelineProfile:
		return "profile:" + t.AccountID + ":" + string(t.Collection)
	}
	return string(t.Kind)
}

// Ordered reports whether membership rows carry an explicit position. Every
// other timeline sorts by status id, newest first.
func (t Timeline) Ordered() bool {
	return t.Kind == TimelineList
}

// Gap records that two cached timeline entries are not known to be adjacent
// on the server. The UI renders it as a load-more control.
type Gap struct {
	TimelineID     string
	AfterStatusID  string
	BeforeStatusID string
}

// List is the metadata of a server-side list feed.
type List struct {
	ID    string
	Title string
}

package domain

import "time"

// Visibility is the audience of a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Status is a cached post. A reblog carries its target in ReblogOfID/Reblog
// and resolves its displayed content through it.
type Status struct {
	ID                 string
	AccountID          string
	Account            *Account // embedded copy when the API delivered one
	CreatedAt          time.Time
	Content            string
	SpoilerText        string
	Visibility         Visibility
	Sensitive          bool
	Language           string
	URL                string
	InReplyToID        string
	InReplyToAccountID string
	ReblogOfID         string
	Reblog             *Status
	Poll               *Poll
	Card               *Card
	Application        *Application
	Attachments        []Attachment
	Mentions           []Mention
	Tags               []Tag
	Emojis             []Emoji
	RepliesCount       int64
	ReblogsCount       int64
	FavouritesCount    int64
	Favourited         bool
	Reblogged          bool
	Muted              bool
	Bookmarked         bool
	Pinned             bool
}

// Poll is the optional poll payload of a status.
type Poll struct {
	ID         string       `json:"id"`
	ExpiresAt  *time.Time   `json:"expires_at"`
	Expired    bool         `json:"expired"`
	Multiple   bool         `json:"multiple"`
	VotesCount int64        `json:"votes_count"`
	Voted      bool         `json:"voted"`
	Options    []PollOption `json:"options"`
}

// PollOption is one answer of a poll.
type PollOption struct {
	Title      string `json:"title"`
	VotesCount int64  `json:"votes_count"`
}

// Card is the optional link-preview payload of a status.
type Card struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Type        string `json:"type"`
}

// Application names the client a status was posted with.
type Application struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// Attachment is one media attachment of a status.
type Attachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	RemoteURL   string `json:"remote_url"`
	Description string `json:"description"`
	Blurhash    string `json:"blurhash"`
}

// Mention is one @-mention inside a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

// Tag is one hashtag inside a status.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CompareStatusIDs orders status ids the way the remote server does: the
// usual integer snowflakes compare numerically (shorter means smaller),
// anything else falls back to plain string comparison. Returns <0, 0 or >0.
func CompareStatusIDs(a, b string) int {
	if isNumericID(a) && isNumericID(b) && len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

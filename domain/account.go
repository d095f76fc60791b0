package domain

import "time"

// Account is a cached copy of an account as delivered by the API client.
// The id is the remote server's id and is stable across refreshes.
type Account struct {
	ID             string
	Username       string
	Acct           string
	DisplayName    string
	Note           string
	URL            string
	AvatarURL      string
	HeaderURL      string
	Locked         bool
	Bot            bool
	FollowersCount int64
	FollowingCount int64
	StatusesCount  int64
	Emojis         []Emoji
	Fields         []Field
	CreatedAt      time.Time
	MovedToID      string   // id of the account this one moved to, empty if none
	MovedTo        *Account // embedded copy when the API delivered one
}

// Emoji is a custom emoji reference carried inside accounts and statuses.
type Emoji struct {
	Shortcode string `json:"shortcode"`
	URL       string `json:"url"`
	StaticURL string `json:"static_url"`
}

// Field is one name/value pair from an account's profile metadata table.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Relationship holds the viewer's relationship flags for one account.
// It lives and dies with its account row.
type Relationship struct {
	AccountID           string
	Following           bool
	FollowedBy          bool
	Requested           bool
	Muting              bool
	MutingNotifications bool
	Blocking            bool
	DomainBlocking      bool
	Endorsed            bool
	ShowingReblogs      bool
}

// Handle returns the @user or @user@domain form for display.
func (a *Account) Handle() string {
	if a.Acct != "" {
		return "@" + a.Acct
	}
	return "@" + a.Username
}

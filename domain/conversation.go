package domain

// Conversation is a cached direct-message thread head.
type Conversation struct {
	ID           string
	Unread       bool
	LastStatusID string
	LastStatus   *Status   // embedded copy when the API delivered one
	Accounts     []Account // participants
}

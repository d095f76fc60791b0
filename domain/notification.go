package domain

import "time"

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationMention       NotificationType = "mention"
	NotificationReblog        NotificationType = "reblog"
	NotificationFavourite     NotificationType = "favourite"
	NotificationFollow        NotificationType = "follow"
	NotificationFollowRequest NotificationType = "follow_request"
	NotificationPoll          NotificationType = "poll"
)

// Notification is one entry of the notifications feed.
type Notification struct {
	ID        string
	Type      NotificationType
	CreatedAt time.Time
	AccountID string   // the account that triggered the notification
	Account   *Account // embedded copy when the API delivered one
	StatusID  string   // related status, empty for follow notifications
	Status    *Status
}

// TypeLabel returns a human-readable label for the notification type
func (n *Notification) TypeLabel() string {
	switch n.Type {
	case NotificationMention:
		return "mentioned you"
	case NotificationReblog:
		return "boosted your post"
	case NotificationFavourite:
		return "favourited your post"
	case NotificationFollow:
		return "followed you"
	case NotificationFollowRequest:
		return "requested to follow you"
	case NotificationPoll:
		return "poll has ended"
	}
	return string(n.Type)
}

package domain

import "time"

// Instance caches the metadata of a server the client talks to.
type Instance struct {
	Domain           string
	Title            string
	Description      string
	Version          string
	Stats            *InstanceStats
	ContactAccountID string
	UpdatedAt        time.Time
}

// InstanceStats is the activity summary block of an instance.
type InstanceStats struct {
	UserCount   int64 `json:"user_count"`
	StatusCount int64 `json:"status_count"`
	DomainCount int64 `json:"domain_count"`
}

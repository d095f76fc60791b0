package domain

import "time"

// FilterContext names a place a filter rule can apply to.
type FilterContext string

const (
	FilterContextHome          FilterContext = "home"
	FilterContextNotifications FilterContext = "notifications"
	FilterContextPublic        FilterContext = "public"
	FilterContextThread        FilterContext = "thread"
	FilterContextAccount       FilterContext = "account"
)

// Filter is one phrase-filter rule as declared on the server.
type Filter struct {
	ID           string
	Phrase       string
	Contexts     []FilterContext
	ExpiresAt    *time.Time // nil means the rule never expires
	WholeWord    bool
	Irreversible bool
}

// Expired reports whether the rule has lapsed and must not be compiled.
func (f Filter) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && f.ExpiresAt.Before(now)
}

// AppliesTo reports whether the rule's declared context set covers ctx.
func (f Filter) AppliesTo(ctx FilterContext) bool {
	for _, c := range f.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

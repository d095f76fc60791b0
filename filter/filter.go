// Package filter compiles the server's phrase-filter rules into matchers
// applied to cached statuses before they reach a feed.
package filter

import (
	"regexp"
	"strings"
	"time"

	"github.com/mivox/fedicache/domain"
	"github.com/mivox/fedicache/util"
)

// Matcher holds one compiled pattern per filter context. A context with no
// live rules has no pattern and matches nothing.
type Matcher struct {
	patterns map[domain.FilterContext]*regexp.Regexp
}

// Compile builds a Matcher from the cached rules, skipping the ones lapsed
// at now and returning them so the caller can trigger a server-side refresh.
// Rules for the same context fold into one alternation.
func Compile(rules []domain.Filter, now time.Time) (*Matcher, []domain.Filter) {
	var expired []domain.Filter
	parts := make(map[domain.FilterContext][]string)
	for _, f := range rules {
		if f.Expired(now) {
			expired = append(expired, f)
			continue
		}
		expr := regexp.QuoteMeta(f.Phrase)
		if f.WholeWord {
			expr = `\b` + expr + `\b`
		}
		for _, ctx := range f.Contexts {
			parts[ctx] = append(parts[ctx], expr)
		}
	}

	m := &Matcher{patterns: make(map[domain.FilterContext]*regexp.Regexp, len(parts))}
	for ctx, exprs := range parts {
		// QuoteMeta guarantees each branch is valid, so the whole
		// alternation always compiles.
		m.patterns[ctx] = regexp.MustCompile(`(?i)` + strings.Join(exprs, "|"))
	}
	return m, expired
}

// Match reports whether text trips a rule declared for ctx.
func (m *Matcher) Match(ctx domain.FilterContext, text string) bool {
	p, ok := m.patterns[ctx]
	return ok && p.MatchString(text)
}

// MatchStatus reports whether a status should be dropped from a feed shown
// under ctx. A boost is judged by its target's content as well as its own.
func (m *Matcher) MatchStatus(ctx domain.FilterContext, st *domain.Status) bool {
	if _, ok := m.patterns[ctx]; !ok {
		return false
	}
	if m.Match(ctx, statusText(st)) {
		return true
	}
	return st.Reblog != nil && m.Match(ctx, statusText(st.Reblog))
}

// statusText is the searchable surface of a status: stripped content, the
// spoiler line and any poll options.
func statusText(st *domain.Status) string {
	var sb strings.Builder
	sb.WriteString(util.StripHTMLTags(st.Content))
	if st.SpoilerText != "" {
		sb.WriteString("\n")
		sb.WriteString(st.SpoilerText)
	}
	if st.Poll != nil {
		for _, opt := range st.Poll.Options {
			sb.WriteString("\n")
			sb.WriteString(opt.Title)
		}
	}
	return sb.String()
}

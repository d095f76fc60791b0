package util

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

// TimeLayout is the single timestamp format every column uses. Stored values
// are always UTC.
const TimeLayout = time.RFC3339Nano

// FormatTime renders t in the store's canonical timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a timestamp in the store's canonical format. An empty
// string yields the zero time without error.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

var (
	brTags    = regexp.MustCompile(`(?i)<br\s*/?>`)
	pBoundary = regexp.MustCompile(`(?i)</p>\s*<p[^>]*>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
)

// StripHTMLTags reduces a status' HTML content to the plain text a viewer
// reads, keeping paragraph and line breaks.
func StripHTMLTags(s string) string {
	s = brTags.ReplaceAllString(s, "\n")
	s = pBoundary.ReplaceAllString(s, "\n\n")
	s = anyTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

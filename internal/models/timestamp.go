package models

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Jira Cloud emits offsets without a colon, e.g. 2025-01-15T10:00:00.000+0000
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseTimestamp parses a Jira timestamp. It returns nil for empty or
// unparseable input.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	return &t
}

// Package chat delivers raw alert text from a chat feed. The engine consumes
// events that have already passed channel and author filtering.
package chat

import (
	"context"
	"strings"
)

// Event is one filtered chat message.
type Event struct {
	Author string
	Text   string
}

// Source produces filtered chat events until the context is cancelled.
type Source interface {
	Events(ctx context.Context) (<-chan Event, error)
}

// MatchAuthor reports whether an author display name matches any tracked
// name. Matching is case-insensitive substring, so "Trader-Joe#123" matches
// a tracked "trader-joe".
func MatchAuthor(author string, tracked []string) bool {
	a := strings.ToLower(author)
	for _, t := range tracked {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(a, t) {
			return true
		}
	}
	return false
}

package querystring

import (
	"net/url"
	"strings"
	"sync"
)

// Location is the in-memory address bar: the current query string plus the
// navigation history. Push adds a history entry, Replace rewrites the current
// one in place.
type Location struct {
	mu      sync.Mutex
	query   string
	history []string
}

// NewLocation starts a location at the given query string.
func NewLocation(initial string) *Location {
	initial = strings.TrimPrefix(initial, "?")
	return &Location{
		query:   initial,
		history: []string{initial},
	}
}

// Query returns the current query string without a leading '?'.
func (l *Location) Query() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// Values returns the current query string parsed.
func (l *Location) Values() url.Values {
	return Parse(l.Query())
}

// Push navigates to query, adding a history entry.
func (l *Location) Push(query string) {
	query = strings.TrimPrefix(query, "?")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = query
	l.history = append(l.history, query)
}

// Replace rewrites the current entry without adding history.
func (l *Location) Replace(query string) {
	query = strings.TrimPrefix(query, "?")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = query
	l.history[len(l.history)-1] = query
}

// History returns a copy of every entry, oldest first.
func (l *Location) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.history...)
}

// Package viewstate holds the page-wide view state shared by the fetch
// orchestrator, the mutation cascade and the renderer.
package viewstate

import (
	"sync"

	"postly/internal/view"
)

// Field identifies which value of the store changed.
type Field int

const (
	FieldActiveView Field = iota
	FieldSearchQuery
	FieldTotalPages
	FieldSelectedPostID
	FieldSelectedArchiveTargetID
	FieldTotalCommentCount
)

var fieldNames = [...]string{
	FieldActiveView:              "active_view",
	FieldSearchQuery:             "search_query",
	FieldTotalPages:              "total_pages",
	FieldSelectedPostID:          "selected_post_id",
	FieldSelectedArchiveTargetID: "selected_archive_target_id",
	FieldTotalCommentCount:       "total_comment_count",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return "unknown"
	}
	return fieldNames[f]
}

// State is a consistent copy of every store value.
type State struct {
	ActiveView              view.Selector
	SearchQuery             string
	TotalPages              int
	SelectedPostID          string
	SelectedArchiveTargetID string
	TotalCommentCount       int
}

// Change is delivered to subscribers after a value actually changed.
type Change struct {
	Field Field
	State State
}

// Store is a passive container; it performs no cross-field validation. The
// URL is not touched here: whoever calls SetActiveView also encodes the new
// location.
type Store struct {
	mu          sync.Mutex
	state       State
	nextID      int
	subscribers map[int]func(Change)
}

// New returns a store with AllPosts active.
func New() *Store {
	return &Store{
		state:       defaultState(),
		subscribers: make(map[int]func(Change)),
	}
}

func defaultState() State {
	return State{ActiveView: view.AllPosts}
}

// Subscribe registers fn for change notifications and returns a function that
// removes it. fn runs synchronously on the goroutine that made the change and
// must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) ActiveView() view.Selector {
	return s.Snapshot().ActiveView
}

func (s *Store) SearchQuery() string {
	return s.Snapshot().SearchQuery
}

func (s *Store) TotalPages() int {
	return s.Snapshot().TotalPages
}

func (s *Store) SelectedPostID() string {
	return s.Snapshot().SelectedPostID
}

func (s *Store) SelectedArchiveTargetID() string {
	return s.Snapshot().SelectedArchiveTargetID
}

func (s *Store) TotalCommentCount() int {
	return s.Snapshot().TotalCommentCount
}

func (s *Store) SetActiveView(v view.Selector) {
	s.update(FieldActiveView, func(st *State) bool {
		if st.ActiveView == v {
			return false
		}
		st.ActiveView = v
		return true
	})
}

func (s *Store) SetSearchQuery(q string) {
	s.update(FieldSearchQuery, func(st *State) bool {
		if st.SearchQuery == q {
			return false
		}
		st.SearchQuery = q
		return true
	})
}

func (s *Store) SetTotalPages(n int) {
	s.update(FieldTotalPages, func(st *State) bool {
		if st.TotalPages == n {
			return false
		}
		st.TotalPages = n
		return true
	})
}

func (s *Store) SetSelectedPostID(id string) {
	s.update(FieldSelectedPostID, func(st *State) bool {
		if st.SelectedPostID == id {
			return false
		}
		st.SelectedPostID = id
		return true
	})
}

func (s *Store) SetSelectedArchiveTargetID(id string) {
	s.update(FieldSelectedArchiveTargetID, func(st *State) bool {
		if st.SelectedArchiveTargetID == id {
			return false
		}
		st.SelectedArchiveTargetID = id
		return true
	})
}

func (s *Store) SetTotalCommentCount(n int) {
	s.update(FieldTotalCommentCount, func(st *State) bool {
		if st.TotalCommentCount == n {
			return false
		}
		st.TotalCommentCount = n
		return true
	})
}

// Reset restores the defaults, notifying once per field that changed.
func (s *Store) Reset() {
	def := defaultState()
	s.SetActiveView(def.ActiveView)
	s.SetSearchQuery(def.SearchQuery)
	s.SetTotalPages(def.TotalPages)
	s.SetSelectedPostID(def.SelectedPostID)
	s.SetSelectedArchiveTargetID(def.SelectedArchiveTargetID)
	s.SetTotalCommentCount(def.TotalCommentCount)
}

func (s *Store) update(field Field, apply func(*State) bool) {
	s.mu.Lock()
	if !apply(&s.state) {
		s.mu.Unlock()
		return
	}
	change := Change{Field: field, State: s.state}
	subs := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

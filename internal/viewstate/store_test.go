package viewstate

import (
	"testing"

	"postly/internal/view"

	"github.com/stretchr/testify/assert"
)

func TestStore_Defaults(t *testing.T) {
	t.Parallel()

	s := New()
	assert.Equal(t, view.AllPosts, s.ActiveView())
	assert.Empty(t, s.SearchQuery())
	assert.Zero(t, s.TotalPages())
}

func TestStore_NotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()

	s := New()
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.SetActiveView(view.LikedPosts)
	s.SetActiveView(view.LikedPosts)
	s.SetSearchQuery("go")
	s.SetTotalPages(4)

	if assert.Len(t, changes, 3) {
		assert.Equal(t, FieldActiveView, changes[0].Field)
		assert.Equal(t, view.LikedPosts, changes[0].State.ActiveView)
		assert.Equal(t, FieldSearchQuery, changes[1].Field)
		assert.Equal(t, FieldTotalPages, changes[2].Field)
		assert.Equal(t, 4, changes[2].State.TotalPages)
	}

	unsubscribe()
	s.SetTotalCommentCount(3)
	assert.Len(t, changes, 3)
}

func TestStore_FieldsAreIndependent(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetSelectedPostID("p1")
	s.SetSelectedArchiveTargetID("p2")
	s.SetTotalCommentCount(8)
	s.SetActiveView(view.ArchivedPosts)

	st := s.Snapshot()
	assert.Equal(t, "p1", st.SelectedPostID)
	assert.Equal(t, "p2", st.SelectedArchiveTargetID)
	assert.Equal(t, 8, st.TotalCommentCount)
	assert.Equal(t, view.ArchivedPosts, st.ActiveView)
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	t.Parallel()

	s := New()
	var seen view.Selector
	s.Subscribe(func(Change) { seen = s.ActiveView() })

	s.SetActiveView(view.MyPosts)
	assert.Equal(t, view.MyPosts, seen)
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetActiveView(view.MyPosts)
	s.SetSearchQuery("x")
	s.SetTotalPages(3)

	s.Reset()
	assert.Equal(t, State{ActiveView: view.AllPosts}, s.Snapshot())
}

package thread

import (
	"testing"

	"postly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commentPage(page, totalPages int, comments ...models.Comment) models.CommentPage {
	return models.CommentPage{
		Pagination: models.Pagination{Page: page, TotalPages: totalPages},
		Data:       comments,
	}
}

func TestThread_IgnoresWritesForOtherPosts(t *testing.T) {
	t.Parallel()

	th := New()
	assert.False(t, th.SetPost(models.Post{ID: "p1"}))

	th.Open("p1")
	assert.True(t, th.IsOpen("p1"))
	assert.False(t, th.SetPost(models.Post{ID: "p2"}))
	assert.False(t, th.ReplaceComments("p2", commentPage(1, 1, models.Comment{ID: "c1"}), 1))

	require.True(t, th.SetPost(models.Post{ID: "p1", Likes: 3}))
	p, ok := th.Post()
	require.True(t, ok)
	assert.Equal(t, 3, p.Likes)

	th.Close()
	_, ok = th.Post()
	assert.False(t, ok)
	assert.Empty(t, th.PostID())
}

func TestThread_MergeCommentsDedupesLaterWins(t *testing.T) {
	t.Parallel()

	th := New()
	th.Open("p1")
	require.True(t, th.ReplaceComments("p1", commentPage(1, 2,
		models.Comment{ID: "a", Likes: 1},
		models.Comment{ID: "b", Likes: 1},
	), 4))
	assert.True(t, th.HasMoreComments())

	require.True(t, th.MergeComments("p1", commentPage(2, 2,
		models.Comment{ID: "b", Likes: 7},
		models.Comment{ID: "c"},
		models.Comment{ID: "d"},
	), 4))

	comments := th.Comments()
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, 7, comments[1].Likes)
	assert.Equal(t, 2, th.CommentPage())
	assert.False(t, th.HasMoreComments())
	assert.Equal(t, 4, th.TotalComments())
}

func TestThread_ToggleCommentLike(t *testing.T) {
	t.Parallel()

	th := New()
	th.Open("p1")
	th.ReplaceComments("p1", commentPage(1, 1, models.Comment{ID: "c1", Likes: 2}), 1)

	c, ok := th.ToggleCommentLike("c1")
	require.True(t, ok)
	assert.True(t, c.IsLikedByCurrentUser)
	assert.Equal(t, 3, c.Likes)

	c, ok = th.ToggleCommentLike("c1")
	require.True(t, ok)
	assert.False(t, c.IsLikedByCurrentUser)
	assert.Equal(t, 2, c.Likes)

	_, ok = th.ToggleCommentLike("missing")
	assert.False(t, ok)
}

func TestThread_PatchDetailCopy(t *testing.T) {
	t.Parallel()

	th := New()
	th.Open("p1")
	th.SetPost(models.Post{ID: "p1", Author: models.Author{ID: "author"}, Views: 5, Comments: 1})

	assert.True(t, th.PatchLike("p1", 9, true))
	assert.True(t, th.PatchArchive("p1", true))
	assert.True(t, th.PatchViewCount("p1", "author"))
	assert.True(t, th.PatchViewCount("p1", "reader"))
	assert.True(t, th.IncrementCommentCount("p1"))
	assert.False(t, th.PatchLike("p2", 1, false))

	p, _ := th.Post()
	assert.Equal(t, 9, p.Likes)
	assert.True(t, p.IsLikedByCurrentUser)
	assert.True(t, p.IsArchived)
	assert.Equal(t, 6, p.Views)
	assert.Equal(t, 2, p.Comments)
	assert.Equal(t, 1, th.TotalComments())
}

func TestThread_ScrollFiresOnceAfterCommentsLoad(t *testing.T) {
	t.Parallel()

	th := New()
	th.Open("p1")
	th.RequestScroll()
	assert.False(t, th.ConsumeScroll(), "no comments yet")

	th.ReplaceComments("p1", commentPage(1, 1, models.Comment{ID: "c1"}), 1)
	assert.True(t, th.ConsumeScroll())
	assert.False(t, th.ConsumeScroll())
}

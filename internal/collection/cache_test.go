package collection

import (
	"testing"

	"postly/internal/models"
	"postly/internal/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePosts() []models.Post {
	return []models.Post{
		{ID: "p1", Author: models.Author{ID: "u1"}, Likes: 2, Views: 10},
		{ID: "p2", Author: models.Author{ID: "u2"}, Likes: 0, Views: 3, IsLikedByCurrentUser: false},
	}
}

func TestCache_ReplaceAndGet(t *testing.T) {
	t.Parallel()

	c := New()
	assert.False(t, c.Get(view.AllPosts).Loaded)

	c.Replace(view.AllPosts, samplePosts(), models.Pagination{Page: 2, TotalPages: 5, Limit: 10, Offset: 10}, "go")

	col := c.Get(view.AllPosts)
	assert.True(t, col.Loaded)
	assert.Len(t, col.Items, 2)
	assert.Equal(t, 2, col.Page)
	assert.Equal(t, 5, col.TotalPages)
	assert.Equal(t, "go", col.SearchQuery)

	// Get hands out copies.
	col.Items[0].Likes = 99
	p, ok := c.Find(view.AllPosts, "p1")
	require.True(t, ok)
	assert.Equal(t, 2, p.Likes)

	assert.Empty(t, c.Get(view.LikedPosts).Items)
}

func TestCache_PatchLikeTouchesOnlyOneView(t *testing.T) {
	t.Parallel()

	c := New()
	c.Replace(view.AllPosts, samplePosts(), models.Pagination{Page: 1}, "")
	c.Replace(view.MyPosts, samplePosts(), models.Pagination{Page: 1}, "")

	require.True(t, c.PatchLike(view.AllPosts, "p2", 1, true))

	p, _ := c.Find(view.AllPosts, "p2")
	assert.Equal(t, 1, p.Likes)
	assert.True(t, p.IsLikedByCurrentUser)

	other, _ := c.Find(view.MyPosts, "p2")
	assert.Equal(t, 0, other.Likes)
	assert.False(t, other.IsLikedByCurrentUser)
}

func TestCache_PatchAbsentIsNoop(t *testing.T) {
	t.Parallel()

	c := New()
	c.Replace(view.AllPosts, samplePosts(), models.Pagination{Page: 1}, "")
	before := c.Get(view.AllPosts)

	assert.False(t, c.PatchLike(view.AllPosts, "missing", 5, true))
	assert.False(t, c.PatchArchive(view.AllPosts, "missing", true))
	assert.False(t, c.PatchViewCount(view.AllPosts, "missing", "u9"))
	assert.False(t, c.PatchLike(view.Selector(42), "p1", 5, true))

	assert.Equal(t, before, c.Get(view.AllPosts))
}

func TestCache_PatchViewCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		viewer string
		want   int
	}{
		{"other user", "u2", 11},
		{"anonymous", "", 11},
		{"author viewing own post", "u1", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New()
			c.Replace(view.AllPosts, samplePosts(), models.Pagination{Page: 1}, "")

			require.True(t, c.PatchViewCount(view.AllPosts, "p1", tt.viewer))
			p, _ := c.Find(view.AllPosts, "p1")
			assert.Equal(t, tt.want, p.Views)
		})
	}
}

func TestCache_PatchArchiveAndCommentCount(t *testing.T) {
	t.Parallel()

	c := New()
	c.Replace(view.MyPosts, samplePosts(), models.Pagination{Page: 1}, "")

	require.True(t, c.PatchArchive(view.MyPosts, "p1", true))
	require.True(t, c.PatchCommentCount(view.MyPosts, "p1", 1))

	p, _ := c.Find(view.MyPosts, "p1")
	assert.True(t, p.IsArchived)
	assert.Equal(t, 1, p.Comments)
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := New()
	for _, v := range view.All() {
		c.Replace(v, samplePosts(), models.Pagination{Page: 1}, "")
	}
	c.Clear()
	for _, v := range view.All() {
		assert.False(t, c.Get(v).Loaded, v.String())
		assert.Empty(t, c.Get(v).Items)
	}
}

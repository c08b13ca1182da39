package querystring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocation_PushAddsHistory(t *testing.T) {
	t.Parallel()

	loc := NewLocation("?all-posts-page=1")
	loc.Push("liked-posts-page=1")
	loc.Push("?liked-posts-page=2")

	assert.Equal(t, "liked-posts-page=2", loc.Query())
	assert.Equal(t, []string{"all-posts-page=1", "liked-posts-page=1", "liked-posts-page=2"}, loc.History())
}

func TestLocation_ReplaceKeepsHistoryLength(t *testing.T) {
	t.Parallel()

	loc := NewLocation("all-posts-page=abc")
	loc.Replace("all-posts-page=1")

	assert.Equal(t, "all-posts-page=1", loc.Query())
	assert.Len(t, loc.History(), 1)
	assert.Equal(t, "1", loc.Values().Get("all-posts-page"))
}

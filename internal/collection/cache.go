// Package collection caches the last successfully fetched page of each post
// view.
package collection

import (
	"sync"

	"postly/internal/models"
	"postly/internal/view"
)

// Collection is one view's cached page.
type Collection struct {
	Items       []models.Post
	Page        int
	TotalPages  int
	Limit       int
	Offset      int
	SearchQuery string
	// Loaded is false until the first successful fetch.
	Loaded bool
}

// Cache holds one Collection per view. Contents change only through Replace
// (a confirmed fetch) or the Patch methods (a confirmed mutation).
type Cache struct {
	mu          sync.RWMutex
	collections [view.Count]Collection
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Replace installs a freshly fetched page for v.
func (c *Cache) Replace(v view.Selector, items []models.Post, meta models.Pagination, searchQuery string) {
	if !v.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[v] = Collection{
		Items:       append([]models.Post(nil), items...),
		Page:        meta.Page,
		TotalPages:  meta.TotalPages,
		Limit:       meta.Limit,
		Offset:      meta.Offset,
		SearchQuery: searchQuery,
		Loaded:      true,
	}
}

// Get returns a copy of v's collection.
func (c *Cache) Get(v view.Selector) Collection {
	if !v.Valid() {
		return Collection{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	col := c.collections[v]
	col.Items = append([]models.Post(nil), col.Items...)
	return col
}

// Find returns a copy of the post with id in v's collection.
func (c *Cache) Find(v view.Selector, id string) (models.Post, bool) {
	if !v.Valid() {
		return models.Post{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.collections[v].Items {
		if p.ID == id {
			return p, true
		}
	}
	return models.Post{}, false
}

// PatchLike sets the like count and flag of id in v only. It reports whether
// the post was found.
func (c *Cache) PatchLike(v view.Selector, id string, likes int, liked bool) bool {
	return c.patch(v, id, func(p *models.Post) {
		p.Likes = likes
		p.IsLikedByCurrentUser = liked
	})
}

// PatchArchive sets the archived flag of id in v.
func (c *Cache) PatchArchive(v view.Selector, id string, archived bool) bool {
	return c.patch(v, id, func(p *models.Post) {
		p.IsArchived = archived
	})
}

// PatchViewCount increments the view counter of id in v unless viewerID
// authored the post.
func (c *Cache) PatchViewCount(v view.Selector, id, viewerID string) bool {
	return c.patch(v, id, func(p *models.Post) {
		if viewerID != "" && p.Author.ID == viewerID {
			return
		}
		p.Views++
	})
}

// PatchCommentCount adds delta to the comment counter of id in v.
func (c *Cache) PatchCommentCount(v view.Selector, id string, delta int) bool {
	return c.patch(v, id, func(p *models.Post) {
		p.Comments += delta
	})
}

// Clear empties every collection.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.collections {
		c.collections[i] = Collection{}
	}
}

func (c *Cache) patch(v view.Selector, id string, fn func(*models.Post)) bool {
	if !v.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.collections[v].Items
	for i := range items {
		if items[i].ID == id {
			fn(&items[i])
			return true
		}
	}
	return false
}

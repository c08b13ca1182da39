// Package thread tracks the post currently open in detail view together with
// its paginated comments.
package thread

import (
	"sync"

	"postly/internal/models"
)

// Thread is the open post. Every write names the post it belongs to; writes
// for a post that is no longer open are ignored.
type Thread struct {
	mu sync.RWMutex

	postID string
	post   *models.Post

	comments          []models.Comment
	commentPage       int
	commentTotalPages int
	totalComments     int

	scrollPending bool
}

// New returns a thread with nothing open.
func New() *Thread {
	return &Thread{}
}

// Open makes id the open post and drops everything cached for the previous
// one.
func (t *Thread) Open(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	t.postID = id
	t.commentPage = 1
}

// Close drops the open post.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

func (t *Thread) reset() {
	t.postID = ""
	t.post = nil
	t.comments = nil
	t.commentPage = 0
	t.commentTotalPages = 0
	t.totalComments = 0
	t.scrollPending = false
}

// PostID returns the open post id, or "" when nothing is open.
func (t *Thread) PostID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.postID
}

// IsOpen reports whether id is the open post.
func (t *Thread) IsOpen(id string) bool {
	return id != "" && t.PostID() == id
}

// SetPost stores the fetched detail copy.
func (t *Thread) SetPost(p models.Post) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.ID != t.postID || t.postID == "" {
		return false
	}
	t.post = &p
	return true
}

// Post returns the detail copy once it has been fetched.
func (t *Thread) Post() (models.Post, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.post == nil {
		return models.Post{}, false
	}
	return *t.post, true
}

// PatchLike mirrors a confirmed like on the detail copy.
func (t *Thread) PatchLike(id string, likes int, liked bool) bool {
	return t.patchPost(id, func(p *models.Post) {
		p.Likes = likes
		p.IsLikedByCurrentUser = liked
	})
}

// PatchArchive mirrors a confirmed archive toggle on the detail copy.
func (t *Thread) PatchArchive(id string, archived bool) bool {
	return t.patchPost(id, func(p *models.Post) {
		p.IsArchived = archived
	})
}

// PatchViewCount increments the detail copy's view counter unless viewerID
// is the author.
func (t *Thread) PatchViewCount(id, viewerID string) bool {
	return t.patchPost(id, func(p *models.Post) {
		if viewerID != "" && p.Author.ID == viewerID {
			return
		}
		p.Views++
	})
}

// IncrementCommentCount records a newly created comment on the open post.
func (t *Thread) IncrementCommentCount(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" || id != t.postID {
		return false
	}
	t.totalComments++
	if t.post != nil {
		t.post.Comments++
	}
	return true
}

// ReplaceComments installs the first comment page for id.
func (t *Thread) ReplaceComments(id string, page models.CommentPage, total int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" || id != t.postID {
		return false
	}
	t.comments = append([]models.Comment(nil), page.Data...)
	t.setCommentMeta(page.Pagination, total)
	return true
}

// MergeComments appends a further comment page for id. A comment already
// present is overwritten in place by the later copy.
func (t *Thread) MergeComments(id string, page models.CommentPage, total int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" || id != t.postID {
		return false
	}
	index := make(map[string]int, len(t.comments))
	for i, c := range t.comments {
		index[c.ID] = i
	}
	for _, c := range page.Data {
		if i, ok := index[c.ID]; ok {
			t.comments[i] = c
			continue
		}
		index[c.ID] = len(t.comments)
		t.comments = append(t.comments, c)
	}
	t.setCommentMeta(page.Pagination, total)
	return true
}

func (t *Thread) setCommentMeta(meta models.Pagination, total int) {
	if meta.Page > 0 {
		t.commentPage = meta.Page
	}
	t.commentTotalPages = meta.TotalPages
	t.totalComments = total
}

// Comments returns a copy of the loaded comments.
func (t *Thread) Comments() []models.Comment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.Comment(nil), t.comments...)
}

// CommentPage is the last comment page loaded.
func (t *Thread) CommentPage() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.commentPage
}

// ResetCommentPage rewinds pagination to page 1 before a refetch.
func (t *Thread) ResetCommentPage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commentPage = 1
}

// HasMoreComments reports whether a further page exists.
func (t *Thread) HasMoreComments() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.commentPage < t.commentTotalPages
}

// TotalComments is the server-side comment count of the open post.
func (t *Thread) TotalComments() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalComments
}

// ToggleCommentLike flips the like flag of comment id and adjusts its count
// by one.
func (t *Thread) ToggleCommentLike(id string) (models.Comment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.comments {
		c := &t.comments[i]
		if c.ID != id {
			continue
		}
		if c.IsLikedByCurrentUser {
			c.Likes--
		} else {
			c.Likes++
		}
		c.IsLikedByCurrentUser = !c.IsLikedByCurrentUser
		return *c, true
	}
	return models.Comment{}, false
}

// FindComment returns a copy of comment id.
func (t *Thread) FindComment(id string) (models.Comment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.comments {
		if c.ID == id {
			return c, true
		}
	}
	return models.Comment{}, false
}

// RequestScroll asks for one scroll to the comments once they are loaded.
func (t *Thread) RequestScroll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scrollPending = true
}

// ConsumeScroll returns true exactly once after RequestScroll, and only when
// comments are present.
func (t *Thread) ConsumeScroll() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.scrollPending || len(t.comments) == 0 {
		return false
	}
	t.scrollPending = false
	return true
}

func (t *Thread) patchPost(id string, fn func(*models.Post)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.post == nil || t.post.ID != id {
		return false
	}
	fn(t.post)
	return true
}

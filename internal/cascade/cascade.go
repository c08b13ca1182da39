// Package cascade runs mutations against the API and, once the server has
// confirmed them, applies their local patches and follow-up navigation.
// Nothing is patched before confirmation.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"postly/internal/collection"
	"postly/internal/featureflags"
	"postly/internal/models"
	"postly/internal/notify"
	"postly/internal/observability"
	"postly/internal/thread"
	"postly/internal/validation"
	"postly/internal/view"
	"postly/internal/viewstate"

	"go.opentelemetry.io/otel/attribute"
)

// ErrMutationInFlight is returned when the same kind of mutation is already
// pending for the same target.
var ErrMutationInFlight = errors.New("a mutation of this kind is already in flight for this target")

// ErrNoOpenPost is returned by comment operations when no post is open.
var ErrNoOpenPost = errors.New("no post is open")

// API is the slice of the Postly API the cascade calls.
type API interface {
	LikePost(ctx context.Context, id string) (int, error)
	ArchivePost(ctx context.Context, id string) (string, error)
	CreatePost(ctx context.Context, in models.CreatePostInput) (string, error)
	CreateComment(ctx context.Context, postID string, in models.CreateCommentInput) (string, error)
	LikeComment(ctx context.Context, commentID, postID string) (string, error)
	RegisterView(ctx context.Context, id string) error
	GetPost(ctx context.Context, id string) (models.Post, error)
	ListComments(ctx context.Context, postID string, page int) (models.CommentPage, int, error)
}

// Navigator switches the active view to page and issues exactly one fetch
// for it.
type Navigator interface {
	Navigate(v view.Selector, page int)
}

// Deps wires a Cascade.
type Deps struct {
	API       API
	Cache     *collection.Cache
	Store     *viewstate.Store
	Thread    *thread.Thread
	Navigator Navigator
	Validator *validation.Validator
	Notifier  notify.Notifier
	Flags     *featureflags.Manager
	// ViewerID returns the signed-in user's id.
	ViewerID func() string
	// OnCommentsScroll runs once after a new comment's refetch lands.
	OnCommentsScroll func()
}

type inflightKey struct {
	kind Kind
	id   string
}

// Cascade is the mutation-cascade controller.
type Cascade struct {
	deps Deps
	log  *observability.ComponentLogger

	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

// New creates a Cascade. Missing optional deps get no-op defaults.
func New(deps Deps) *Cascade {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	if deps.ViewerID == nil {
		deps.ViewerID = func() string { return "" }
	}
	return &Cascade{
		deps:     deps,
		log:      observability.NewComponentLogger("cascade"),
		inflight: make(map[inflightKey]struct{}),
	}
}

// InFlight reports whether a mutation of kind is pending for id.
func (c *Cascade) InFlight(kind Kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[inflightKey{kind, id}]
	return ok
}

func (c *Cascade) begin(kind Kind, id string) (func(), error) {
	key := inflightKey{kind, id}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrMutationInFlight)
	}
	c.inflight[key] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}, nil
}

// mutate guards (kind, id), runs call and records the outcome. Errors,
// including panics, are reported through the notifier and returned.
func (c *Cascade) mutate(ctx context.Context, kind Kind, id string, call func(context.Context) error) (err error) {
	release, err := c.begin(kind, id)
	if err != nil {
		return err
	}
	defer release()

	ctx = observability.EnsureCorrelationID(ctx)
	span, ctx := observability.NewSpan(ctx, "cascade."+kind.String(),
		attribute.String("mutation.kind", kind.String()),
		attribute.String("mutation.target", id),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = models.NewNetworkOrServerError("", 0, fmt.Errorf("%s panicked: %v", kind, r))
		}
		if err != nil {
			span.SetError(err)
			observability.MutationTotal.WithLabelValues(kind.String(), "failure").Inc()
			c.log.Error(ctx, "mutation failed", err, map[string]interface{}{"kind": kind.String(), "target": id})
			notify.Error(ctx, c.deps.Notifier, err)
			return
		}
		observability.MutationTotal.WithLabelValues(kind.String(), "success").Inc()
	}()

	return call(ctx)
}

// applyRule runs the navigation part of kind's cascade.
func (c *Cascade) applyRule(ctx context.Context, kind Kind) {
	r := table[kind]
	if r.clearSearch {
		c.deps.Store.SetSearchQuery("")
	}
	if r.hasNavigate {
		c.deps.Navigator.Navigate(r.navigate, 1)
	}
	if r.hasRefetchWhenActive && c.deps.Store.ActiveView() == r.refetchWhenActive {
		c.deps.Navigator.Navigate(r.refetchWhenActive, 1)
	}
	if r.resetComments {
		c.refreshComments(ctx)
	}
}

// LikePost toggles the like on id. The active view's copy and the open
// post's copy are patched; other cached views keep their copy until they are
// refetched.
func (c *Cascade) LikePost(ctx context.Context, id string) error {
	return c.mutate(ctx, LikePost, id, func(ctx context.Context) error {
		likes, err := c.deps.API.LikePost(ctx, id)
		if err != nil {
			return err
		}

		active := c.deps.Store.ActiveView()
		liked := !c.currentlyLiked(active, id)
		c.deps.Cache.PatchLike(active, id, likes, liked)
		c.deps.Thread.PatchLike(id, likes, liked)

		c.applyRule(ctx, LikePost)
		return nil
	})
}

func (c *Cascade) currentlyLiked(active view.Selector, id string) bool {
	if p, ok := c.deps.Thread.Post(); ok && p.ID == id {
		return p.IsLikedByCurrentUser
	}
	if p, ok := c.deps.Cache.Find(active, id); ok {
		return p.IsLikedByCurrentUser
	}
	return false
}

// LikeComment toggles the like on a comment of the open post. The server
// does not echo a count, so the local one moves by one.
func (c *Cascade) LikeComment(ctx context.Context, commentID string) error {
	postID := c.deps.Thread.PostID()
	if postID == "" {
		return ErrNoOpenPost
	}
	return c.mutate(ctx, LikeComment, commentID, func(ctx context.Context) error {
		if _, err := c.deps.API.LikeComment(ctx, commentID, postID); err != nil {
			return err
		}
		c.deps.Thread.ToggleCommentLike(commentID)
		c.applyRule(ctx, LikeComment)
		return nil
	})
}

// ToggleArchive archives or unarchives id, then shows ArchivedPosts page 1.
func (c *Cascade) ToggleArchive(ctx context.Context, id string) error {
	return c.mutate(ctx, ArchivePost, id, func(ctx context.Context) error {
		c.deps.Store.SetSelectedArchiveTargetID(id)
		defer c.deps.Store.SetSelectedArchiveTargetID("")

		message, err := c.deps.API.ArchivePost(ctx, id)
		if err != nil {
			return err
		}
		if p, ok := c.deps.Thread.Post(); ok && p.ID == id {
			c.deps.Thread.PatchArchive(id, !p.IsArchived)
		}
		notify.Success(ctx, c.deps.Notifier, message)

		c.applyRule(ctx, ArchivePost)
		return nil
	})
}

// CreatePost validates and publishes a post, then shows MyPosts page 1 with
// the search cleared.
func (c *Cascade) CreatePost(ctx context.Context, in models.CreatePostInput) error {
	if err := c.deps.Validator.CreatePost(in); err != nil {
		notify.Error(ctx, c.deps.Notifier, err)
		return err
	}
	return c.mutate(ctx, CreatePost, "", func(ctx context.Context) error {
		message, err := c.deps.API.CreatePost(ctx, in)
		if err != nil {
			return err
		}
		notify.Success(ctx, c.deps.Notifier, message)

		c.applyRule(ctx, CreatePost)
		return nil
	})
}

// CreateComment validates and adds a comment to the open post, then reloads
// the first comment page and scrolls to it once.
func (c *Cascade) CreateComment(ctx context.Context, in models.CreateCommentInput) error {
	postID := c.deps.Thread.PostID()
	if postID == "" {
		return ErrNoOpenPost
	}
	if err := c.deps.Validator.CreateComment(in); err != nil {
		notify.Error(ctx, c.deps.Notifier, err)
		return err
	}
	return c.mutate(ctx, CreateComment, postID, func(ctx context.Context) error {
		message, err := c.deps.API.CreateComment(ctx, postID, in)
		if err != nil {
			return err
		}
		c.deps.Thread.IncrementCommentCount(postID)
		c.deps.Cache.PatchCommentCount(c.deps.Store.ActiveView(), postID, 1)
		c.deps.Store.SetTotalCommentCount(c.deps.Thread.TotalComments())
		c.deps.Thread.RequestScroll()
		notify.Success(ctx, c.deps.Notifier, message)

		c.applyRule(ctx, CreateComment)
		return nil
	})
}

// RegisterView counts a view of id. A 406 means it was already counted and
// is not an error. Self-views never increment the local count.
func (c *Cascade) RegisterView(ctx context.Context, id string) error {
	return c.mutate(ctx, RegisterView, id, func(ctx context.Context) error {
		err := c.deps.API.RegisterView(ctx, id)
		if models.IsCode(err, models.CodeNotYetAvailable) {
			c.log.Debug(ctx, "view already counted", map[string]interface{}{"post_id": id})
			return nil
		}
		if err != nil {
			return err
		}

		viewer := c.deps.ViewerID()
		c.deps.Cache.PatchViewCount(c.deps.Store.ActiveView(), id, viewer)
		c.deps.Thread.PatchViewCount(id, viewer)
		c.applyRule(ctx, RegisterView)
		return nil
	})
}

// OpenPost opens id: register the view, fetch the detail, then fetch the
// first comment page. A failed registration other than 406 stops the
// sequence.
func (c *Cascade) OpenPost(ctx context.Context, id string) error {
	c.deps.Thread.Open(id)
	c.deps.Store.SetSelectedPostID(id)
	c.deps.Store.SetTotalCommentCount(0)

	if c.deps.Flags.Enabled(featureflags.ViewRegistration, c.deps.ViewerID()) {
		if err := c.RegisterView(ctx, id); err != nil {
			return fmt.Errorf("open post: %w", err)
		}
	}

	post, err := c.deps.API.GetPost(ctx, id)
	if err != nil {
		notify.Error(ctx, c.deps.Notifier, err)
		return fmt.Errorf("open post: %w", err)
	}
	if !c.deps.Thread.SetPost(post) {
		return nil
	}

	return c.loadComments(ctx, id, 1, false)
}

// LoadMoreComments fetches the next comment page of the open post and merges
// it into the loaded ones.
func (c *Cascade) LoadMoreComments(ctx context.Context) error {
	postID := c.deps.Thread.PostID()
	if postID == "" {
		return ErrNoOpenPost
	}
	if !c.deps.Thread.HasMoreComments() {
		return nil
	}
	return c.loadComments(ctx, postID, c.deps.Thread.CommentPage()+1, true)
}

func (c *Cascade) refreshComments(ctx context.Context) {
	postID := c.deps.Thread.PostID()
	if postID == "" {
		return
	}
	c.deps.Thread.ResetCommentPage()
	if err := c.loadComments(ctx, postID, 1, false); err != nil {
		c.log.Warn(ctx, "comment refresh failed", map[string]interface{}{"post_id": postID, "error": err.Error()})
	}
}

func (c *Cascade) loadComments(ctx context.Context, postID string, page int, merge bool) error {
	comments, total, err := c.deps.API.ListComments(ctx, postID, page)
	if err != nil {
		notify.Error(ctx, c.deps.Notifier, err)
		return fmt.Errorf("load comments: %w", err)
	}

	var applied bool
	if merge {
		applied = c.deps.Thread.MergeComments(postID, comments, total)
	} else {
		applied = c.deps.Thread.ReplaceComments(postID, comments, total)
	}
	if !applied {
		return nil
	}

	c.deps.Store.SetTotalCommentCount(total)
	if c.deps.Thread.ConsumeScroll() && c.deps.OnCommentsScroll != nil {
		c.deps.OnCommentsScroll()
	}
	return nil
}

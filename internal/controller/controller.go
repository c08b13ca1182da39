// Package controller hosts the posts page: it keeps the query string, the
// view state store and the four cached collections in step, and routes user
// actions to the fetch orchestrator and the mutation cascade.
package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"postly/internal/cascade"
	"postly/internal/collection"
	"postly/internal/featureflags"
	"postly/internal/models"
	"postly/internal/notify"
	"postly/internal/observability"
	"postly/internal/orchestrator"
	"postly/internal/querystring"
	"postly/internal/session"
	"postly/internal/thread"
	"postly/internal/view"
	"postly/internal/viewstate"
)

// API is everything the page needs from the Postly API.
type API interface {
	orchestrator.Fetcher
	cascade.API
	Logout(ctx context.Context) error
}

// Options tunes a Controller. The zero value is usable.
type Options struct {
	Debounce  time.Duration
	AfterFunc orchestrator.AfterFunc
	Notifier  notify.Notifier
	Flags     *featureflags.Manager
	// OnScrollTop runs after a fetched page has been applied.
	OnScrollTop func(view.Selector)
	// OnCommentsScroll runs once after a newly created comment is loaded.
	OnCommentsScroll func()
}

// Controller is the posts page.
type Controller struct {
	api      API
	session  *session.Session
	location *querystring.Location

	store   *viewstate.Store
	cache   *collection.Cache
	thread  *thread.Thread
	orch    *orchestrator.Orchestrator
	cascade *cascade.Cascade
	log     *observability.ComponentLogger

	mu          sync.Mutex
	landing     bool
	closed      bool
	unsubscribe func()
	// leaveSession drops the logout hook registered by New.
	leaveSession func()
}

// New wires a controller around api, the signed-in session and the address
// bar. Nothing is fetched until Mount.
func New(api API, sess *session.Session, location *querystring.Location, opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Debounce == 0 {
		opts.Debounce = orchestrator.DefaultDebounce
	}

	c := &Controller{
		api:      api,
		session:  sess,
		location: location,
		store:    viewstate.New(),
		cache:    collection.New(),
		thread:   thread.New(),
		log:      observability.NewComponentLogger("controller"),
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithDebounce(opts.Debounce),
		orchestrator.WithNotifier(opts.Notifier),
	}
	if opts.AfterFunc != nil {
		orchOpts = append(orchOpts, orchestrator.WithAfterFunc(opts.AfterFunc))
	}
	if opts.OnScrollTop != nil {
		orchOpts = append(orchOpts, orchestrator.WithScrollTop(opts.OnScrollTop))
	}
	c.orch = orchestrator.New(api, c.cache, c.store, orchOpts...)

	c.cascade = cascade.New(cascade.Deps{
		API:              api,
		Cache:            c.cache,
		Store:            c.store,
		Thread:           c.thread,
		Navigator:        c,
		Notifier:         opts.Notifier,
		Flags:            opts.Flags,
		ViewerID:         sess.UserID,
		OnCommentsScroll: opts.OnCommentsScroll,
	})

	c.leaveSession = sess.OnLogout(c.reset)
	return c
}

// Mount reads the address bar, corrects invalid page values in place and
// issues the first fetch.
func (c *Controller) Mount(ctx context.Context) {
	raw := c.location.Query()
	if fixed, changed := querystring.Normalize(raw); changed {
		c.log.Info(ctx, "corrected invalid page in query string", map[string]interface{}{"from": raw, "to": fixed})
		c.location.Replace(fixed)
		raw = fixed
	}
	v, page, _ := querystring.Decode(raw)
	if querystring.PageKeys(raw) > 1 {
		fixed := querystring.Encode(v, page, querystring.Parse(raw))
		c.log.Info(ctx, "dropped extra page keys from query string", map[string]interface{}{"from": raw, "to": fixed})
		c.location.Replace(fixed)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.landing = false
	if c.unsubscribe == nil {
		c.unsubscribe = c.store.Subscribe(c.observe)
	}
	c.mu.Unlock()

	c.store.SetActiveView(v)
	c.orch.RequestView(v, page, c.store.SearchQuery())
}

// Unmount stops every timer and discards whatever is still in flight.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.orch.Close()
	if unsubscribe != nil {
		unsubscribe()
	}
	c.leaveSession()
	c.orch.Wait()
}

// Wait blocks until no fetch is pending.
func (c *Controller) Wait() {
	c.orch.Wait()
}

func (c *Controller) observe(ch viewstate.Change) {
	c.log.Debug(context.Background(), "view state changed", map[string]interface{}{
		"field":       ch.Field.String(),
		"active_view": ch.State.ActiveView.String(),
	})
}

// Page is the active view's page as named by the address bar.
func (c *Controller) Page() int {
	v, page, _ := querystring.Decode(c.location.Query())
	if v != c.store.ActiveView() {
		return 1
	}
	return page
}

// SetActiveView switches to v. The address bar moves to page 1 of v unless
// it already names v, in which case that page is kept.
func (c *Controller) SetActiveView(v view.Selector) {
	if !v.Valid() {
		return
	}
	values := c.location.Values()
	page := 1
	if named, p, _ := querystring.Decode(c.location.Query()); named == v && values.Get(v.QueryKey()) != "" {
		page = p
	} else {
		c.location.Push(querystring.Encode(v, 1, values))
	}

	c.markActive()
	c.store.SetActiveView(v)
	c.orch.RequestView(v, page, c.store.SearchQuery())
}

// SetPage shows page of the active view.
func (c *Controller) SetPage(page int) error {
	if page < 1 {
		return models.NewValidationError("", []models.FieldError{{
			Field:   c.store.ActiveView().QueryKey(),
			Message: "Page must be a positive integer, got " + strconv.Itoa(page),
		}})
	}
	c.Navigate(c.store.ActiveView(), page)
	return nil
}

// Navigate makes v active at page and fetches it exactly once.
func (c *Controller) Navigate(v view.Selector, page int) {
	if !v.Valid() {
		return
	}
	if page < 1 {
		page = 1
	}
	next := querystring.Encode(v, page, c.location.Values())
	if next != c.location.Query() {
		c.location.Push(next)
	}

	c.markActive()
	c.store.SetActiveView(v)
	c.orch.RequestView(v, page, c.store.SearchQuery())
}

// SetSearchQuery filters the active view. Non-blank queries are debounced.
func (c *Controller) SetSearchQuery(q string) {
	c.store.SetSearchQuery(q)
	c.orch.RequestView(c.store.ActiveView(), c.Page(), q)
}

// Refresh refetches the active view at its current page.
func (c *Controller) Refresh() {
	c.orch.Refetch(c.store.ActiveView(), c.Page())
}

func (c *Controller) markActive() {
	c.mu.Lock()
	c.landing = false
	c.mu.Unlock()
}

// OpenPost shows post id with its first page of comments.
func (c *Controller) OpenPost(ctx context.Context, id string) error {
	return c.cascade.OpenPost(ctx, id)
}

// ClosePost leaves the detail view.
func (c *Controller) ClosePost() {
	c.thread.Close()
	c.store.SetSelectedPostID("")
	c.store.SetTotalCommentCount(0)
}

// LoadMoreComments appends the next page of the open post's comments.
func (c *Controller) LoadMoreComments(ctx context.Context) error {
	return c.cascade.LoadMoreComments(ctx)
}

// Like toggles the current user's like on post id.
func (c *Controller) Like(ctx context.Context, id string) error {
	return c.cascade.LikePost(ctx, id)
}

// Archive toggles the archived flag of post id.
func (c *Controller) Archive(ctx context.Context, id string) error {
	return c.cascade.ToggleArchive(ctx, id)
}

func (c *Controller) CreatePost(ctx context.Context, in models.CreatePostInput) error {
	return c.cascade.CreatePost(ctx, in)
}

func (c *Controller) CreateComment(ctx context.Context, in models.CreateCommentInput) error {
	return c.cascade.CreateComment(ctx, in)
}

func (c *Controller) LikeComment(ctx context.Context, commentID string) error {
	return c.cascade.LikeComment(ctx, commentID)
}

// Logout ends the session on the server and locally. A failed server call is
// logged; the local session is cleared regardless.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.api.Logout(ctx); err != nil {
		c.log.Warn(ctx, "server logout failed", map[string]interface{}{"error": err.Error()})
	}
	if err := c.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// reset runs on every logout, including one forced by a failed refresh.
func (c *Controller) reset(ctx context.Context) {
	c.orch.Cancel()
	c.cache.Clear()
	c.thread.Close()
	c.store.Reset()
	c.location.Push("")

	c.mu.Lock()
	c.landing = true
	c.mu.Unlock()
	c.log.Info(ctx, "session ended, returned to landing", nil)
}

// Landing reports whether the page has been left for the landing page.
func (c *Controller) Landing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.landing
}

// Store exposes the view state for observers.
func (c *Controller) Store() *viewstate.Store { return c.store }

// Thread exposes the open post.
func (c *Controller) Thread() *thread.Thread { return c.thread }

// Render is what the page shows for the active view.
type Render struct {
	View        view.Selector
	Page        int
	Title       string
	Description string
	Posts       []models.Post
	TotalPages  int
	Count       string
	SearchQuery string
	Loaded      bool
	Err         error
}

// View builds the render model of the active view.
func (c *Controller) View() Render {
	state := c.store.Snapshot()
	v := state.ActiveView
	col := c.cache.Get(v)
	return Render{
		View:        v,
		Page:        c.Page(),
		Title:       v.Title(),
		Description: v.Description(),
		Posts:       col.Items,
		TotalPages:  state.TotalPages,
		Count:       countLine(len(col.Items), state.SearchQuery, v),
		SearchQuery: state.SearchQuery,
		Loaded:      col.Loaded,
		Err:         c.orch.LastError(v),
	}
}

func countLine(n int, searchQuery string, v view.Selector) string {
	var b strings.Builder
	b.WriteString("Showing ")
	b.WriteString(strconv.Itoa(n))
	if n == 1 {
		b.WriteString(" post")
	} else {
		b.WriteString(" posts")
	}
	if searchQuery != "" {
		fmt.Fprintf(&b, " for %q", searchQuery)
	}
	if scope := v.Scope(); scope != "" {
		b.WriteString(" ")
		b.WriteString(scope)
	}
	return b.String()
}

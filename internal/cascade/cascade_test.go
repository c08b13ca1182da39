package cascade

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"postly/internal/collection"
	"postly/internal/featureflags"
	"postly/internal/models"
	"postly/internal/notify"
	"postly/internal/thread"
	"postly/internal/view"
	"postly/internal/viewstate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	likes         int
	likeErr       error
	likeGate      chan struct{}
	archiveErr    error
	archiveGate   chan struct{}
	createPostErr error
	registerErr   error
	getPostErr    error
	post          models.Post
	commentPages  map[int]models.CommentPage
	totalComments int
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) LikePost(_ context.Context, id string) (int, error) {
	f.record("like:" + id)
	if f.likeGate != nil {
		<-f.likeGate
	}
	return f.likes, f.likeErr
}

func (f *fakeAPI) ArchivePost(_ context.Context, id string) (string, error) {
	f.record("archive:" + id)
	if f.archiveGate != nil {
		<-f.archiveGate
	}
	return "Blog post archived", f.archiveErr
}

func (f *fakeAPI) CreatePost(_ context.Context, in models.CreatePostInput) (string, error) {
	f.record("create-post:" + in.Title)
	return "Blog post created", f.createPostErr
}

func (f *fakeAPI) CreateComment(_ context.Context, postID string, _ models.CreateCommentInput) (string, error) {
	f.record("create-comment:" + postID)
	f.mu.Lock()
	f.totalComments++
	f.mu.Unlock()
	return "Comment added", nil
}

func (f *fakeAPI) LikeComment(_ context.Context, commentID, postID string) (string, error) {
	f.record("like-comment:" + commentID + "/" + postID)
	return "Comment liked", nil
}

func (f *fakeAPI) RegisterView(_ context.Context, id string) error {
	f.record("view:" + id)
	return f.registerErr
}

func (f *fakeAPI) GetPost(_ context.Context, id string) (models.Post, error) {
	f.record("get:" + id)
	return f.post, f.getPostErr
}

func (f *fakeAPI) ListComments(_ context.Context, postID string, page int) (models.CommentPage, int, error) {
	f.record("comments:" + postID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commentPages[page], f.totalComments, nil
}

type navigation struct {
	view view.Selector
	page int
}

type recordingNavigator struct {
	mu    sync.Mutex
	store *viewstate.Store
	seen  []navigation
}

func (n *recordingNavigator) Navigate(v view.Selector, page int) {
	n.mu.Lock()
	n.seen = append(n.seen, navigation{v, page})
	n.mu.Unlock()
	n.store.SetActiveView(v)
}

func (n *recordingNavigator) Seen() []navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]navigation(nil), n.seen...)
}

type fixture struct {
	api      *fakeAPI
	cache    *collection.Cache
	store    *viewstate.Store
	thread   *thread.Thread
	nav      *recordingNavigator
	rec      *notify.Recorder
	scrolled int
	cascade  *Cascade
}

func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	f := &fixture{
		api:    api,
		cache:  collection.New(),
		store:  viewstate.New(),
		thread: thread.New(),
		rec:    &notify.Recorder{},
	}
	f.nav = &recordingNavigator{store: f.store}
	f.cascade = New(Deps{
		API:              api,
		Cache:            f.cache,
		Store:            f.store,
		Thread:           f.thread,
		Navigator:        f.nav,
		Notifier:         f.rec,
		Flags:            featureflags.NewManager(""),
		ViewerID:         func() string { return "viewer-1" },
		OnCommentsScroll: func() { f.scrolled++ },
	})
	return f
}

func seed(cache *collection.Cache, v view.Selector, posts ...models.Post) {
	cache.Replace(v, posts, models.Pagination{Page: 1, TotalPages: 1, Limit: 10}, "")
}

func commentPage(page, totalPages int, ids ...string) models.CommentPage {
	cp := models.CommentPage{Pagination: models.Pagination{Page: page, TotalPages: totalPages}}
	for _, id := range ids {
		cp.Data = append(cp.Data, models.Comment{ID: id})
	}
	return cp
}

func validPost() models.CreatePostInput {
	return models.CreatePostInput{
		Title:    "Learning Go",
		Category: "programming",
		Content:  strings.Repeat("Go is a small language. ", 6),
	}
}

func TestLikePost_PatchesActiveViewAndDetailOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{likes: 8})

	p := models.Post{ID: "p1", Likes: 7}
	seed(f.cache, view.AllPosts, p)
	seed(f.cache, view.MyPosts, p)
	seed(f.cache, view.LikedPosts, p)
	f.thread.Open("p1")
	f.thread.SetPost(p)

	require.NoError(t, f.cascade.LikePost(context.Background(), "p1"))

	active, _ := f.cache.Find(view.AllPosts, "p1")
	assert.Equal(t, 8, active.Likes)
	assert.True(t, active.IsLikedByCurrentUser)

	other, _ := f.cache.Find(view.MyPosts, "p1")
	assert.Equal(t, 7, other.Likes, "inactive views wait for their next fetch")
	liked, _ := f.cache.Find(view.LikedPosts, "p1")
	assert.Equal(t, 7, liked.Likes)
	assert.False(t, liked.IsLikedByCurrentUser)

	detail, _ := f.thread.Post()
	assert.Equal(t, 8, detail.Likes)
	assert.True(t, detail.IsLikedByCurrentUser)
	assert.Empty(t, f.nav.Seen())
}

func TestLikePost_OnLikedViewRefetchesFirstPage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{likes: 0})

	f.store.SetActiveView(view.LikedPosts)
	seed(f.cache, view.LikedPosts, models.Post{ID: "p1", Likes: 1, IsLikedByCurrentUser: true})

	require.NoError(t, f.cascade.LikePost(context.Background(), "p1"))
	assert.Equal(t, []navigation{{view.LikedPosts, 1}}, f.nav.Seen())
}

func TestLikePost_FailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{likeErr: models.NewNetworkOrServerError("server down", 503, nil)})

	seed(f.cache, view.AllPosts, models.Post{ID: "p1", Likes: 3})

	err := f.cascade.LikePost(context.Background(), "p1")
	require.Error(t, err)

	p, _ := f.cache.Find(view.AllPosts, "p1")
	assert.Equal(t, 3, p.Likes)
	assert.False(t, p.IsLikedByCurrentUser)
	require.Len(t, f.rec.Errors(), 1)
	assert.Equal(t, "server down", f.rec.Errors()[0].Message)
}

func TestLikePost_DuplicateWhileInFlightIsRejected(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	f := newFixture(t, &fakeAPI{likes: 1, likeGate: gate})
	seed(f.cache, view.AllPosts, models.Post{ID: "p1"})

	done := make(chan error, 1)
	go func() { done <- f.cascade.LikePost(context.Background(), "p1") }()
	require.Eventually(t, func() bool { return f.cascade.InFlight(LikePost, "p1") }, time.Second, 5*time.Millisecond)

	err := f.cascade.LikePost(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, f.cascade.InFlight(LikePost, "p1"))
	assert.Equal(t, []string{"like:p1"}, f.api.Calls())
}

func TestToggleArchive_NavigatesToArchivedFirstPage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{})

	f.store.SetActiveView(view.MyPosts)
	f.thread.Open("p1")
	f.thread.SetPost(models.Post{ID: "p1"})

	require.NoError(t, f.cascade.ToggleArchive(context.Background(), "p1"))

	assert.Equal(t, []navigation{{view.ArchivedPosts, 1}}, f.nav.Seen())
	assert.Empty(t, f.store.SelectedArchiveTargetID())
	detail, _ := f.thread.Post()
	assert.True(t, detail.IsArchived)

	all := f.rec.All()
	require.Len(t, all, 1)
	assert.Equal(t, notify.LevelSuccess, all[0].Level)
	assert.Equal(t, "Blog post archived", all[0].Message)
}

func TestToggleArchive_DuplicateKeepsInFlightTarget(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	f := newFixture(t, &fakeAPI{archiveGate: gate})

	done := make(chan error, 1)
	go func() { done <- f.cascade.ToggleArchive(context.Background(), "p1") }()
	require.Eventually(t, func() bool { return f.cascade.InFlight(ArchivePost, "p1") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.store.SelectedArchiveTargetID() == "p1" }, time.Second, 5*time.Millisecond)

	err := f.cascade.ToggleArchive(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrMutationInFlight)
	assert.Equal(t, "p1", f.store.SelectedArchiveTargetID())

	close(gate)
	require.NoError(t, <-done)
	assert.Empty(t, f.store.SelectedArchiveTargetID())
	assert.Equal(t, []string{"archive:p1"}, f.api.Calls())
}

func TestToggleArchive_FailureDoesNotNavigate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{archiveErr: models.NewUnauthorizedError("Unauthorized")})

	require.Error(t, f.cascade.ToggleArchive(context.Background(), "p1"))
	assert.Empty(t, f.nav.Seen())
	assert.Empty(t, f.store.SelectedArchiveTargetID())
}

func TestCreatePost_InvalidInputSendsNoRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{})

	err := f.cascade.CreatePost(context.Background(), models.CreatePostInput{Title: "Hi"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidation))
	assert.Empty(t, f.api.Calls())

	errs := f.rec.Errors()
	require.Len(t, errs, 1)
	assert.NotEmpty(t, errs[0].Fields)
}

func TestCreatePost_ClearsSearchAndShowsMyPosts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{})
	f.store.SetSearchQuery("golang")

	require.NoError(t, f.cascade.CreatePost(context.Background(), validPost()))

	assert.Empty(t, f.store.SearchQuery())
	assert.Equal(t, []navigation{{view.MyPosts, 1}}, f.nav.Seen())
	assert.Equal(t, view.MyPosts, f.store.ActiveView())
}

func TestCreateComment_UpdatesCountsAndScrollsOnce(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		totalComments: 1,
		commentPages:  map[int]models.CommentPage{1: commentPage(1, 1, "new", "c1")},
	}
	f := newFixture(t, api)

	seed(f.cache, view.AllPosts, models.Post{ID: "p1", Comments: 1})
	f.thread.Open("p1")
	f.thread.SetPost(models.Post{ID: "p1", Comments: 1})
	f.thread.ReplaceComments("p1", commentPage(1, 1, "c1"), 1)

	require.NoError(t, f.cascade.CreateComment(context.Background(), models.CreateCommentInput{Content: "Nice post"}))

	listed, _ := f.cache.Find(view.AllPosts, "p1")
	assert.Equal(t, 2, listed.Comments)
	detail, _ := f.thread.Post()
	assert.Equal(t, 2, detail.Comments)
	assert.Equal(t, 2, f.store.TotalCommentCount())
	assert.Len(t, f.thread.Comments(), 2)
	assert.Equal(t, 1, f.thread.CommentPage())
	assert.Equal(t, 1, f.scrolled)

	require.NoError(t, f.cascade.LoadMoreComments(context.Background()))
	assert.Equal(t, 1, f.scrolled, "the scroll request is consumed once")
}

func TestCreateComment_RequiresOpenPost(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeAPI{})

	err := f.cascade.CreateComment(context.Background(), models.CreateCommentInput{Content: "Nice post"})
	assert.ErrorIs(t, err, ErrNoOpenPost)
	assert.Empty(t, f.api.Calls())
}

func TestRegisterView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		author    string
		wantErr   bool
		wantViews int
	}{
		{name: "counted", wantViews: 5},
		{name: "already counted", err: models.NewNotYetAvailableError("Not Acceptable"), wantViews: 4},
		{name: "self view", author: "viewer-1", wantViews: 4},
		{name: "server failure", err: models.NewNetworkOrServerError("boom", 500, nil), wantErr: true, wantViews: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, &fakeAPI{registerErr: tt.err})
			seed(f.cache, view.AllPosts, models.Post{ID: "p1", Views: 4, Author: models.Author{ID: tt.author}})

			err := f.cascade.RegisterView(context.Background(), "p1")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Empty(t, f.rec.Errors())
			}
			p, _ := f.cache.Find(view.AllPosts, "p1")
			assert.Equal(t, tt.wantViews, p.Views)
		})
	}
}

func TestOpenPost_LoadsDetailThenComments(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		post:          models.Post{ID: "p1", Title: "Learning Go"},
		totalComments: 12,
		commentPages:  map[int]models.CommentPage{1: commentPage(1, 2, "c1", "c2")},
	}
	f := newFixture(t, api)

	require.NoError(t, f.cascade.OpenPost(context.Background(), "p1"))

	assert.Equal(t, []string{"view:p1", "get:p1", "comments:p1"}, api.Calls())
	assert.Equal(t, "p1", f.store.SelectedPostID())
	assert.Equal(t, 12, f.store.TotalCommentCount())
	assert.True(t, f.thread.HasMoreComments())
	detail, ok := f.thread.Post()
	require.True(t, ok)
	assert.Equal(t, "Learning Go", detail.Title)
}

func TestOpenPost_AlreadyViewedStillOpens(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		post:         models.Post{ID: "p1"},
		registerErr:  models.NewNotYetAvailableError("Not Acceptable"),
		commentPages: map[int]models.CommentPage{},
	}
	f := newFixture(t, api)

	require.NoError(t, f.cascade.OpenPost(context.Background(), "p1"))
	assert.Equal(t, []string{"view:p1", "get:p1", "comments:p1"}, api.Calls())
	assert.Empty(t, f.rec.Errors())
}

func TestOpenPost_RegistrationFailureStopsSequence(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{registerErr: models.NewNetworkOrServerError("boom", 500, nil)}
	f := newFixture(t, api)

	require.Error(t, f.cascade.OpenPost(context.Background(), "p1"))
	assert.Equal(t, []string{"view:p1"}, api.Calls())
	_, ok := f.thread.Post()
	assert.False(t, ok)
}

func TestOpenPost_ViewRegistrationFlagOff(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{post: models.Post{ID: "p1"}, commentPages: map[int]models.CommentPage{}}
	f := newFixture(t, api)
	f.cascade.deps.Flags = featureflags.NewManager("view_registration=off")

	require.NoError(t, f.cascade.OpenPost(context.Background(), "p1"))
	assert.Equal(t, []string{"get:p1", "comments:p1"}, api.Calls())
}

func TestLoadMoreComments_MergesNextPage(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		totalComments: 3,
		commentPages: map[int]models.CommentPage{
			2: commentPage(2, 2, "c2", "c3"),
		},
	}
	f := newFixture(t, api)
	f.thread.Open("p1")
	f.thread.ReplaceComments("p1", commentPage(1, 2, "c1", "c2"), 3)

	require.NoError(t, f.cascade.LoadMoreComments(context.Background()))

	var got []string
	for _, c := range f.thread.Comments() {
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, got)
	assert.False(t, f.thread.HasMoreComments())

	require.NoError(t, f.cascade.LoadMoreComments(context.Background()))
	assert.Len(t, api.Calls(), 1, "no request once the last page is loaded")
}

func TestLikeComment_TogglesLocalCount(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	f := newFixture(t, api)
	f.thread.Open("p1")
	f.thread.ReplaceComments("p1", commentPage(1, 1, "c1"), 1)

	require.NoError(t, f.cascade.LikeComment(context.Background(), "c1"))

	c, ok := f.thread.FindComment("c1")
	require.True(t, ok)
	assert.Equal(t, 1, c.Likes)
	assert.True(t, c.IsLikedByCurrentUser)
	assert.Equal(t, []string{"like-comment:c1/p1"}, api.Calls())
}

func TestKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "create_comment", CreateComment.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

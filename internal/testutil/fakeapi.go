// Package testutil provides an in-memory Postly API for tests. It serves the
// same envelope and routes as the real server through a fiber app mounted on
// an httptest server.
package testutil

import (
	"errors"
	"fmt"
	"math"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"postly/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiPrefix = "/api/v1"

	// DefaultPassword is the password of every seeded user.
	DefaultPassword = "password123"
)

var errUnauthorized = errors.New("unauthorized")

// User is an account known to the fake API.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

type fakePost struct {
	models.Post
	likedBy  map[string]bool
	viewedBy map[string]bool
}

type fakeComment struct {
	models.Comment
	likedBy map[string]bool
}

type fault struct {
	status int
	times  int
}

// FakeAPI is a stateful fake of the Postly blog API.
type FakeAPI struct {
	// PageSize and CommentPageSize are the server-side page limits.
	PageSize        int
	CommentPageSize int

	app    *fiber.App
	server *httptest.Server
	secret []byte

	mu            sync.Mutex
	users         map[string]*User
	byEmail       map[string]string
	posts         []*fakePost
	comments      map[string][]*fakeComment
	refreshTokens map[string]string
	tokenGen      int
	faults        map[string]*fault
	delays        map[string]time.Duration
	hits          map[string]int
	clock         func() time.Time
}

// NewFakeAPI starts a fake API. Call Close when done.
func NewFakeAPI() *FakeAPI {
	f := &FakeAPI{
		PageSize:        10,
		CommentPageSize: 5,
		secret:          []byte("postly-test-secret-" + uuid.NewString()),
		users:           make(map[string]*User),
		byEmail:         make(map[string]string),
		comments:        make(map[string][]*fakeComment),
		refreshTokens:   make(map[string]string),
		faults:          make(map[string]*fault),
		delays:          make(map[string]time.Duration),
		hits:            make(map[string]int),
		clock:           time.Now,
	}

	// Handlers keep route params as map keys, so they must outlive the request.
	f.app = fiber.New(fiber.Config{DisableStartupMessage: true, Immutable: true})
	f.routes()
	f.server = httptest.NewServer(adaptor.FiberApp(f.app))
	return f
}

// BaseURL is the API root to hand to api.NewClient.
func (f *FakeAPI) BaseURL() string {
	return f.server.URL + apiPrefix
}

// Close shuts the server down.
func (f *FakeAPI) Close() {
	f.server.Close()
	_ = f.app.Shutdown()
}

// Route keys used by Fail, Delay and Hits are "METHOD /template", e.g.
// "GET /posts/:id".
func routeKey(method, path string) string {
	return method + " " + path
}

// Fail makes the next times calls of route answer with status.
func (f *FakeAPI) Fail(method, path string, status, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[routeKey(method, path)] = &fault{status: status, times: times}
}

// Delay holds every call of route for d before answering.
func (f *FakeAPI) Delay(method, path string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[routeKey(method, path)] = d
}

// Hits returns how many times route was called.
func (f *FakeAPI) Hits(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[routeKey(method, path)]
}

// ExpireAccessTokens invalidates every access token issued so far.
func (f *FakeAPI) ExpireAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenGen++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (f *FakeAPI) RevokeRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshTokens = make(map[string]string)
}

// CreateUser registers an account. An empty password means DefaultPassword.
func (f *FakeAPI) CreateUser(username, email, password string) *User {
	if password == "" {
		password = DefaultPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("hash password: %v", err))
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		CreatedAt:    f.clock().UTC(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	f.byEmail[u.Email] = u.ID
	return u
}

// SeedUser creates a user with generated details.
func (f *FakeAPI) SeedUser() *User {
	return f.CreateUser(gofakeit.Username()+strconv.Itoa(gofakeit.Number(100, 999)), gofakeit.Email(), "")
}

// SeedPosts creates n posts by author with generated content, newest last.
func (f *FakeAPI) SeedPosts(author *User, n int) []models.Post {
	out := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.AddPost(author, models.CreatePostInput{
			Title:    gofakeit.Sentence(4),
			Category: gofakeit.BuzzWord(),
			Content:  gofakeit.Paragraph(2, 4, 12, " "),
		}))
	}
	return out
}

// AddPost stores a post as if author had created it.
func (f *FakeAPI) AddPost(author *User, in models.CreatePostInput) models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addPostLocked(author, in).Post
}

func (f *FakeAPI) addPostLocked(author *User, in models.CreatePostInput) *fakePost {
	now := f.clock().UTC()
	p := &fakePost{
		Post: models.Post{
			ID:        uuid.NewString(),
			Author:    models.Author{ID: author.ID, Username: author.Username},
			Title:     in.Title,
			Category:  in.Category,
			Content:   in.Content,
			CreatedAt: now,
			UpdatedAt: now,
		},
		likedBy:  make(map[string]bool),
		viewedBy: make(map[string]bool),
	}
	f.posts = append(f.posts, p)
	return p
}

// AddComment stores a comment on postID as if author had written it.
func (f *FakeAPI) AddComment(author *User, postID, content string) models.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCommentLocked(author, postID, content).Comment
}

func (f *FakeAPI) addCommentLocked(author *User, postID, content string) *fakeComment {
	now := f.clock().UTC()
	c := &fakeComment{
		Comment: models.Comment{
			ID:        uuid.NewString(),
			PostID:    postID,
			Author:    models.Author{ID: author.ID, Username: author.Username},
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		},
		likedBy: make(map[string]bool),
	}
	f.comments[postID] = append(f.comments[postID], c)
	if p := f.findPostLocked(postID); p != nil {
		p.Comments = len(f.comments[postID])
	}
	return c
}

// Post returns the server copy of id as seen by viewerID.
func (f *FakeAPI) Post(id, viewerID string) (models.Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(id)
	if p == nil {
		return models.Post{}, false
	}
	return p.view(viewerID), true
}

// IssueTokens signs a fresh token pair for userID.
func (f *FakeAPI) IssueTokens(userID string) (models.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return models.AuthResult{}, fmt.Errorf("unknown user %s", userID)
	}
	access, err := f.signLocked(u.ID)
	if err != nil {
		return models.AuthResult{}, err
	}
	refresh := uuid.NewString()
	f.refreshTokens[refresh] = u.ID
	return models.AuthResult{
		Auth:         models.AuthState{UserID: u.ID, Username: u.Username, IsAuthenticated: true},
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (f *FakeAPI) signLocked(userID string) (string, error) {
	now := f.clock()
	claims := jwt.MapClaims{
		"sub": userID,
		"gen": f.tokenGen,
		"iat": now.Unix(),
		"exp": now.Add(15 * time.Minute).Unix(),
		"jti": uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
}

func (p *fakePost) view(viewerID string) models.Post {
	out := p.Post
	out.Likes = len(p.likedBy)
	out.Views = len(p.viewedBy)
	out.IsLikedByCurrentUser = p.likedBy[viewerID]
	return out
}

func (c *fakeComment) view(viewerID string) models.Comment {
	out := c.Comment
	out.Likes = len(c.likedBy)
	out.IsLikedByCurrentUser = c.likedBy[viewerID]
	return out
}

func (f *FakeAPI) findPostLocked(id string) *fakePost {
	for _, p := range f.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *FakeAPI) findCommentLocked(postID, id string) *fakeComment {
	for _, c := range f.comments[postID] {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// paginate slices items for page (1-based) at limit per page.
func paginate[T any](items []T, page, limit int) ([]T, models.Pagination) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit
	meta := models.Pagination{
		Offset:     offset,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(len(items)) / float64(limit))),
	}
	if offset >= len(items) {
		return []T{}, meta
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], meta
}

func matchesSearch(p *fakePost, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Content), q) ||
		strings.Contains(strings.ToLower(p.Category), q)
}

// newestFirst returns the posts matching keep, most recent first.
func (f *FakeAPI) newestFirst(keep func(*fakePost) bool) []*fakePost {
	out := make([]*fakePost, 0, len(f.posts))
	for i := len(f.posts) - 1; i >= 0; i-- {
		if keep(f.posts[i]) {
			out = append(out, f.posts[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

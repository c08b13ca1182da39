package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"postly/internal/featureflags"
	"postly/internal/models"
	"postly/internal/view"
)

type paginationPayload[T any] struct {
	PaginationData T   `json:"paginationData"`
	TotalComments  int `json:"totalComments"`
}

// ListPosts fetches one page of a view's collection.
func (c *Client) ListPosts(ctx context.Context, v view.Selector, page int, searchQuery string) (models.PostPage, error) {
	if !v.Valid() {
		return models.PostPage{}, fmt.Errorf("list posts: unknown view %d", int(v))
	}
	if page < 1 {
		page = 1
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if q := strings.TrimSpace(searchQuery); q != "" {
		query.Set("searchQuery", q)
	}
	if c.flags.Enabled(featureflags.CacheBuster, "") {
		query.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))
	}

	env, err := c.do(ctx, request{method: http.MethodGet, path: v.Path(), query: query})
	if err != nil {
		return models.PostPage{}, fmt.Errorf("list %s: %w", v, err)
	}

	var data paginationPayload[models.PostPage]
	if err := env.DecodeData(&data); err != nil {
		return models.PostPage{}, decodeError("list "+v.String(), err)
	}
	return data.PaginationData, nil
}

// GetPost fetches a single post.
func (c *Client) GetPost(ctx context.Context, id string) (models.Post, error) {
	env, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/" + url.PathEscape(id),
		route:  "/posts/:id",
	})
	if err != nil {
		return models.Post{}, fmt.Errorf("get post: %w", err)
	}

	var data struct {
		Post models.Post `json:"post"`
	}
	if err := env.DecodeData(&data); err != nil {
		return models.Post{}, decodeError("get post", err)
	}
	return data.Post, nil
}

// ListComments fetches one page of a post's comments and the total count.
func (c *Client) ListComments(ctx context.Context, postID string, page int) (models.CommentPage, int, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	env, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/" + url.PathEscape(postID) + "/comments",
		route:  "/posts/:id/comments",
		query:  query,
	})
	if err != nil {
		return models.CommentPage{}, 0, fmt.Errorf("list comments: %w", err)
	}

	var data paginationPayload[models.CommentPage]
	if err := env.DecodeData(&data); err != nil {
		return models.CommentPage{}, 0, decodeError("list comments", err)
	}
	return data.PaginationData, data.TotalComments, nil
}

// CreatePost publishes a post and returns the server message.
func (c *Client) CreatePost(ctx context.Context, in models.CreatePostInput) (string, error) {
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/posts", body: in})
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return env.Message, nil
}

// LikePost toggles the caller's like and returns the new like count.
func (c *Client) LikePost(ctx context.Context, id string) (int, error) {
	env, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/posts/" + url.PathEscape(id),
		route:  "/posts/:id",
	})
	if err != nil {
		return 0, fmt.Errorf("like post: %w", err)
	}

	var data struct {
		Likes int `json:"likes"`
	}
	if err := env.DecodeData(&data); err != nil {
		return 0, decodeError("like post", err)
	}
	return data.Likes, nil
}

// ArchivePost toggles the archived state and returns the server message.
func (c *Client) ArchivePost(ctx context.Context, id string) (string, error) {
	env, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/posts/" + url.PathEscape(id) + "/archive",
		route:  "/posts/:id/archive",
	})
	if err != nil {
		return "", fmt.Errorf("archive post: %w", err)
	}
	return env.Message, nil
}

// RegisterView records a view. A 406 means the view was already counted.
func (c *Client) RegisterView(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/posts/" + url.PathEscape(id) + "/view",
		route:  "/posts/:id/view",
	})
	if err != nil {
		return fmt.Errorf("register view: %w", err)
	}
	return nil
}

// CreateComment adds a comment to postID and returns the server message.
func (c *Client) CreateComment(ctx context.Context, postID string, in models.CreateCommentInput) (string, error) {
	env, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/comments/" + url.PathEscape(postID),
		route:  "/comments/:postId",
		body:   in,
	})
	if err != nil {
		return "", fmt.Errorf("create comment: %w", err)
	}
	return env.Message, nil
}

// LikeComment toggles the caller's like on a comment. The response carries no
// fresh count.
func (c *Client) LikeComment(ctx context.Context, commentID, postID string) (string, error) {
	env, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/comments/" + url.PathEscape(commentID) + "/" + url.PathEscape(postID),
		route:  "/comments/:commentId/:postId",
	})
	if err != nil {
		return "", fmt.Errorf("like comment: %w", err)
	}
	return env.Message, nil
}

// Signup creates an account.
func (c *Client) Signup(ctx context.Context, creds models.Credentials) (models.AuthResult, error) {
	return c.authenticate(ctx, "/auth/signup", creds)
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.AuthResult, error) {
	creds.Username = ""
	return c.authenticate(ctx, "/auth/login", creds)
}

func (c *Client) authenticate(ctx context.Context, path string, creds models.Credentials) (models.AuthResult, error) {
	env, err := c.do(ctx, request{method: http.MethodPost, path: path, body: creds, noReauth: true})
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", strings.TrimPrefix(path, "/auth/"), err)
	}

	var result models.AuthResult
	if err := env.DecodeData(&result); err != nil {
		return models.AuthResult{}, decodeError(path, err)
	}
	result.Auth.IsAuthenticated = result.Auth.UserID != ""
	return result, nil
}

// Me returns the authenticated-session signal.
func (c *Client) Me(ctx context.Context) (models.AuthState, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"})
	if err != nil {
		return models.AuthState{}, fmt.Errorf("auth state: %w", err)
	}

	var data struct {
		Auth models.AuthState `json:"auth"`
	}
	if err := env.DecodeData(&data); err != nil {
		return models.AuthState{}, decodeError("auth state", err)
	}
	data.Auth.IsAuthenticated = data.Auth.UserID != ""
	return data.Auth, nil
}

// Profile returns the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (models.Profile, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/profile/me"})
	if err != nil {
		return models.Profile{}, fmt.Errorf("profile: %w", err)
	}

	var data struct {
		Profile models.Profile `json:"profile"`
	}
	if err := env.DecodeData(&data); err != nil {
		return models.Profile{}, decodeError("profile", err)
	}
	return data.Profile, nil
}

// Logout ends the server-side session. It never triggers a refresh.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/auth/logout", noReauth: true}); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func decodeError(op string, err error) error {
	return models.NewNetworkOrServerError("", http.StatusOK, fmt.Errorf("%s: decode response: %w", op, err))
}

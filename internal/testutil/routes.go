package testutil

import (
	"strings"
	"time"

	"postly/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func (f *FakeAPI) routes() {
	api := f.app.Group(apiPrefix)

	f.handle(api, fiber.MethodPost, "/auth/signup", f.signup)
	f.handle(api, fiber.MethodPost, "/auth/login", f.login)
	f.handle(api, fiber.MethodGet, "/auth/refresh", f.refresh)
	f.handle(api, fiber.MethodGet, "/auth/me", f.authed(f.me))
	f.handle(api, fiber.MethodPost, "/auth/logout", f.authed(f.logout))
	f.handle(api, fiber.MethodGet, "/profile/me", f.authed(f.profile))

	// Static post routes must precede /posts/:id.
	f.handle(api, fiber.MethodGet, "/posts", f.authed(f.listPosts(func(p *fakePost, _ string) bool {
		return !p.IsArchived
	})))
	f.handle(api, fiber.MethodGet, "/posts/created", f.authed(f.listPosts(func(p *fakePost, uid string) bool {
		return p.Author.ID == uid && !p.IsArchived
	})))
	f.handle(api, fiber.MethodGet, "/posts/liked", f.authed(f.listPosts(func(p *fakePost, uid string) bool {
		return p.likedBy[uid] && !p.IsArchived
	})))
	f.handle(api, fiber.MethodGet, "/posts/archived", f.authed(f.listPosts(func(p *fakePost, uid string) bool {
		return p.Author.ID == uid && p.IsArchived
	})))
	f.handle(api, fiber.MethodPost, "/posts", f.authed(f.createPost))
	f.handle(api, fiber.MethodGet, "/posts/:id", f.authed(f.getPost))
	f.handle(api, fiber.MethodPatch, "/posts/:id", f.authed(f.likePost))
	f.handle(api, fiber.MethodPatch, "/posts/:id/archive", f.authed(f.archivePost))
	f.handle(api, fiber.MethodPost, "/posts/:id/view", f.authed(f.registerView))
	f.handle(api, fiber.MethodGet, "/posts/:id/comments", f.authed(f.listComments))

	f.handle(api, fiber.MethodPost, "/comments/:postId", f.authed(f.createComment))
	f.handle(api, fiber.MethodPatch, "/comments/:commentId/:postId", f.authed(f.likeComment))
}

type authedHandler func(c *fiber.Ctx, user *User) error

// handle registers h and applies the hit counter, delays and injected faults
// configured for the route.
func (f *FakeAPI) handle(r fiber.Router, method, path string, h fiber.Handler) {
	key := routeKey(method, path)
	r.Add(method, path, func(c *fiber.Ctx) error {
		f.mu.Lock()
		f.hits[key]++
		delay := f.delays[key]
		var status int
		if ft := f.faults[key]; ft != nil && ft.times > 0 {
			ft.times--
			status = ft.status
		}
		f.mu.Unlock()

		c.Set("X-Request-ID", requestID(c))
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != 0 {
			return respond(c, status, injectedMessage(status), nil)
		}
		return h(c)
	})
}

func injectedMessage(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "Unauthorized"
	case fiber.StatusNotAcceptable:
		return "Not Acceptable"
	default:
		return "Something went wrong"
	}
}

func (f *FakeAPI) authed(h authedHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := f.authenticate(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return respond(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}
		return h(c, user)
	}
}

func (f *FakeAPI) authenticate(header string) (*User, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errUnauthorized
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return f.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errUnauthorized
	}
	sub, _ := claims.GetSubject()
	gen, _ := claims["gen"].(float64)

	f.mu.Lock()
	defer f.mu.Unlock()
	if int(gen) != f.tokenGen {
		return nil, errUnauthorized
	}
	u, ok := f.users[sub]
	if !ok {
		return nil, errUnauthorized
	}
	return u, nil
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	body := fiber.Map{
		"success":    status < 400,
		"message":    message,
		"statusCode": status,
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func validationFailed(c *fiber.Ctx, fields []models.FieldError) error {
	return respond(c, fiber.StatusUnprocessableEntity, "Validation failed", fiber.Map{"errors": fields})
}

func (f *FakeAPI) signup(c *fiber.Ctx) error {
	var req models.Credentials
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	var fields []models.FieldError
	if strings.TrimSpace(req.Username) == "" {
		fields = append(fields, models.FieldError{Field: "username", Message: "Username is required"})
	}
	if !strings.Contains(req.Email, "@") {
		fields = append(fields, models.FieldError{Field: "email", Message: "Invalid email address"})
	}
	if len(req.Password) < 8 {
		fields = append(fields, models.FieldError{Field: "password", Message: "Password must be at least 8 characters"})
	}
	if len(fields) > 0 {
		return validationFailed(c, fields)
	}

	f.mu.Lock()
	_, exists := f.byEmail[strings.ToLower(req.Email)]
	f.mu.Unlock()
	if exists {
		return respond(c, fiber.StatusConflict, "User already exists", nil)
	}

	u := f.CreateUser(req.Username, req.Email, req.Password)
	result, err := f.IssueTokens(u.ID)
	if err != nil {
		return respond(c, fiber.StatusInternalServerError, err.Error(), nil)
	}
	return respond(c, fiber.StatusCreated, "Account created", result)
}

func (f *FakeAPI) login(c *fiber.Ctx) error {
	var req models.Credentials
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	f.mu.Lock()
	id, ok := f.byEmail[strings.ToLower(req.Email)]
	u := f.users[id]
	f.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		return respond(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}

	result, err := f.IssueTokens(u.ID)
	if err != nil {
		return respond(c, fiber.StatusInternalServerError, err.Error(), nil)
	}
	return respond(c, fiber.StatusOK, "Logged in", result)
}

func (f *FakeAPI) refresh(c *fiber.Ctx) error {
	token := c.Get("x-refresh-token")

	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.refreshTokens[token]
	if !ok {
		return respond(c, fiber.StatusUnauthorized, "Unauthorized", nil)
	}
	access, err := f.signLocked(uid)
	if err != nil {
		return respond(c, fiber.StatusInternalServerError, err.Error(), nil)
	}
	return respond(c, fiber.StatusOK, "Token refreshed", fiber.Map{"accessToken": access})
}

func (f *FakeAPI) me(c *fiber.Ctx, u *User) error {
	return respond(c, fiber.StatusOK, "", fiber.Map{
		"auth": models.AuthState{UserID: u.ID, Username: u.Username},
	})
}

func (f *FakeAPI) logout(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	for token, uid := range f.refreshTokens {
		if uid == u.ID {
			delete(f.refreshTokens, token)
		}
	}
	f.mu.Unlock()
	return respond(c, fiber.StatusOK, "Logged out", nil)
}

func (f *FakeAPI) profile(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := models.Profile{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.CreatedAt,
	}
	for _, post := range f.newestFirst(func(*fakePost) bool { return true }) {
		switch {
		case post.Author.ID == u.ID && post.IsArchived:
			p.ArchivedBlogPosts = append(p.ArchivedBlogPosts, post.view(u.ID))
		case post.Author.ID == u.ID:
			p.CreatedBlogPosts = append(p.CreatedBlogPosts, post.view(u.ID))
		}
		if post.likedBy[u.ID] {
			p.LikedBlogPosts = append(p.LikedBlogPosts, post.view(u.ID))
		}
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"profile": p})
}

func (f *FakeAPI) listPosts(keep func(p *fakePost, userID string) bool) authedHandler {
	return func(c *fiber.Ctx, u *User) error {
		page := c.QueryInt("page", 1)
		q := strings.TrimSpace(c.Query("searchQuery"))

		f.mu.Lock()
		defer f.mu.Unlock()
		matched := f.newestFirst(func(p *fakePost) bool {
			return keep(p, u.ID) && matchesSearch(p, q)
		})
		window, meta := paginate(matched, page, f.PageSize)
		posts := make([]models.Post, 0, len(window))
		for _, p := range window {
			posts = append(posts, p.view(u.ID))
		}
		return respond(c, fiber.StatusOK, "", fiber.Map{
			"paginationData": models.PostPage{Pagination: meta, Data: posts},
		})
	}
}

func (f *FakeAPI) createPost(c *fiber.Ctx, u *User) error {
	var in models.CreatePostInput
	if err := c.BodyParser(&in); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	var fields []models.FieldError
	if n := len(in.Title); n < 5 || n > 100 {
		fields = append(fields, models.FieldError{Field: "title", Message: "Blog post title must be between 5 and 100 characters"})
	}
	if n := len(in.Category); n < 3 || n > 30 {
		fields = append(fields, models.FieldError{Field: "category", Message: "Category must be between 3 and 30 characters"})
	}
	if n := len(in.Content); n < 100 || n > 2000 {
		fields = append(fields, models.FieldError{Field: "content", Message: "Blog post content must be between 100 and 2000 characters"})
	}
	if len(fields) > 0 {
		return validationFailed(c, fields)
	}

	f.mu.Lock()
	p := f.addPostLocked(u, in)
	post := p.view(u.ID)
	f.mu.Unlock()
	return respond(c, fiber.StatusCreated, "Blog post created", fiber.Map{"post": post})
}

func (f *FakeAPI) getPost(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(c.Params("id"))
	if p == nil {
		return respond(c, fiber.StatusNotFound, "Blog post not found", nil)
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"post": p.view(u.ID)})
}

func (f *FakeAPI) likePost(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(c.Params("id"))
	if p == nil {
		return respond(c, fiber.StatusNotFound, "Blog post not found", nil)
	}
	message := "Blog post liked"
	if p.likedBy[u.ID] {
		delete(p.likedBy, u.ID)
		message = "Blog post unliked"
	} else {
		p.likedBy[u.ID] = true
	}
	return respond(c, fiber.StatusOK, message, fiber.Map{"likes": len(p.likedBy)})
}

func (f *FakeAPI) archivePost(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(c.Params("id"))
	if p == nil {
		return respond(c, fiber.StatusNotFound, "Blog post not found", nil)
	}
	if p.Author.ID != u.ID {
		return respond(c, fiber.StatusForbidden, "You can only archive your own posts", nil)
	}
	p.IsArchived = !p.IsArchived
	p.UpdatedAt = f.clock().UTC()
	message := "Blog post archived"
	if !p.IsArchived {
		message = "Blog post unarchived"
	}
	return respond(c, fiber.StatusOK, message, fiber.Map{"post": p.view(u.ID)})
}

func (f *FakeAPI) registerView(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(c.Params("id"))
	if p == nil {
		return respond(c, fiber.StatusNotFound, "Blog post not found", nil)
	}
	if p.Author.ID == u.ID {
		return respond(c, fiber.StatusOK, "Own post", nil)
	}
	if p.viewedBy[u.ID] {
		return respond(c, fiber.StatusNotAcceptable, "View already registered", nil)
	}
	p.viewedBy[u.ID] = true
	return respond(c, fiber.StatusOK, "View registered", nil)
}

func (f *FakeAPI) listComments(c *fiber.Ctx, u *User) error {
	postID := c.Params("id")
	page := c.QueryInt("page", 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findPostLocked(postID) == nil {
		return respond(c, fiber.StatusNotFound, "Blog post not found", nil)
	}

	all := f.comments[postID]
	newest := make([]*fakeComment, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		newest = append(newest, all[i])
	}
	window, meta := paginate(newest, page, f.CommentPageSize)
	comments := make([]models.Comment, 0, len(window))
	for _, cm := range window {
		comments = append(comments, cm.view(u.ID))
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{
		"paginationData": models.CommentPage{Pagination: meta, Data: comments},
		"totalComments":  len(all),
	})
}

func (f *FakeAPI) createComment(c *fiber.Ctx, u *User) error {
	var in models.CreateCommentInput
	if err := c.BodyParser(&in); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	content := strings.TrimSpace(in.Content)
	if len(content) < 2 || len(content) > 300 {
		return validationFailed(c, []models.FieldError{{Field: "content", Message: "Comment must be between 2 and 300 characters"}})
	}

	postID := c.Params("postId")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findPostLocked(postID) == nil {
		return respond(c, fiber.StatusNotFound, "Blog post not found", nil)
	}
	cm := f.addCommentLocked(u, postID, content)
	return respond(c, fiber.StatusCreated, "Comment added", fiber.Map{"comment": cm.view(u.ID)})
}

func (f *FakeAPI) likeComment(c *fiber.Ctx, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cm := f.findCommentLocked(c.Params("postId"), c.Params("commentId"))
	if cm == nil {
		return respond(c, fiber.StatusNotFound, "Comment not found", nil)
	}
	message := "Comment liked"
	if cm.likedBy[u.ID] {
		delete(cm.likedBy, u.ID)
		message = "Comment unliked"
	} else {
		cm.likedBy[u.ID] = true
	}
	return respond(c, fiber.StatusOK, message, nil)
}

// requestID returns the caller's X-Request-ID, or a fresh one.
func requestID(c *fiber.Ctx) string {
	if id := c.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

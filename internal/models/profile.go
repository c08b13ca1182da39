package models

import "time"

// AuthState is the authenticated-session signal the client keeps.
type AuthState struct {
	UserID          string `json:"userId"`
	Username        string `json:"username"`
	IsAuthenticated bool   `json:"-"`
}

// Profile mirrors /profile/me plus the post collections fetched into it.
type Profile struct {
	ID                string    `json:"_id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	CreatedBlogPosts  []Post    `json:"createdBlogPosts"`
	LikedBlogPosts    []Post    `json:"likedBlogPosts"`
	ArchivedBlogPosts []Post    `json:"archivedBlogPosts"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Credentials is the body of /auth/login and /auth/signup. Username is only
// sent on signup.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8"`
}

// AuthResult is the data payload returned by login and signup.
type AuthResult struct {
	Auth         AuthState `json:"auth"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

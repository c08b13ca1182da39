// Package models contains the wire and domain types shared by the Postly client.
package models

import "time"

// Author is the embedded author reference returned with posts and comments.
type Author struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Post is a blog post summary as listed in a feed or shown in detail.
type Post struct {
	ID       string `json:"_id"`
	Author   Author `json:"author"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	// Likes, Comments and Views are server-computed counters.
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Views    int `json:"views"`
	// IsLikedByCurrentUser is computed per requesting user.
	IsLikedByCurrentUser bool      `json:"isLikedByCurrentUser"`
	IsArchived           bool      `json:"isArchived"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Comment is a single comment on a post.
type Comment struct {
	ID                   string    `json:"_id"`
	PostID               string    `json:"blogPost"`
	Author               Author    `json:"author"`
	Content              string    `json:"content"`
	Likes                int       `json:"likes"`
	IsLikedByCurrentUser bool      `json:"isLikedByCurrentUser"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Pagination describes one fetched page of a collection.
type Pagination struct {
	Offset     int `json:"offset"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// PostPage is the paginationData payload of the list endpoints.
type PostPage struct {
	Pagination
	Data []Post `json:"data"`
}

// CommentPage is the paginationData payload of the comments endpoint.
type CommentPage struct {
	Pagination
	Data []Comment `json:"data"`
}

// CreatePostInput is the body of POST /posts.
type CreatePostInput struct {
	Title    string `json:"title" validate:"min=5,max=100"`
	Category string `json:"category" validate:"min=3,max=30"`
	Content  string `json:"content" validate:"min=100,max=2000"`
}

// CreateCommentInput is the body of POST /comments/:postId.
type CreateCommentInput struct {
	Content string `json:"content" validate:"required,min=2,max=300,notblank"`
}

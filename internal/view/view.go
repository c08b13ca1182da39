// Package view defines the four post collections a user can browse.
package view

// Selector names one of the four post views. Exactly one is active at a time.
type Selector int

const (
	AllPosts Selector = iota
	MyPosts
	LikedPosts
	ArchivedPosts
)

// Count is the number of selectors.
const Count = int(ArchivedPosts) + 1

type descriptor struct {
	name        string
	queryKey    string
	path        string
	title       string
	description string
	scope       string
}

// table is the single source of per-view behaviour. Every other package looks
// views up here instead of branching on them.
var table = [Count]descriptor{
	AllPosts: {
		name:        "all-posts",
		queryKey:    "all-posts-page",
		path:        "/posts",
		title:       "Latest Blog Posts",
		description: "Discover insights and stories from our community",
	},
	MyPosts: {
		name:        "my-posts",
		queryKey:    "created-posts-page",
		path:        "/posts/created",
		title:       "My Posts",
		description: "Manage your published content",
		scope:       "in your created blog posts",
	},
	LikedPosts: {
		name:        "liked-posts",
		queryKey:    "liked-posts-page",
		path:        "/posts/liked",
		title:       "Liked Posts",
		description: "Posts you've liked and saved for later",
		scope:       "in your liked blog posts",
	},
	ArchivedPosts: {
		name:        "archived-posts",
		queryKey:    "archived-posts-page",
		path:        "/posts/archived",
		title:       "Archived Posts",
		description: "Posts you've archived and hidden from public view",
		scope:       "in your archived blog posts",
	},
}

// All returns every selector in declaration order.
func All() []Selector {
	return []Selector{AllPosts, MyPosts, LikedPosts, ArchivedPosts}
}

// DecodeOrder is the precedence used when more than one page key is present
// in a query string.
func DecodeOrder() []Selector {
	return []Selector{MyPosts, LikedPosts, AllPosts, ArchivedPosts}
}

// Valid reports whether s is one of the four known selectors.
func (s Selector) Valid() bool {
	return s >= AllPosts && s <= ArchivedPosts
}

func (s Selector) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return table[s].name
}

// QueryKey is the query-string parameter carrying this view's page.
func (s Selector) QueryKey() string {
	return table[s].queryKey
}

// Path is the API path listing this view's posts.
func (s Selector) Path() string {
	return table[s].path
}

// Title is the heading shown above the feed.
func (s Selector) Title() string {
	return table[s].title
}

// Description is the sub-heading shown above the feed.
func (s Selector) Description() string {
	return table[s].description
}

// Scope is the suffix of the result-count line; empty for AllPosts.
func (s Selector) Scope() string {
	return table[s].scope
}

// Parse resolves a selector from its name ("liked-posts") or query key
// ("liked-posts-page").
func Parse(raw string) (Selector, bool) {
	for _, s := range All() {
		if raw == table[s].name || raw == table[s].queryKey {
			return s, true
		}
	}
	return AllPosts, false
}

package cascade

import "postly/internal/view"

// Kind names a mutation.
type Kind int

const (
	LikePost Kind = iota
	LikeComment
	// ArchivePost toggles; archive and unarchive share the endpoint and the
	// cascade.
	ArchivePost
	CreatePost
	CreateComment
	RegisterView
)

var kindNames = [...]string{
	LikePost:      "like_post",
	LikeComment:   "like_comment",
	ArchivePost:   "archive_post",
	CreatePost:    "create_post",
	CreateComment: "create_comment",
	RegisterView:  "register_view",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// rule is what a confirmed mutation does beyond patching its own target.
// Server pagination is view-scoped, so any change in membership is recovered
// by navigating to page 1 of the affected view.
type rule struct {
	// navigate, when set, switches to this view at page 1 and fetches it once.
	navigate    view.Selector
	hasNavigate bool
	// clearSearch empties the search query before navigating.
	clearSearch bool
	// refetchWhenActive resets this view to page 1 and refetches it, but only
	// if it is the active view.
	refetchWhenActive    view.Selector
	hasRefetchWhenActive bool
	// resetComments rewinds the open post's comments to page 1 and refetches.
	resetComments bool
}

var table = map[Kind]rule{
	LikePost: {
		refetchWhenActive:    view.LikedPosts,
		hasRefetchWhenActive: true,
	},
	LikeComment: {},
	ArchivePost: {
		navigate:    view.ArchivedPosts,
		hasNavigate: true,
	},
	CreatePost: {
		navigate:    view.MyPosts,
		hasNavigate: true,
		clearSearch: true,
	},
	CreateComment: {
		resetComments: true,
	},
	RegisterView: {},
}

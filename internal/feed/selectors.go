package feed

import "github.com/jonathan/hirebot/internal/locate"

// Listing selectors.
const (
	NoteItem       = `section.note-item`
	CoverAnchor    = `a.cover.mask.ld`
	FallbackAnchor = `a[href*="/explore/"], a[href*="/search_result/"], a[href*="/user/profile/"]`
	CoverImage     = `a.cover.mask.ld img[data-xhs-img], a.cover img[data-xhs-img]`
	AnyImage       = `img[data-xhs-img]`
	TitleSpan      = `.title span`
	Title          = `.title`
	Author         = `.author`
	AuthorName     = `.name`
	AuthorAvatar   = `img.author-avatar`
	LikeCount      = `.like-wrapper .count`
)

var containers = map[Context]locate.Cascade{
	ContextSearch: {
		locate.Selector(`.feeds-container`),
		locate.Selector(`#exploreFeeds`),
		locate.Selector(`.feeds-page`),
		locate.Selector(`body`),
	},
	ContextUser: {
		locate.Selector(`#userPostedFeeds`),
		locate.Selector(`.feeds-tab-container`),
		locate.Selector(`.user-page`),
		locate.Selector(`body`),
	},
}

// ContextFor picks the layout for a page URL.
func ContextFor(url string) Context {
	if locate.Detect(url) == locate.PageProfile {
		return ContextUser
	}
	return ContextSearch
}

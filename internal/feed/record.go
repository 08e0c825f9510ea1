// Package feed scrapes note cards from the social platform's listing pages and
// turns repeated scrapes of a growing page into deltas of unseen records.
package feed

import (
	"strconv"
	"time"

	"github.com/jonathan/hirebot/internal/sink"
)

// Record is one scraped note. Empty strings mean the field was absent.
type Record struct {
	Index        int    `json:"index" bson:"index"`
	NoteID       string `json:"noteId,omitempty" bson:"note_id,omitempty"`
	Link         string `json:"link,omitempty" bson:"link,omitempty"`
	CoverImage   string `json:"coverImage,omitempty" bson:"cover_image,omitempty"`
	Title        string `json:"title,omitempty" bson:"title,omitempty"`
	AuthorName   string `json:"authorName,omitempty" bson:"author_name,omitempty"`
	AuthorAvatar string `json:"authorAvatar,omitempty" bson:"author_avatar,omitempty"`
	AuthorLink   string `json:"authorLink,omitempty" bson:"author_link,omitempty"`
	LikeCount    string `json:"likeCount,omitempty" bson:"like_count,omitempty"`
	DataWidth    string `json:"dataWidth,omitempty" bson:"data_width,omitempty"`
	DataHeight   string `json:"dataHeight,omitempty" bson:"data_height,omitempty"`
}

// IdentityKey returns the deduplication key: note id, else link, else title
// and author, else position. The prefixes keep the tiers apart.
func (r Record) IdentityKey() string {
	switch {
	case r.NoteID != "":
		return "note:" + r.NoteID
	case r.Link != "":
		return "link:" + r.Link
	case r.Title != "" || r.AuthorName != "":
		return "text:" + r.Title + "\x00" + r.AuthorName
	default:
		return "index:" + strconv.Itoa(r.Index)
	}
}

// Context selects the listing layout.
type Context string

const (
	ContextSearch Context = "search"
	ContextUser   Context = "user"
)

func (c Context) label() string {
	if c == ContextUser {
		return "[个人主页]"
	}
	return "[搜索页面]"
}

// Delta is the payload of a feedsUpdated event.
type Delta struct {
	NewFeeds   []Record  `json:"newFeeds"`
	TotalCount int       `json:"totalCount"`
	Timestamp  time.Time `json:"timestamp"`
	URL        string    `json:"url"`
}

// Items keys the new records for keyed sinks.
func (d Delta) Items() []sink.Item {
	items := make([]sink.Item, 0, len(d.NewFeeds))
	for _, r := range d.NewFeeds {
		items = append(items, sink.Item{Key: r.IdentityKey(), Value: r})
	}
	return items
}

// PageURL returns the page the delta was scraped from.
func (d Delta) PageURL() string { return d.URL }

// FeedsResponseData is the result of a full, non-incremental scrape.
type FeedsResponseData struct {
	Feeds     []Record  `json:"feeds"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
}

// EventFeedsUpdated is the action name of delta events.
const EventFeedsUpdated = "feedsUpdated"

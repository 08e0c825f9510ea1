package feed

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/dom"
)

var (
	exactNoteID = regexp.MustCompile(`(?i)/([a-f0-9]{24})(?:\?|$|&)`)
	looseNoteID = regexp.MustCompile(`(?i)/([a-f0-9]{20,})(?:\?|$|&)`)
)

// Container returns the listing container of a snapshot for the given layout.
func Container(doc *goquery.Document, c Context) *goquery.Selection {
	cascade, ok := containers[c]
	if !ok {
		cascade = containers[ContextSearch]
	}
	found, _ := cascade.First(doc.Selection)
	return found.First()
}

// Parse extracts every note card under container in document order. It never
// fails: a field with no matching rule is left empty, and an unrendered
// container yields no records. Relative links resolve against the origin of
// pageURL.
func Parse(container *goquery.Selection, pageURL string, _ Context) []Record {
	if container == nil || container.Length() == 0 {
		return nil
	}
	origin := originOf(pageURL)

	var out []Record
	container.Find(NoteItem).Each(func(i int, item *goquery.Selection) {
		out = append(out, parseItem(item, i, origin))
	})
	return out
}

func parseItem(item *goquery.Selection, index int, origin *url.URL) Record {
	rec := Record{
		Index:      index,
		DataWidth:  item.AttrOr("data-width", ""),
		DataHeight: item.AttrOr("data-height", ""),
	}

	rec.Link = linkOf(item, origin)
	if rec.Link != "" {
		rec.NoteID = NoteID(rec.Link)
	}

	if src := item.Find(CoverImage).First().AttrOr("src", ""); src != "" {
		rec.CoverImage = resolve(origin, src)
	} else if src := item.Find(AnyImage).First().AttrOr("src", ""); src != "" {
		rec.CoverImage = resolve(origin, src)
	}

	if span := item.Find(TitleSpan).First(); span.Length() > 0 {
		rec.Title = dom.Text(span)
	} else {
		rec.Title = dom.Text(item.Find(Title).First())
	}

	if author := item.Find(Author).First(); author.Length() > 0 {
		if href := author.AttrOr("href", ""); href != "" {
			rec.AuthorLink = resolve(origin, href)
		}
		rec.AuthorName = dom.Text(author.Find(AuthorName).First())
		if src := author.Find(AuthorAvatar).First().AttrOr("src", ""); src != "" {
			rec.AuthorAvatar = resolve(origin, src)
		}
	}

	rec.LikeCount = dom.Text(item.Find(LikeCount).First())
	return rec
}

func linkOf(item *goquery.Selection, origin *url.URL) string {
	for _, css := range []string{CoverAnchor, FallbackAnchor} {
		if href := strings.TrimSpace(item.Find(css).First().AttrOr("href", "")); href != "" {
			return resolve(origin, href)
		}
	}
	return ""
}

// NoteID extracts a note id from a link: a 24 hex character path segment,
// else one of at least 20 hex characters.
func NoteID(link string) string {
	if m := exactNoteID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	if m := looseNoteID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

func originOf(pageURL string) *url.URL {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}

func resolve(origin *url.URL, ref string) string {
	if origin == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return origin.ResolveReference(u).String()
}

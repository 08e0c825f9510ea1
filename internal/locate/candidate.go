package locate

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/dom"
)

// Candidate is one row of the chat contact list.
type Candidate struct {
	ID   string // data-id, else "name_" + Name
	Name string
	Ref  string // clickable area, valid for the snapshot it was found in
}

// Candidates lists the chat contacts in page order. A page without the list
// container yields nil.
func Candidates(doc *goquery.Document) []Candidate {
	list := doc.Find(CandidateList).First()
	if list.Length() == 0 {
		return nil
	}
	var out []Candidate
	list.Find(CandidateItem).Each(func(_ int, item *goquery.Selection) {
		out = append(out, CandidateInfo(item))
	})
	return out
}

// CandidateInfo derives the identity of one contact row. The data attribute
// survives list re-renders; the name fallback is only as stable as the name.
func CandidateInfo(item *goquery.Selection) Candidate {
	name := dom.Text(item.Find(CandidateName).First())
	if name == "" {
		name = UnknownName
	}
	id := item.Find(CandidateIDHolder).First().AttrOr("data-id", "")
	if id == "" {
		id = "name_" + name
	}
	clickable := item.Find(CandidateClickable).First()
	if clickable.Length() == 0 {
		clickable = item
	}
	return Candidate{ID: id, Name: name, Ref: dom.Ref(clickable)}
}

// FindCandidate returns the contact with the given id in a fresh snapshot.
func FindCandidate(doc *goquery.Document, id string) (Candidate, bool) {
	for _, c := range Candidates(doc) {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// FindGreetCard returns the recommend card whose identity is id.
func FindGreetCard(root *goquery.Selection, id string) (*goquery.Selection, bool) {
	cards, _ := GreetCards.First(root)
	var found *goquery.Selection
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if GreetCardIdentity(card) == id {
			found = card
			return false
		}
		return true
	})
	return found, found != nil
}

var geekIDPattern = regexp.MustCompile(`geek[=/](\d+)`)

// GreetCardIdentity derives a stable identity for a recommend card. It returns
// "" when the card carries nothing to identify it by.
func GreetCardIdentity(card *goquery.Selection) string {
	if id := card.Find(GreetCardID).First().AttrOr("data-geekid", ""); id != "" {
		return id
	}
	if id := card.AttrOr("data-geekid", ""); id != "" {
		return id
	}
	if id := card.AttrOr("data-id", ""); id != "" {
		return id
	}
	if href := card.Find(greetLink).First().AttrOr("href", ""); href != "" {
		if m := geekIDPattern.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	title := card.Find(greetTitle).First()
	if title.Length() > 0 {
		text := []rune(strings.TrimSpace(title.Text()))
		if len(text) > 50 {
			text = text[:50]
		}
		return "text_" + string(text)
	}
	return ""
}

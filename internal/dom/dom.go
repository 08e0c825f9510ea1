// Package dom defines the capability interface the automation engines use to
// read and act on a live page. Reads always go through an HTML snapshot parsed
// with goquery; actions address elements by a unique CSS path computed from
// that snapshot.
package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotFound is returned by actions whose target element is no longer in the
// document.
var ErrNotFound = errors.New("element not found")

// Toast levels.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// Metrics describes the window scroll position.
type Metrics struct {
	ScrollY        float64 `json:"scrollY"`
	ViewportHeight float64 `json:"viewportHeight"`
	ScrollHeight   float64 `json:"scrollHeight"`
}

// DistanceToBottom returns how many pixels remain below the viewport.
func (m Metrics) DistanceToBottom() float64 {
	d := m.ScrollHeight - (m.ScrollY + m.ViewportHeight)
	if d < 0 {
		return 0
	}
	return d
}

// Page is the capability interface over one browser tab.
type Page interface {
	// URL returns the current location href.
	URL(ctx context.Context) (string, error)
	// Snapshot returns a parsed copy of the current document.
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// Click clicks the element addressed by ref.
	Click(ctx context.Context, ref string) error
	// ScrollIntoView centers the element addressed by ref.
	ScrollIntoView(ctx context.Context, ref string) error
	// Highlight draws a temporary frame around the element.
	Highlight(ctx context.Context, ref string, d time.Duration) error
	// SetText focuses an input or contenteditable, replaces its content and
	// fires input/change events.
	SetText(ctx context.Context, ref, text string) error
	// ScrollToBottom scrolls the window to the end of the document.
	ScrollToBottom(ctx context.Context) error
	// ScrollMetrics reports the window scroll position.
	ScrollMetrics(ctx context.Context) (Metrics, error)
	// Toast shows a transient notification on the page.
	Toast(ctx context.Context, level, message string) error
}

// Ref computes a unique CSS path for the first element of sel, from the html
// root down, using nth-child steps. The path is only meaningful for the
// document the selection came from.
func Ref(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	cur := sel.First()
	var steps []string
	for cur.Length() > 0 {
		name := goquery.NodeName(cur)
		if name == "" || name == "#document" {
			break
		}
		if name == "html" {
			steps = append(steps, "html")
			break
		}
		steps = append(steps, fmt.Sprintf("%s:nth-child(%d)", name, cur.Index()+1))
		cur = cur.Parent()
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}

// Text returns the whitespace-trimmed text content of sel.
func Text(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// IsDisabled reports whether a control is disabled, either through the
// disabled attribute or a "disabled" class.
func IsDisabled(sel *goquery.Selection) bool {
	if sel == nil || sel.Length() == 0 {
		return false
	}
	if _, ok := sel.Attr("disabled"); ok {
		return true
	}
	return sel.HasClass("disabled")
}

// Title returns the document title of a snapshot.
func Title(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	return Text(doc.Find("title").First())
}

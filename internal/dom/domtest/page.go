// Package domtest provides an in-memory dom.Page backed by a goquery document,
// for exercising the automation engines without a browser.
package domtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/dom"
)

// ClickHook runs after a click lands on el. It may mutate the document
// through p.Mutate.
type ClickHook func(p *Page, el *goquery.Selection)

// Click is one recorded click.
type Click struct {
	Ref  string
	Text string
}

// Toast is one recorded notification.
type Toast struct {
	Level   string
	Message string
}

// Page is a fake dom.Page. The zero value is not usable; call New.
type Page struct {
	mu       sync.Mutex
	url      string
	doc      *goquery.Document
	hooks    []ClickHook
	clicks   []Click
	toasts   []Toast
	texts    map[string]string
	scrolls  int
	metrics  dom.Metrics
	bottomed int
}

var _ dom.Page = (*Page)(nil)

// New parses html into a fake page located at url.
func New(url, html string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return &Page{
		url:     url,
		doc:     doc,
		texts:   make(map[string]string),
		metrics: dom.Metrics{ViewportHeight: 800, ScrollHeight: 4000},
	}
}

// OnClick registers a hook invoked after every successful click.
func (p *Page) OnClick(h ClickHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, h)
}

// SetURL simulates a navigation without changing the document.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetHTML replaces the whole document.
func (p *Page) SetHTML(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
}

// SetMetrics sets the values ScrollMetrics reports.
func (p *Page) SetMetrics(m dom.Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

// Mutate runs fn against the live document. Hooks call it while the page lock
// is not held.
func (p *Page) Mutate(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// Clicks returns the click log.
func (p *Page) Clicks() []Click {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Click(nil), p.clicks...)
}

// ClickedText reports whether any click landed on an element whose text
// contains s.
func (p *Page) ClickedText(s string) bool {
	for _, c := range p.Clicks() {
		if strings.Contains(c.Text, s) {
			return true
		}
	}
	return false
}

// Toasts returns the notification log.
func (p *Page) Toasts() []Toast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Toast(nil), p.toasts...)
}

// TextOf returns the last value written with SetText to ref.
func (p *Page) TextOf(ref string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[ref]
}

// Texts returns every value written with SetText.
func (p *Page) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.texts))
	for _, v := range p.texts {
		out = append(out, v)
	}
	return out
}

// BottomScrolls counts ScrollToBottom calls.
func (p *Page) BottomScrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bottomed
}

// HTML renders the live document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, _ := p.doc.Html()
	return h
}

func (p *Page) URL(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Snapshot(_ context.Context) (*goquery.Document, error) {
	p.mu.Lock()
	h, err := p.doc.Html()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(h))
}

func (p *Page) Click(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	el := p.doc.Find(ref).First()
	if el.Length() == 0 {
		p.mu.Unlock()
		return dom.ErrNotFound
	}
	p.clicks = append(p.clicks, Click{Ref: ref, Text: dom.Text(el)})
	hooks := append([]ClickHook(nil), p.hooks...)
	p.mu.Unlock()

	for _, h := range hooks {
		h(p, el)
	}
	return nil
}

func (p *Page) ScrollIntoView(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc.Find(ref).Length() == 0 {
		return dom.ErrNotFound
	}
	p.scrolls++
	return nil
}

func (p *Page) Highlight(_ context.Context, ref string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc.Find(ref).Length() == 0 {
		return dom.ErrNotFound
	}
	return nil
}

func (p *Page) SetText(_ context.Context, ref, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := p.doc.Find(ref).First()
	if el.Length() == 0 {
		return dom.ErrNotFound
	}
	el.SetText(text)
	p.texts[ref] = text
	return nil
}

func (p *Page) ScrollToBottom(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bottomed++
	p.metrics.ScrollY = p.metrics.ScrollHeight - p.metrics.ViewportHeight
	return nil
}

func (p *Page) ScrollMetrics(_ context.Context) (dom.Metrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics, nil
}

func (p *Page) Toast(_ context.Context, level, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, Toast{Level: level, Message: message})
	return nil
}

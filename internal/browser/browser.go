// Package browser drives a Chrome tab through the DevTools protocol and
// exposes it as a dom.Page.
package browser

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/hirebot/internal/dom"
)

// DefaultActionTimeout bounds a single DevTools round trip.
const DefaultActionTimeout = 15 * time.Second

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// Error represents a failed browser operation.
type Error struct {
	Op      string
	Ref     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	target := e.Op
	if e.Ref != "" {
		target += " " + e.Ref
	}
	if e.Cause != nil {
		return fmt.Sprintf("browser %s: %s: %v", target, e.Message, e.Cause)
	}
	return fmt.Sprintf("browser %s: %s", target, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures how the browser is started or attached.
type Options struct {
	URL           string // opened after start; empty keeps about:blank
	RemoteURL     string // DevTools websocket or http endpoint of a running Chrome
	ExecPath      string
	Headless      bool
	UserDataDir   string // keeps logins between runs
	UserAgent     string
	ActionTimeout time.Duration
	Verbose       bool
}

// Browser is one Chrome tab. It implements dom.Page.
type Browser struct {
	ctx     context.Context
	cancel  []context.CancelFunc
	timeout time.Duration
	verbose bool
}

var _ dom.Page = (*Browser)(nil)

// execOptions returns the allocator flags for a locally launched Chrome.
func execOptions(opts Options) []chromedp.ExecAllocatorOption {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "zh-CN"),
		chromedp.UserAgent(ua),
	)
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	return out
}

// Launch starts Chrome, or attaches to RemoteURL, and opens opts.URL. The
// browser lives until Close or until ctx is cancelled.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	b := &Browser{timeout: opts.ActionTimeout, verbose: opts.Verbose}
	if b.timeout <= 0 {
		b.timeout = DefaultActionTimeout
	}

	var allocCtx context.Context
	var cancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocCtx, cancel = chromedp.NewExecAllocator(ctx, execOptions(opts)...)
	}
	b.cancel = append(b.cancel, cancel)

	b.ctx, cancel = chromedp.NewContext(allocCtx)
	b.cancel = append(b.cancel, cancel)

	target := opts.URL
	if target == "" {
		target = "about:blank"
	}
	if b.verbose {
		log.Printf("[BROWSER] opening %s (remote=%v headless=%v)", target, opts.RemoteURL != "", opts.Headless)
	}
	if err := chromedp.Run(b.ctx, chromedp.Navigate(target)); err != nil {
		b.Close()
		return nil, &Error{Op: "launch", Message: "navigate to " + target, Cause: err}
	}
	return b, nil
}

// Close shuts the tab and, when launched locally, the browser.
func (b *Browser) Close() {
	for i := len(b.cancel) - 1; i >= 0; i-- {
		b.cancel[i]()
	}
}

// run executes actions on the tab, bounded by both the caller's ctx and the
// per-action timeout.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// eval calls a script and decodes its result into out.
func (b *Browser) eval(ctx context.Context, op, ref, fn string, out any, args ...any) error {
	expr, err := call(fn, args...)
	if err != nil {
		return &Error{Op: op, Ref: ref, Message: "build script", Cause: err}
	}
	if err := b.run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return &Error{Op: op, Ref: ref, Message: "evaluate", Cause: err}
	}
	return nil
}

// element runs an element script and maps a false result to dom.ErrNotFound.
func (b *Browser) element(ctx context.Context, op, ref, fn string, args ...any) error {
	var found bool
	if err := b.eval(ctx, op, ref, fn, &found, append([]any{ref}, args...)...); err != nil {
		return err
	}
	if !found {
		return &Error{Op: op, Ref: ref, Message: "no match", Cause: dom.ErrNotFound}
	}
	return nil
}

// Navigate loads url in the tab.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.run(ctx, chromedp.Navigate(url)); err != nil {
		return &Error{Op: "navigate", Message: url, Cause: err}
	}
	return nil
}

func (b *Browser) URL(ctx context.Context) (string, error) {
	var url string
	if err := b.run(ctx, chromedp.Location(&url)); err != nil {
		return "", &Error{Op: "url", Message: "read location", Cause: err}
	}
	return url, nil
}

func (b *Browser) Snapshot(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, &Error{Op: "snapshot", Message: "read document", Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &Error{Op: "snapshot", Message: "parse document", Cause: err}
	}
	return doc, nil
}

func (b *Browser) Click(ctx context.Context, ref string) error {
	return b.element(ctx, "click", ref, clickScript)
}

func (b *Browser) ScrollIntoView(ctx context.Context, ref string) error {
	return b.element(ctx, "scroll", ref, scrollIntoViewScript)
}

func (b *Browser) Highlight(ctx context.Context, ref string, d time.Duration) error {
	return b.element(ctx, "highlight", ref, highlightScript, d.Milliseconds())
}

func (b *Browser) SetText(ctx context.Context, ref, text string) error {
	return b.element(ctx, "set text", ref, setTextScript, text)
}

func (b *Browser) ScrollToBottom(ctx context.Context) error {
	var ok bool
	return b.eval(ctx, "scroll to bottom", "", scrollToBottomScript, &ok)
}

func (b *Browser) ScrollMetrics(ctx context.Context) (dom.Metrics, error) {
	var m dom.Metrics
	if err := b.eval(ctx, "metrics", "", metricsScript, &m); err != nil {
		return dom.Metrics{}, err
	}
	return m, nil
}

func (b *Browser) Toast(ctx context.Context, level, message string) error {
	var ok bool
	return b.eval(ctx, "toast", "", toastScript, &ok, level, message)
}

// Package action performs UI actions on a dom.Page with visual feedback and
// settle delays.
package action

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/dom"
)

// ErrDisabled is returned when the target control is disabled.
var ErrDisabled = errors.New("control is disabled")

// IsMissing reports whether err means the action could not land: the element
// is gone, was never there, or is disabled. Callers treat all three the same.
func IsMissing(err error) bool {
	return errors.Is(err, dom.ErrNotFound) || errors.Is(err, ErrDisabled)
}

// Executor performs actions against one page.
type Executor struct {
	Page   dom.Page
	Timing config.Timing
	Logger *slog.Logger
}

// New returns an Executor. A nil logger discards output.
func New(page dom.Page, timing config.Timing, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{Page: page, Timing: timing, Logger: logger}
}

// Click highlights the first element of sel, waits for the highlight lead and
// clicks it. sel must come from a snapshot of the executor's page.
func (e *Executor) Click(ctx context.Context, sel *goquery.Selection) error {
	if sel == nil || sel.Length() == 0 {
		return dom.ErrNotFound
	}
	el := sel.First()
	if dom.IsDisabled(el) {
		return ErrDisabled
	}
	return e.ClickRef(ctx, dom.Ref(el))
}

// ClickRef is Click for an element already addressed by ref.
func (e *Executor) ClickRef(ctx context.Context, ref string) error {
	if ref == "" {
		return dom.ErrNotFound
	}
	if err := e.Page.Highlight(ctx, ref, e.Timing.HighlightDuration); err != nil {
		if errors.Is(err, dom.ErrNotFound) {
			return err
		}
		e.Logger.Debug("highlight failed", "ref", ref, "error", err)
	}
	if err := e.Settle(ctx, e.Timing.HighlightLead); err != nil {
		return err
	}
	return e.Page.Click(ctx, ref)
}

// ScrollTo centers the first element of sel, waits for the scroll to settle
// and highlights it.
func (e *Executor) ScrollTo(ctx context.Context, sel *goquery.Selection) error {
	if sel == nil || sel.Length() == 0 {
		return dom.ErrNotFound
	}
	ref := dom.Ref(sel.First())
	if err := e.Page.ScrollIntoView(ctx, ref); err != nil {
		return err
	}
	if err := e.Settle(ctx, e.Timing.ScrollSettle); err != nil {
		return err
	}
	if err := e.Page.Highlight(ctx, ref, e.Timing.HighlightDuration); err != nil && !errors.Is(err, dom.ErrNotFound) {
		e.Logger.Debug("highlight failed", "ref", ref, "error", err)
	}
	return nil
}

// Type replaces the content of the first element of sel and fires input
// events.
func (e *Executor) Type(ctx context.Context, sel *goquery.Selection, text string) error {
	if sel == nil || sel.Length() == 0 {
		return dom.ErrNotFound
	}
	return e.Page.SetText(ctx, dom.Ref(sel.First()), text)
}

// Toast shows a notification and logs delivery failures instead of returning
// them.
func (e *Executor) Toast(ctx context.Context, level, message string) {
	if err := e.Page.Toast(ctx, level, message); err != nil {
		e.Logger.Debug("toast failed", "message", message, "error", err)
	}
}

// Settle waits for d or until ctx is done.
func (e *Executor) Settle(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

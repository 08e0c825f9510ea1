package feed

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/hirebot/internal/config"
)

// DefaultBottomThreshold is how close to the end of the document a scroll
// position counts as a load-more stimulus.
const DefaultBottomThreshold = 500

// Watcher polls a page and turns listing changes and near-bottom scroll
// positions into scrape passes. Each stimulus kind has its own debounce
// window.
type Watcher struct {
	Scraper         *Scraper
	Timing          config.Timing
	BottomThreshold float64
	Logger          *slog.Logger

	wg sync.WaitGroup
}

// NewWatcher returns a watcher for s.
func NewWatcher(s *Scraper, timing config.Timing, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{Scraper: s, Timing: timing, BottomThreshold: DefaultBottomThreshold, Logger: logger}
}

// debouncer restarts its window on every trigger and fires once the window
// passes without one.
type debouncer struct {
	window  time.Duration
	timer   *time.Timer
	timerCh <-chan time.Time
}

func (d *debouncer) trigger() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
}

func (d *debouncer) fired() {
	d.timer = nil
	d.timerCh = nil
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.fired()
}

// Run watches until ctx is done. The first poll always counts as a change, so
// whatever is already rendered gets scraped. On return the SeenSet is reset,
// as on page unload.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Scraper.Engine.Reset()
	defer w.wg.Wait()

	mutation := &debouncer{window: w.Timing.MutationDebounce}
	scroll := &debouncer{window: w.Timing.ScrollDebounce}
	defer mutation.stop()
	defer scroll.stop()

	poll := w.Timing.WatchPoll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last uint64
	lastY := -1.0
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fp, y, near, err := w.observe(ctx)
			if err != nil {
				w.Logger.Debug("watch poll failed", "error", err)
				continue
			}
			if first || fp != last {
				first = false
				last = fp
				mutation.trigger()
			}
			if near && y != lastY {
				scroll.trigger()
			}
			lastY = y
		case <-mutation.timerCh:
			mutation.fired()
			w.scrape(ctx, "mutation")
		case <-scroll.timerCh:
			scroll.fired()
			w.scrape(ctx, "scroll")
		}
	}
}

// observe returns the listing fingerprint, the scroll offset and whether the
// viewport is near the bottom of the document. Only a scroll that moved
// counts as a scroll stimulus.
func (w *Watcher) observe(ctx context.Context) (uint64, float64, bool, error) {
	page := w.Scraper.Page
	url, err := page.URL(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	doc, err := page.Snapshot(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	html, err := Container(doc, ContextFor(url)).Html()
	if err != nil {
		return 0, 0, false, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	_, _ = h.Write([]byte(html))

	m, err := page.ScrollMetrics(ctx)
	if err != nil {
		return h.Sum64(), 0, false, nil
	}
	return h.Sum64(), m.ScrollY, m.ScrollHeight > 0 && m.DistanceToBottom() < w.BottomThreshold, nil
}

func (w *Watcher) scrape(ctx context.Context, stimulus string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_, err := w.Scraper.Scrape(ctx)
		switch {
		case errors.Is(err, ErrPassInProgress):
			w.Logger.Debug("scrape dropped, pass in progress", "stimulus", stimulus)
		case err != nil && ctx.Err() == nil:
			w.Logger.Warn("scrape failed", "stimulus", stimulus, "error", err)
		}
	}()
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/sink"
)

// ErrPassInProgress is returned by Scrape while another pass runs. The
// trigger is dropped, not queued.
var ErrPassInProgress = errors.New("scrape pass already in progress")

// Scraper runs incremental scrape passes against one page.
type Scraper struct {
	Page   dom.Page
	Engine *Engine
	Sink   sink.Sink
	Logger *slog.Logger

	busy atomic.Bool
}

// NewScraper wires a scraper with a fresh engine. A nil sink discards events.
func NewScraper(page dom.Page, out sink.Sink, logger *slog.Logger) *Scraper {
	if out == nil {
		out = sink.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scraper{Page: page, Engine: NewEngine(), Sink: out, Logger: logger}
}

// Scrape parses the current page, diffs it against what was already seen and
// emits a feedsUpdated event when there is something new. An empty delta is
// not an error: the listing may not have rendered yet.
func (s *Scraper) Scrape(ctx context.Context) (Delta, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Delta{}, ErrPassInProgress
	}
	defer s.busy.Store(false)

	url, records, err := s.read(ctx, "")
	if err != nil {
		return Delta{}, err
	}

	delta := s.Engine.Diff(url, records)
	if len(delta.NewFeeds) == 0 {
		return delta, nil
	}

	s.Logger.Info("new feeds", "count", len(delta.NewFeeds), "total", delta.TotalCount, "url", url)
	if err := s.Sink.Emit(ctx, sink.Event{Action: EventFeedsUpdated, Data: delta}); err != nil {
		s.Logger.Warn("feed delivery failed", "error", err)
	}
	return delta, nil
}

// Collect returns every record on the page without touching the SeenSet. An
// empty context picks the layout from the URL.
func (s *Scraper) Collect(ctx context.Context, c Context) (FeedsResponseData, error) {
	url, records, err := s.read(ctx, c)
	if err != nil {
		return FeedsResponseData{}, err
	}
	if records == nil {
		records = []Record{}
	}
	return FeedsResponseData{
		Feeds:     records,
		Count:     len(records),
		Timestamp: time.Now().UTC(),
		URL:       url,
	}, nil
}

func (s *Scraper) read(ctx context.Context, c Context) (string, []Record, error) {
	url, err := s.Page.URL(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read page URL: %w", err)
	}
	doc, err := s.Page.Snapshot(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	if c == "" {
		c = ContextFor(url)
	}

	records := Parse(Container(doc, c), url, c)
	s.logSample(c, records)
	return url, records, nil
}

func (s *Scraper) logSample(c Context, records []Record) {
	if len(records) == 0 {
		return
	}
	s.Logger.Debug(c.label()+" parsed note items", "count", len(records))
	for _, r := range records[:min(3, len(records))] {
		s.Logger.Debug(c.label()+" note",
			"index", r.Index,
			"noteId", r.NoteID,
			"title", truncate(r.Title, 20),
			"author", r.AuthorName,
			"likes", r.LikeCount,
			"hasLink", r.Link != "",
			"hasCover", r.CoverImage != "",
			"link", truncate(r.Link, 50),
		)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/dom/domtest"
	"github.com/jonathan/hirebot/internal/sink"
)

type recorder struct {
	mu     sync.Mutex
	events []sink.Event
}

func (r *recorder) Emit(_ context.Context, ev sink.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) deltas() []Delta {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delta
	for _, ev := range r.events {
		out = append(out, ev.Data.(Delta))
	}
	return out
}

// Three cards: one with a note link, two with only distinct titles.
const scenarioA = `<html><head><title>搜索</title></head><body>
<div class="feeds-container">
	<section class="note-item"><a class="cover mask ld" href="/explore/64a1b2c3d4e5f6a7b8c9d0e1">c</a><div class="title"><span>有链接</span></div></section>
	<section class="note-item"><div class="title"><span>标题一</span></div></section>
	<section class="note-item"><div class="title"><span>标题二</span></div></section>
</div>
</body></html>`

func TestScrape_ScenarioA(t *testing.T) {
	page := domtest.New(searchURL, scenarioA)
	rec := &recorder{}
	s := NewScraper(page, rec, nil)
	ctx := context.Background()

	first, err := s.Scrape(ctx)
	require.NoError(t, err)
	assert.Len(t, first.NewFeeds, 3)
	assert.Equal(t, 3, first.TotalCount)
	assert.Equal(t, searchURL, first.URL)

	second, err := s.Scrape(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.NewFeeds)

	deltas := rec.deltas()
	require.Len(t, deltas, 1, "empty deltas are not emitted")
	assert.Len(t, deltas[0].NewFeeds, 3)
	assert.Equal(t, EventFeedsUpdated, rec.events[0].Action)
}

func TestScrape_AppendedItemsOnly(t *testing.T) {
	page := domtest.New(searchURL, scenarioA)
	s := NewScraper(page, nil, nil)
	ctx := context.Background()

	_, err := s.Scrape(ctx)
	require.NoError(t, err)

	page.Mutate(func(d *goquery.Document) {
		d.Find(".feeds-container").PrependHtml(`<section class="note-item"><a class="cover mask ld" href="/explore/ffffffffffffffffffffffff">n</a></section>`)
	})

	delta, err := s.Scrape(ctx)
	require.NoError(t, err)
	require.Len(t, delta.NewFeeds, 1)
	assert.Equal(t, "ffffffffffffffffffffffff", delta.NewFeeds[0].NoteID)
	assert.Equal(t, 4, delta.TotalCount)
}

func TestScrape_NotRenderedYet(t *testing.T) {
	page := domtest.New(searchURL, `<html><body><div class="feeds-container"></div></body></html>`)
	rec := &recorder{}
	s := NewScraper(page, rec, nil)

	delta, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Empty(t, delta.NewFeeds)
	assert.Empty(t, rec.deltas())
}

// blockingPage holds Snapshot until released so a pass stays in flight.
type blockingPage struct {
	*domtest.Page
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingPage) Snapshot(ctx context.Context) (*goquery.Document, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return b.Page.Snapshot(ctx)
}

func TestScrape_OverlappingPassDropped(t *testing.T) {
	page := &blockingPage{
		Page:    domtest.New(searchURL, scenarioA),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewScraper(page, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Scrape(context.Background())
		done <- err
	}()
	<-page.entered

	_, err := s.Scrape(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(page.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), page.calls.Load(), "dropped trigger is not queued")
}

func TestCollect(t *testing.T) {
	page := domtest.New(searchURL, scenarioA)
	s := NewScraper(page, nil, nil)

	data, err := s.Collect(context.Background(), ContextSearch)
	require.NoError(t, err)
	assert.Equal(t, 3, data.Count)
	assert.Len(t, data.Feeds, 3)
	assert.Equal(t, searchURL, data.URL)

	// Collect is not incremental and leaves the SeenSet alone.
	assert.Equal(t, 0, s.Engine.Len())

	empty := NewScraper(domtest.New(searchURL, `<html><body></body></html>`), nil, nil)
	data, err = empty.Collect(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, data.Feeds)
	assert.Zero(t, data.Count)
}

func TestWatcher_ScrapesOnChange(t *testing.T) {
	page := domtest.New(searchURL, scenarioA)
	rec := &recorder{}
	w := NewWatcher(NewScraper(page, rec, nil), config.FastTiming(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(rec.deltas()) == 1 }, time.Second, time.Millisecond)

	page.Mutate(func(d *goquery.Document) {
		d.Find(".feeds-container").AppendHtml(`<section class="note-item"><div class="title"><span>新的</span></div></section>`)
	})
	assert.Eventually(t, func() bool { return len(rec.deltas()) == 2 }, time.Second, time.Millisecond)

	deltas := rec.deltas()
	require.Len(t, deltas[1].NewFeeds, 1)
	assert.Equal(t, "新的", deltas[1].NewFeeds[0].Title)
	assert.Equal(t, 4, deltas[1].TotalCount)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, w.Scraper.Engine.Len(), "stopping the watcher resets the seen set")
}

func TestWatcher_ScrollStimulus(t *testing.T) {
	page := domtest.New(searchURL, scenarioA)
	rec := &recorder{}
	timing := config.FastTiming()
	timing.MutationDebounce = time.Hour
	w := NewWatcher(NewScraper(page, rec, nil), timing, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.deltas(), "mutation window has not passed")

	page.SetMetrics(dom.Metrics{ScrollY: 3300, ViewportHeight: 800, ScrollHeight: 4000})
	assert.Eventually(t, func() bool { return len(rec.deltas()) == 1 }, time.Second, time.Millisecond)
}

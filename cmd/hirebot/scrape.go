package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/db"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/feed"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/observability"
	"github.com/jonathan/hirebot/internal/sink"
)

var (
	scrapeOnce     bool
	scrapeMongoURI string
	scrapeMongoDB  string
	scrapeWaitPage time.Duration
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Stream new feed records from a search or profile page",
	Long: `Watches the search result or user profile page open in the browser and writes
each batch of newly seen notes to stdout as one JSON line. With a MongoDB URI
the notes are also upserted into the feeds collection.

With --once the page is read a single time and every visible note is printed.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeOnce, "once", false, "Print every visible note once and exit")
	scrapeCmd.Flags().StringVar(&scrapeMongoURI, "mongo-uri", "", "MongoDB URI for the feeds collection (defaults to MONGO_URI)")
	scrapeCmd.Flags().StringVar(&scrapeMongoDB, "mongo-db", "", "MongoDB database (defaults to MONGO_DB or "+sink.DefaultMongoDatabase+")")
	scrapeCmd.Flags().DurationVar(&scrapeWaitPage, "wait-page", 5*time.Minute, "How long to wait for a search or profile page to be opened")

	rootCmd.AddCommand(scrapeCmd)
}

// feedPage reports whether url is a page the scraper understands.
func feedPage(url string) bool {
	kind := locate.Detect(url)
	return kind == locate.PageSearch || kind == locate.PageProfile
}

// waitForFeedPage polls until a search or profile page is open.
func waitForFeedPage(ctx context.Context, page dom.Page, timeout, poll time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		url, err := page.URL(ctx)
		if err != nil {
			return err
		}
		if feedPage(url) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s is neither a search result nor a profile page", url)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// mongoSink connects the feeds collection when a URI is configured. The
// returned close func is never nil.
func mongoSink(ctx context.Context, cfg config.Config) (sink.Sink, func(), error) {
	if cfg.MongoURI == "" {
		return nil, func() {}, nil
	}
	m, err := sink.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[SCRAPE] upserting feeds into MongoDB")
	return m, func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := m.Close(closeCtx); err != nil {
			log.Printf("[SCRAPE] MongoDB disconnect failed: %v", err)
		}
	}, nil
}

// deltaCounter counts delivered feed records and, when a printer is set,
// shows each batch.
type deltaCounter struct {
	printer *observability.Printer
	total   atomic.Int64
}

func (d *deltaCounter) Emit(_ context.Context, ev sink.Event) error {
	delta, ok := ev.Data.(feed.Delta)
	if !ok {
		return nil
	}
	d.total.Add(int64(len(delta.NewFeeds)))
	if d.printer != nil {
		d.printer.PrintFeedDelta(delta)
	}
	return nil
}

// printOnce writes a full scrape as indented JSON.
func printOnce(ctx context.Context, w io.Writer, scraper *feed.Scraper) (feed.FeedsResponseData, error) {
	data, err := scraper.Collect(ctx, "")
	if err != nil {
		return feed.FeedsResponseData{}, err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return data, enc.Encode(data)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("mongo-uri") {
		cfg.MongoURI = scrapeMongoURI
	}
	if cmd.Flags().Changed("mongo-db") {
		cfg.MongoDatabase = scrapeMongoDB
	}
	timing, err := timingFor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := launchBrowser(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := waitForFeedPage(ctx, b, scrapeWaitPage, 2*time.Second); err != nil {
		return err
	}
	logger := stderrLogger(cfg)

	if scrapeOnce {
		data, err := printOnce(ctx, os.Stdout, feed.NewScraper(b, nil, logger))
		if err != nil {
			return err
		}
		log.Printf("[SCRAPE] %d notes from %s", data.Count, data.URL)
		return nil
	}

	out := sink.NewRouter(sink.NewJSONLines(os.Stdout))
	counter := &deltaCounter{}
	if cfg.Verbose {
		counter.printer = observability.NewPrinter(os.Stderr)
	}
	out.Add(counter)

	mongo, closeMongo, err := mongoSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeMongo()
	if mongo != nil {
		out.Add(mongo)
	}

	url, _ := b.URL(ctx)
	run := startRun(ctx, st.Postgres, db.RunKindScrape, url)
	watcher := feed.NewWatcher(feed.NewScraper(b, out, logger), timing, logger)
	fmt.Fprintln(os.Stderr, "Watching feeds, press Ctrl+C to stop")

	runErr := watcher.Run(ctx)
	run.finish(ctx, runErr, map[string]int64{"feedCount": counter.total.Load()})
	log.Printf("[SCRAPE] %d new notes delivered", counter.total.Load())
	return runErr
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/hirebot/internal/collector"
	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/db"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/observability"
)

var (
	collectKeyword    string
	collectMessage    string
	collectNoKeyword  bool
	collectNoDownload bool
	collectWaitPage   time.Duration
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect resumes from the chat list until interrupted",
	Long: `Runs the resume collector against the chat page open in the browser. Each
candidate is opened in turn: resumes that were sent are downloaded, resume
requests are agreed to and candidates who have not sent one are asked for it.

The keyword and download settings given here are persisted and reused by later
runs and by the control API.`,
	RunE: runCollect,
}

func init() {
	registerCollectFlags(collectCmd)
	rootCmd.AddCommand(collectCmd)
}

func registerCollectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&collectKeyword, "keyword", "", "Intro keyword; the intro is sent when a transcript lacks it")
	f.StringVar(&collectMessage, "message", "", "Intro message sent with the keyword")
	f.BoolVar(&collectNoKeyword, "no-keyword", false, "Disable the intro message")
	f.BoolVar(&collectNoDownload, "no-download", false, "Skip downloading attached resumes")
	f.DurationVar(&collectWaitPage, "wait-page", 5*time.Minute, "How long to wait for the chat page to be opened")
}

// keywordUpdate turns the collect flags into a partial keyword config. Flags
// the user did not pass stay nil so the persisted values survive.
func keywordUpdate(cmd *cobra.Command, cfg config.Config) (collector.KeywordUpdate, bool) {
	var u collector.KeywordUpdate
	changed := false

	keyword := cfg.Keyword
	if cmd.Flags().Changed("keyword") {
		keyword = collectKeyword
	}
	if keyword != "" {
		u.Keyword = &keyword
		changed = true
	}

	message := cfg.Message
	if cmd.Flags().Changed("message") {
		message = collectMessage
	}
	if message != "" {
		u.Message = &message
		changed = true
	}

	if cmd.Flags().Changed("no-keyword") || cfg.DisableKeyword {
		enabled := !(collectNoKeyword || cfg.DisableKeyword)
		u.Enabled = &enabled
		changed = true
	}
	return u, changed
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
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

	if err := waitForPage(ctx, b, locate.PageChat, collectWaitPage, 2*time.Second); err != nil {
		return fmt.Errorf("chat page not open: %w", err)
	}

	printer := observability.NewPrinter(os.Stdout)
	var lastProcessed atomic.Int64
	lastProcessed.Store(-1)
	onStatus := func(s collector.Status) {
		n := int64(s.ProcessedCount)
		if cfg.Verbose && lastProcessed.Swap(n) != n {
			printer.PrintCollectorStatus(s)
		}
	}
	sess := collector.New(b, st.KV, st.Ledger, collector.Options{
		Timing:   timing,
		Logger:   stderrLogger(cfg),
		OnStatus: onStatus,
	})

	url, _ := b.URL(ctx)
	run := startRun(ctx, st.Postgres, db.RunKindCollector, url)
	if err := sess.Start(ctx); err != nil {
		run.finish(ctx, err, nil)
		return err
	}

	// Start loads the persisted settings; overrides apply on top of them
	// during the warm-up.
	if u, ok := keywordUpdate(cmd, cfg); ok {
		if _, err := sess.UpdateKeywordConfig(ctx, u); err != nil {
			log.Printf("[COLLECT] keyword config rejected: %v", err)
		}
	}
	if cmd.Flags().Changed("no-download") || cfg.DisableDownload {
		sess.SetDownloadEnabled(ctx, !(collectNoDownload || cfg.DisableDownload))
	}
	fmt.Fprintln(os.Stderr, "Collector running, press Ctrl+C to stop")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if sess.Running() {
		_, _ = sess.Stop(stopCtx)
	}
	sess.Wait()

	final := sess.Status(stopCtx)
	run.finish(stopCtx, nil, final.Stats)
	printer.PrintCollectorStatus(final)
	return nil
}

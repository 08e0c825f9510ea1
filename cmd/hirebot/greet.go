package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/hirebot/internal/db"
	"github.com/jonathan/hirebot/internal/greet"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/observability"
)

var greetWaitPage time.Duration

var greetCmd = &cobra.Command{
	Use:   "greet",
	Short: "Greet every recommended candidate until interrupted",
	Long: `Clicks the greet button on each candidate card of the recommend page, once per
card, and scrolls down to load more cards between passes.`,
	RunE: runGreet,
}

func init() {
	greetCmd.Flags().DurationVar(&greetWaitPage, "wait-page", 5*time.Minute, "How long to wait for the recommend page to be opened")

	rootCmd.AddCommand(greetCmd)
}

func runGreet(cmd *cobra.Command, _ []string) error {
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

	if err := waitForPage(ctx, b, locate.PageRecommend, greetWaitPage, 2*time.Second); err != nil {
		return fmt.Errorf("recommend page not open: %w", err)
	}

	sess := greet.New(b, timing, stderrLogger(cfg))
	url, _ := b.URL(ctx)
	run := startRun(ctx, st.Postgres, db.RunKindGreet, url)
	if err := sess.Start(ctx); err != nil {
		run.finish(ctx, err, nil)
		return err
	}
	fmt.Fprintln(os.Stderr, "Auto greet running, press Ctrl+C to stop")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if sess.Running() {
		_, _ = sess.Stop(stopCtx)
	}
	sess.Wait()

	final := sess.Status(stopCtx)
	run.finish(stopCtx, nil, final)
	observability.NewPrinter(os.Stdout).PrintGreetStatus(final)
	return nil
}

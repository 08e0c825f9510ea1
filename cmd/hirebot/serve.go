package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/hirebot/internal/collector"
	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/feed"
	"github.com/jonathan/hirebot/internal/greet"
	"github.com/jonathan/hirebot/internal/messaging"
	"github.com/jonathan/hirebot/internal/server"
	"github.com/jonathan/hirebot/internal/sink"
)

const defaultPort = 8080

var (
	servePort       int
	serveHost       string
	serveWatchFeeds bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control API",
	Long: `Launches the browser and exposes the collector, auto greet, feed scraping and
resume ledger over HTTP. Commands are posted to /message and status updates
stream from /events as server-sent events.

Set CONTROL_JWT_SECRET to require bearer tokens; see "hirebot token".`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (defaults to HIREBOT_PORT or 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Interface to bind")
	serveCmd.Flags().BoolVar(&serveWatchFeeds, "watch-feeds", false, "Watch feed pages and stream new notes to /events")

	rootCmd.AddCommand(serveCmd)
}

// resolvePort picks the flag, then the config, then the default.
func resolvePort(cmd *cobra.Command, cfg config.Config) int {
	if cmd.Flags().Changed("port") {
		return servePort
	}
	if cfg.Port != 0 {
		return cfg.Port
	}
	return defaultPort
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	timing, err := timingFor(cfg)
	if err != nil {
		return err
	}
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}
	if jwtCfg == nil {
		log.Println("[SERVE] CONTROL_JWT_SECRET not set, control API is unauthenticated")
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

	logger := stderrLogger(cfg)
	hub := server.NewHub(15 * time.Second)
	events := sink.NewRouter(hub)

	mongo, closeMongo, err := mongoSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeMongo()
	if mongo != nil {
		events.Add(mongo)
	}

	coll := collector.New(b, st.KV, st.Ledger, collector.Options{
		Timing:   timing,
		Logger:   logger,
		OnStatus: messaging.StatusSink(ctx, events),
	})
	greeter := greet.New(b, timing, logger)
	scraper := feed.NewScraper(b, events, logger)

	router := messaging.NewRouter(messaging.Router{
		Page:      b,
		Collector: coll,
		Greeter:   greeter,
		Feeds:     scraper,
		Ledger:    st.Ledger,
		Base:      ctx,
	})

	deps := server.Deps{Router: router, Ledger: st.Ledger, Hub: hub}
	if st.Postgres != nil {
		deps.Runs = st.Postgres
	}
	srv, err := server.New(server.Config{
		Host: serveHost,
		Port: resolvePort(cmd, cfg),
		JWT:  jwtCfg,
	}, deps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if serveWatchFeeds {
		watcher := feed.NewWatcher(scraper, timing, logger)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	err = g.Wait()

	// Sessions started over the API run under ctx; let their last pass finish.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if coll.Running() {
		_, _ = coll.Stop(stopCtx)
	}
	if greeter.Running() {
		_, _ = greeter.Stop(stopCtx)
	}
	coll.Wait()
	greeter.Wait()
	return err
}

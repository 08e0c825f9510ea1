package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hirebot/internal/browser"
	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/db"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/localstore"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/store"
)

// stores bundles the backends selected by config.Store. Postgres is set only
// for the postgres backend, which also records runs.
type stores struct {
	KV       store.KV
	Ledger   store.ResumeStore
	Postgres *db.DB

	closeFn func()
}

func (s *stores) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// openStores connects the configured backend.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return &stores{KV: store.NewMemoryKV(), Ledger: store.NewMemoryResumes()}, nil

	case config.StorePostgres:
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		return &stores{
			KV:       database.KV(),
			Ledger:   database.Resumes(),
			Postgres: database,
			closeFn:  database.Close,
		}, nil

	case config.StoreSQLite, "":
		local, err := localstore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.SQLitePath, err)
		}
		closeFn := func() {
			if err := local.Close(); err != nil {
				log.Printf("[STORE] close failed: %v", err)
			}
		}
		return &stores{KV: local.KV, Ledger: local.Resumes, closeFn: closeFn}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// newLogger returns the engine logger. Debug records only show with -v.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// launchBrowser starts or attaches to Chrome per cfg. The browser outlives
// signal cancellation so sessions can toast their shutdown.
func launchBrowser(ctx context.Context, cfg config.Config) (*browser.Browser, error) {
	return browser.Launch(context.WithoutCancel(ctx), browser.Options{
		URL:         cfg.URL,
		RemoteURL:   cfg.RemoteURL,
		ExecPath:    cfg.ChromePath,
		Headless:    cfg.Headless,
		UserDataDir: cfg.UserData,
		Verbose:     cfg.Verbose,
	})
}

// waitForPage polls until the tab shows a page of the given kind, giving the
// operator time to log in and navigate. A zero timeout checks once.
func waitForPage(ctx context.Context, page dom.Page, kind locate.PageType, timeout, poll time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		url, err := page.URL(ctx)
		if err != nil {
			return err
		}
		if locate.Check(url, kind) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return locate.Validate(url, kind)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// runRecorder writes one automation_runs row per CLI session. A nil recorder
// does nothing, which is the case for every backend but postgres.
type runRecorder struct {
	db *db.DB
	id uuid.UUID
}

func startRun(ctx context.Context, database *db.DB, kind, pageURL string) *runRecorder {
	if database == nil {
		return nil
	}
	id, err := database.CreateRun(ctx, kind, pageURL)
	if err != nil {
		log.Printf("[RUN] failed to record %s run: %v", kind, err)
		return nil
	}
	log.Printf("[RUN] %s run %s", kind, id)
	return &runRecorder{db: database, id: id}
}

func (r *runRecorder) finish(ctx context.Context, runErr error, stats any) {
	if r == nil {
		return
	}
	status := db.RunStatusCompleted
	if runErr != nil {
		status = db.RunStatusFailed
	}
	if err := r.db.CompleteRun(context.WithoutCancel(ctx), r.id, status, stats); err != nil {
		log.Printf("[RUN] failed to complete run %s: %v", r.id, err)
	}
}

// stderrLogger is used by commands whose stdout carries data.
func stderrLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stderr, cfg.Verbose)
}

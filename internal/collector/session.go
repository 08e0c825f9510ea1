package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonathan/hirebot/internal/action"
	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/loop"
	"github.com/jonathan/hirebot/internal/store"
)

// Stats are the counters of the current run.
type Stats struct {
	ProcessedCount       int    `json:"processedCount"`
	ResumeCollectedCount int    `json:"resumeCollectedCount"`
	AgreedCount          int    `json:"agreedCount"`
	RequestedCount       int    `json:"requestedCount"`
	CurrentCandidate     string `json:"currentCandidate"`
}

// Status is the snapshot reported to controllers.
type Status struct {
	IsRunning     bool `json:"isRunning"`
	IsCorrectPage bool `json:"isCorrectPage"`
	Stats
	KeywordConfig   KeywordConfig `json:"keywordConfig"`
	DownloadEnabled bool          `json:"downloadEnabled"`
	WaitingCount    int           `json:"waitingCount"`
}

// StatusFunc receives every status change.
type StatusFunc func(Status)

// Options configures a Session.
type Options struct {
	Timing   config.Timing
	Logger   *slog.Logger
	OnStatus StatusFunc
}

// Session owns every piece of mutable collector state for one page.
type Session struct {
	page   dom.Page
	kv     store.KV
	ledger store.ResumeStore
	exec   *action.Executor
	timing config.Timing
	log    *slog.Logger
	notify StatusFunc
	runner loop.Runner

	// startMu serializes Start so a losing caller never resets state.
	startMu sync.Mutex

	mu        sync.Mutex
	waiting   idSet
	processed idSet
	sentIntro idSet
	keyword   KeywordConfig
	download  bool
	stats     Stats
	pageOK    bool
}

// New returns an idle session.
func New(page dom.Page, kv store.KV, ledger store.ResumeStore, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "collector")
	s := &Session{
		page:      page,
		kv:        kv,
		ledger:    ledger,
		exec:      action.New(page, opts.Timing, logger),
		timing:    opts.Timing,
		log:       logger,
		notify:    opts.OnStatus,
		waiting:   newIDSet(),
		processed: newIDSet(),
		sentIntro: newIDSet(),
		keyword:   DefaultKeywordConfig(),
		download:  true,
	}
	s.runner.Name = "collector"
	s.runner.Logger = logger
	return s
}

// Start checks the page, loads the persisted state, resets the counters and
// schedules the first pass after the warm-up delay. It returns immediately;
// ctx bounds the whole run, not just the call.
// Errors are *locate.WrongPageError or loop.ErrAlreadyRunning, and leave the
// session untouched.
func (s *Session) Start(ctx context.Context) error {
	url, err := s.page.URL(ctx)
	if err != nil {
		return err
	}
	if err := locate.Validate(url, locate.PageChat); err != nil {
		var wrong *locate.WrongPageError
		if errors.As(err, &wrong) {
			s.exec.Toast(ctx, dom.ToastError, wrong.Message)
		}
		return err
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.runner.Running() {
		s.exec.Toast(ctx, dom.ToastError, "简历收集器已在运行")
		return loop.ErrAlreadyRunning
	}

	s.load(ctx)

	s.mu.Lock()
	s.stats = Stats{ProcessedCount: len(s.processed)}
	s.pageOK = true
	s.mu.Unlock()

	if err := s.runner.Start(ctx, s.timing.WarmUp, s.pass); err != nil {
		s.exec.Toast(ctx, dom.ToastError, "简历收集器已在运行")
		return err
	}

	s.log.Info("started", "warmup", s.timing.WarmUp)
	s.exec.Toast(ctx, dom.ToastSuccess, "简历收集器已启动")
	s.publish()
	return nil
}

// Stop halts scheduling. A candidate being processed is finished first.
func (s *Session) Stop(ctx context.Context) (Stats, error) {
	if err := s.runner.Stop(); err != nil {
		s.exec.Toast(ctx, dom.ToastError, "简历收集器未在运行")
		return Stats{}, err
	}

	s.mu.Lock()
	s.stats.CurrentCandidate = ""
	stats := s.stats
	s.mu.Unlock()

	s.log.Info("stopped", "processed", stats.ProcessedCount)
	s.exec.Toast(ctx, dom.ToastSuccess, "简历收集器已停止")
	s.publish()
	return stats, nil
}

// Wait blocks until the latest run has returned.
func (s *Session) Wait() {
	s.runner.Wait()
}

// Running reports whether passes are scheduled.
func (s *Session) Running() bool {
	return s.runner.Running()
}

// Status returns the current counters and flags without waiting on a pass.
func (s *Session) Status(ctx context.Context) Status {
	if url, err := s.page.URL(ctx); err == nil {
		s.mu.Lock()
		s.pageOK = locate.Check(url, locate.PageChat)
		s.mu.Unlock()
	}
	return s.status()
}

func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		IsRunning:       s.runner.Running(),
		IsCorrectPage:   s.pageOK,
		Stats:           s.stats,
		KeywordConfig:   s.keyword,
		DownloadEnabled: s.download,
		WaitingCount:    len(s.waiting),
	}
}

func (s *Session) publish() {
	if s.notify != nil {
		s.notify(s.status())
	}
}

// UpdateKeywordConfig merges u into the keyword config and persists it.
func (s *Session) UpdateKeywordConfig(ctx context.Context, u KeywordUpdate) (KeywordConfig, error) {
	s.mu.Lock()
	next := u.Apply(s.keyword)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return KeywordConfig{}, err
	}
	s.keyword = next
	s.mu.Unlock()

	if err := s.kv.Set(ctx, map[string]any{KeyKeywordConfig: next}); err != nil {
		s.log.Error("failed to persist keyword config", "error", err)
	}
	s.publish()
	return next, nil
}

// SetDownloadEnabled switches the download sub-flow and persists the flag.
func (s *Session) SetDownloadEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	s.download = enabled
	s.mu.Unlock()

	if err := s.kv.Set(ctx, map[string]any{KeyDownloadEnabled: enabled}); err != nil {
		s.log.Error("failed to persist download flag", "error", err)
	}
	s.publish()
}

// load replaces the in-memory sets with the persisted ones. Failures are
// logged and the in-memory state stays authoritative.
func (s *Session) load(ctx context.Context) {
	s.mu.Lock()
	base := s.keyword
	s.mu.Unlock()

	p, err := loadState(ctx, s.kv, base)
	if err != nil {
		s.log.Error("failed to load persisted state", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = newIDSet(p.waiting...)
	s.processed = newIDSet(p.processed...)
	s.sentIntro = newIDSet(p.sentIntro...)
	if p.keyword != nil {
		s.keyword = *p.keyword
	}
	if p.download != nil {
		s.download = *p.download
	}
	s.log.Info("state loaded",
		"waiting", len(s.waiting),
		"processed", len(s.processed),
		"sentIntro", len(s.sentIntro),
		"download", s.download,
	)
}

// save flushes the sets. Called after every mutation.
func (s *Session) save(ctx context.Context) {
	s.mu.Lock()
	values := map[string]any{
		KeyWaiting:         s.waiting.sorted(),
		KeyProcessed:       s.processed.sorted(),
		KeySentIntro:       s.sentIntro.sorted(),
		KeyKeywordConfig:   s.keyword,
		KeyDownloadEnabled: s.download,
	}
	s.mu.Unlock()

	if err := s.kv.Set(ctx, values); err != nil {
		s.log.Error("failed to persist state", "error", err)
	}
}

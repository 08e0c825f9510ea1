// Package greet clicks the greet button on every candidate card of the
// recommend page, once per card, scrolling down to load more between passes.
package greet

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/action"
	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/loop"
)

// Status is the snapshot reported to controllers.
type Status struct {
	IsRunning     bool `json:"isRunning"`
	ClickedCount  int  `json:"clickedCount"`
	IsCorrectPage bool `json:"isCorrectPage"`
}

// Session owns the greet loop and the set of cards already greeted in the
// current run.
type Session struct {
	page   dom.Page
	exec   *action.Executor
	timing config.Timing
	log    *slog.Logger
	runner loop.Runner

	// startMu serializes Start so a losing caller never resets state.
	startMu sync.Mutex

	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns an idle session. A nil logger discards output.
func New(page dom.Page, timing config.Timing, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "greet")
	s := &Session{
		page:   page,
		exec:   action.New(page, timing, logger),
		timing: timing,
		log:    logger,
		seen:   make(map[string]struct{}),
	}
	s.runner.Name = "greet"
	s.runner.Logger = logger
	return s
}

// Start checks the page, forgets previously greeted cards and schedules the
// first pass after the warm-up delay. ctx bounds the whole run.
func (s *Session) Start(ctx context.Context) error {
	url, err := s.page.URL(ctx)
	if err != nil {
		return err
	}
	if err := locate.Validate(url, locate.PageRecommend); err != nil {
		var wrong *locate.WrongPageError
		if errors.As(err, &wrong) {
			s.exec.Toast(ctx, dom.ToastError, wrong.Message)
		}
		return err
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.runner.Running() {
		s.exec.Toast(ctx, dom.ToastError, "自动打招呼已在运行")
		return loop.ErrAlreadyRunning
	}

	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	if err := s.runner.Start(ctx, s.timing.WarmUp, s.pass); err != nil {
		s.exec.Toast(ctx, dom.ToastError, "自动打招呼已在运行")
		return err
	}
	s.log.Info("started", "url", url, "warmup", s.timing.WarmUp)
	s.exec.Toast(ctx, dom.ToastSuccess, "自动打招呼已启动")
	return nil
}

// Stop halts scheduling and returns how many cards were greeted.
func (s *Session) Stop(ctx context.Context) (int, error) {
	if err := s.runner.Stop(); err != nil {
		s.exec.Toast(ctx, dom.ToastError, "自动打招呼未在运行")
		return 0, err
	}
	n := s.clicked()
	s.log.Info("stopped", "clicked", n)
	s.exec.Toast(ctx, dom.ToastSuccess, "自动打招呼已停止")
	return n, nil
}

// Wait blocks until the latest run has returned.
func (s *Session) Wait() {
	s.runner.Wait()
}

// Running reports whether passes are scheduled.
func (s *Session) Running() bool {
	return s.runner.Running()
}

// Status reports the run flag, the greeted count and whether the page is the
// recommend page.
func (s *Session) Status(ctx context.Context) Status {
	url, err := s.page.URL(ctx)
	return Status{
		IsRunning:     s.runner.Running(),
		ClickedCount:  s.clicked(),
		IsCorrectPage: err == nil && locate.Check(url, locate.PageRecommend),
	}
}

func (s *Session) clicked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *Session) greeted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

func (s *Session) markGreeted(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = struct{}{}
	return len(s.seen)
}

func (s *Session) pass(ctx context.Context, tok *loop.Token) time.Duration {
	url, err := s.page.URL(ctx)
	if err != nil || !locate.Check(url, locate.PageRecommend) {
		s.log.Warn("not on the recommend page, retrying", "url", url, "error", err)
		return s.timing.RetryInterval
	}

	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		s.log.Warn("snapshot failed, retrying", "error", err)
		return s.timing.RetryInterval
	}
	cards, strategy := locate.GreetCards.First(doc.Selection)
	if cards.Length() == 0 {
		s.log.Info("no cards found, retrying")
		return s.timing.RetryInterval
	}
	s.log.Debug("cards found", "count", cards.Length(), "strategy", strategy)

	var targets []string
	cards.Each(func(_ int, card *goquery.Selection) {
		if id := locate.GreetCardIdentity(card); id != "" {
			targets = append(targets, id)
		}
	})

	added := 0
	for i, id := range targets {
		if tok.Stopped() {
			break
		}
		if s.greeted(id) {
			continue
		}
		log := s.log.With("card", i+1, "of", len(targets), "id", id)
		if !s.greet(ctx, id, log) {
			continue
		}
		total := s.markGreeted(id)
		added++
		log.Info("greeted", "total", total)
		if !tok.Sleep(ctx, s.timing.GreetInterval) {
			break
		}
	}
	s.log.Info("pass end", "added", added, "total", s.clicked())

	if err := s.page.ScrollToBottom(ctx); err != nil {
		s.log.Warn("scroll to bottom failed", "error", err)
	}
	return s.timing.PassInterval
}

// greet clicks the greet button of the card with identity id, looked up
// afresh since the list re-renders between clicks. Missing cards and
// missing, disabled or relabelled buttons are skipped.
func (s *Session) greet(ctx context.Context, id string, log *slog.Logger) bool {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		log.Warn("snapshot failed", "error", err)
		return false
	}
	card, ok := locate.FindGreetCard(doc.Selection, id)
	if !ok {
		log.Debug("card no longer listed")
		return false
	}
	btn, _ := locate.GreetButtons.First(card)
	btn = btn.First()
	if btn.Length() == 0 {
		log.Debug("greet button not found")
		return false
	}
	if dom.IsDisabled(btn) {
		log.Debug("greet button disabled")
		return false
	}
	if label := dom.Text(btn); label != "" && !strings.Contains(label, locate.GreetLabel) {
		log.Debug("greet button label mismatch", "label", label)
		return false
	}

	if err := s.exec.ScrollTo(ctx, card); err != nil {
		log.Warn("scroll to card failed", "error", err)
		return false
	}
	if err := s.exec.Settle(ctx, s.timing.GreetScrollSettle); err != nil {
		return false
	}
	if err := s.exec.Click(ctx, btn); err != nil {
		log.Warn("greet click failed", "error", err)
		return false
	}
	return true
}

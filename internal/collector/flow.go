package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/action"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/loop"
	"github.com/jonathan/hirebot/internal/store"
)

// pass walks the contact list once, top to bottom.
func (s *Session) pass(ctx context.Context, tok *loop.Token) time.Duration {
	s.log.Debug("pass start")

	url, err := s.page.URL(ctx)
	if err != nil || !locate.Check(url, locate.PageChat) {
		s.log.Warn("not on the chat page, retrying", "url", url, "error", err)
		s.setPageOK(false)
		return s.timing.RetryInterval
	}
	s.setPageOK(true)

	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		s.log.Warn("snapshot failed, retrying", "error", err)
		return s.timing.RetryInterval
	}
	candidates := locate.Candidates(doc)
	if len(candidates) == 0 {
		s.log.Info("no candidates found, retrying")
		return s.timing.RetryInterval
	}
	s.log.Debug("candidates found", "count", len(candidates))

	for _, c := range candidates {
		if tok.Stopped() {
			break
		}
		if s.isProcessed(c.ID) {
			continue
		}
		s.visit(ctx, c)
		if !tok.Sleep(ctx, s.timing.CandidateInterval) {
			break
		}
	}

	s.log.Debug("pass end")
	return s.timing.PassInterval
}

// visit runs the intro phase, classification and transition for one contact.
func (s *Session) visit(ctx context.Context, c locate.Candidate) {
	log := s.log.With("candidate", c.Name, "id", c.ID)

	s.mu.Lock()
	waiting := s.waiting.has(c.ID)
	s.stats.CurrentCandidate = c.Name
	s.mu.Unlock()
	s.publish()
	defer func() {
		s.mu.Lock()
		s.stats.CurrentCandidate = ""
		s.mu.Unlock()
		s.publish()
	}()

	if waiting {
		log.Info("waiting for reply, checking again")
	}

	if err := s.selectCandidate(ctx, c); err != nil {
		log.Warn("failed to select candidate, skipping", "error", err)
		return
	}

	s.introPhase(ctx, c, log)

	cls, err := s.classify(ctx, c.Name)
	if err != nil {
		log.Warn("failed to read conversation, skipping", "error", err)
		return
	}
	log.Info("classified", "state", cls.State, "reason", cls.Reason)

	processed := s.transition(ctx, c, cls, waiting)
	if processed {
		s.mu.Lock()
		s.processed[c.ID] = struct{}{}
		s.stats.ProcessedCount++
		s.mu.Unlock()
		s.save(ctx)
	}
}

// transition drives the action for cls and reports whether the contact is
// done for good.
func (s *Session) transition(ctx context.Context, c locate.Candidate, cls Classification, waiting bool) bool {
	switch cls.State {
	case NoResponse:
		// A contact asked for a resume keeps being revisited.
		return !waiting

	case NeedRequest:
		if err := s.requestResume(ctx); err != nil {
			s.log.Warn("resume request failed, giving up on candidate", "candidate", c.Name, "error", err)
			return true
		}
		s.mu.Lock()
		s.waiting[c.ID] = struct{}{}
		s.mu.Unlock()
		s.save(ctx)
		return false

	case NeedAgree:
		if s.downloadEnabled() {
			s.agreeAndDownload(ctx, c)
		} else {
			s.log.Info("download disabled, not agreeing", "candidate", c.Name)
		}

	case HasResume:
		if s.downloadEnabled() {
			s.downloadResume(ctx, c.Name)
		} else {
			s.log.Info("download disabled, skipping preview", "candidate", c.Name)
		}

	case AlreadyCollected:
	}

	s.clearWaiting(ctx, c.ID)
	return true
}

func (s *Session) agreeAndDownload(ctx context.Context, c locate.Candidate) {
	if err := s.agree(ctx); err != nil {
		s.log.Warn("agree failed", "candidate", c.Name, "error", err)
	}
	if err := s.exec.Settle(ctx, s.timing.ReclassifySettle); err != nil {
		return
	}
	cls, err := s.classify(ctx, c.Name)
	if err != nil {
		s.log.Warn("failed to re-read conversation", "candidate", c.Name, "error", err)
		return
	}
	if cls.State == HasResume {
		s.downloadResume(ctx, c.Name)
	}
}

// classify snapshots the page and consults the ledger. A ledger failure
// counts as not collected.
func (s *Session) classify(ctx context.Context, name string) (Classification, error) {
	inLedger, err := s.ledger.ExistsByName(ctx, name)
	if err != nil {
		s.log.Error("ledger lookup failed", "candidate", name, "error", err)
		inLedger = false
	}
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		return Classification{}, err
	}
	if RequestPending(doc) {
		s.log.Debug("resume request already sent, waiting for reply", "candidate", name)
	}
	return Classify(doc, inLedger), nil
}

// selectCandidate scrolls the contact into view and clicks it so the chat
// pane loads its conversation.
func (s *Session) selectCandidate(ctx context.Context, c locate.Candidate) error {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		return err
	}
	// Refs are positional; a row that moved or vanished must not be
	// clicked through a stale one.
	fresh, ok := locate.FindCandidate(doc, c.ID)
	if !ok {
		return fmt.Errorf("candidate %s: %w", c.ID, dom.ErrNotFound)
	}
	target := doc.Find(fresh.Ref)
	if err := s.exec.ScrollTo(ctx, target); err != nil {
		return err
	}
	if err := s.exec.Settle(ctx, s.timing.ClickSettle); err != nil {
		return err
	}
	if err := s.exec.Click(ctx, target); err != nil {
		return err
	}
	return s.exec.Settle(ctx, s.timing.SelectSettle)
}

// introPhase sends the canned phrase and the configured message when the
// keyword is enabled and not yet in the transcript.
func (s *Session) introPhase(ctx context.Context, c locate.Candidate, log *slog.Logger) {
	s.mu.Lock()
	kw := s.keyword
	s.mu.Unlock()
	if !kw.Enabled {
		return
	}

	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		log.Warn("failed to read transcript for keyword", "error", err)
		return
	}
	if transcriptContains(doc, kw.Keyword) {
		log.Info("keyword already in transcript", "keyword", kw.Keyword)
		return
	}

	log.Info("keyword missing, sending intro", "keyword", kw.Keyword)
	s.sendPhrase(ctx)
	if err := s.sendMessage(ctx, kw.Message); err != nil {
		log.Warn("failed to send intro message", "error", err)
	}

	s.mu.Lock()
	s.sentIntro[c.ID] = struct{}{}
	s.mu.Unlock()
	s.save(ctx)

	_ = s.exec.Settle(ctx, s.timing.IntroSettle)
}

// sendPhrase opens the phrase toolbar, picks its first entry and submits.
// Missing controls are skipped.
func (s *Session) sendPhrase(ctx context.Context) {
	for _, css := range []string{locate.PhraseToggle, locate.PhraseFirst, locate.SubmitButton} {
		if err := s.clickAndSettle(ctx, css); err != nil && !action.IsMissing(err) {
			s.log.Warn("phrase step failed", "selector", css, "error", err)
			return
		}
	}
}

func (s *Session) sendMessage(ctx context.Context, message string) error {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.exec.Type(ctx, doc.Find(locate.ChatEditor), message); err != nil {
		return err
	}
	if err := s.exec.Settle(ctx, s.timing.ClickSettle); err != nil {
		return err
	}
	if err := s.clickAndSettle(ctx, locate.SubmitButton); err != nil && !action.IsMissing(err) {
		return err
	}
	return nil
}

// requestResume clicks the request button and its confirmation.
func (s *Session) requestResume(ctx context.Context) error {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.exec.Click(ctx, requestButton(doc.Selection)); err != nil {
		return err
	}
	if err := s.exec.Settle(ctx, s.timing.ClickSettle); err != nil {
		return err
	}
	if err := s.click(ctx, locate.RequestConfirm); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.RequestedCount++
	s.mu.Unlock()
	s.log.Info("resume requested")
	return nil
}

func (s *Session) agree(ctx context.Context) error {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.exec.Click(ctx, agreeButton(doc.Find(locate.Transcript))); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.AgreedCount++
	s.mu.Unlock()
	s.log.Info("agreed to receive resume")
	return s.exec.Settle(ctx, s.timing.AgreeSettle)
}

// downloadResume opens the attachment preview, waits for the download
// control, clicks it, records the resume in the ledger and closes the
// preview. Every failure is logged and leaves the resume uncollected.
func (s *Session) downloadResume(ctx context.Context, name string) bool {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		s.log.Warn("snapshot failed before preview", "error", err)
		return false
	}
	if err := s.exec.Click(ctx, previewButton(doc.Selection)); err != nil {
		s.log.Warn("preview button not found", "candidate", name, "error", err)
		return false
	}
	if err := s.exec.Settle(ctx, s.timing.PreviewLoad); err != nil {
		return false
	}

	downloaded := s.clickDownload(ctx)
	if downloaded {
		s.record(ctx, name)
	} else {
		s.log.Warn("download control not found in time", "candidate", name, "timeout", s.timing.DownloadTimeout)
	}

	if err := s.clickAndSettle(ctx, locate.PopupClose); err != nil {
		s.log.Warn("failed to close preview", "error", err)
	}
	return downloaded
}

// clickDownload polls the preview dialog for the download control until the
// download timeout.
func (s *Session) clickDownload(ctx context.Context) bool {
	deadline := time.Now().Add(s.timing.DownloadTimeout)
	for {
		doc, err := s.page.Snapshot(ctx)
		if err == nil {
			if target := downloadControl(doc); target.Length() > 0 {
				if err := s.exec.Click(ctx, target); err != nil {
					s.log.Warn("download click failed", "error", err)
					return false
				}
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		if err := action.Sleep(ctx, s.timing.DownloadPoll); err != nil {
			return false
		}
	}
}

func downloadControl(doc *goquery.Document) *goquery.Selection {
	return doc.Find(locate.PreviewDialog).First().Find(locate.DownloadButton).First()
}

func (s *Session) record(ctx context.Context, name string) {
	rec := store.ResumeRecord{Name: name, Timestamp: time.Now().UTC(), Status: store.StatusDownloaded}
	if _, err := s.ledger.Add(ctx, rec); err != nil {
		s.log.Error("failed to record resume", "candidate", name, "error", err)
	}
	s.mu.Lock()
	s.stats.ResumeCollectedCount++
	s.mu.Unlock()
	s.log.Info("resume downloaded", "candidate", name)
}

func (s *Session) click(ctx context.Context, css string) error {
	doc, err := s.page.Snapshot(ctx)
	if err != nil {
		return err
	}
	return s.exec.Click(ctx, doc.Find(css))
}

func (s *Session) clickAndSettle(ctx context.Context, css string) error {
	if err := s.click(ctx, css); err != nil {
		return err
	}
	return s.exec.Settle(ctx, s.timing.ClickSettle)
}

func (s *Session) clearWaiting(ctx context.Context, id string) {
	s.mu.Lock()
	_, ok := s.waiting[id]
	delete(s.waiting, id)
	s.mu.Unlock()
	if ok {
		s.save(ctx)
	}
}

func (s *Session) isProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed.has(id)
}

func (s *Session) downloadEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.download
}

func (s *Session) setPageOK(ok bool) {
	s.mu.Lock()
	s.pageOK = ok
	s.mu.Unlock()
}

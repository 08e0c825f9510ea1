// Package messaging dispatches control messages to the automation sessions
// and the resume ledger. It is the only boundary controllers talk to; no
// handler error or panic crosses it.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/hirebot/internal/collector"
	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/feed"
	"github.com/jonathan/hirebot/internal/greet"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/loop"
	"github.com/jonathan/hirebot/internal/schemas"
	"github.com/jonathan/hirebot/internal/sink"
	"github.com/jonathan/hirebot/internal/store"
)

// Request is an inbound control message. Either Action or Type names the
// handler.
type Request struct {
	Action string          `json:"action,omitempty"`
	Type   string          `json:"type,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Name returns the handler name.
func (r Request) Name() string {
	if r.Action != "" {
		return r.Action
	}
	return r.Type
}

// Response is the reply to every Request.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message names.
const (
	ActionPing                = "ping"
	ActionGetPageInfo         = "getPageInfo"
	ActionStartAutoGreet      = "startAutoGreet"
	ActionStopAutoGreet       = "stopAutoGreet"
	ActionAutoGreetStatus     = "getAutoGreetStatus"
	ActionUpdateKeywordConfig = "updateKeywordConfig"
	ActionUpdateDownload      = "updateDownloadEnabled"
	ActionSearchResultFeeds   = "getSearchResultFeeds"
	ActionUserPostedFeeds     = "getUserPostedFeeds"

	TypeStartCollector  = "START_RESUME_COLLECTOR"
	TypeStopCollector   = "STOP_RESUME_COLLECTOR"
	TypeCollectorStatus = "GET_RESUME_COLLECTOR_STATUS"
	TypeCheckResume     = "CHECK_RESUME_EXISTS"
	TypeSaveResume      = "SAVE_RESUME_TO_DB"
	TypeAllResumes      = "GET_ALL_RESUMES"
	TypeClearResumes    = "CLEAR_ALL_RESUMES"
	TypeClearResumesAlt = "CLEAR_RESUMES"

	// EventCollectorStatus carries collector.Status on every change.
	EventCollectorStatus = "RESUME_COLLECTOR_STATUS_UPDATE"
)

// ErrUnknownAction is reported for messages no handler claims.
var ErrUnknownAction = errors.New("unknown action")

// Collector is the resume collection session.
type Collector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (collector.Stats, error)
	Status(ctx context.Context) collector.Status
	UpdateKeywordConfig(ctx context.Context, u collector.KeywordUpdate) (collector.KeywordConfig, error)
	SetDownloadEnabled(ctx context.Context, enabled bool)
}

// Greeter is the auto-greet session.
type Greeter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (int, error)
	Status(ctx context.Context) greet.Status
}

// FeedCollector performs full, non-incremental feed scrapes.
type FeedCollector interface {
	Collect(ctx context.Context, c feed.Context) (feed.FeedsResponseData, error)
}

// Router dispatches requests. Nil dependencies make their handlers report
// that the feature is unavailable.
type Router struct {
	Page      dom.Page
	Collector Collector
	Greeter   Greeter
	Feeds     FeedCollector
	Ledger    store.ResumeStore

	// Base outlives individual requests and bounds the runs that Start
	// handlers launch. When nil, the request context minus its cancellation
	// is used.
	Base context.Context

	handlers map[string]handler
}

type handler func(ctx context.Context, data json.RawMessage) (any, error)

// NewRouter returns a Router with every handler registered.
func NewRouter(r Router) *Router {
	out := &r
	out.handlers = map[string]handler{
		ActionPing:                out.ping,
		ActionGetPageInfo:         out.pageInfo,
		ActionStartAutoGreet:      out.startGreet,
		ActionStopAutoGreet:       out.stopGreet,
		ActionAutoGreetStatus:     out.greetStatus,
		TypeStartCollector:        out.startCollector,
		TypeStopCollector:         out.stopCollector,
		TypeCollectorStatus:       out.collectorStatus,
		ActionUpdateKeywordConfig: out.updateKeywordConfig,
		ActionUpdateDownload:      out.updateDownloadEnabled,
		ActionSearchResultFeeds:   out.feeds(feed.ContextSearch, locate.PageSearch),
		ActionUserPostedFeeds:     out.feeds(feed.ContextUser, locate.PageProfile),
		TypeCheckResume:           out.checkResume,
		TypeSaveResume:            out.saveResume,
		TypeAllResumes:            out.allResumes,
		TypeClearResumes:          out.clearResumes,
		TypeClearResumesAlt:       out.clearResumes,
	}
	return out
}

// HandleJSON decodes and validates a raw request before dispatching it.
func (r *Router) HandleJSON(ctx context.Context, raw []byte) Response {
	if err := schemas.Validate(schemas.MessageRequest, raw); err != nil {
		return Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	return r.Handle(ctx, req)
}

// Handle dispatches req. It never panics.
func (r *Router) Handle(ctx context.Context, req Request) (resp Response) {
	name := req.Name()
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ROUTER] handler %q panicked: %v", name, rec)
			resp = Response{Success: false, Error: fmt.Sprintf("internal error: %v", rec)}
		}
	}()

	h, ok := r.handlers[name]
	if !ok {
		log.Printf("[ROUTER] unknown action %q", name)
		return Response{Success: false, Error: ErrUnknownAction.Error()}
	}
	data, err := h(ctx, req.Data)
	if err != nil {
		log.Printf("[ROUTER] %s failed: %v", name, err)
		return Response{Success: false, Error: UserMessage(err)}
	}
	return Response{Success: true, Data: data}
}

// UserMessage maps an error to the text shown to the operator.
func UserMessage(err error) string {
	var wrong *locate.WrongPageError
	switch {
	case errors.Is(err, loop.ErrAlreadyRunning):
		return "已在运行"
	case errors.Is(err, loop.ErrNotRunning):
		return "未在运行"
	case errors.As(err, &wrong):
		return wrong.Message
	}
	return err.Error()
}

// StatusSink adapts a sink to collector.Options.OnStatus.
func StatusSink(ctx context.Context, out sink.Sink) collector.StatusFunc {
	return func(st collector.Status) {
		if err := out.Emit(ctx, sink.Event{Action: EventCollectorStatus, Data: st}); err != nil {
			log.Printf("[ROUTER] status delivery failed: %v", err)
		}
	}
}

func (r *Router) runContext(ctx context.Context) context.Context {
	if r.Base != nil {
		return r.Base
	}
	return context.WithoutCancel(ctx)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}

var errUnavailable = errors.New("feature not available")

func (r *Router) url(ctx context.Context) string {
	if r.Page == nil {
		return ""
	}
	url, err := r.Page.URL(ctx)
	if err != nil {
		log.Printf("[ROUTER] failed to read page URL: %v", err)
	}
	return url
}

func (r *Router) ping(ctx context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"isInFrame": locate.Check(r.url(ctx), locate.PageRecommend)}, nil
}

func (r *Router) pageInfo(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Page == nil {
		return nil, errUnavailable
	}
	url := r.url(ctx)
	doc, err := r.Page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"title":     dom.Title(doc),
		"url":       url,
		"isInFrame": locate.Check(url, locate.PageRecommend),
	}, nil
}

func (r *Router) startGreet(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Greeter == nil {
		return nil, errUnavailable
	}
	if err := r.Greeter.Start(r.runContext(ctx)); err != nil {
		return nil, err
	}
	return map[string]any{"message": "已启动"}, nil
}

func (r *Router) stopGreet(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Greeter == nil {
		return nil, errUnavailable
	}
	n, err := r.Greeter.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": "已停止", "clickedCount": n}, nil
}

func (r *Router) greetStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Greeter == nil {
		return nil, errUnavailable
	}
	return r.Greeter.Status(ctx), nil
}

func (r *Router) startCollector(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Collector == nil {
		return nil, errUnavailable
	}
	if err := r.Collector.Start(r.runContext(ctx)); err != nil {
		return nil, err
	}
	return map[string]any{"message": "已启动"}, nil
}

func (r *Router) stopCollector(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Collector == nil {
		return nil, errUnavailable
	}
	stats, err := r.Collector.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": "已停止", "stats": stats}, nil
}

func (r *Router) collectorStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Collector == nil {
		return nil, errUnavailable
	}
	return r.Collector.Status(ctx), nil
}

func (r *Router) updateKeywordConfig(ctx context.Context, data json.RawMessage) (any, error) {
	if r.Collector == nil {
		return nil, errUnavailable
	}
	var u collector.KeywordUpdate
	if err := decode(data, &u); err != nil {
		return nil, err
	}
	return r.Collector.UpdateKeywordConfig(ctx, u)
}

func (r *Router) updateDownloadEnabled(ctx context.Context, data json.RawMessage) (any, error) {
	if r.Collector == nil {
		return nil, errUnavailable
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decode(data, &body); err != nil {
		return nil, err
	}
	if body.Enabled == nil {
		return nil, errors.New("enabled is required")
	}
	r.Collector.SetDownloadEnabled(ctx, *body.Enabled)
	return map[string]any{"downloadEnabled": *body.Enabled}, nil
}

func (r *Router) feeds(c feed.Context, page locate.PageType) handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if r.Feeds == nil {
			return nil, errUnavailable
		}
		if err := locate.Validate(r.url(ctx), page); err != nil {
			return nil, err
		}
		return r.Feeds.Collect(ctx, c)
	}
}

func (r *Router) checkResume(ctx context.Context, data json.RawMessage) (any, error) {
	if r.Ledger == nil {
		return nil, errUnavailable
	}
	var body struct {
		Name string `json:"name"`
	}
	if len(data) > 0 {
		if err := decode(data, &body); err != nil {
			return nil, err
		}
	}
	exists, err := r.Ledger.ExistsByName(ctx, body.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"exists": exists}, nil
}

func (r *Router) saveResume(ctx context.Context, data json.RawMessage) (any, error) {
	if r.Ledger == nil {
		return nil, errUnavailable
	}
	var rec store.ResumeRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = store.StatusDownloaded
	}
	id, err := r.Ledger.Add(ctx, rec)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

func (r *Router) allResumes(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Ledger == nil {
		return nil, errUnavailable
	}
	recs, err := r.Ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []store.ResumeRecord{}
	}
	return recs, nil
}

func (r *Router) clearResumes(ctx context.Context, _ json.RawMessage) (any, error) {
	if r.Ledger == nil {
		return nil, errUnavailable
	}
	return nil, r.Ledger.Clear(ctx)
}

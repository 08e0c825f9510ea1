package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/db"
	"github.com/jonathan/hirebot/internal/dom/domtest"
	"github.com/jonathan/hirebot/internal/messaging"
	"github.com/jonathan/hirebot/internal/server/ratelimit"
	"github.com/jonathan/hirebot/internal/sink"
	"github.com/jonathan/hirebot/internal/store"
)

const recommendURL = "https://www.zhipin.com/web/frame/recommend/?jobid=1"

type fakeRuns struct {
	runs    []db.Run
	filters db.RunFilters
	err     error
}

func (f *fakeRuns) GetRun(_ context.Context, id uuid.UUID) (*db.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, f.err
}

func (f *fakeRuns) ListRuns(_ context.Context, filters db.RunFilters) ([]db.Run, error) {
	f.filters = filters
	return f.runs, f.err
}

type fixture struct {
	srv    *Server
	ledger *store.MemoryResumes
	runs   *fakeRuns
}

func noLimits() *ratelimit.Config {
	return &ratelimit.Config{Enabled: false}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{ledger: store.NewMemoryResumes(), runs: &fakeRuns{}}
	page := domtest.New(recommendURL, `<html><head><title>推荐牛人</title></head><body></body></html>`)
	router := messaging.NewRouter(messaging.Router{Page: page, Ledger: f.ledger})
	if cfg.RateLimit == nil {
		cfg.RateLimit = noLimits()
	}
	srv, err := New(cfg, Deps{Router: router, Ledger: f.ledger, Runs: f.runs})
	require.NoError(t, err)
	t.Cleanup(srv.rateLimiter.Stop)
	f.srv = srv
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNew_RequiresRouter(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.do(t, http.MethodOptions, "/message", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestMessage(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.do(t, http.MethodPost, "/message", `{"action":"getPageInfo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "推荐牛人", body["data"].(map[string]any)["title"])

	w = f.do(t, http.MethodPost, "/message", `{"action":"nope"}`)
	require.Equal(t, http.StatusOK, w.Code, "handler failures stay inside the envelope")
	body = decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unknown action", body["error"])

	w = f.do(t, http.MethodGet, "/message", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMessage_BodyTooLarge(t *testing.T) {
	f := newFixture(t, Config{})
	big := `{"action":"ping","data":"` + strings.Repeat("x", maxMessageBytes) + `"}`
	w := f.do(t, http.MethodPost, "/message", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResumes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := f.ledger.Add(ctx, store.ResumeRecord{Name: "张三", Timestamp: now, Status: store.StatusDownloaded})
	require.NoError(t, err)
	_, err = f.ledger.Add(ctx, store.ResumeRecord{Name: "李四", Timestamp: now, Status: "skipped"})
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/resumes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["count"])

	w = f.do(t, http.MethodGet, "/resumes?field=status&value=downloaded", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "张三", body["resumes"].([]any)[0].(map[string]any)["name"])

	w = f.do(t, http.MethodGet, "/resumes?field=timestamp&value=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/resumes", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/resumes", "")
	body = decodeBody(t, w)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []any{}, body["resumes"])
}

func TestRuns(t *testing.T) {
	f := newFixture(t, Config{})
	id := uuid.New()
	f.runs.runs = []db.Run{{ID: id, Kind: db.RunKindCollector, Status: db.RunStatusCompleted}}

	w := f.do(t, http.MethodGet, "/runs?kind=collector&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])
	assert.Equal(t, db.RunFilters{Kind: "collector", Limit: 5}, f.runs.filters)

	w = f.do(t, http.MethodGet, "/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/runs/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), decodeBody(t, w)["id"])

	w = f.do(t, http.MethodGet, "/runs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.runs.err = errors.New("connection refused")
	w = f.do(t, http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRuns_WithoutPostgres(t *testing.T) {
	page := domtest.New(recommendURL, `<html></html>`)
	srv, err := New(Config{RateLimit: noLimits()}, Deps{Router: messaging.NewRouter(messaging.Router{Page: page})})
	require.NoError(t, err)
	defer srv.rateLimiter.Stop()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resumes", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth(t *testing.T) {
	jwtCfg := &config.JWTConfig{Secret: testSecret, ExpirationHours: 1}
	f := newFixture(t, Config{JWT: jwtCfg})
	token, err := NewJWTService(jwtCfg).GenerateToken(uuid.New())
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/message", `{"action":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/message", `{"action":"ping"}`, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: &ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/message", Method: http.MethodPost, Limit: 2, Window: time.Minute},
		},
	}})

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/message", `{"action":"ping"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	w := f.do(t, http.MethodPost, "/message", `{"action":"ping"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeBody(t, w)["error"])
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(&ErrValidation{Field: "x"}))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(&ErrNotFound{What: "run"}))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(store.CheckField("bogus")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus((&store.ResumeRecord{}).Validate()))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(&store.Error{Op: "all", Cause: errors.New("io")}))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestEvents_Stream(t *testing.T) {
	f := newFixture(t, Config{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.srv.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.srv.Hub().Emit(context.Background(), sink.Event{
		Action: "feedsUpdated",
		Data:   map[string]any{"totalCount": 3},
	}))

	event, data := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "feedsUpdated", event)
	assert.JSONEq(t, `{"action":"feedsUpdated","data":{"totalCount":3}}`, data)
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewHub(0)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(0)
	ch, ok := hub.subscribe()
	require.True(t, ok)
	defer hub.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*2; i++ {
			_ = hub.Emit(context.Background(), sink.Event{Action: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full client")
	}
	assert.Len(t, ch, clientBuffer)
}

func TestServe_GracefulShutdown(t *testing.T) {
	f := newFixture(t, Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	stream, err := http.Get(url + "/events")
	require.NoError(t, err)
	defer stream.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down with an open event stream")
	}
}

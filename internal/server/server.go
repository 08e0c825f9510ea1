// Package server provides the HTTP control API: the message endpoint that
// drives the browser sessions, the event stream and the resume ledger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/db"
	"github.com/jonathan/hirebot/internal/messaging"
	"github.com/jonathan/hirebot/internal/server/middleware"
	"github.com/jonathan/hirebot/internal/server/ratelimit"
	"github.com/jonathan/hirebot/internal/store"
)

const maxMessageBytes = 1 << 20

// RunStore lists recorded automation runs. Only the PostgreSQL store keeps them.
type RunStore interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, filters db.RunFilters) ([]db.Run, error)
}

// Config holds server configuration
type Config struct {
	Host      string            // defaults to 127.0.0.1
	Port      int
	JWT       *config.JWTConfig // nil disables bearer auth
	RateLimit *ratelimit.Config // nil loads RATE_LIMIT_* from the environment
	Heartbeat time.Duration     // SSE keepalive; zero uses 15s
}

// Deps are the components the API exposes. Router is required.
type Deps struct {
	Router *messaging.Router
	Ledger store.ResumeStore
	Runs   RunStore
	Hub    *Hub
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	router      *messaging.Router
	ledger      store.ResumeStore
	runs        RunStore
	hub         *Hub
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Router == nil {
		return nil, fmt.Errorf("server: message router is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 15 * time.Second
	}

	s := &Server{
		router:      deps.Router,
		ledger:      deps.Ledger,
		runs:        deps.Runs,
		hub:         deps.Hub,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
	}
	if s.hub == nil {
		s.hub = NewHub(cfg.Heartbeat)
	}
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /message", s.protect(http.HandlerFunc(s.handleMessage)))
	mux.Handle("GET /events", s.protect(s.hub))
	mux.Handle("GET /resumes", s.protect(http.HandlerFunc(s.handleListResumes)))
	mux.Handle("DELETE /resumes", s.protect(http.HandlerFunc(s.handleClearResumes)))
	mux.Handle("GET /runs", s.protect(http.HandlerFunc(s.handleListRuns)))
	mux.Handle("GET /runs/{id}", s.protect(http.HandlerFunc(s.handleGetRun)))

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event streams stay open.
	}

	return s, nil
}

// Hub returns the event hub, which the caller registers as a sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVER] listening on %s", ln.Addr())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Println("[SERVER] shutting down...")
	// Streams only end when their clients do, so close them first.
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("[SERVER] stopped")
	return nil
}

// protect wraps h in bearer auth when a JWT secret is configured.
func (s *Server) protect(h http.Handler) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Clients(),
	})
}

// handleMessage dispatches one request envelope. Handler failures are
// reported inside the envelope with status 200; only unreadable bodies get
// an HTTP error.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	s.jsonResponse(w, http.StatusOK, s.router.HandleJSON(r.Context(), body))
}

func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.errorResponse(w, http.StatusNotFound, "resume ledger not configured")
		return
	}

	var (
		records []store.ResumeRecord
		err     error
	)
	if field := r.URL.Query().Get("field"); field != "" {
		records, err = s.ledger.Query(r.Context(), field, r.URL.Query().Get("value"))
	} else {
		records, err = s.ledger.All(r.Context())
	}
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if records == nil {
		records = []store.ResumeRecord{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"resumes": records,
		"count":   len(records),
	})
}

func (s *Server) handleClearResumes(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.errorResponse(w, http.StatusNotFound, "resume ledger not configured")
		return
	}
	if err := s.ledger.Clear(r.Context()); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	log.Printf("[SERVER] resume ledger cleared")
	s.jsonResponse(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorResponse(w, http.StatusNotFound, "run history requires the postgres store")
		return
	}

	q := r.URL.Query()
	filters := db.RunFilters{Kind: q.Get("kind"), Status: q.Get("status")}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 500 {
			err := &ErrValidation{Field: "limit", Message: "must be between 1 and 500"}
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
		filters.Limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorResponse(w, http.StatusNotFound, "run history requires the postgres store")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		err := &ErrValidation{Field: "id", Message: "not a UUID"}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err == nil && run == nil {
		err = &ErrNotFound{What: "run", ID: id.String()}
	}
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// clientID identifies the caller by remote IP.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

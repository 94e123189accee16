// Package http exposes the ledger as a JSON API. Every request is scoped
// to the authenticated user; live sessions are held in a bounded LRU so a
// user's reads hit their in-memory snapshot instead of storage.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bilancio/internal/auth"
	"bilancio/internal/cache"
	"bilancio/internal/ledger"
	"bilancio/internal/metrics"
	"bilancio/internal/storage"
)

type Server struct {
	http.Server

	gw     storage.Gateway
	events ledger.EventPublisher

	sessions    *cache.Cache[*ledger.Store]
	rateLimiter *rateLimiter

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// Options configure the server beyond its dependencies.
type Options struct {
	Addr             string
	SessionTTL       time.Duration
	SessionCacheSize int
}

// NewServer wires routes and session management, returning a ready-to-run
// server.
func NewServer(opts Options, gw storage.Gateway, jwt *auth.JWTManager, events ledger.EventPublisher) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		gw:          gw,
		events:      events,
		sessions:    cache.New[*ledger.Store](opts.SessionCacheSize, opts.SessionTTL),
		rateLimiter: newRateLimiter(),
		stopCleanup: make(chan struct{}),
	}
	go s.startSessionCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	authed := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth.Middleware(jwt)(s.withObservability(pattern, h)))
	}

	authed("GET /api/v1/ledger", s.handleLedgerSnapshot)

	authed("GET /api/v1/categories", s.handleListCategories)
	authed("POST /api/v1/categories", s.handleCreateCategory)
	authed("PATCH /api/v1/categories/{id}", s.handleUpdateCategory)
	authed("DELETE /api/v1/categories/{id}", s.handleDeleteCategory)

	authed("GET /api/v1/transactions", s.handleListTransactions)
	authed("POST /api/v1/transactions", s.handleCreateTransaction)
	authed("PATCH /api/v1/transactions/{id}", s.handleUpdateTransaction)
	authed("DELETE /api/v1/transactions/{id}", s.handleDeleteTransaction)
	authed("PUT /api/v1/transactions/{id}/settlement", s.handleToggleSettlement)

	authed("GET /api/v1/persons", s.handleListPersons)
	authed("POST /api/v1/persons", s.handleCreatePerson)
	authed("PATCH /api/v1/persons/{id}", s.handleUpdatePerson)
	authed("DELETE /api/v1/persons/{id}", s.handleDeletePerson)

	authed("GET /api/v1/summaries", s.handleListSummaries)
	authed("POST /api/v1/reconcile", s.handleReconcile)
	authed("POST /api/v1/reset", s.handleReset)

	authed("GET /api/v1/analytics/categories", s.handleCategorySeries)
	authed("GET /api/v1/analytics/ratio", s.handleRatioSeries)
	authed("GET /api/v1/analytics/settlement", s.handleSettlement)

	return s
}

// session returns the live ledger store for the authenticated user,
// creating one on first touch. The store gates its own first load, so a
// request racing the creation waits for the snapshot instead of reading
// it empty.
func (s *Server) session(r *http.Request) (*ledger.Store, error) {
	userID, err := auth.CurrentUserID(r.Context())
	if err != nil {
		return nil, err
	}

	store, _ := s.sessions.GetOrCreate(userID, func() *ledger.Store {
		return ledger.New(userID, s.gw, s.events)
	})
	if err := store.EnsureInitialized(r.Context()); err != nil {
		s.sessions.Delete(userID)
		return nil, err
	}
	return store, nil
}

func (s *Server) startSessionCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sessions.CleanExpired(); n > 0 {
				slog.Debug("Session cleanup completed", "sessions_removed", n)
			}
			s.rateLimiter.cleanupStaleEntries()
		case <-s.stopCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutine and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCleanup)
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withObservability adds request ids, logging, metrics and per-user rate
// limiting on mutations.
func (s *Server) withObservability(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		ctx := r.Context()

		slog.DebugContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path)

		if r.Method != http.MethodGet {
			userID, _ := auth.CurrentUserID(ctx)
			if !s.rateLimiter.allow(userID) {
				slog.WarnContext(ctx, "Rate limit exceeded",
					"request_id", requestID, "method", r.Method, "url", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		metrics.HTTPRequest(r.Method, route, rw.statusCode, duration.Seconds())
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds())
	}
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

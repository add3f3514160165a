// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	applog "dindin/internal/log"
	"dindin/internal/live"
	"dindin/internal/middleware/ratelimit"
	"dindin/internal/middleware/security"
	"dindin/internal/middleware/trace"
	"dindin/internal/services"
)

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its collaborators. Hub, Assistant and Ready
// may be nil.
type Options struct {
	Addr               string
	DefaultUserID      string
	RateLimitPerMinute int
	Logger             *applog.Logger
	Transactions       *services.TransactionService
	Assistant          *services.AssistantService
	Hub                *live.Hub
	Ready              Pinger
}

type Server struct {
	http.Server
	tx          *services.TransactionService
	assistant   *services.AssistantService
	hub         *live.Hub
	ready       Pinger
	defaultUser string
	rateLimiter *ratelimit.Limiter
	logger      *applog.Logger
}

// NewServer builds the JSON API with its middleware chain.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		tx:          opts.Transactions,
		assistant:   opts.Assistant,
		hub:         opts.Hub,
		ready:       opts.Ready,
		defaultUser: opts.DefaultUserID,
		rateLimiter: ratelimit.NewLimiter(rlConfig),
		logger:      logger.WithComponent(applog.ComponentHTTP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/installments/{installmentID}", s.handleChain)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/dues", s.handleDues)
	mux.HandleFunc("GET /api/profile", s.handleProfile)

	mux.HandleFunc("POST /api/assistant/categorize", s.handleCategorize)
	mux.HandleFunc("GET /api/assistant/tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("DELETE /api/assistant/tasks/{id}", s.handleTaskCancel)
	mux.HandleFunc("GET /api/assistant/insights", s.handleInsights)
	mux.HandleFunc("GET /api/assistant/summary", s.handleAssistantSummary)
	mux.HandleFunc("POST /api/assistant/ask", s.handleAsk)

	mux.HandleFunc("GET /ws", s.handleWS)

	clientIP := security.NewClientIP()
	tracer := trace.NewMiddleware(logger, clientIP.Extract)
	limit := s.rateLimiter.Middleware(func(r *http.Request) string {
		if id, err := userID(r, ""); err == nil && id != "" {
			return "user:" + id
		}
		return "ip:" + clientIP.Extract(r)
	}, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).Warn("Rate limit exceeded", applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", Code: "rate_limited"})
	})

	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = limit(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests and releases the limiter and hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.hub != nil {
		s.hub.Close()
	}
	return s.Server.Shutdown(ctx)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := userID(r, s.defaultUser)
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).Warn("Readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "live updates disabled", Code: "not_found"})
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.hub.ServeWS(w, r, user, p)
}

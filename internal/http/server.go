// Package http serves the assistant over a small JSON and binary API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finbot/internal/balances"
	"finbot/internal/cache"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/middleware/ratelimit"
	"finbot/internal/middleware/security"
	"finbot/internal/middleware/trace"
	"finbot/internal/period"
)

// Service is the part of the assistant the API calls.
type Service interface {
	ParsePeriod(ctx context.Context, text string) (core.Period, period.Result, error)
	ResolveArtifact(ctx context.Context, p core.Period) (core.Outcome, error)
	Balances(ctx context.Context) (core.Snapshot, error)
	RefreshBalances(ctx context.Context) (core.Snapshot, error)
	CacheStatus() balances.Status
	History(ctx context.Context, limit int) ([]core.Resolution, error)
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

const (
	defaultMemoSize       = 64
	defaultMemoTTL        = 5 * time.Minute
	defaultRequestTimeout = 90 * time.Second
	memoCleanupInterval   = 10 * time.Minute
)

type Server struct {
	http.Server

	app            Service
	logger         *log.Logger
	limiter        *ratelimit.Limiter
	detector       *security.Detector
	headers        *security.HeadersMiddleware
	tracer         *trace.Middleware
	memo           *cache.LRUCache[core.Outcome]
	caches         *cache.Manager
	checks         map[string]ReadinessCheck
	requestTimeout time.Duration
	started        time.Time

	rateLimitPerMinute int
	memoSize           int
	memoTTL            time.Duration

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit sets the per-client requests per minute on /api routes.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimitPerMinute = perMinute }
}

// WithArtifactMemo sizes the in-memory memo of found artifacts. A size of
// zero or less disables it.
func WithArtifactMemo(size int, ttl time.Duration) Option {
	return func(s *Server) {
		s.memoSize = size
		if ttl > 0 {
			s.memoTTL = ttl
		}
	}
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// WithRequestTimeout bounds the work done for a single artifact request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// Call Shutdown to stop it and its background cleanup.
func NewServer(addr string, app Service, opts ...Option) *Server {
	s := &Server{
		app:                app,
		logger:             log.Default(log.ComponentHTTP),
		checks:             make(map[string]ReadinessCheck),
		requestTimeout:     defaultRequestTimeout,
		rateLimitPerMinute: ratelimit.DefaultConfig().RequestsPerMinute,
		memoSize:           defaultMemoSize,
		memoTTL:            defaultMemoTTL,
		started:            time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerMinute = s.rateLimitPerMinute
	s.limiter = ratelimit.NewLimiter(limits)
	s.detector = security.NewDetector()
	s.headers = security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.tracer = trace.NewMiddleware(s.detector.ClientIP, s.logger)

	s.caches = cache.NewManager()
	if s.memoSize > 0 {
		s.memo = cache.NewLRUCache[core.Outcome](s.memoSize, s.memoTTL)
		s.caches.Register(s.memo)
		s.caches.StartCleanup(memoCleanupInterval)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.wrap(s.handleHealth, false))
	mux.Handle("GET /readyz", s.wrap(s.handleReady, false))
	mux.Handle("GET /api/period", s.wrap(s.handlePeriod, true))
	mux.Handle("GET /api/artifact", s.wrap(s.handleArtifact, true))
	mux.Handle("GET /api/balances", s.wrap(s.handleBalances, true))
	mux.Handle("POST /api/balances/refresh", s.wrap(s.handleRefreshBalances, true))
	mux.Handle("GET /api/status", s.wrap(s.handleStatus, true))
	mux.Handle("GET /api/history", s.wrap(s.handleHistory, true))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.requestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// wrap applies security headers, probe detection, tracing and, for API
// routes, rate limiting.
func (s *Server) wrap(h http.HandlerFunc, limited bool) http.Handler {
	var next http.Handler = h
	if limited {
		next = s.limiter.Middleware(s.detector.ClientIP, s.rejectRateLimited)(next)
	}
	inspected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldPath, r.URL.Path, log.FieldClientIP, s.detector.ClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
	return log.Middleware(s.logger)(s.tracer.Middleware(s.headers.Middleware(inspected)))
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r), log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Close releases background goroutines for a server that was never started.
func (s *Server) Close() error {
	s.caches.Stop()
	s.limiter.Stop()
	return s.Server.Close()
}

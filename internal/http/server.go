package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Options tunes NewServer.
type Options struct {
	Logger             *slog.Logger
	RateLimitPerMinute int
	// CacheCleanupInterval is how often expired rate quotes are dropped.
	CacheCleanupInterval time.Duration
	// Now defaults to time.Now; it decides the default transaction date.
	Now func() time.Time
}

// Server exposes the ledger over JSON/HTTP.
type Server struct {
	http.Server
	ledger *services.Ledger
	logger *slog.Logger
	now    func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	startedAt        time.Time

	caches       *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := log.WithComponent(opts.Logger, log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		ledger:           ledger,
		logger:           logger,
		now:              opts.Now,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		startedAt:        time.Now(),
		caches:           cache.NewManager(),
	}
	s.caches.Register(ledger.Rates.Cache())

	api := http.NewServeMux()
	s.routes(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("/api/", http.StripPrefix("/api", api))
	mux.Handle("/", api)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.caches.StartCleanup(opts.CacheCleanupInterval)

	return s
}

// routes registers the ledger API on mux. Owner-scoped routes go through
// requireOwner; the currency reference routes are public.
func (s *Server) routes(mux *http.ServeMux) {
	owned := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.requireOwner(h))
	}

	owned("GET /categories", s.handleListCategories)
	owned("POST /categories", s.handleCreateCategory)
	owned("PUT /categories/{id}", s.handleUpdateCategory)
	owned("DELETE /categories/{id}", s.handleDeleteCategory)

	owned("GET /profile", s.handleGetProfile)
	owned("PUT /profile", s.handleUpdateProfile)
	owned("PUT /currency/base-currency", s.handleSetBaseCurrency)
	owned("POST /currency/convert", s.handleConvert)
	mux.HandleFunc("GET /currency/supported", s.handleSupportedCurrencies)
	mux.HandleFunc("GET /currency/exchange-rate", s.handleExchangeRate)

	owned("GET /transactions", s.handleListTransactions)
	owned("POST /transactions", s.handleCreateTransaction)
	owned("GET /transactions/summary", s.handleSummary)
	owned("GET /transactions/{id}", s.handleGetTransaction)
	owned("PUT /transactions/{id}", s.handleUpdateTransaction)
	owned("DELETE /transactions/{id}", s.handleDeleteTransaction)

	owned("GET /notifications", s.handleListNotifications)
	owned("GET /notifications/budget-check", s.handleBudgetCheck)
	owned("PUT /notifications/budget-limit", s.handleSetBudgetLimit)

	mux.HandleFunc("GET /export/{format}", s.handleExport)
	mux.HandleFunc("/", s.handleNotFound)
}

// middleware wraps h, outermost first: tracing, security headers,
// suspicious request logging, rate limiting and the request logger.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = log.Middleware(s.logger, trace.RequestIDFromRequest)(h)
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(h)
	h = s.securityDetector.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.traceMiddleware.Middleware(h)
}

// requireOwner rejects requests without an X-User-ID header and stores the
// owner in the request context.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := ownerFromRequest(r)
		if err != nil {
			writeError(w, r, "authenticate", err)
			return
		}
		ctx := withOwner(r.Context(), owner)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldOwnerID, owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusNotFound, "not found").Write(w)
}

// Shutdown stops the background goroutines and the HTTP server. It does not
// close the ledger, which the caller owns.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"budgetbuddy/internal/backup"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/metrics"
	"budgetbuddy/internal/middleware/auth"
	"budgetbuddy/internal/middleware/ratelimit"
	"budgetbuddy/internal/middleware/security"
	"budgetbuddy/internal/middleware/trace"
	"budgetbuddy/internal/presenter"
	"budgetbuddy/internal/session"
)

// Ledger is the set of ledger operations the API exposes. Every call reads
// the owner from the request context.
type Ledger interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	ListTransactions(ctx context.Context, kind core.KindFilter, key core.SortKey) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	SetBudget(ctx context.Context, category string, amount core.Money, period core.Period) (core.Budget, error)
	ListBudgets(ctx context.Context) ([]core.Budget, error)
	BudgetAverages(ctx context.Context) (map[string]core.Money, error)
	UpdateBudget(ctx context.Context, id string, p core.BudgetPatch) (core.Budget, error)
	DeleteBudget(ctx context.Context, id string) error

	Dashboard(ctx context.Context, months int, currency string) (presenter.Dashboard, error)
	Export(ctx context.Context, currency string) (backup.Document, error)
	Import(ctx context.Context, doc backup.Document, confirmed bool) error
	Formatter(currency string) (presenter.Formatter, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds transport settings.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	TrustedProxies     []string
	MaxBodyBytes       int64
}

const defaultMaxBodyBytes = 1 << 20

// Deps are the collaborators of the server. Metrics and Ready are optional.
type Deps struct {
	Ledger   Ledger
	Verifier session.Verifier
	Ready    Pinger
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

type Server struct {
	http.Server
	ledger       Ledger
	ready        Pinger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	logger       *log.Logger
	maxBodyBytes int64
	now          func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Ledger == nil {
		return nil, errors.New("http: ledger is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("http: session verifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		ledger:       deps.Ledger,
		ready:        deps.Ready,
		detector:     detector,
		logger:       logger,
		maxBodyBytes: cfg.MaxBodyBytes,
		now:          time.Now,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
	}

	mux := http.NewServeMux()
	s.routes(mux, deps)

	var handler http.Handler = mux
	if deps.Metrics != nil {
		// Must sit directly on the mux to see the matched pattern.
		handler = deps.Metrics.Middleware(handler)
	}
	handler = trace.NewMiddleware(logger, detector.ExtractClientIP).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux, deps Deps) {
	authenticated := auth.Middleware(deps.Verifier, func(w http.ResponseWriter, r *http.Request, err error) {
		s.writeError(w, r, err)
	})
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
			Kind:    "rate_limited",
			Message: "rate limit exceeded, please try again later",
		}})
	})

	read := func(h http.HandlerFunc) http.Handler { return authenticated(h) }
	write := func(h http.HandlerFunc) http.Handler { return limited(authenticated(h)) }

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.Handle("GET /api/transactions", read(s.handleListTransactions))
	mux.Handle("POST /api/transactions", write(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/{id}", read(s.handleGetTransaction))
	mux.Handle("PATCH /api/transactions/{id}", write(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", write(s.handleDeleteTransaction))

	mux.Handle("GET /api/budgets", read(s.handleListBudgets))
	mux.Handle("PUT /api/budgets", write(s.handleSetBudget))
	mux.Handle("PATCH /api/budgets/{id}", write(s.handleUpdateBudget))
	mux.Handle("DELETE /api/budgets/{id}", write(s.handleDeleteBudget))

	mux.Handle("GET /api/dashboard", read(s.handleDashboard))
	mux.Handle("GET /api/export", read(s.handleExport))
	mux.Handle("POST /api/import", write(s.handleImport))
	mux.Handle("GET /api/categories", read(handleCategories))
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

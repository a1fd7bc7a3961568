// Package http exposes the bookkeeping engine as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/balance"
	"tally/internal/lifecycle"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/report"
	"tally/internal/services"
	"tally/internal/storage"
)

// Options configures the HTTP server.
type Options struct {
	Addr          string
	RateLimitRPM  int
	ReportTimeout time.Duration
}

// Server serves the API on top of the storage, balance, report and
// lifecycle layers.
type Server struct {
	http.Server

	store        storage.Store
	transactions *services.TransactionService
	balances     *balance.Engine
	reports      *report.Engine
	lifecycle    *lifecycle.Coordinator
	logger       *log.Logger

	limiter       *ratelimit.Limiter
	reportTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(
	opts Options,
	store storage.Store,
	transactions *services.TransactionService,
	balances *balance.Engine,
	reports *report.Engine,
	coordinator *lifecycle.Coordinator,
	logger *log.Logger,
) *Server {
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = 10 * time.Second
	}

	s := &Server{
		store:         store,
		transactions:  transactions,
		balances:      balances,
		reports:       reports,
		lifecycle:     coordinator,
		logger:        logger.WithComponent(log.ComponentHTTP),
		limiter:       ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
		reportTimeout: opts.ReportTimeout,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /api/groups", s.handleListGroups)
	mux.HandleFunc("GET /api/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("PUT /api/groups/{id}", s.handleUpdateGroup)
	mux.HandleFunc("DELETE /api/groups/{id}", s.handleDeleteGroup)
	mux.HandleFunc("GET /api/groups/{id}/balance", s.handleGroupBalance)

	mux.HandleFunc("POST /api/ledgers", s.handleCreateLedger)
	mux.HandleFunc("GET /api/ledgers", s.handleListLedgers)
	mux.HandleFunc("GET /api/ledgers/{id}", s.handleGetLedger)
	mux.HandleFunc("PUT /api/ledgers/{id}", s.handleUpdateLedger)
	mux.HandleFunc("DELETE /api/ledgers/{id}", s.handleDeleteLedger)
	mux.HandleFunc("GET /api/ledgers/{id}/balance", s.handleLedgerBalance)
	mux.HandleFunc("GET /api/ledgers/{id}/statement", s.handleStatement)
	mux.HandleFunc("GET /api/ledgers/{id}/statement.csv", s.handleStatementCSV)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/reports/net-worth", s.handleNetWorth)
	mux.HandleFunc("GET /api/reports/income-expense", s.handleIncomeExpense)
	mux.HandleFunc("GET /api/reports/monthly-summary", s.handleMonthlySummary)
	mux.HandleFunc("GET /api/reports/net-worth-history", s.handleNetWorthHistory)
	mux.HandleFunc("GET /api/reports/credit-card-dues", s.handleCreditCardDues)

	mux.HandleFunc("GET /api/export/transactions.csv", s.handleExportTransactionsCSV)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	extractIP := security.NewClientIPExtractor().Extract
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(extractIP, logger)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(extractIP)(handler)
	handler = tracer.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:         opts.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "readiness check failed", log.FieldError, err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// reportContext bounds report queries so a heavy period cannot hold a
// connection open indefinitely.
func (s *Server) reportContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.reportTimeout)
}

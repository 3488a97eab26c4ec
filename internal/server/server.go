// Package server exposes research, symbol, financial, settings, budget and
// run history operations over HTTP for the browser dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/monitoring"
	"github.com/sells-group/research-dashboard/pkg/alphavantage"
	"github.com/sells-group/research-dashboard/pkg/notion"
)

// requestTimeout bounds every route except the research endpoints, which
// run as long as their agents.
const requestTimeout = 30 * time.Second

// Researcher runs and records research. Implemented by runs.Recorder.
type Researcher interface {
	Research(ctx context.Context, company string, onSource func(model.WebSource)) (*model.Run, error)
}

// SymbolResolver is implemented by symbol.Resolver.
type SymbolResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	Search(ctx context.Context, keywords string) ([]alphavantage.Match, error)
}

// FinancialFetcher is implemented by financial.Fetcher.
type FinancialFetcher interface {
	FetchForCompany(ctx context.Context, name string) *model.FinancialSnapshot
}

// CredentialStatus is implemented by credential.Resolver.
type CredentialStatus interface {
	Status(ctx context.Context) []credential.ProviderStatus
}

// SettingsService is implemented by credential.Settings.
type SettingsService interface {
	SetOverride(ctx context.Context, p credential.Provider, value string) error
	ClearOverride(ctx context.Context, p credential.Provider) error
	SetSearchScope(ctx context.Context, scope string) error
	Validate(ctx context.Context, p credential.Provider, key string) error
}

// Budgets is implemented by fetch.Client.
type Budgets interface {
	BudgetStatus(p credential.Provider) fetch.BudgetState
	ResetBudget(p credential.Provider)
}

// RunReader is the read side of the run store.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Publisher is implemented by runs.Publisher.
type Publisher interface {
	Publish(ctx context.Context, runID string) (*notion.PublishResult, error)
}

// StatsCollector is implemented by monitoring.Collector.
type StatsCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.RunStats, error)
}

// Deps holds the services behind the API. Publisher may be nil when Notion
// is not configured.
type Deps struct {
	Research    Researcher
	Symbols     SymbolResolver
	Financials  FinancialFetcher
	Credentials CredentialStatus
	Settings    SettingsService
	Budgets     Budgets
	Runs        RunReader
	Publisher   Publisher
	Stats       StatsCollector
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. Default: any.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// Server is the HTTP API.
type Server struct {
	deps      Deps
	router    chi.Router
	origins   []string
	heartbeat time.Duration
}

// New builds the router over deps.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:      deps,
		origins:   []string{"*"},
		heartbeat: 15 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", monitoring.Handler())

	r.Route("/api", func(r chi.Router) {
		// Research routes run without the request timeout.
		r.Post("/research", s.handleResearch)
		r.Get("/research/stream", s.handleResearchStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/symbols", s.handleSymbolSearch)
			r.Get("/symbols/{company}", s.handleSymbol)

			r.Get("/financials/{company}", s.handleFinancials)
			r.Get("/financials/{company}/export.xlsx", s.handleFinancialsExport)

			r.Route("/settings", func(r chi.Router) {
				r.Get("/status", s.handleSettingsStatus)
				r.Put("/credentials/{provider}", s.handleSetCredential)
				r.Delete("/credentials/{provider}", s.handleClearCredential)
				r.Post("/credentials/{provider}/validate", s.handleValidateCredential)
				r.Put("/search-scope", s.handleSetSearchScope)
			})

			r.Get("/budgets", s.handleBudgets)
			r.Post("/budgets/{provider}/reset", s.handleResetBudget)

			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/stats", s.handleRunStats)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Post("/runs/{id}/publish", s.handlePublishRun)
		})
	})

	return r
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

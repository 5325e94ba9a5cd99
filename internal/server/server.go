package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sozercan/auditai-backend/internal/analyzer"
	"github.com/sozercan/auditai-backend/internal/config"
	"github.com/sozercan/auditai-backend/internal/metrics"
)

const (
	serviceName     = "auditai-backend"
	tracerName      = "github.com/sozercan/auditai-backend/internal/server"
	shutdownTimeout = 30 * time.Second
)

type Server struct {
	cfg      config.ServerConfig
	provider string
	apiKey   string

	server   *http.Server
	router   *chi.Mux
	analyzer *analyzer.Analyzer
	metrics  *metrics.Store
	registry *prometheus.Registry
	validate *validator.Validate
}

func New(cfg config.Config, analyzer *analyzer.Analyzer, store *metrics.Store) *Server {
	s := &Server{
		cfg:      cfg.Server,
		provider: cfg.LLM.Provider,
		apiKey:   strings.TrimSpace(cfg.Auth.APIKey),
		analyzer: analyzer,
		metrics:  store,
		registry: prometheus.NewRegistry(),
		validate: newValidator(),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		store,
	)

	s.router = s.routes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	// Recoverer must wrap Observe: the observer records a panic as 500 and re-panics.
	r.Use(middleware.Recoverer)
	r.Use(Observe(s.metrics))
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{HeaderRequestID},
		AllowCredentials: true,
	}))
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/metrics/prometheus", s.handlePrometheusMetrics)
	r.Handle("/metrics/runtime", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(RequireAPIKey(s.apiKey))

		r.Get("/anomalies", s.handleListAnomalies)
		r.Get("/anomaly/{transaction_id}", s.handleGetAnomaly)
		r.Post("/explain", s.handleExplain)
		r.Post("/audit-report", s.handleAuditReport)
		r.Post("/chat", s.handleChat)
	})

	return r
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "address", s.server.Addr)
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		slog.Info("Starting shutdown", "cause", context.Cause(ctx))

		// Give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	return nil
}

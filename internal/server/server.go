package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardloop/guardloop/internal/alert"
	"github.com/guardloop/guardloop/internal/audit"
	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/profile"
	"github.com/guardloop/guardloop/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr        string
	ConfigPath  string
	ProfileName string
	Sensitivity float64 // <0 means "use config value"
	AuditPath   string
	EventsPath  string
}

// Server exposes the hook pipeline over HTTP and handles config hot
// reload.
type Server struct {
	cfg      Config
	pipeline *hooks.Pipeline
	router   chi.Router
	logger   *slog.Logger

	auditLog *audit.Log
	emitter  *telemetry.Emitter
}

// New builds a server: loads sensitivity config and profile, opens the
// audit chain and telemetry sink, and wires the pipeline.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	polCfg, hash, err := policy.LoadConfigWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Sensitivity >= 0 {
		polCfg.BaseSensitivity = cfg.Sensitivity
	}

	profName := cfg.ProfileName
	if profName == "" {
		profName = profile.DefaultName
	}
	prof, err := profile.Load(profName)
	if err != nil {
		return nil, err
	}

	var auditLog *audit.Log
	if cfg.AuditPath != "" {
		auditLog, err = audit.Open(cfg.AuditPath)
		if err != nil {
			return nil, err
		}
	}

	var emitter *telemetry.Emitter
	if cfg.EventsPath != "" {
		emitter, err = telemetry.OpenEmitter(cfg.EventsPath, logger)
		if err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var alerts *alert.Dispatcher
	if len(polCfg.Alerts) > 0 {
		alerts = alert.NewDispatcher(polCfg.Alerts)
	}

	pl, err := hooks.New(hooks.Options{
		Config:     polCfg,
		ConfigHash: hash,
		Profile:    prof,
		Audit:      auditLog,
		Emitter:    emitter,
		Metrics:    metrics,
		Alerts:     alerts,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		pipeline: pl,
		logger:   logger,
		auditLog: auditLog,
		emitter:  emitter,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/hooks/pre_action", s.handlePreAction)
		r.Post("/hooks/mid_trajectory", s.handleMidTrajectory)
		r.Post("/hooks/post_action", s.handlePostAction)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/release", s.handleRelease)
			r.Post("/terminate", s.handleTerminate)
			r.Get("/summary", s.handleSummary)
		})

		r.Get("/config", s.handleConfig)
	})
	s.router = r

	return s, nil
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Pipeline exposes the hook pipeline for the reloader and tests.
func (s *Server) Pipeline() *hooks.Pipeline { return s.pipeline }

// Reload re-reads the sensitivity config from disk and swaps it into
// the pipeline atomically. In-flight evaluations finish under the old
// config.
func (s *Server) Reload() error {
	cfg, hash, err := policy.LoadConfigWithHash(s.cfg.ConfigPath)
	if err != nil {
		return err
	}
	if s.cfg.Sensitivity >= 0 {
		cfg.BaseSensitivity = s.cfg.Sensitivity
	}
	if err := s.pipeline.SetConfig(cfg, hash); err != nil {
		return err
	}
	s.logger.Info("sensitivity config reloaded", "hash", hash)
	return nil
}

// Start runs the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully and closes the sinks.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("guardloop listening",
		"addr", ln.Addr().String(),
		"profile", s.pipeline.Profile().Name,
		"config_hash", s.pipeline.ConfigHash())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.closeSinks()
	return <-errCh
}

func (s *Server) closeSinks() {
	if s.emitter != nil {
		if err := s.emitter.Close(); err != nil {
			s.logger.Warn("close telemetry emitter", "error", err)
		}
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil {
			s.logger.Warn("close audit log", "error", err)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BaSui01/dryingassistant/agent"
	"github.com/BaSui01/dryingassistant/api/handlers"
	"github.com/BaSui01/dryingassistant/config"
	"github.com/BaSui01/dryingassistant/internal/metrics"
	"github.com/BaSui01/dryingassistant/internal/pool"
	"github.com/BaSui01/dryingassistant/internal/server"
	"github.com/BaSui01/dryingassistant/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricsNamespace = "dryassist"

// Server wires the configuration into the API and metrics servers.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	sessions  *agent.Manager
}

// NewServer creates a server for cfg.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Run serves until SIGINT/SIGTERM, then shuts everything down gracefully.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := telemetry.Init(ctx, s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("telemetry unavailable, continuing without export", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	handler, err := s.buildHandler(ctx)
	if err != nil {
		return err
	}

	api := server.NewManager(handler, s.apiServerConfig(), s.logger)
	metricsSrv := server.NewManager(s.metricsHandler(), server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	go s.sessions.Run(ctx)

	s.logger.Info("servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	if err := server.NewGroup(s.logger, api, metricsSrv).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildHandler assembles the pipeline, the handlers and the middleware
// chain. ctx bounds the background goroutines of the rate limiter.
func (s *Server) buildHandler(ctx context.Context) (http.Handler, error) {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector(metricsNamespace, s.registry, s.logger)
	metrics.RegisterPool(s.registry, metricsNamespace, "image_buffers", pool.ImageBuffers.Stats)
	metrics.RegisterPool(s.registry, metricsNamespace, "png_encoders", pool.PNGEncoders.Stats)

	dryer, err := newDryer(s.cfg, s.collector, s.logger)
	if err != nil {
		return nil, err
	}

	s.sessions = agent.NewManager(sessionConfig(s.cfg), agent.Deps{
		Provider: newChatProvider(s.cfg.Chat, s.logger),
		Dryer:    dryer,
		Recorder: s.collector,
		Logger:   s.logger,
	},
		agent.WithTTL(s.cfg.Chat.SessionTTL),
		agent.WithActiveGauge(s.collector),
	)

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewFuncCheck("stability_credentials", func(context.Context) error {
		if s.cfg.Stability.APIKey == "" {
			return errors.New(config.LegacyStabilityKeyEnv + " is not set")
		}
		return nil
	}))
	health.RegisterCheck(handlers.NewFuncCheck("chat_credentials", func(context.Context) error {
		if s.cfg.Chat.APIKey == "" {
			return errors.New(config.LegacyChatKeyEnv + " is not set")
		}
		return nil
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	maxUpload := s.cfg.Server.MaxUploadBytes
	handlers.NewSessionHandler(s.sessions, maxUpload, s.logger).Register(mux)
	handlers.NewDryHandler(dryer, s.cfg.Drying.FallbackOnFailure, maxUpload, s.logger).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	), nil
}

func (s *Server) apiServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	cfg.ReadTimeout = s.cfg.Server.ReadTimeout
	cfg.WriteTimeout = s.cfg.Server.WriteTimeout
	cfg.IdleTimeout = 2 * s.cfg.Server.ReadTimeout
	cfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	return cfg
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

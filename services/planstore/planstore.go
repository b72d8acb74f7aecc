// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planstore assembles the plan management service.
//
// The package wires together the components that the subpackages
// implement: the canonical document model (document), the versioned
// store on its key-value backend (store, storage), the asynchronous
// search indexer (index), the HTTP surface (handlers, routes,
// middleware) and telemetry (observability). Construction is all-or-
// nothing: New returns a ready-to-run Service or an error, never a
// half-initialized one.
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := planstore.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package planstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/auth"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/config"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/index"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/middleware"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/observability"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/routes"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/storage"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the planstore lifecycle contract.
//
// Run blocks until the context is canceled or the server fails, then
// shuts everything down in dependency order. Call Run at most once per
// instance.
type Service interface {
	// Run starts the HTTP server and blocks. Cancel the context to begin
	// graceful shutdown: the listener drains in-flight requests, the
	// index queue flushes, and the storage backend closes.
	Run(ctx context.Context) error

	// Router exposes the configured gin engine for integration tests.
	// Callers must not register further routes on it.
	Router() *gin.Engine

	// ApplyReloadable applies the reload-safe subset of a new
	// configuration to the running service. Currently that is the log
	// level; structural settings (port, storage backend, auth mode)
	// require a restart and are ignored here.
	ApplyReloadable(cfg config.Config)
}

// =============================================================================
// Implementation
// =============================================================================

// service is the production Service implementation.
//
// Fields are written during New and read-only afterwards; the components
// themselves handle their own synchronization.
type service struct {
	config config.Config
	logger *logging.Logger
	router *gin.Engine

	kv       storage.KeyValue
	plans    *store.PlanStore
	queue    *index.Queue
	provider auth.AuthProvider

	telemetryShutdown func(context.Context) error
}

// New builds a Service from the configuration.
//
// Initialization order matters: telemetry first so every later component
// can record metrics, then storage, auth, the index pipeline, the store,
// and finally the router. Any failure closes what was already opened and
// returns the error.
func New(cfg config.Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.GinMode)

	s := &service{
		config: cfg,
		logger: newLogger(cfg),
	}

	if err := s.initTelemetry(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	if err := s.initStorage(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	if err := s.initAuth(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("initialize auth: %w", err)
	}

	notifier := s.initIndexer()
	s.plans = store.New(s.kv, notifier, s.logger)
	s.initRouter()

	return s, nil
}

// Run starts the HTTP server and blocks until ctx is canceled or the
// listener fails. Shutdown order: stop accepting requests and drain
// in-flight ones, flush the index queue, then release storage and
// telemetry.
func (s *service) Run(ctx context.Context) error {
	if s.queue != nil {
		// Canceling ctx begins shutdown, but requests that commit while
		// the listener drains still enqueue events. The worker gets a
		// context that outlives ctx so Stop can flush them.
		if err := s.queue.Start(context.WithoutCancel(ctx)); err != nil {
			s.cleanup()
			return fmt.Errorf("start index queue: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("planstore listening",
			"port", s.config.Server.Port,
			"storage", s.config.Storage.Backend,
			"auth", s.config.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		timeout := time.Duration(s.config.Server.ShutdownTimeoutSeconds) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("shutting down planstore")
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.cleanup()
	return err
}

// Router returns the configured gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// ApplyReloadable picks up the log level from a reloaded configuration.
func (s *service) ApplyReloadable(cfg config.Config) {
	level := logging.ParseLevel(cfg.Logging.Level)
	s.logger.SetLevel(level)
	s.logger.Info("applied reloaded configuration", "logLevel", cfg.Logging.Level)
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

func newLogger(cfg config.Config) *logging.Logger {
	logCfg := logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "planstore",
		Quiet:   cfg.Logging.Quiet,
	}
	if cfg.Logging.JSON {
		logCfg.Format = logging.FormatJSON
	}
	return logging.New(logCfg)
}

// initTelemetry starts tracing and metrics. The yaml telemetry section
// overrides the OTEL_* environment defaults field by field.
func (s *service) initTelemetry() error {
	obsCfg := observability.DefaultConfig()
	if v := s.config.Telemetry.TraceExporter; v != "" {
		obsCfg.TraceExporter = v
	}
	if v := s.config.Telemetry.MetricExporter; v != "" {
		obsCfg.MetricExporter = v
	}
	if v := s.config.Telemetry.OTLPEndpoint; v != "" {
		obsCfg.OTLPEndpoint = v
	}

	shutdown, err := observability.Init(context.Background(), obsCfg)
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown
	return nil
}

func (s *service) initStorage() error {
	switch s.config.Storage.Backend {
	case "memory":
		s.kv = storage.NewMemoryStore()
		s.logger.Info("using in-memory storage; data is lost on exit")
		return nil
	default:
		storeCfg := storage.DefaultConfig()
		storeCfg.Path = s.config.Storage.Dir
		storeCfg.Logger = s.logger.Slog()

		kv, err := storage.OpenBadger(storeCfg)
		if err != nil {
			return err
		}
		s.kv = kv
		s.logger.Info("badger storage opened", "dir", s.config.Storage.Dir)
		return nil
	}
}

func (s *service) initAuth() error {
	switch s.config.Auth.Mode {
	case "static":
		provider, err := auth.NewStaticTokenProvider(s.config.Auth.StaticToken, auth.AuthInfo{
			UserID: "planstore-service",
			Roles:  []string{"admin"},
		})
		if err != nil {
			return err
		}
		s.provider = provider
	case "introspection":
		s.provider = &auth.IntrospectionProvider{
			Endpoint:     s.config.Auth.IntrospectionURL,
			ClientID:     s.config.Auth.ClientID,
			ClientSecret: s.config.Auth.ClientSecret,
		}
	default:
		s.provider = &auth.NopProvider{}
		s.logger.Warn("auth disabled; every request is a local admin")
	}
	return nil
}

// initIndexer wires the search pipeline when Weaviate is configured.
// Index failures never fail plan writes, so an unreachable Weaviate at
// startup degrades to no indexing rather than refusing to boot.
func (s *service) initIndexer() store.Notifier {
	url := s.config.Index.WeaviateURL
	if url == "" {
		s.logger.Info("search indexing disabled; no weaviate url configured")
		return store.NopNotifier{}
	}

	client, err := index.NewClient(url)
	if err != nil {
		s.logger.Warn("weaviate client creation failed; search indexing disabled",
			"url", url,
			"error", err.Error())
		return store.NopNotifier{}
	}
	if err := index.EnsureSchema(context.Background(), client, s.logger); err != nil {
		s.logger.Warn("weaviate schema check failed; indexing continues best effort",
			"error", err.Error())
	}

	indexer := index.NewWeaviateIndexer(client, s.logger)
	s.queue = index.NewQueue(indexer, s.logger, index.Config{
		Capacity: s.config.Index.QueueSize,
	})
	s.logger.Info("search indexing enabled", "url", url)
	return s.queue
}

func (s *service) initRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetrics())
	router.Use(otelgin.Middleware("planstore"))

	rateCfg := middleware.RateLimitConfig{}
	if s.config.RateLimit.Enabled {
		rateCfg = middleware.RateLimitConfig{
			RequestsPerSecond: s.config.RateLimit.RequestsPerSecond,
			Burst:             s.config.RateLimit.Burst,
		}
	}
	routes.SetupRoutes(router, s.plans, s.provider, s.logger, rateCfg)
	s.router = router
}

// cleanup releases resources in reverse dependency order. Tolerates
// partially initialized state so New can call it on any failure path.
func (s *service) cleanup() {
	if s.queue != nil {
		s.queue.Stop()
	}
	if s.kv != nil {
		if err := s.kv.Close(); err != nil {
			s.logger.Warn("storage close error", "error", err.Error())
		}
	}
	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown error", "error", err.Error())
		}
	}
	if err := s.logger.Close(); err != nil {
		fmt.Printf("logger close error: %v\n", err)
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)

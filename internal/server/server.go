package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/config"
	"github.com/jackzampolin/scanline/internal/home"
	"github.com/jackzampolin/scanline/internal/ingest"
	"github.com/jackzampolin/scanline/internal/jobcfg"
	"github.com/jackzampolin/scanline/internal/redisbox"
	"github.com/jackzampolin/scanline/internal/resources"
	"github.com/jackzampolin/scanline/internal/server/endpoints"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/svcctx"
	"github.com/jackzampolin/scanline/internal/workers"
)

// Server is the main Scanline HTTP server.
// It owns the worker pool, the document store and the analytics sinks, and
// manages the optional Redis container lifecycle.
type Server struct {
	httpServer   *http.Server
	builder      *jobcfg.Builder
	home         *home.Dir
	redisManager *redisbox.DockerManager
	logger       *slog.Logger

	// Created by Start
	tracker *resources.Tracker
	store   *store.Store
	pool    *workers.Pool

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config)
	Port string
	// Home is the scanline home directory (default: ~/.scanline)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Settings is used when ConfigManager is nil (default: config.DefaultConfig)
	Settings *config.Config
	// SwaggerSpecPath locates swagger.json
	SwaggerSpecPath string
	// RedisLabels are added to a managed Redis container (used for test cleanup)
	RedisLabels map[string]string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	var builder *jobcfg.Builder
	switch {
	case cfg.ConfigManager != nil:
		builder = jobcfg.NewBuilder(cfg.ConfigManager)
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			cfg.Logger.Info("config reloaded; new settings apply to pipelines built from now on",
				"workers", c.Workers.Count, "max_retries", c.Pipeline.MaxRetries)
		})
	case cfg.Settings != nil:
		if err := cfg.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("invalid settings: %w", err)
		}
		builder = jobcfg.FromConfig(cfg.Settings)
	default:
		builder = jobcfg.FromConfig(config.DefaultConfig())
	}
	settings := builder.Config()

	if cfg.Host == "" {
		cfg.Host = settings.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = settings.Server.Port
	}

	s := &Server{
		builder: builder,
		home:    cfg.Home,
		logger:  cfg.Logger,
	}

	redisCfg := settings.Analytics.Redis
	if redisCfg.Enabled && redisCfg.Container {
		mgr, err := redisbox.NewDockerManager(redisbox.DockerConfig{
			ContainerName: redisCfg.ContainerName,
			HomePath:      cfg.Home.Path(),
			Image:         redisCfg.Image,
			DataPath:      cfg.Home.RedisDataPath(),
			HostPort:      redisCfg.Port,
			Labels:        cfg.RedisLabels,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis manager: %w", err)
		}
		s.redisManager = mgr
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		RedisManager:    s.redisManager,
		RedisEnabled:    redisCfg.Enabled,
		MaxUploadBytes:  settings.Server.MaxUploadBytes,
		SwaggerSpecPath: cfg.SwaggerSpecPath,
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 5 * time.Minute, // large uploads
		// Responses are written after OCR finishes.
		WriteTimeout: settings.Server.RequestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start builds the worker pool, store and analytics sinks, then serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.initServices(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// initServices creates the shared services. Shutdown hooks are registered on
// the tracker in teardown order: pool, store, analytics stream.
func (s *Server) initServices(ctx context.Context) error {
	settings := s.builder.Config()

	if err := s.home.EnsureExists(); err != nil {
		return err
	}

	s.tracker = resources.NewTracker(resources.WithLogger(s.logger))
	s.tracker.StartSweeper(ctx, settings.Tracker.SweepInterval, settings.Tracker.MaxAge)

	events := analytics.NewMemorySink(settings.Analytics.MemoryEvents)
	sink := analytics.Multi{analytics.LogSink{Logger: s.logger}, events}

	var redisSink *analytics.RedisSink
	if settings.Analytics.Redis.Enabled {
		rs, err := s.startRedis(ctx, settings)
		if err != nil {
			return err
		}
		redisSink = rs
		sink = append(sink, rs)
	}

	st, err := store.Open(s.builder.StoreConfig(s.home, s.logger))
	if err != nil {
		if redisSink != nil {
			redisSink.Close()
		}
		return err
	}

	pool, err := workers.New(s.builder.PoolConfig(jobcfg.Deps{
		Tracker: s.tracker,
		Sink:    sink,
		Logger:  s.logger,
	}))
	if err != nil {
		st.Close()
		if redisSink != nil {
			redisSink.Close()
		}
		return fmt.Errorf("failed to start workers: %w", err)
	}
	pool.Start(ctx)

	svc, err := ingest.NewService(s.builder.IngestConfig(pool, st, s.logger))
	if err != nil {
		pool.Close()
		st.Close()
		if redisSink != nil {
			redisSink.Close()
		}
		return err
	}

	s.tracker.RegisterShutdownHook(func(context.Context) error { return pool.Close() })
	s.tracker.RegisterShutdownHook(func(context.Context) error { return st.Close() })
	if redisSink != nil {
		s.tracker.RegisterShutdownHook(func(context.Context) error { return redisSink.Close() })
	}

	s.mu.Lock()
	s.store = st
	s.pool = pool
	s.services = &svcctx.Services{
		Ingest:  svc,
		Store:   st,
		Pool:    pool,
		Tracker: s.tracker,
		Events:  events,
		Logger:  s.logger,
		Home:    s.home,
	}
	s.mu.Unlock()

	s.logger.Info("services ready",
		"workers", settings.Workers.Count,
		"engine", settings.Pipeline.Engine,
		"redis", settings.Analytics.Redis.Enabled)
	return nil
}

// startRedis starts the local container when configured, then connects the
// stream sink.
func (s *Server) startRedis(ctx context.Context, settings *config.Config) (*analytics.RedisSink, error) {
	rc := settings.ToRedisConfig()
	if s.redisManager != nil {
		if err := s.redisManager.ValidateExisting(ctx); err != nil {
			return nil, fmt.Errorf("existing Redis container incompatible: %w", err)
		}
		s.logger.Info("starting Redis", "container", s.redisManager.ContainerName())
		if err := s.redisManager.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start Redis: %w", err)
		}
		rc.Addr = s.redisManager.Addr()
	}

	rs, err := analytics.NewRedisSink(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect analytics stream: %w", err)
	}
	s.logger.Info("analytics stream ready", "addr", rc.Addr, "stream", rs.Stream())
	return rs, nil
}

// shutdown performs graceful shutdown of the HTTP server, the services and
// the Redis container.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.tracker != nil {
		if err := s.tracker.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("service shutdown error", "error", err)
		}
	}

	if s.redisManager != nil {
		s.logger.Info("stopping Redis")
		if err := s.redisManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("Redis stop error", "error", err)
		}
		if err := s.redisManager.Close(); err != nil {
			s.logger.Error("Redis manager close error", "error", err)
		}
	}

	s.mu.Lock()
	s.services = nil
	s.running = false
	s.mu.Unlock()
	s.logger.Info("server stopped")
	return nil
}

// KillCleanup removes tracked scratch files without waiting on anything.
// It is safe to call from a second interrupt.
func (s *Server) KillCleanup() int {
	if s.tracker == nil {
		return 0
	}
	return s.tracker.ReleaseFilesSync()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Endpoints returns the endpoint registry.
func (s *Server) Endpoints() *api.Registry {
	return s.endpointRegistry
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.currentServices(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until Start has built the services.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.currentServices() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

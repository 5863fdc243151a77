package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/PenEditor/backend/internal/api/http"
	"github.com/GriffinCanCode/PenEditor/backend/internal/api/middleware"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/session"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/starter"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
	"github.com/GriffinCanCode/PenEditor/backend/internal/ws"
)

//go:embed static
var staticFiles embed.FS

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	sessions *session.Manager
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing PenEditor server",
		zap.String("addr", cfg.Address()),
		zap.Bool("fetch_libraries", cfg.Sandbox.FetchLibraries),
	)

	encoding, err := export.ParseEncoding(cfg.Export.Encoding)
	if err != nil {
		return nil, fmt.Errorf("invalid export encoding: %w", err)
	}

	template, err := starter.LoadOrDefault(cfg.Starter.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("Starter template loaded", zap.String("name", template.Name))

	// Metrics first, other components record into it
	metrics := monitoring.NewMetrics()

	var loader sandbox.Loader
	if cfg.Sandbox.FetchLibraries {
		httpLoader, err := sandbox.NewHTTPLoader(cfg.LibraryLoader(), logger.Component("loader"))
		if err != nil {
			metrics.Close()
			return nil, fmt.Errorf("failed to create library loader: %w", err)
		}
		loader = httpLoader.WithMetrics(metrics)
		logger.Info("External library loading enabled",
			zap.String("base_url", cfg.Sandbox.LibraryBaseURL),
			zap.Float64("rps", cfg.Sandbox.LibraryRPS),
		)
	}

	opts := session.DefaultOptions()
	opts.Sandbox = cfg.SandboxRuntime()
	opts.Loader = loader
	opts.Starter = template
	opts.RelayBuffer = cfg.Sandbox.RelayBuffer
	opts.MaxSessions = cfg.Server.MaxSessions
	opts.RunOnCreate = cfg.Starter.RunOnCreate
	sessions := session.NewManager(opts, logger.Component("session")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(sessions, metrics, encoding, logger.Component("api"))
	wsHandler := ws.NewHandler(sessions, metrics, logger.Component("ws"))

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		metrics.Close()
		return nil, fmt.Errorf("failed to mount static assets: %w", err)
	}
	router.StaticFS("/static", http.FS(assets))

	handlers.Register(router)
	router.GET("/sessions/:id/stream", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Address(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions: sessions,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session manager
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones up to ctx and
// then tears down every session
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	s.sessions.CloseAll()
	s.metrics.Close()
	_ = s.logger.Sync()

	return err
}

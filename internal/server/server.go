// Package server exposes the preview control surface: REST endpoints
// for driving sandboxed previews plus the WebSocket event stream.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/config"
	"github.com/draftforge/preview/internal/host/intentexec"
	"github.com/draftforge/preview/internal/infrastructure/monitoring"
	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/ws"
)

// Server wraps the HTTP router and preview machinery.
type Server struct {
	router   *gin.Engine
	previews *PreviewManager
	hub      *ws.Hub
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// New builds a server from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("initializing preview engine",
		zap.String("port", cfg.Server.Port),
		zap.String("intent_backend", cfg.Intent.BackendURL),
	)

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	hub := ws.NewHub(logger, metrics)

	var executor intentexec.Executor
	if cfg.Intent.BackendURL != "" {
		executor = intentexec.NewClient(intentexec.Config{
			BaseURL: cfg.Intent.BackendURL,
			Timeout: cfg.Intent.Timeout,
			Logger:  logger,
		})
	}

	previews := NewPreviewManager(cfg, logger, metrics, executor, hub.SinkFor)
	handlers := NewHandlers(previews)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(corsMiddleware())
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(rateLimitMiddleware(cfg.RateLimit))
	}

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Preview lifecycle
	router.POST("/previews", handlers.CreatePreview)
	router.GET("/previews", handlers.ListPreviews)
	router.GET("/previews/:id", handlers.GetPreview)
	router.DELETE("/previews/:id", handlers.ClosePreview)
	router.PUT("/previews/:id/content", handlers.SetContent)
	router.POST("/previews/:id/refresh", handlers.Refresh)
	router.POST("/previews/:id/manifest", handlers.PushManifest)
	router.GET("/previews/:id/html", handlers.GetHTML)

	// Interaction driving
	router.POST("/previews/:id/click", handlers.Click)
	router.POST("/previews/:id/submit", handlers.Submit)

	// Element operations
	router.POST("/previews/:id/elements/update", handlers.UpdateElement)
	router.POST("/previews/:id/elements/delete", handlers.DeleteElement)
	router.POST("/previews/:id/elements/duplicate", handlers.DuplicateElement)
	router.POST("/previews/:id/elements/query", handlers.QueryElements)

	// Diagnostics
	router.GET("/previews/:id/errors", handlers.GetErrors)
	router.DELETE("/previews/:id/errors", handlers.ClearErrors)
	router.POST("/previews/:id/commands", handlers.SendCommand)

	// Overlay completion
	router.POST("/previews/:id/overlays/:token/complete", handlers.CompleteOverlay)

	// Event stream
	router.GET("/stream", hub.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	logger.Info("server initialized")

	return &Server{
		router:   router,
		previews: previews,
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Router exposes the gin engine. Used by tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Previews exposes the preview manager.
func (s *Server) Previews() *PreviewManager { return s.previews }

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close tears down previews and the event hub.
func (s *Server) Close() error {
	s.logger.Info("shutting down")
	s.previews.CloseAll()
	s.hub.Close()
	s.logger.Sync()
	return nil
}

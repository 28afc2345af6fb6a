// Package server wires configuration, logging, metrics, the session
// registry, the proxy engine and both API surfaces into one HTTP
// server.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/multibrowse/backend/internal/api/http"
	"github.com/multibrowse/backend/internal/api/middleware"
	"github.com/multibrowse/backend/internal/api/ws"
	"github.com/multibrowse/backend/internal/domain/automation"
	"github.com/multibrowse/backend/internal/domain/proxy"
	"github.com/multibrowse/backend/internal/domain/session"
	"github.com/multibrowse/backend/internal/infrastructure/config"
	"github.com/multibrowse/backend/internal/infrastructure/logging"
	"github.com/multibrowse/backend/internal/infrastructure/monitoring"
)

// Server is the assembled service.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *session.Registry
	hub      *ws.Hub
	httpSrv  *http.Server
}

// New builds the full service graph from configuration.
func New(cfg *config.Config, logger *logging.Logger) *Server {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := monitoring.NewMetrics()

	// The navigator factory closes over the automation engine, which in
	// turn needs the registry; the variable is assigned below, before
	// any session can be created.
	var auto *automation.Engine
	registry := session.NewRegistry(
		session.Config{
			MaxSessions:   cfg.Sessions.MaxSessions,
			IdleTimeout:   cfg.Sessions.IdleTimeout,
			SweepInterval: cfg.Sessions.SweepInterval,
		},
		logger.Named("session"),
		session.WithMetrics(metrics),
		session.WithNavigatorFactory(func(sessionID string) session.Navigator {
			if auto == nil {
				return nil
			}
			return auto.NavigatorFor(sessionID)
		}),
	)

	engine := proxy.NewEngine(
		proxy.Config{
			Timeout:      cfg.Proxy.Timeout,
			MaxRedirects: cfg.Proxy.MaxRedirects,
			MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
			AllowPrivate: cfg.Proxy.AllowPrivate,
		},
		registry, logger.Named("proxy"), metrics,
	)
	auto = automation.NewEngine(automation.Config{}, engine, logger.Named("automation"))

	hub := ws.NewHub(registry, logger.Named("ws"), metrics)
	handler := apihttp.NewHandler(registry, engine, hub, logger.Named("http"), metrics)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		monitoring.Middleware(metrics),
		middleware.CORS(middleware.DefaultCORSConfig()),
	)
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/", handler.Root)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", hub.HandleConnection)
	router.Any("/proxy/:sessionId/*target", handler.Proxy)

	api := router.Group("/api")
	{
		api.POST("/user/create", handler.CreateUser)
		api.POST("/navigate", handler.Navigate)
		api.GET("/sessions/stats", handler.SessionStats)
		api.GET("/sessions/:sessionId", handler.GetSession)
		api.DELETE("/sessions/:sessionId", handler.DeleteSession)
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		hub:      hub,
		httpSrv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the background workers and serves until the listener
// closes.
func (s *Server) Run() error {
	s.registry.StartSweeper()
	s.hub.StartStatsBroadcast()

	s.logger.Info("server listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the service: the registry stops admitting and closes
// every session, the hub drops its connections, then the HTTP listener
// drains within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	s.registry.Shutdown()
	s.hub.Shutdown()
	return s.httpSrv.Shutdown(ctx)
}

// Package http exposes the REST and proxy surface: session CRUD,
// registry stats, health and the per-session proxy route.
package http

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/multibrowse/backend/internal/domain/proxy"
	"github.com/multibrowse/backend/internal/domain/session"
	"github.com/multibrowse/backend/internal/infrastructure/logging"
	"github.com/multibrowse/backend/internal/infrastructure/monitoring"
	"github.com/multibrowse/backend/internal/infrastructure/resilience"
)

// ConnCounter reports live realtime connections. Satisfied by the hub.
type ConnCounter interface {
	ConnectionCount() int
}

// Handler serves the HTTP API.
type Handler struct {
	registry  *session.Registry
	engine    *proxy.Engine
	conns     ConnCounter
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	startTime time.Time
}

// NewHandler wires the API handler. conns and metrics may be nil.
func NewHandler(registry *session.Registry, engine *proxy.Engine, conns ConnCounter, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		registry:  registry,
		engine:    engine,
		conns:     conns,
		logger:    logger,
		metrics:   metrics,
		startTime: time.Now(),
	}
}

// Proxy handles any method on /proxy/:sessionId/*target. The target is
// recovered from the raw escaped path so percent-encoded slashes inside
// the embedded URL survive routing.
func (h *Handler) Proxy(c *gin.Context) {
	sessionID, target, err := proxy.ExtractTarget(c.Request.URL.EscapedPath(), c.Request.URL.RawQuery)
	if err != nil {
		h.proxyError(c, err, "")
		return
	}

	resp, err := h.engine.Handle(c.Request.Context(), sessionID, target, c.Request.Method, c.Request.Header, c.Request.Body)
	if err != nil {
		h.proxyError(c, err, target)
		return
	}

	header := c.Writer.Header()
	for name, values := range resp.Headers {
		if name == "Content-Type" || name == "Content-Length" {
			continue
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}
	c.Data(resp.Status, resp.Headers.Get("Content-Type"), resp.Body)
}

// proxyError maps the error taxonomy onto HTTP statuses.
func (h *Handler) proxyError(c *gin.Context, err error, target string) {
	var status int
	var class string
	switch {
	case errors.Is(err, proxy.ErrInvalidTarget):
		status, class = http.StatusBadRequest, "invalid_target"
	case errors.Is(err, proxy.ErrUnsafeTarget):
		status, class = http.StatusForbidden, "unsafe_target"
	case errors.Is(err, session.ErrNotFound):
		status, class = http.StatusNotFound, "session_not_found"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		status, class = http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, proxy.ErrUpstream):
		status, class = http.StatusBadGateway, "upstream"
	default:
		status, class = http.StatusInternalServerError, "internal"
	}

	if h.metrics != nil {
		h.metrics.RecordProxyError(class)
	}
	h.logger.Warn("proxy request failed",
		zap.String("target", target),
		zap.String("class", class),
		zap.Error(err))
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// CreateUser provisions a session over plain HTTP, mirroring the
// register-user event.
func (h *Handler) CreateUser(c *gin.Context) {
	s, err := h.registry.Create()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrCapacityExceeded) || errors.Is(err, session.ErrRegistryClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"userId":      s.ID(),
		"sessionInfo": s.Info(),
	})
}

// SessionStats returns the registry snapshot plus realtime
// connectivity.
func (h *Handler) SessionStats(c *gin.Context) {
	stats := h.registry.Stats()
	connected := 0
	if h.conns != nil {
		connected = h.conns.ConnectionCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"totalSessions":    stats.TotalSessions,
			"activeSessions":   stats.ActiveSessions,
			"maxSessions":      stats.MaxSessions,
			"sessions":         stats.Sessions,
			"connectedClients": connected,
		},
	})
}

// GetSession returns one session's snapshot.
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.registry.Get(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": session.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionInfo": s.Info()})
}

// DeleteSession closes a session.
func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.registry.Close(c.Param("sessionId")) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": session.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type navigateRequest struct {
	UserID string `json:"userId" binding:"required"`
	URL    string `json:"url" binding:"required"`
}

// Navigate drives a delegated navigation over plain HTTP.
func (h *Handler) Navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "userId and url are required"})
		return
	}

	s, ok := h.registry.Get(req.UserID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": session.ErrNotFound.Error()})
		return
	}
	nav := s.Navigator()
	if nav == nil {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "navigation unavailable"})
		return
	}

	result, err := nav.Navigate(c.Request.Context(), req.URL)
	if err != nil {
		h.proxyError(c, err, req.URL)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// Health reports process and registry liveness.
func (h *Handler) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := h.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).Seconds(),
		"memory": gin.H{
			"allocMB":    mem.Alloc / 1024 / 1024,
			"sysMB":      mem.Sys / 1024 / 1024,
			"numGC":      mem.NumGC,
			"goroutines": runtime.NumGoroutine(),
		},
		"sessions": gin.H{
			"total": stats.TotalSessions,
			"max":   stats.MaxSessions,
		},
	})
}

// Root describes the service.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "multibrowse-backend",
		"status":  "running",
		"endpoints": gin.H{
			"health":  "/health",
			"metrics": "/metrics",
			"proxy":   "/proxy/:sessionId/*url",
			"ws":      "/ws",
			"api":     "/api",
		},
	})
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/multibrowse/backend/internal/domain/session"
	"github.com/multibrowse/backend/internal/infrastructure/logging"
	"github.com/multibrowse/backend/internal/infrastructure/monitoring"
	"github.com/multibrowse/backend/internal/shared/id"
)

const (
	statsInterval = 30 * time.Second
	navTimeout    = 45 * time.Second
)

// Hub owns every live WebSocket connection and routes the realtime
// event protocol between clients and the session registry.
//
// A connection binds to at most one session at a time; a session may
// have several connections (tabs). Dropping a connection never closes
// its session, so clients can reconnect and reclaim it by id.
type Hub struct {
	registry *session.Registry
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	conns     map[*Conn]struct{}
	byConn    map[*Conn]string
	bySession map[string]map[*Conn]struct{}
	closed    bool

	statsOnce sync.Once
	stopStats chan struct{}
	statsDone chan struct{}
}

// NewHub creates a hub over the registry. The metrics handle may be
// nil.
func NewHub(registry *session.Registry, logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:     make(map[*Conn]struct{}),
		byConn:    make(map[*Conn]string),
		bySession: make(map[string]map[*Conn]struct{}),
		stopStats: make(chan struct{}),
		statsDone: make(chan struct{}),
	}
}

// HandleConnection upgrades a request and runs the connection until it
// drops.
func (h *Hub) HandleConnection(c *gin.Context) {
	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &Conn{
		id:   id.NewConnectionID().String(),
		hub:  h,
		sock: sock,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = sock.Close()
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	h.logger.Debug("websocket connected", zap.String("conn_id", conn.id))

	go conn.writePump()
	conn.readPump()
}

// dispatch routes one inbound event.
func (h *Hub) dispatch(c *Conn, env Envelope) {
	switch env.Event {
	case EventRegisterUser:
		h.handleRegister(c, env.Data)
	case EventNavigate:
		h.handleNavigate(c, env.Data)
	case EventExecuteScript:
		h.handleScript(c, env.Data)
	case EventGetSessionInfo:
		h.handleSessionInfo(c)
	case EventCreateTab:
		h.handleCreateTab(c, env.Data)
	case EventCloseSession:
		h.handleCloseSession(c)
	case EventPing:
		c.emit(EventPong, map[string]time.Time{"timestamp": time.Now()})
	default:
		h.logger.Debug("unknown websocket event",
			zap.String("conn_id", c.id), zap.String("event", env.Event))
	}
}

func (h *Hub) handleRegister(c *Conn, data json.RawMessage) {
	var payload RegisterPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}

	// Reclaim an existing session when the client presents a live id.
	if payload.UserID != "" {
		if s, ok := h.registry.Get(payload.UserID); ok {
			s.Touch(time.Now())
			h.bind(c, s.ID())
			c.emit(EventUserRegistered, UserRegistered{
				UserID:      s.ID(),
				SessionInfo: s.Info(),
				Reconnected: true,
			})
			h.BroadcastStats()
			return
		}
	}

	s, err := h.registry.Create()
	if err != nil {
		c.emit(EventRegistrationError, ErrorPayload{Error: registerErrorMessage(err)})
		return
	}
	h.bind(c, s.ID())
	c.emit(EventUserRegistered, UserRegistered{
		UserID:      s.ID(),
		SessionInfo: s.Info(),
	})
	h.BroadcastStats()
}

func registerErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrCapacityExceeded):
		return "maximum session limit reached, try again later"
	case errors.Is(err, session.ErrRegistryClosed):
		return "service is shutting down"
	default:
		return "failed to create session"
	}
}

func (h *Hub) handleNavigate(c *Conn, data json.RawMessage) {
	var payload NavigatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.URL == "" {
		c.emit(EventNavigationError, NavigationError{Error: "url is required"})
		return
	}

	s, ok := h.boundSession(c)
	if !ok {
		c.emit(EventNavigationError, NavigationError{URL: payload.URL, Error: "not registered"})
		return
	}
	nav := s.Navigator()
	if nav == nil {
		c.emit(EventNavigationError, NavigationError{URL: payload.URL, Error: "navigation unavailable"})
		return
	}

	// Navigation progress reaches every connection bound to the
	// session, not just the one that asked.
	sid := s.ID()
	h.EmitToSession(sid, EventNavigationStarted, NavigationStarted{URL: payload.URL, Timestamp: time.Now()})

	// Fire and forget: the read loop must not block on a page load.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), navTimeout)
		defer cancel()

		result, err := nav.Navigate(ctx, payload.URL)
		if err != nil {
			h.EmitToSession(sid, EventNavigationError, NavigationError{URL: payload.URL, Error: err.Error()})
			return
		}
		h.EmitToSession(sid, EventNavigationCompleted, NavigationCompleted{
			URL:       result.URL,
			Title:     result.Title,
			Status:    result.Status,
			Timestamp: time.Now(),
		})
	}()
}

func (h *Hub) handleScript(c *Conn, data json.RawMessage) {
	var payload ScriptPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Script == "" {
		c.emit(EventScriptError, ErrorPayload{Error: "script is required"})
		return
	}

	s, ok := h.boundSession(c)
	if !ok {
		c.emit(EventScriptError, ErrorPayload{Error: "not registered"})
		return
	}
	nav := s.Navigator()
	if nav == nil {
		c.emit(EventScriptError, ErrorPayload{Error: "script execution unavailable"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), navTimeout)
		defer cancel()

		result, err := nav.RunScript(ctx, payload.Script)
		if err != nil {
			c.emit(EventScriptError, ErrorPayload{Error: err.Error()})
			return
		}
		c.emit(EventScriptResult, result)
	}()
}

func (h *Hub) handleSessionInfo(c *Conn) {
	s, ok := h.boundSession(c)
	if !ok {
		c.emit(EventSessionInfoError, ErrorPayload{Error: "not registered"})
		return
	}
	c.emit(EventSessionInfo, SessionInfoPayload{SessionInfo: s.Info()})
}

func (h *Hub) handleCreateTab(c *Conn, data json.RawMessage) {
	var payload TabPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}

	s, err := h.registry.Create()
	if err != nil {
		c.emit(EventTabCreationError, ErrorPayload{Error: registerErrorMessage(err)})
		return
	}
	h.bind(c, s.ID())
	c.emit(EventTabCreated, TabCreated{
		UserID:      s.ID(),
		SessionInfo: s.Info(),
		URL:         payload.URL,
	})
	h.BroadcastStats()
}

func (h *Hub) handleCloseSession(c *Conn) {
	// Every connection bound to the session is unbound and notified,
	// not just the one that asked; a surviving binding would point at a
	// closed session.
	h.mu.Lock()
	sid, bound := h.byConn[c]
	var peers []*Conn
	if bound {
		peers = make([]*Conn, 0, len(h.bySession[sid]))
		for pc := range h.bySession[sid] {
			peers = append(peers, pc)
		}
		for _, pc := range peers {
			h.unbindLocked(pc)
		}
	}
	h.mu.Unlock()

	if !bound {
		c.emit(EventCloseSessionError, ErrorPayload{Error: "not registered"})
		return
	}

	h.registry.Close(sid)
	for _, pc := range peers {
		pc.emit(EventSessionClosed, map[string]string{"userId": sid})
	}
	h.BroadcastStats()
}

// bind attaches a connection to a session, replacing any previous
// binding.
func (h *Hub) bind(c *Conn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(c)
	h.byConn[c] = sessionID
	set, ok := h.bySession[sessionID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.bySession[sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unbindLocked(c *Conn) {
	sid, ok := h.byConn[c]
	if !ok {
		return
	}
	delete(h.byConn, c)
	if set, ok := h.bySession[sid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.bySession, sid)
		}
	}
}

func (h *Hub) boundSession(c *Conn) (*session.Session, bool) {
	h.mu.RLock()
	sid, ok := h.byConn[c]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return h.registry.Get(sid)
}

// drop removes a connection. The bound session stays alive for
// reconnection.
func (h *Hub) drop(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	h.unbindLocked(c)
	h.mu.Unlock()

	c.close()
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
	h.logger.Debug("websocket disconnected", zap.String("conn_id", c.id))
}

// EmitToSession sends an event to every connection bound to sessionID.
func (h *Hub) EmitToSession(sessionID, event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.bySession[sessionID]))
	for c := range h.bySession[sessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.emit(event, payload)
	}
}

// BroadcastStats pushes the registry snapshot to every connection.
func (h *Hub) BroadcastStats() {
	h.mu.RLock()
	payload := StatsPayload{
		Stats:            h.registry.Stats(),
		ConnectedClients: len(h.conns),
		ActiveUsers:      len(h.bySession),
		Timestamp:        time.Now(),
	}
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.emit(EventSessionStats, payload)
	}
}

// StartStatsBroadcast emits session-stats on a fixed cadence until
// Shutdown.
func (h *Hub) StartStatsBroadcast() {
	h.statsOnce.Do(func() {
		go func() {
			defer close(h.statsDone)
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					h.BroadcastStats()
				case <-h.stopStats:
					return
				}
			}
		}()
	})
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown stops the stats broadcaster and closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	remaining := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		remaining = append(remaining, c)
	}
	h.mu.Unlock()

	close(h.stopStats)
	h.statsOnce.Do(func() { close(h.statsDone) })
	<-h.statsDone

	for _, c := range remaining {
		h.drop(c)
	}
	h.logger.Info("websocket hub drained", zap.Int("closed", len(remaining)))
}

package session

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/multibrowse/backend/internal/infrastructure/logging"
	"github.com/multibrowse/backend/internal/infrastructure/monitoring"
	"github.com/multibrowse/backend/internal/shared/id"
)

// Config bounds the registry.
type Config struct {
	MaxSessions   int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:   10,
		IdleTimeout:   30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Option customizes a Registry at construction.
type Option func(*Registry)

// WithNavigatorFactory attaches a navigation capability to every
// session the registry creates.
func WithNavigatorFactory(f NavigatorFactory) Option {
	return func(r *Registry) { r.factory = f }
}

// WithMetrics wires registry gauges and counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the registry clock. Used by tests to drive the
// idle sweep deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is the bounded, concurrency-safe collection of live
// sessions. Creation, lookup, closure and the idle sweep all go
// through it.
type Registry struct {
	cfg     Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	factory NavigatorFactory
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	sweepOnce sync.Once
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewRegistry creates an empty registry. Call StartSweeper to begin
// idle eviction.
func NewRegistry(cfg Config, logger *logging.Logger, opts ...Option) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	r := &Registry{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create admits a new session, assigning a unique id and a user agent
// from the fixed pool. Fails with ErrCapacityExceeded at the limit and
// ErrRegistryClosed after shutdown began; neither failure mode changes
// the registry.
func (r *Registry) Create() (*Session, error) {
	sessionID := id.NewSessionID().String()
	ua := userAgents[rand.IntN(len(userAgents))]

	s, err := newSession(sessionID, ua, r.now())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrCapacityExceeded
	}
	r.sessions[sessionID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	if r.factory != nil {
		s.attachNavigator(r.factory(sessionID))
	}
	if r.metrics != nil {
		r.metrics.IncSessionsCreated()
		r.metrics.SetSessionsActive(count)
	}
	r.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.Int("active_sessions", count))
	return s, nil
}

// Get resolves a live session by id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Close removes a session and releases its resources. Reports whether
// the id referred to a live session.
func (r *Registry) Close(sessionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, sessionID)
	count := len(r.sessions)
	r.mu.Unlock()

	s.close()
	if r.metrics != nil {
		r.metrics.SetSessionsActive(count)
		r.metrics.IncSessionsEvicted("closed")
	}
	r.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.Int("active_sessions", count))
	return true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats snapshots the registry, ordered by creation time.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	maxSessions := r.cfg.MaxSessions
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	active := 0
	for _, info := range infos {
		if info.IsActive {
			active++
		}
	}
	return Stats{
		TotalSessions:  len(infos),
		ActiveSessions: active,
		MaxSessions:    maxSessions,
		Sessions:       infos,
	}
}

// StartSweeper launches the background idle sweep. Safe to call once;
// Shutdown stops it.
func (r *Registry) StartSweeper() {
	r.sweepOnce.Do(func() {
		go func() {
			defer close(r.sweepDone)
			ticker := time.NewTicker(r.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.SweepIdle()
				case <-r.stopSweep:
					return
				}
			}
		}()
	})
}

// SweepIdle evicts every session idle for at least the configured
// timeout. Candidates are re-checked under the write lock so a session
// touched between scan and eviction survives.
func (r *Registry) SweepIdle() int {
	now := r.now()

	r.mu.RLock()
	var candidates []string
	for sid, s := range r.sessions {
		if s.IdleFor(now) >= r.cfg.IdleTimeout {
			candidates = append(candidates, sid)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	var evicted []*Session
	r.mu.Lock()
	for _, sid := range candidates {
		s, ok := r.sessions[sid]
		if !ok || s.IdleFor(now) < r.cfg.IdleTimeout {
			continue
		}
		delete(r.sessions, sid)
		evicted = append(evicted, s)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, s := range evicted {
		s.close()
		if r.metrics != nil {
			r.metrics.IncSessionsEvicted("idle")
		}
		r.logger.Info("session evicted",
			zap.String("session_id", s.ID()),
			zap.Duration("idle", s.IdleFor(now)))
	}
	if len(evicted) > 0 && r.metrics != nil {
		r.metrics.SetSessionsActive(count)
	}
	return len(evicted)
}

// Shutdown stops admitting sessions, halts the sweeper and closes every
// live session. Idempotent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	remaining := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		remaining = append(remaining, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	close(r.stopSweep)
	r.sweepOnce.Do(func() { close(r.sweepDone) })
	<-r.sweepDone

	for _, s := range remaining {
		s.close()
	}
	if r.metrics != nil {
		r.metrics.SetSessionsActive(0)
	}
	r.logger.Info("session registry drained", zap.Int("closed", len(remaining)))
}

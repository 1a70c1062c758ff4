package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/catalog"
	"github.com/vyrodovalexey/vibekart/internal/query"
)

var (
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sessions_active",
			Help: "Number of open storefront sessions",
		},
	)

	evictedSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_sessions_evicted_total",
			Help: "Total number of storefront sessions closed for inactivity",
		},
	)
)

// Options configures a Manager.
type Options struct {
	// Debounce is the quiet period before a filter change is fetched.
	Debounce time.Duration
	// IdleTTL is how long a session without subscribers survives (0 = forever).
	IdleTTL time.Duration
	// MaxSessions caps open sessions (0 = unlimited).
	MaxSessions int
	// Clock drives the debounce timers; nil means the system clock.
	Clock query.Clock
}

// Manager creates, looks up and evicts sessions.
type Manager struct {
	source catalog.Source
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions read from source.
func NewManager(source catalog.Source, logger *zap.Logger, opts Options) *Manager {
	return &Manager{
		source:   source,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session and starts its initial fetches.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create session: %w", ctx.Err())
	default:
	}

	var opts []query.Option
	if m.opts.Debounce > 0 {
		opts = append(opts, query.WithDebounce(m.opts.Debounce))
	}
	if m.opts.Clock != nil {
		opts = append(opts, query.WithClock(m.opts.Clock))
	}

	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s := newSession(uuid.New().String(), m.source, m.logger, m.now, opts...)
	m.sessions[s.id] = s
	m.mu.Unlock()

	activeSessions.Inc()
	s.start()

	m.logger.Info("session created", zap.String("session_id", s.id))
	return s, nil
}

// Get returns the session with the given id. A successful lookup counts as
// activity for idle eviction.
func (m *Manager) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	s, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	// Closed between the lookup and the touch: it has already left the map.
	if err := s.touch(); err != nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and forgets the session with the given id.
func (m *Manager) Delete(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}

	m.mu.Lock()
	s, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return ErrNotFound
	}

	s.close()
	activeSessions.Dec()
	m.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Sweep closes sessions idle for longer than IdleTTL and returns how many it
// closed.
func (m *Manager) Sweep() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTTL)

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if since, ok := s.idleSince(); ok && since.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
		activeSessions.Dec()
		evictedSessionsTotal.Inc()
		m.logger.Info("session evicted", zap.String("session_id", s.id))
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("idle sessions swept", zap.Int("count", n))
			}
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
		activeSessions.Dec()
	}

	m.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
}

package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/dryingassistant/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActiveGauge receives the live session count.
type ActiveGauge interface {
	SetActiveSessions(n int)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the idle time after which Sweep evicts a session. Zero
// disables eviction.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithActiveGauge reports the session count after every change.
func WithActiveGauge(g ActiveGauge) ManagerOption {
	return func(m *Manager) { m.gauge = g }
}

// WithClock replaces time.Now for eviction decisions.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// Manager is the in-memory registry of live sessions.
type Manager struct {
	cfg  SessionConfig
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session

	ttl    time.Duration
	gauge  ActiveGauge
	now    func() time.Time
	logger *zap.Logger
}

// NewManager creates an empty registry. Every session it creates shares
// cfg and deps.
func NewManager(cfg SessionConfig, deps Deps, opts ...ManagerOption) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "session_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session with a random id.
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.cfg, m.deps)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.report(n)
	m.logger.Info("session created", zap.String("session_id", s.ID()))
	return s
}

// Get returns a live session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "session not found: "+id)
	}
	s.touch()
	return s, nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return types.NewError(types.ErrNotFound, "session not found: "+id)
	}
	m.report(n)
	m.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed. Sessions with a turn in flight are kept.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var evicted []string
	for id, s := range m.sessions {
		if !s.LastActive().Before(cutoff) {
			continue
		}
		if !s.turnMu.TryLock() {
			continue
		}
		s.turnMu.Unlock()
		delete(m.sessions, id)
		evicted = append(evicted, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if len(evicted) > 0 {
		m.report(n)
		m.logger.Info("idle sessions evicted", zap.Int("count", len(evicted)), zap.Int("remaining", n))
	}
	return len(evicted)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) report(n int) {
	if m.gauge != nil {
		m.gauge.SetActiveSessions(n)
	}
}

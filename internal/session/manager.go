// Package session is the façade every transport talks to.
//
// A Manager creates, looks up and deletes Sessions. A Session wraps one
// Simulator with a mutex, an optional autoplay driver and change
// subscriptions. HTTP handlers, the WebSocket stream and the CLI never touch
// a Simulator directly.
//
// Data flow:
//
//	HTTP POST /sessions        → Manager.Create → scenario.Build → Simulator
//	HTTP POST /sessions/x/tick → Session.Tick   → Simulator.Tick  → subscribers
//	WebSocket                  → Session.Subscribe (push on every change)
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/config"
	"github.com/snehjoshi/epochsim/internal/logging"
	"github.com/snehjoshi/epochsim/internal/metrics"
	"github.com/snehjoshi/epochsim/internal/scenario"
)

// ─── Error sentinels ──────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when no session has the requested id.
	ErrNotFound = errors.New("session: not found")

	// ErrTooManySessions is returned by Create when the session limit is reached.
	ErrTooManySessions = errors.New("session: too many sessions")

	// ErrTooManyProcesses is returned when a session would exceed its process limit.
	ErrTooManyProcesses = errors.New("session: too many processes")
)

// ─── Limits ───────────────────────────────────────────────────────────────────

// Limits bounds what clients may ask of the manager.
type Limits struct {
	MaxSessions        int
	MaxProcesses       int
	MaxStepsPerRequest int
	MaxHistory         int // tape depth cap per session; zero means none
	DefaultTickPeriod  time.Duration
	MinTickPeriod      time.Duration
}

// LimitsFromConfig converts the simulation section of the server config.
func LimitsFromConfig(c config.SimulationConfig) Limits {
	return Limits{
		MaxSessions:        c.MaxSessions,
		MaxProcesses:       c.MaxProcesses,
		MaxStepsPerRequest: c.MaxStepsPerRequest,
		MaxHistory:         c.MaxHistory,
		DefaultTickPeriod:  time.Duration(c.DefaultTickPeriodMs) * time.Millisecond,
		MinTickPeriod:      time.Duration(c.MinTickPeriodMs) * time.Millisecond,
	}
}

// ─── Option / functional options ─────────────────────────────────────────────

// Option is a functional option for the Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics.Registry so that every tick, back step,
// process creation and kill increments the relevant counter.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = reg }
}

// WithLogger sets the logger for session lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// ─── Manager ──────────────────────────────────────────────────────────────────

// Manager owns every live session.
//
// All methods are safe for concurrent use.
type Manager struct {
	cat    *catalog.Catalog
	limits Limits

	metrics *metrics.Registry
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager that builds sessions from cat.
func NewManager(cat *catalog.Catalog, limits Limits, opts ...Option) *Manager {
	m := &Manager{
		cat:      cat,
		limits:   limits,
		log:      logging.Discard(),
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("component", "session")
	return m
}

// Catalog returns the algorithm catalog sessions are built from.
func (m *Manager) Catalog() *catalog.Catalog { return m.cat }

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

// Create builds a simulator for sc and registers a new session for it.
// A scenario without a tick period gets the configured default.
func (m *Manager) Create(sc *scenario.Scenario) (*Session, error) {
	if len(sc.Processes) > m.limits.MaxProcesses {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyProcesses, len(sc.Processes), m.limits.MaxProcesses)
	}
	cp := *sc
	period := cp.TickPeriod(m.limits.DefaultTickPeriod)
	if period < m.limits.MinTickPeriod {
		return nil, fmt.Errorf("%w: tick period %s below minimum %s", scenario.ErrInvalid, period, m.limits.MinTickPeriod)
	}
	cp.TickPeriodMs = int(period / time.Millisecond)

	sim, err := cp.Build(m.cat, nil)
	if err != nil {
		return nil, err
	}
	desc, _ := m.cat.Lookup(cp.Algorithm) // resolved by Build
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}

	s := &Session{
		id:       id,
		name:     cp.Name,
		created:  time.Now().UTC(),
		schema:   desc.Schema(),
		maxSteps: m.limits.MaxStepsPerRequest,
		maxProcs: m.limits.MaxProcesses,
		maxDepth: m.limits.MaxHistory,
		log:      m.log,
		metrics:  m.metrics,
		sim:      sim,
		subs:     make(map[int]chan View),
	}

	m.mu.Lock()
	if len(m.sessions) >= m.limits.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.limits.MaxSessions)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc(cp.Algorithm)
		m.metrics.ActiveSessions.Add(1)
	}
	m.log.Info("session created", "session", id, "algorithm", cp.Algorithm,
		"processes", len(cp.Processes), "period", period)
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: malformed id %q", ErrNotFound, id)
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// List returns every live session, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	// ULIDs sort lexicographically by creation time.
	slices.SortFunc(out, func(a, b *Session) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

// Delete stops and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	s.close()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(-1)
	}
	m.log.Info("session deleted", "session", id)
	return nil
}

// Close stops every session. The manager is empty afterwards.
func (m *Manager) Close() {
	for _, s := range m.List() {
		_ = m.Delete(s.id)
	}
}

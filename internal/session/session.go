package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snehjoshi/epochsim/internal/metrics"
	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/simulator"
	"github.com/snehjoshi/epochsim/internal/types"
)

var (
	// ErrSteps is returned when a tick or back request asks for fewer than
	// one or more than the configured maximum number of steps.
	ErrSteps = errors.New("session: step count out of range")

	// ErrClosed is returned by operations on a deleted session.
	ErrClosed = errors.New("session: closed")

	// ErrHistoryFull is returned when a tick would push the tape past the
	// configured history limit.
	ErrHistoryFull = errors.New("session: history limit reached")
)

// View is a consistent snapshot of one session, safe to hand to another
// goroutine or encode as JSON.
type View struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	Algorithm    string          `json:"algorithm"`
	Time         int             `json:"time"`
	Currently    types.Indicator `json:"currently"`
	Depth        int             `json:"depth"`
	Playing      bool            `json:"playing"`
	Finished     bool            `json:"finished"`
	TickPeriodMs int64           `json:"tick_period_ms"`
	State        types.Record    `json:"state"`
	Fields       []types.Flag    `json:"fields"`
	Future       []types.Record  `json:"future"`
	Ready        []types.Record  `json:"ready"`
	Ended        []types.Record  `json:"ended"`
	Killed       []types.Record  `json:"killed"`
	Processes    []types.Record  `json:"processes"`
}

// Session owns one Simulator and serializes every call into it. Autoplay
// runs on its own goroutine and takes the same lock, so it never overlaps a
// manual tick or back.
type Session struct {
	id      string
	name    string
	created time.Time
	schema  scheduler.Schema

	maxSteps int
	maxProcs int
	maxDepth int
	log      *slog.Logger
	metrics  *metrics.Registry

	mu      sync.Mutex
	sim     *simulator.Simulator
	closed  bool
	playing bool
	stop    chan struct{}
	done    chan struct{}
	subs    map[int]chan View
	nextSub int
}

// ID returns the session's ULID.
func (s *Session) ID() string { return s.id }

// Name returns the scenario name the session was created from.
func (s *Session) Name() string { return s.name }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// View returns the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		ID:           s.id,
		Name:         s.name,
		Algorithm:    s.sim.Algorithm(),
		Time:         s.sim.Time(),
		Currently:    s.sim.Currently(),
		Depth:        s.sim.Depth(),
		Playing:      s.playing,
		Finished:     s.sim.Finished(),
		TickPeriodMs: s.sim.Period().Milliseconds(),
		State:        s.sim.AlgorithmState(),
		Fields:       s.sim.ProcessFlags(),
		Future:       s.sim.FutureQueue(),
		Ready:        s.sim.Queue(),
		Ended:        s.sim.EndedQueue(),
		Killed:       s.sim.KilledQueue(),
		Processes:    s.sim.AllProcesses(),
	}
}

func (s *Session) checkSteps(n int) error {
	if n < 1 || n > s.maxSteps {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrSteps, n, s.maxSteps)
	}
	return nil
}

// historyFull reports whether n more ticks would exceed the history limit.
func (s *Session) historyFull(n int) bool {
	return s.maxDepth > 0 && s.sim.Depth()+n > s.maxDepth
}

// Tick advances the simulation n steps. It takes no step at all when the
// history limit would be exceeded.
func (s *Session) Tick(n int) (View, error) {
	if err := s.checkSteps(n); err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrClosed
	}
	if s.historyFull(n) {
		return View{}, fmt.Errorf("%w: depth %d, limit %d", ErrHistoryFull, s.sim.Depth(), s.maxDepth)
	}
	for range n {
		s.sim.Tick()
	}
	s.count(func(m *metrics.Registry) { m.TicksForward.Add(s.sim.Algorithm(), int64(n)) })
	return s.publishLocked(), nil
}

// Back rewinds up to n steps and pauses autoplay. Steps beyond the start of
// history are ignored; the returned count says how many were taken.
func (s *Session) Back(n int) (View, int, error) {
	if err := s.checkSteps(n); err != nil {
		return View{}, 0, err
	}
	s.Pause()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, 0, ErrClosed
	}
	taken := 0
	for range n {
		if !s.sim.Back() {
			break
		}
		taken++
	}
	s.count(func(m *metrics.Registry) { m.TicksBackward.Add(s.sim.Algorithm(), int64(taken)) })
	return s.publishLocked(), taken, nil
}

// CreateProcess injects a process built from user fields. Missing inputs take
// their schema defaults; the arrival is always the current time.
func (s *Session) CreateProcess(fields scenario.Fields) (types.Record, error) {
	p, err := scenario.NewProcess(s.schema, fields, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n := len(s.sim.AllProcesses()) + len(s.sim.KilledQueue()); n >= s.maxProcs {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyProcesses, s.maxProcs)
	}
	if err := s.sim.CreateProcess(p); err != nil {
		return nil, err
	}
	s.count(func(m *metrics.Registry) { m.ProcessesCreated.Inc(s.sim.Algorithm()) })
	s.log.Debug("process created", "session", s.id, "pid", p.ID, "arrival", p.Arrival)
	s.publishLocked()
	return p.Record(s.sim.ProcessFlags()), nil
}

// Kill removes a ready process.
func (s *Session) Kill(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.sim.KillProcess(pid); err != nil {
		return err
	}
	s.count(func(m *metrics.Registry) { m.ProcessesKilled.Inc(s.sim.Algorithm()) })
	s.log.Debug("process killed", "session", s.id, "pid", pid)
	s.publishLocked()
	return nil
}

// ─── Autoplay ─────────────────────────────────────────────────────────────────

// Play starts ticking once per tick period until the simulation finishes or
// Pause is called. Playing an already playing session is a no-op.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.playing {
		return nil
	}
	s.playing = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.autoplay(s.stop, s.done, s.sim.Period())

	s.log.Info("autoplay started", "session", s.id, "period", s.sim.Period())
	s.publishLocked()
	return nil
}

// Pause stops autoplay and waits for the driver goroutine to exit.
func (s *Session) Pause() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	close(s.stop)
	done := s.done
	if !s.closed {
		s.publishLocked()
	}
	s.mu.Unlock()

	<-done
	s.log.Info("autoplay stopped", "session", s.id)
}

func (s *Session) autoplay(stop <-chan struct{}, done chan<- struct{}, period time.Duration) {
	defer close(done)

	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		s.mu.Lock()
		select {
		case <-stop:
			// Paused while we were waiting for the lock.
			s.mu.Unlock()
			return
		default:
		}
		if s.sim.Finished() || s.historyFull(1) {
			s.playing = false
			s.publishLocked()
			s.mu.Unlock()
			s.log.Info("autoplay finished", "session", s.id, "finished", s.sim.Finished())
			return
		}
		s.sim.Tick()
		s.count(func(m *metrics.Registry) { m.TicksForward.Inc(s.sim.Algorithm()) })
		s.publishLocked()
		s.mu.Unlock()
	}
}

// ─── Subscriptions ────────────────────────────────────────────────────────────

// Subscribe returns a channel that receives the latest view after every state
// change. Slow readers only ever see the most recent view. The channel is
// closed when cancel is called or the session is deleted.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.viewLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// publishLocked sends the current view to every subscriber, replacing any
// view the subscriber has not read yet. Caller holds s.mu.
func (s *Session) publishLocked() View {
	v := s.viewLocked()
	for _, ch := range s.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
	return v
}

// close stops autoplay and releases every subscriber.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Pause()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) count(fn func(m *metrics.Registry)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

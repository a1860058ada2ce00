// Package scheduler implements the discrete-time CPU scheduler core.
//
// A Scheduler owns the ready queue, the ended queue, the clock and the
// display indicator. It knows nothing about future arrivals: the simulator
// admits processes into Queue before each tick. Every scheduling decision is
// delegated to a Policy built by a pluggable Descriptor:
//
//	s := scheduler.New(roundrobin.Descriptor)
//	if err := s.Configure(types.Int(5), types.Int(1)); err != nil {
//	    return err
//	}
//	s.Queue = append(s.Queue, p)
//	s.Tick()
//
// A Scheduler is not safe for concurrent use; callers serialize access.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/snehjoshi/epochsim/internal/types"
)

var (
	// ErrNotConfigured is the panic value of Tick on a scheduler without a
	// policy. It signals a programming error, never user input.
	ErrNotConfigured = errors.New("scheduler: no algorithm configured")

	// ErrArgumentCount is returned by Configure when the number of positional
	// arguments differs from the descriptor's configuration inputs.
	ErrArgumentCount = errors.New("scheduler: wrong number of configuration arguments")

	// ErrInvalidValue is returned when a value violates its field declaration.
	ErrInvalidValue = errors.New("scheduler: invalid field value")

	// ErrSchema is returned when a descriptor's schema is malformed.
	ErrSchema = errors.New("scheduler: invalid schema")
)

// Policy is the behavior half of a scheduling algorithm. Tick advances the
// scheduler state by exactly one time unit; the clock has already been
// incremented when Tick is called. Get and Set expose the policy's own
// declared fields (everything except "time" and "currently", which live on
// the Scheduler).
type Policy interface {
	Tick(s *Scheduler)
	Get(f types.Flag) (types.Value, bool)
	Set(f types.Flag, v types.Value) error
}

// Descriptor bundles an algorithm's static schema with a constructor that
// takes the configuration inputs positionally, in AlgorithmIn order.
type Descriptor interface {
	Name() string
	Schema() Schema
	Configure(args ...types.Value) (Policy, error)
}

// Scheduler is the ready/ended queue state machine driven by a Policy.
type Scheduler struct {
	// Time is the clock. It starts at 0 and increases by one per Tick.
	Time int

	// Queue is the ready queue in scheduling order; Queue[0] runs next.
	Queue []*types.Process

	// Ended holds completed processes in completion order.
	Ended []*types.Process

	// Currently is the display indicator of the last tick.
	Currently types.Indicator

	desc   Descriptor
	policy Policy
}

// New creates an unconfigured scheduler for desc. Call Configure before Tick.
func New(desc Descriptor) *Scheduler {
	return &Scheduler{
		Queue:     []*types.Process{},
		Ended:     []*types.Process{},
		Currently: types.Idle,
		desc:      desc,
	}
}

// Configure validates args against the descriptor's configuration inputs and
// installs the resulting policy.
func (s *Scheduler) Configure(args ...types.Value) error {
	schema := s.desc.Schema()
	if err := schema.Validate(); err != nil {
		return err
	}
	if len(args) != len(schema.AlgorithmIn) {
		return fmt.Errorf("%w: %s wants %d, got %d",
			ErrArgumentCount, s.desc.Name(), len(schema.AlgorithmIn), len(args))
	}
	for i, f := range schema.AlgorithmIn {
		if err := f.Check(args[i]); err != nil {
			return err
		}
	}
	p, err := s.desc.Configure(args...)
	if err != nil {
		return fmt.Errorf("configure %s: %w", s.desc.Name(), err)
	}
	s.policy = p
	return nil
}

// Configured reports whether a policy is installed.
func (s *Scheduler) Configured() bool { return s.policy != nil }

// Descriptor returns the algorithm descriptor the scheduler was built with.
func (s *Scheduler) Descriptor() Descriptor { return s.desc }

// Tick advances the clock by one unit and lets the policy mutate the queues.
// It panics with ErrNotConfigured when no policy is installed.
func (s *Scheduler) Tick() {
	if s.policy == nil {
		panic(ErrNotConfigured)
	}
	s.Time++
	s.policy.Tick(s)
}

// ─── Queue helpers used by policies ───────────────────────────────────────────

// Front returns the head of the ready queue, or nil when it is empty.
func (s *Scheduler) Front() *types.Process {
	if len(s.Queue) == 0 {
		return nil
	}
	return s.Queue[0]
}

// Rotate moves the head of the ready queue to its tail.
func (s *Scheduler) Rotate() {
	if len(s.Queue) < 2 {
		return
	}
	head := s.Queue[0]
	copy(s.Queue, s.Queue[1:])
	s.Queue[len(s.Queue)-1] = head
}

// Retire moves the head of the ready queue into the ended queue.
func (s *Scheduler) Retire() *types.Process {
	head := s.Front()
	if head == nil {
		return nil
	}
	s.Queue = s.Queue[1:]
	s.Ended = append(s.Ended, head)
	return head
}

// Remove takes the process with the given id out of the ready queue.
func (s *Scheduler) Remove(id int) (*types.Process, bool) {
	for i, p := range s.Queue {
		if p.ID == id {
			s.Queue = append(s.Queue[:i:i], s.Queue[i+1:]...)
			return p, true
		}
	}
	return nil, false
}

// ─── Declared field access ────────────────────────────────────────────────────

// Get returns a scheduler-level field: the clock, the indicator, or a field
// owned by the policy.
func (s *Scheduler) Get(f types.Flag) (types.Value, bool) {
	switch f {
	case types.FlagTime:
		return types.Int(s.Time), true
	case types.FlagCurrently:
		return types.String(string(s.Currently)), true
	}
	if s.policy == nil {
		return types.Value{}, false
	}
	return s.policy.Get(f)
}

// Set writes a scheduler-level field.
func (s *Scheduler) Set(f types.Flag, v types.Value) error {
	switch f {
	case types.FlagTime:
		n, ok := v.AsInt()
		if !ok {
			return fmt.Errorf("%w: time wants int, got %s", types.ErrFieldType, v.Kind())
		}
		s.Time = n
		return nil
	case types.FlagCurrently:
		str, ok := v.AsString()
		if !ok {
			return fmt.Errorf("%w: currently wants string, got %s", types.ErrFieldType, v.Kind())
		}
		s.Currently = types.Indicator(str)
		return nil
	}
	if s.policy == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, f)
	}
	return s.policy.Set(f, v)
}

// Snapshot captures the given scheduler-level fields, in order.
func (s *Scheduler) Snapshot(flags []types.Flag) types.Record {
	r := make(types.Record, 0, len(flags))
	for _, f := range flags {
		if v, ok := s.Get(f); ok {
			r = append(r, types.FieldValue{Flag: f, Value: v})
		}
	}
	return r
}

// Restore writes every field of r back into the scheduler.
func (s *Scheduler) Restore(r types.Record) error {
	for _, fv := range r {
		if err := s.Set(fv.Flag, fv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Package roundrobin implements the round-robin scheduling policy with a
// configurable time quantum and context-switch overhead.
//
// The dispatcher is modelled as consuming real time: every switch costs
// SwitchTime ticks during which the CPU indicator reads "waste" and no
// process advances. A process finishing strictly inside its quantum is not
// removed on the spot. It stays at the head of the ready queue, flagged by
// ProcessEnded, until the next tick flushes it into the ended queue.
package roundrobin

import (
	"errors"
	"fmt"
	"math"

	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/types"
)

// Name is the catalog name of the policy.
const Name = "round-robin"

// ErrQuantum is returned when the quantum is not positive, the switch time is
// negative, or their sum does not fit in an int.
var ErrQuantum = errors.New("roundrobin: quantum must be > 0, switch time >= 0, and their sum must fit in an int")

// Descriptor is the round-robin algorithm descriptor. Configure takes
// (quantum, switchTime).
var Descriptor scheduler.Descriptor = descriptor{}

type descriptor struct{}

func (descriptor) Name() string { return Name }

func (descriptor) Schema() scheduler.Schema { return schema }

func (descriptor) Configure(args ...types.Value) (scheduler.Policy, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: want quantum and switch time", scheduler.ErrArgumentCount)
	}
	q, ok := args[0].AsInt()
	if !ok {
		return nil, fmt.Errorf("%w: quantum is %s", scheduler.ErrInvalidValue, args[0].Kind())
	}
	st, ok := args[1].AsInt()
	if !ok {
		return nil, fmt.Errorf("%w: switchTime is %s", scheduler.ErrInvalidValue, args[1].Kind())
	}
	return New(q, st)
}

var schema = scheduler.Schema{
	AlgorithmIn: []scheduler.Field{
		{
			Flag:        types.FlagQuantum,
			Name:        "Quantum",
			Description: "Time quantum",
			Kind:        types.KindInt,
			Min:         scheduler.AtLeast(1),
			Initial:     scheduler.Constant(types.Int(5)),
		},
		{
			Flag:        types.FlagSwitchTime,
			Name:        "Switch Time",
			Description: "Time taken for context switching",
			Kind:        types.KindInt,
			Min:         scheduler.AtLeast(0),
			Initial:     scheduler.Constant(types.Int(1)),
		},
	},
	AlgorithmInternal: []scheduler.Field{
		{Flag: types.FlagSwitchAt, Kind: types.KindInt},
		{Flag: types.FlagProcessEnded, Kind: types.KindBool},
		{Flag: types.FlagCurrently, Kind: types.KindString},
	},
	AlgorithmOut: []scheduler.Field{
		{Flag: types.FlagTime, Name: "Time", Kind: types.KindInt},
	},
	ProcessIn: []scheduler.Field{
		{
			Flag:        types.FlagName,
			Name:        "Name",
			Description: "Name of the process",
			Kind:        types.KindString,
			Initial:     scheduler.NameGenerator("process_", 1000),
		},
		{
			Flag:        types.FlagArrival,
			Name:        "Arrival",
			Description: "When the process is started by the user",
			Kind:        types.KindInt,
			Min:         scheduler.AtLeast(0),
			Initial:     scheduler.Constant(types.Int(0)),
		},
		{
			Flag:        types.FlagExecution,
			Name:        "Length",
			Description: "Length of the process",
			Kind:        types.KindInt,
			Min:         scheduler.AtLeast(1),
			Initial:     scheduler.Constant(types.Int(10)),
		},
	},
	ProcessInternal: []scheduler.Field{
		{Flag: types.FlagID, Kind: types.KindInt},
	},
	ProcessOut: []scheduler.Field{
		{Flag: types.FlagTime, Name: "Position", Kind: types.KindInt},
		{Flag: types.FlagService, Name: "Service time", Kind: types.KindInt},
		{Flag: types.FlagWait, Name: "Waiting time", Kind: types.KindInt},
		{Flag: types.FlagEnd, Name: "Ending time", Kind: types.KindInt},
	},
}

// Policy is the round-robin state carried between ticks.
type Policy struct {
	Quantum    int
	SwitchTime int

	// SwitchAt is the phase, in [0, Quantum+SwitchTime), of the next
	// switching instant.
	SwitchAt int

	// ProcessEnded marks the head of the ready queue as finished but not yet
	// moved to the ended queue.
	ProcessEnded bool
}

// New returns a policy for the given quantum and switch time. The first
// switching boundary is offset so a process ready at t=0 runs immediately.
func New(quantum, switchTime int) (*Policy, error) {
	if quantum <= 0 || switchTime < 0 || quantum > math.MaxInt-switchTime {
		return nil, fmt.Errorf("%w: quantum=%d switchTime=%d", ErrQuantum, quantum, switchTime)
	}
	p := &Policy{Quantum: quantum, SwitchTime: switchTime}
	if switchTime > 0 {
		p.SwitchAt = (quantum + 1) % (quantum + switchTime)
	}
	return p, nil
}

func (p *Policy) period() int { return p.Quantum + p.SwitchTime }

// Tick performs one time unit of scheduling. s.Time has already been advanced.
func (p *Policy) Tick(s *scheduler.Scheduler) {
	if len(s.Queue) == 0 {
		// Prime the dispatcher to start as soon as the next process arrives.
		p.SwitchAt = s.Time % p.period()
		s.Currently = types.Idle
		return
	}
	if p.SwitchTime == 0 {
		p.tickNoOverhead(s)
		return
	}

	phase := s.Time % p.period()
	switch {
	case phase == p.SwitchAt:
		s.Currently = types.Waste
		if p.ProcessEnded {
			p.flush(s)
		} else {
			s.Rotate()
		}
	case p.ProcessEnded:
		// Finished mid-quantum: this tick is the switch, restart the timer.
		p.flush(s)
		s.Currently = types.Waste
		p.SwitchAt = phase
	case (s.Time-p.SwitchAt+p.period())%p.period() < p.SwitchTime:
		s.Currently = types.Waste
	default:
		if run(s) {
			p.ProcessEnded = true
		}
	}
}

func (p *Policy) tickNoOverhead(s *scheduler.Scheduler) {
	if run(s) {
		s.Retire()
		p.SwitchAt = s.Time % p.Quantum
		return
	}
	if s.Time%p.Quantum == p.SwitchAt {
		s.Rotate()
	}
}

// flush retires the finished head. A head that is not done was killed and
// replaced; only the flag is cleared then.
func (p *Policy) flush(s *scheduler.Scheduler) {
	p.ProcessEnded = false
	if head := s.Front(); head != nil && head.Done() {
		s.Retire()
	}
}

// run executes the head of the ready queue for one tick and reports whether
// it has just completed.
func run(s *scheduler.Scheduler) bool {
	head := s.Front()
	if head.Time == 0 {
		head.Service = s.Time - 1
		head.Wait = head.Service - head.Arrival
	}
	head.Time++
	s.Currently = types.Running(head.ID)
	if head.Done() {
		head.End = s.Time
		return true
	}
	return false
}

// Get implements scheduler.Policy.
func (p *Policy) Get(f types.Flag) (types.Value, bool) {
	switch f {
	case types.FlagQuantum:
		return types.Int(p.Quantum), true
	case types.FlagSwitchTime:
		return types.Int(p.SwitchTime), true
	case types.FlagSwitchAt:
		return types.Int(p.SwitchAt), true
	case types.FlagProcessEnded:
		return types.Bool(p.ProcessEnded), true
	}
	return types.Value{}, false
}

// Set implements scheduler.Policy.
func (p *Policy) Set(f types.Flag, v types.Value) error {
	switch f {
	case types.FlagQuantum, types.FlagSwitchTime, types.FlagSwitchAt:
		n, ok := v.AsInt()
		if !ok {
			return fmt.Errorf("%w: %s wants int, got %s", types.ErrFieldType, f, v.Kind())
		}
		switch f {
		case types.FlagQuantum:
			p.Quantum = n
		case types.FlagSwitchTime:
			p.SwitchTime = n
		default:
			p.SwitchAt = n
		}
		return nil
	case types.FlagProcessEnded:
		b, ok := v.AsBool()
		if !ok {
			return fmt.Errorf("%w: %s wants bool, got %s", types.ErrFieldType, f, v.Kind())
		}
		p.ProcessEnded = b
		return nil
	}
	return fmt.Errorf("%w: round-robin.%s", types.ErrUnknownField, f)
}

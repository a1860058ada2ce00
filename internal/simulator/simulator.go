// Package simulator drives a Scheduler through time, forward and backward.
//
// The Simulator owns the future queue (processes that have not arrived yet)
// and the tape, a stack of snapshots pushed once per forward tick. Back pops
// one snapshot and restores the scheduler to the state it had immediately
// before that tick. Only fields declared by the algorithm's schema survive a
// restore.
//
//	sched := scheduler.New(roundrobin.Descriptor)
//	_ = sched.Configure(types.Int(5), types.Int(1))
//	sim, err := simulator.New(sched, 500*time.Millisecond, procs)
//	sim.Tick()
//	sim.Back()
//
// A Simulator is not safe for concurrent use; the session layer serializes
// every call.
package simulator

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/types"
)

var (
	// ErrProcessNotFound is returned by KillProcess when no ready process has
	// the given id.
	ErrProcessNotFound = errors.New("simulator: process not found in ready queue")

	// ErrDuplicateID is returned when a process id is already in use.
	ErrDuplicateID = errors.New("simulator: duplicate process id")

	// ErrInvalidProcess is returned when a process violates its input schema.
	ErrInvalidProcess = errors.New("simulator: invalid process")
)

// Simulator couples a configured Scheduler with arrival admission and
// reversible history.
type Simulator struct {
	sched  *scheduler.Scheduler
	period time.Duration

	future futureQueue
	seq    uint64
	tape   []frame
	killed []*types.Process
	maxID  int

	algoFlags []types.Flag
	procFlags []types.Flag
}

// New creates a simulator over a configured scheduler. Processes without an
// id are numbered after the largest id supplied, in order of arrival; ties
// keep their input order.
func New(sched *scheduler.Scheduler, period time.Duration, initial []*types.Process) (*Simulator, error) {
	if !sched.Configured() {
		return nil, scheduler.ErrNotConfigured
	}
	schema := sched.Descriptor().Schema()
	s := &Simulator{
		sched:     sched,
		period:    period,
		future:    make(futureQueue, 0, len(initial)),
		algoFlags: schema.AlgorithmFlags(),
		procFlags: schema.ProcessFlags(),
	}

	seen := make(map[int]struct{}, len(initial))
	for _, p := range initial {
		if p.ID == 0 {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = struct{}{}
		s.maxID = max(s.maxID, p.ID)
	}
	ordered := slices.Clone(initial)
	slices.SortStableFunc(ordered, func(a, b *types.Process) int { return cmp.Compare(a.Arrival, b.Arrival) })
	for _, p := range ordered {
		if err := s.validate(p); err != nil {
			return nil, err
		}
		if p.ID == 0 {
			s.maxID++
			p.ID = s.maxID
		}
		s.enqueue(p)
	}
	return s, nil
}

func (s *Simulator) validate(p *types.Process) error {
	if p.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrInvalidProcess, p.ID)
	}
	for _, f := range s.sched.Descriptor().Schema().ProcessIn {
		v, ok := p.Get(f.Flag)
		if !ok {
			continue
		}
		if err := f.Check(v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProcess, err)
		}
	}
	return nil
}

func (s *Simulator) enqueue(p *types.Process) {
	s.seq++
	s.future.push(&pending{proc: p, seq: s.seq})
}

// ─── Mutators ─────────────────────────────────────────────────────────────────

// Tick admits every process whose arrival is due, snapshots the state and
// advances the scheduler by one unit. Arrivals are visible to the algorithm
// in the tick they arrive.
func (s *Simulator) Tick() {
	var admitted []admission
	for {
		it, ok := s.future.due(s.sched.Time)
		if !ok {
			break
		}
		s.sched.Queue = append(s.sched.Queue, it.proc)
		admitted = append(admitted, admission{id: it.proc.ID, seq: it.seq})
	}
	s.saveState(admitted)
	s.sched.Tick()
	s.checkInvariants()
}

// Back undoes the most recent forward tick. It reports false, changing
// nothing, when there is no history left.
//
// Restoring the scheduler snapshot alone would leave processes admitted
// during that tick in neither queue, so Back also returns them to the future
// queue with their original insertion order. Future-queue membership is
// otherwise untouched.
func (s *Simulator) Back() bool {
	if !s.loadState() {
		return false
	}
	s.checkInvariants()
	return true
}

// CreateProcess injects p into a running simulation. Its arrival is set to
// the current time and it is admitted on the next tick. A zero id is replaced
// by a fresh one.
func (s *Simulator) CreateProcess(p *types.Process) error {
	p.Arrival = s.sched.Time
	if err := s.validate(p); err != nil {
		return err
	}
	if p.ID == 0 {
		p.ID = s.maxID + 1
	} else if s.exists(p.ID) {
		return fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
	}
	s.maxID = max(s.maxID, p.ID)
	s.enqueue(p)
	return nil
}

// KillProcess removes the ready process with the given id and moves it to
// the killed list. Future and ended processes cannot be killed.
func (s *Simulator) KillProcess(id int) error {
	p, ok := s.sched.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrProcessNotFound, id)
	}
	s.killed = append(s.killed, p)
	return nil
}

func (s *Simulator) exists(id int) bool {
	for _, it := range s.future {
		if it.proc.ID == id {
			return true
		}
	}
	for _, list := range [][]*types.Process{s.sched.Queue, s.sched.Ended, s.killed} {
		for _, p := range list {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}

// checkInvariants panics when a process id is both ready and finished.
func (s *Simulator) checkInvariants() {
	ready := make(map[int]struct{}, len(s.sched.Queue))
	for _, p := range s.sched.Queue {
		ready[p.ID] = struct{}{}
	}
	for _, list := range [][]*types.Process{s.sched.Ended, s.killed} {
		for _, p := range list {
			if _, dup := ready[p.ID]; dup {
				panic(fmt.Sprintf("simulator: process %d is both ready and finished at t=%d", p.ID, s.sched.Time))
			}
		}
	}
}

// ─── Accessors ────────────────────────────────────────────────────────────────

// FutureQueue returns the processes that have not arrived yet, in arrival
// order.
func (s *Simulator) FutureQueue() []types.Record {
	out := make([]types.Record, 0, s.future.Len())
	for _, it := range s.future.ordered() {
		out = append(out, it.proc.Record(s.procFlags))
	}
	return out
}

// Queue returns the ready queue in scheduling order.
func (s *Simulator) Queue() []types.Record { return s.records(s.sched.Queue) }

// EndedQueue returns completed processes in completion order.
func (s *Simulator) EndedQueue() []types.Record { return s.records(s.sched.Ended) }

// KilledQueue returns killed processes in the order they were killed.
func (s *Simulator) KilledQueue() []types.Record { return s.records(s.killed) }

// AllProcesses returns every future, ready and ended process sorted by id.
// Each record holds exactly the declared process fields.
func (s *Simulator) AllProcesses() []types.Record {
	all := make([]*types.Process, 0, s.future.Len()+len(s.sched.Queue)+len(s.sched.Ended))
	all = append(all, s.sched.Ended...)
	all = append(all, s.sched.Queue...)
	for _, it := range s.future {
		all = append(all, it.proc)
	}
	slices.SortStableFunc(all, func(a, b *types.Process) int { return a.ID - b.ID })
	return s.records(all)
}

func (s *Simulator) records(list []*types.Process) []types.Record {
	out := make([]types.Record, len(list))
	for i, p := range list {
		out[i] = p.Record(s.procFlags)
	}
	return out
}

// AlgorithmState returns the declared scheduler fields.
func (s *Simulator) AlgorithmState() types.Record { return s.sched.Snapshot(s.algoFlags) }

// ProcessFlags returns the declared process fields in record order.
func (s *Simulator) ProcessFlags() []types.Flag { return slices.Clone(s.procFlags) }

// Time returns the scheduler clock.
func (s *Simulator) Time() int { return s.sched.Time }

// Currently returns the CPU indicator of the last tick.
func (s *Simulator) Currently() types.Indicator { return s.sched.Currently }

// Depth returns the number of ticks that can be undone.
func (s *Simulator) Depth() int { return len(s.tape) }

// Finished reports whether no process is waiting to arrive or to run.
func (s *Simulator) Finished() bool {
	return s.future.Len() == 0 && len(s.sched.Queue) == 0
}

// Period returns the wall-clock delay between autoplay ticks.
func (s *Simulator) Period() time.Duration { return s.period }

// Algorithm returns the name of the active scheduling algorithm.
func (s *Simulator) Algorithm() string { return s.sched.Descriptor().Name() }

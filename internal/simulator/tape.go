package simulator

import (
	"fmt"

	"github.com/snehjoshi/epochsim/internal/types"
)

// frame is one tape entry: the state immediately before a forward tick,
// taken after that tick's arrivals were admitted.
type frame struct {
	algorithm types.Record
	processes []types.Record

	// admitted lists the processes moved from the future queue into the
	// ready queue for this tick, so Back can return them.
	admitted []admission
}

type admission struct {
	id  int
	seq uint64
}

// saveState pushes the current declared scheduler and ready-queue state.
func (s *Simulator) saveState(admitted []admission) {
	f := frame{
		algorithm: s.sched.Snapshot(s.algoFlags),
		processes: make([]types.Record, len(s.sched.Queue)),
		admitted:  admitted,
	}
	for i, p := range s.sched.Queue {
		f.processes[i] = p.Record(s.procFlags)
	}
	s.tape = append(s.tape, f)
}

// loadState pops the most recent frame and restores it. It reports false
// when the tape is empty.
func (s *Simulator) loadState() bool {
	if len(s.tape) == 0 {
		return false
	}
	f := s.tape[len(s.tape)-1]
	s.tape[len(s.tape)-1] = frame{}
	s.tape = s.tape[:len(s.tape)-1]

	if err := s.sched.Restore(f.algorithm); err != nil {
		panic(fmt.Errorf("simulator: restore algorithm state: %w", err))
	}

	queue := make([]*types.Process, 0, len(f.processes))
	for _, r := range f.processes {
		p := types.NewProcess("", 0, 0)
		for _, fv := range r {
			if err := p.Set(fv.Flag, fv.Value); err != nil {
				panic(fmt.Errorf("simulator: restore process state: %w", err))
			}
		}
		queue = append(queue, p)
		s.sched.Ended = dropID(s.sched.Ended, p.ID)
		s.killed = dropID(s.killed, p.ID)
	}
	s.sched.Queue = queue

	// Undo this tick's admissions: those processes were not ready before it.
	for _, a := range f.admitted {
		p, ok := s.sched.Remove(a.id)
		if !ok {
			panic(fmt.Errorf("simulator: admitted process %d missing from restored queue", a.id))
		}
		s.future.push(&pending{proc: p, seq: a.seq})
	}
	return true
}

func dropID(list []*types.Process, id int) []*types.Process {
	out := list[:0]
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

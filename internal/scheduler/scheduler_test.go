package scheduler_test

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/types"
)

// fifo is a minimal run-to-completion policy used to exercise the scheduler
// independently of any real algorithm.
type fifo struct {
	ticks int
}

func (f *fifo) Tick(s *scheduler.Scheduler) {
	f.ticks++
	p := s.Front()
	if p == nil {
		s.Currently = types.Idle
		return
	}
	p.Time++
	s.Currently = types.Running(p.ID)
	if p.Done() {
		p.End = s.Time
		s.Retire()
	}
}

func (f *fifo) Get(flag types.Flag) (types.Value, bool) {
	if flag == "ticks" {
		return types.Int(f.ticks), true
	}
	return types.Value{}, false
}

func (f *fifo) Set(flag types.Flag, v types.Value) error {
	if flag != "ticks" {
		return types.ErrUnknownField
	}
	n, ok := v.AsInt()
	if !ok {
		return types.ErrFieldType
	}
	f.ticks = n
	return nil
}

type fifoDescriptor struct {
	schema scheduler.Schema
}

func (fifoDescriptor) Name() string { return "fifo" }

func (d fifoDescriptor) Schema() scheduler.Schema { return d.schema }

func (fifoDescriptor) Configure(args ...types.Value) (scheduler.Policy, error) {
	return &fifo{}, nil
}

func newFIFO() fifoDescriptor {
	return fifoDescriptor{schema: scheduler.Schema{
		AlgorithmIn: []scheduler.Field{
			{Flag: "limit", Kind: types.KindInt, Min: scheduler.AtLeast(1)},
		},
		AlgorithmInternal: []scheduler.Field{{Flag: "ticks", Kind: types.KindInt}},
		AlgorithmOut:      []scheduler.Field{{Flag: types.FlagTime, Kind: types.KindInt}},
		ProcessIn: []scheduler.Field{
			{Flag: types.FlagName, Kind: types.KindString},
			{Flag: types.FlagExecution, Kind: types.KindInt},
		},
		ProcessOut: []scheduler.Field{{Flag: types.FlagEnd, Kind: types.KindInt}},
	}}
}

func configured(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s := scheduler.New(newFIFO())
	if err := s.Configure(types.Int(3)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return s
}

func proc(id, execution int) *types.Process {
	p := types.NewProcess("p", 0, execution)
	p.ID = id
	return p
}

// ─── Configure ────────────────────────────────────────────────────────────────

func TestConfigure_ArgumentCount(t *testing.T) {
	s := scheduler.New(newFIFO())
	err := s.Configure()
	if !errors.Is(err, scheduler.ErrArgumentCount) {
		t.Fatalf("want ErrArgumentCount, got %v", err)
	}
	if s.Configured() {
		t.Error("scheduler must stay unconfigured after a failed Configure")
	}
}

func TestConfigure_RejectsInvalidValues(t *testing.T) {
	cases := map[string]types.Value{
		"below min":  types.Int(0),
		"wrong kind": types.String("3"),
		"none":       types.None(),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			s := scheduler.New(newFIFO())
			if err := s.Configure(v); !errors.Is(err, scheduler.ErrInvalidValue) {
				t.Errorf("want ErrInvalidValue, got %v", err)
			}
		})
	}
}

func TestConfigure_RejectsOverlappingSchema(t *testing.T) {
	d := newFIFO()
	d.schema.AlgorithmOut = append(d.schema.AlgorithmOut, scheduler.Field{Flag: "ticks"})
	s := scheduler.New(d)
	if err := s.Configure(types.Int(1)); !errors.Is(err, scheduler.ErrSchema) {
		t.Fatalf("want ErrSchema, got %v", err)
	}
}

// ─── Tick ─────────────────────────────────────────────────────────────────────

func TestTick_PanicsWhenUnconfigured(t *testing.T) {
	s := scheduler.New(newFIFO())
	defer func() {
		r := recover()
		if r != scheduler.ErrNotConfigured {
			t.Fatalf("recover() = %v, want ErrNotConfigured", r)
		}
	}()
	s.Tick()
}

func TestTick_AdvancesClockBeforePolicy(t *testing.T) {
	s := configured(t)
	s.Queue = append(s.Queue, proc(1, 2))

	s.Tick()
	if s.Time != 1 {
		t.Fatalf("time = %d, want 1", s.Time)
	}
	if s.Currently != types.Running(1) {
		t.Errorf("currently = %s, want 1", s.Currently)
	}

	s.Tick()
	if len(s.Queue) != 0 || len(s.Ended) != 1 {
		t.Fatalf("queue=%d ended=%d, want 0/1", len(s.Queue), len(s.Ended))
	}
	if s.Ended[0].End != 2 {
		t.Errorf("end = %d, want 2 (clock is advanced before the policy runs)", s.Ended[0].End)
	}

	s.Tick()
	if s.Currently != types.Idle {
		t.Errorf("currently = %s, want idle", s.Currently)
	}
}

// ─── Queue helpers ────────────────────────────────────────────────────────────

func TestRotate(t *testing.T) {
	s := configured(t)
	s.Queue = []*types.Process{proc(1, 1), proc(2, 1), proc(3, 1)}
	s.Rotate()

	want := []int{2, 3, 1}
	for i, id := range want {
		if s.Queue[i].ID != id {
			t.Fatalf("queue[%d] = %d, want %d", i, s.Queue[i].ID, id)
		}
	}
}

func TestRemove(t *testing.T) {
	s := configured(t)
	s.Queue = []*types.Process{proc(1, 1), proc(2, 1), proc(3, 1)}

	p, ok := s.Remove(2)
	if !ok || p.ID != 2 {
		t.Fatalf("Remove(2) = %v, %v", p, ok)
	}
	if len(s.Queue) != 2 || s.Queue[0].ID != 1 || s.Queue[1].ID != 3 {
		t.Errorf("queue after remove: %d entries", len(s.Queue))
	}
	if _, ok := s.Remove(9); ok {
		t.Error("Remove(9) must report false")
	}
}

func TestRetire_EmptyQueue(t *testing.T) {
	s := configured(t)
	if p := s.Retire(); p != nil {
		t.Errorf("Retire on empty queue = %v, want nil", p)
	}
}

// ─── Snapshot / Restore ───────────────────────────────────────────────────────

func TestSnapshotRestore(t *testing.T) {
	s := configured(t)
	s.Queue = append(s.Queue, proc(1, 5))
	s.Tick()
	s.Tick()

	flags := []types.Flag{"ticks", types.FlagCurrently, types.FlagTime}
	snap := s.Snapshot(flags)
	if got := snap.Flags(); len(got) != 3 {
		t.Fatalf("snapshot flags = %v", got)
	}

	s.Tick()
	if err := s.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !s.Snapshot(flags).Equal(snap) {
		t.Errorf("state after restore = %v, want %v", s.Snapshot(flags), snap)
	}
}

func TestSet_UnconfiguredPolicyField(t *testing.T) {
	s := scheduler.New(newFIFO())
	if err := s.Set(types.FlagTime, types.Int(4)); err != nil {
		t.Fatalf("Set(time): %v", err)
	}
	if err := s.Set("ticks", types.Int(1)); !errors.Is(err, scheduler.ErrNotConfigured) {
		t.Errorf("want ErrNotConfigured, got %v", err)
	}
}

// ─── Schema & defaults ────────────────────────────────────────────────────────

func TestSchema_FlagOrder(t *testing.T) {
	sch := newFIFO().schema
	got := sch.AlgorithmFlags()
	want := []types.Flag{"limit", "ticks", types.FlagTime}
	if len(got) != len(want) {
		t.Fatalf("AlgorithmFlags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flag[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDefault_Eval(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	if v := scheduler.Constant(types.Int(5)).Eval(rng); v != types.Int(5) {
		t.Errorf("Constant = %v, want 5", v)
	}

	r := scheduler.RandomRange(2, 4)
	for range 50 {
		n, ok := r.Eval(rng).AsInt()
		if !ok || n < 2 || n > 4 {
			t.Fatalf("RandomRange(2,4) produced %v", n)
		}
	}

	g := scheduler.NameGenerator("process_", 1000)
	if g.Kind != scheduler.DefaultName || g.Min != 0 || g.Max != 999 {
		t.Errorf("NameGenerator = %+v, want name kind over [0, 999]", g)
	}
	name, ok := g.Eval(nil).AsString()
	if !ok || !strings.HasPrefix(name, "process_") {
		t.Errorf("NameGenerator = %q", name)
	}

	if v := (scheduler.Default{}).Eval(rng); !v.IsNone() {
		t.Errorf("zero Default = %v, want none", v)
	}
}

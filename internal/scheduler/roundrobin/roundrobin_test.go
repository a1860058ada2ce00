package roundrobin_test

import (
	"errors"
	"math"
	"testing"

	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/scheduler/roundrobin"
	"github.com/snehjoshi/epochsim/internal/types"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

func newScheduler(t *testing.T, quantum, switchTime int, execs ...int) *scheduler.Scheduler {
	t.Helper()
	s := scheduler.New(roundrobin.Descriptor)
	if err := s.Configure(types.Int(quantum), types.Int(switchTime)); err != nil {
		t.Fatalf("Configure(%d, %d): %v", quantum, switchTime, err)
	}
	for i, e := range execs {
		p := types.NewProcess("p", 0, e)
		p.ID = i + 1
		s.Queue = append(s.Queue, p)
	}
	return s
}

// indicators ticks n times and returns the CPU indicator after each tick.
func indicators(s *scheduler.Scheduler, n int) []types.Indicator {
	out := make([]types.Indicator, 0, n)
	for range n {
		s.Tick()
		out = append(out, s.Currently)
	}
	return out
}

func assertIndicators(t *testing.T, got []types.Indicator, want ...types.Indicator) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("indicators = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("t=%d: currently = %s, want %s (full: %v)", i+1, got[i], want[i], got)
		}
	}
}

func ended(t *testing.T, s *scheduler.Scheduler, id int) *types.Process {
	t.Helper()
	for _, p := range s.Ended {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("process %d not in ended queue", id)
	return nil
}

var (
	idle  = types.Idle
	waste = types.Waste
	p1    = types.Running(1)
	p2    = types.Running(2)
)

// ─── construction ─────────────────────────────────────────────────────────────

func TestNew_InitialSwitchAt(t *testing.T) {
	cases := []struct {
		q, s, want int
	}{
		{5, 0, 0},
		{5, 1, 0},
		{2, 2, 3},
		{4, 3, 5},
	}
	for _, c := range cases {
		p, err := roundrobin.New(c.q, c.s)
		if err != nil {
			t.Fatalf("New(%d, %d): %v", c.q, c.s, err)
		}
		if p.SwitchAt != c.want {
			t.Errorf("New(%d, %d).SwitchAt = %d, want %d", c.q, c.s, p.SwitchAt, c.want)
		}
	}
}

func TestNew_RejectsDegenerateParameters(t *testing.T) {
	for _, c := range [][2]int{{0, 1}, {-1, 0}, {3, -1}, {math.MaxInt, 1}, {1, math.MaxInt}} {
		if _, err := roundrobin.New(c[0], c[1]); !errors.Is(err, roundrobin.ErrQuantum) {
			t.Errorf("New(%d, %d): want ErrQuantum, got %v", c[0], c[1], err)
		}
	}
}

func TestNew_AcceptsLargestPeriod(t *testing.T) {
	if _, err := roundrobin.New(math.MaxInt, 0); err != nil {
		t.Errorf("New(MaxInt, 0): %v", err)
	}
	if _, err := roundrobin.New(math.MaxInt-1, 1); err != nil {
		t.Errorf("New(MaxInt-1, 1): %v", err)
	}
}

func TestConfigure_RejectsOverflowingPeriod(t *testing.T) {
	s := scheduler.New(roundrobin.Descriptor)
	if err := s.Configure(types.Int(math.MaxInt), types.Int(1)); !errors.Is(err, roundrobin.ErrQuantum) {
		t.Fatalf("want ErrQuantum, got %v", err)
	}
	if s.Configured() {
		t.Error("rejected configuration must leave the scheduler unconfigured")
	}
}

func TestConfigure_ValidatesAgainstSchema(t *testing.T) {
	s := scheduler.New(roundrobin.Descriptor)
	if err := s.Configure(types.Int(0), types.Int(1)); !errors.Is(err, scheduler.ErrInvalidValue) {
		t.Errorf("quantum 0: want ErrInvalidValue, got %v", err)
	}
	if err := s.Configure(types.Int(5)); !errors.Is(err, scheduler.ErrArgumentCount) {
		t.Errorf("one argument: want ErrArgumentCount, got %v", err)
	}
	if s.Configured() {
		t.Error("scheduler must not be configured after failed attempts")
	}
}

func TestSchema_DeclaredFields(t *testing.T) {
	sch := roundrobin.Descriptor.Schema()
	if err := sch.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := []types.Flag{
		types.FlagQuantum, types.FlagSwitchTime,
		types.FlagSwitchAt, types.FlagProcessEnded, types.FlagCurrently,
		types.FlagTime,
	}
	got := sch.AlgorithmFlags()
	if len(got) != len(want) {
		t.Fatalf("AlgorithmFlags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flag[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if n := len(sch.ProcessFlags()); n != 8 {
		t.Errorf("ProcessFlags has %d entries, want 8", n)
	}
}

// ─── switchTime == 0 ──────────────────────────────────────────────────────────

func TestTick_NoOverheadRotatesOnQuantum(t *testing.T) {
	s := newScheduler(t, 5, 0, 10, 4)

	got := indicators(s, 5)
	assertIndicators(t, got, p1, p1, p1, p1, p1)
	if s.Front().ID != 2 {
		t.Fatalf("after t=5 head = %d, want 2 (rotation)", s.Front().ID)
	}
	if s.Queue[1].Time != 5 {
		t.Errorf("process 1 time = %d, want 5", s.Queue[1].Time)
	}

	got = indicators(s, 4)
	assertIndicators(t, got, p2, p2, p2, p2)
	p := ended(t, s, 2)
	if p.End != 9 || p.Service != 5 || p.Wait != 5 {
		t.Errorf("process 2 end/service/wait = %d/%d/%d, want 9/5/5", p.End, p.Service, p.Wait)
	}

	indicators(s, 5)
	if p := ended(t, s, 1); p.End != 14 || p.Service != 0 || p.Wait != 0 {
		t.Errorf("process 1 end/service/wait = %d/%d/%d, want 14/0/0", p.End, p.Service, p.Wait)
	}

	assertIndicators(t, indicators(s, 1), idle)
}

// ─── switchTime > 0 ───────────────────────────────────────────────────────────

func TestTick_MidQuantumCompletionIsFlushedOnNextTick(t *testing.T) {
	s := newScheduler(t, 5, 1, 3)

	assertIndicators(t, indicators(s, 3), p1, p1, p1)
	if len(s.Queue) != 1 {
		t.Fatal("finished process must stay at the head until flushed")
	}
	if v, _ := s.Get(types.FlagProcessEnded); v != types.Bool(true) {
		t.Fatalf("processEnded = %v, want true", v)
	}
	if s.Front().End != 3 {
		t.Errorf("end = %d, want 3", s.Front().End)
	}

	assertIndicators(t, indicators(s, 1), waste)
	if len(s.Queue) != 0 || len(s.Ended) != 1 {
		t.Fatalf("queue=%d ended=%d after flush, want 0/1", len(s.Queue), len(s.Ended))
	}
	if v, _ := s.Get(types.FlagSwitchAt); v != types.Int(4) {
		t.Errorf("switchAt = %v, want 4 (resynchronised)", v)
	}

	assertIndicators(t, indicators(s, 1), idle)
}

func TestTick_RotationAndFlushChargeOverhead(t *testing.T) {
	s := newScheduler(t, 2, 1, 3, 2)

	got := indicators(s, 9)
	assertIndicators(t, got, p1, p1, waste, p2, p2, waste, p1, waste, idle)

	if p := ended(t, s, 2); p.Service != 3 || p.Wait != 3 || p.End != 5 {
		t.Errorf("process 2 service/wait/end = %d/%d/%d, want 3/3/5", p.Service, p.Wait, p.End)
	}
	if p := ended(t, s, 1); p.End != 7 {
		t.Errorf("process 1 end = %d, want 7", p.End)
	}
	if s.Ended[0].ID != 2 || s.Ended[1].ID != 1 {
		t.Error("ended queue must be in completion order")
	}
}

func TestTick_MultiUnitSwitchWindow(t *testing.T) {
	s := newScheduler(t, 2, 2, 3, 1)

	got := indicators(s, 10)
	assertIndicators(t, got, p1, p1, waste, waste, p2, waste, waste, p1, waste, idle)

	if p := ended(t, s, 2); p.Service != 4 || p.End != 5 {
		t.Errorf("process 2 service/end = %d/%d, want 4/5", p.Service, p.End)
	}
	if p := ended(t, s, 1); p.End != 8 {
		t.Errorf("process 1 end = %d, want 8", p.End)
	}
}

func TestTick_IdleRealignsDispatcher(t *testing.T) {
	s := newScheduler(t, 5, 1, 1)

	assertIndicators(t, indicators(s, 5), p1, waste, idle, idle, idle)

	late := types.NewProcess("late", 5, 1)
	late.ID = 2
	s.Queue = append(s.Queue, late)

	assertIndicators(t, indicators(s, 1), p2)
	if late.Service != 5 || late.Wait != 0 {
		t.Errorf("late service/wait = %d/%d, want 5/0", late.Service, late.Wait)
	}
}

func TestFlush_SkipsHeadThatIsNotDone(t *testing.T) {
	s := newScheduler(t, 5, 1, 2, 4)
	indicators(s, 2)
	if _, ok := s.Remove(1); !ok {
		t.Fatal("Remove(1) failed")
	}

	assertIndicators(t, indicators(s, 1), waste)
	if len(s.Ended) != 0 {
		t.Fatalf("ended = %d, want 0: a replacement head must not be retired", len(s.Ended))
	}
	if s.Front().ID != 2 {
		t.Errorf("head = %d, want 2", s.Front().ID)
	}
}

// ─── field access ─────────────────────────────────────────────────────────────

func TestPolicy_SetGet(t *testing.T) {
	p, err := roundrobin.New(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Set(types.FlagSwitchAt, types.Int(2)); err != nil {
		t.Fatalf("Set(switchAt): %v", err)
	}
	if err := p.Set(types.FlagProcessEnded, types.Bool(true)); err != nil {
		t.Fatalf("Set(processEnded): %v", err)
	}
	if v, _ := p.Get(types.FlagSwitchAt); v != types.Int(2) {
		t.Errorf("switchAt = %v, want 2", v)
	}
	if v, _ := p.Get(types.FlagProcessEnded); v != types.Bool(true) {
		t.Errorf("processEnded = %v, want true", v)
	}
	if err := p.Set(types.FlagProcessEnded, types.Int(1)); !errors.Is(err, types.ErrFieldType) {
		t.Errorf("want ErrFieldType, got %v", err)
	}
	if err := p.Set("priority", types.Int(1)); !errors.Is(err, types.ErrUnknownField) {
		t.Errorf("want ErrUnknownField, got %v", err)
	}
}

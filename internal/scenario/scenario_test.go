package scenario_test

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/scheduler/roundrobin"
	"github.com/snehjoshi/epochsim/internal/types"
)

const twoJobs = `
name: two-jobs
algorithm: round-robin
params:
  quantum: 5
  switchTime: 0
tick_period_ms: 250
processes:
  - {name: editor, arrival: 0, execution: 10}
  - {name: compiler, arrival: 0, execution: 4}
`

func mustParse(t *testing.T, src string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return sc
}

// ─── Parse / Load ─────────────────────────────────────────────────────────────

func TestParse(t *testing.T) {
	sc := mustParse(t, twoJobs)
	if sc.Name != "two-jobs" || sc.Algorithm != roundrobin.Name {
		t.Errorf("name/algorithm = %q/%q", sc.Name, sc.Algorithm)
	}
	if sc.Params["quantum"] != types.Int(5) {
		t.Errorf("quantum = %v, want 5", sc.Params["quantum"])
	}
	if len(sc.Processes) != 2 || sc.Processes[1]["name"] != types.String("compiler") {
		t.Errorf("processes = %v", sc.Processes)
	}
	if sc.TickPeriod(0).Milliseconds() != 250 {
		t.Errorf("tick period = %v, want 250ms", sc.TickPeriod(0))
	}
}

func TestParse_DefaultsAlgorithmAndRejectsUnknownKeys(t *testing.T) {
	sc := mustParse(t, "processes: []\n")
	if sc.Algorithm != roundrobin.Name {
		t.Errorf("algorithm = %q, want round-robin", sc.Algorithm)
	}
	if _, err := scenario.Parse([]byte("quantum: 5\n")); !errors.Is(err, scenario.ErrInvalid) {
		t.Errorf("unknown key: want ErrInvalid, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	if err := os.WriteFile(path, []byte(twoJobs), 0o600); err != nil {
		t.Fatal(err)
	}
	sc, err := scenario.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "two-jobs" {
		t.Errorf("name = %q", sc.Name)
	}

	if _, err := scenario.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown algorithm":  "algorithm: lottery\n",
		"negative quantum":   "params: {quantum: -1}\n",
		"string quantum":     "params: {quantum: five}\n",
		"unknown param":      "params: {priority: 1}\n",
		"zero execution":     "processes: [{execution: 0}]\n",
		"unknown field":      "processes: [{niceness: 3}]\n",
		"negative period":    "tick_period_ms: -5\n",
		"overflowing period": "params: {quantum: 9223372036854775807, switchTime: 1}\n",
	}
	cat := catalog.Default()
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			sc := mustParse(t, src)
			if err := sc.Validate(cat); !errors.Is(err, scenario.ErrInvalid) {
				t.Errorf("want ErrInvalid, got %v", err)
			}
		})
	}
}

// ─── Build ────────────────────────────────────────────────────────────────────

func TestBuild_RunsToCompletion(t *testing.T) {
	sim, err := mustParse(t, twoJobs).Build(catalog.Default(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 0; !sim.Finished(); i++ {
		if i > 50 {
			t.Fatal("simulation did not finish")
		}
		sim.Tick()
	}
	ended := sim.EndedQueue()
	if len(ended) != 2 {
		t.Fatalf("ended = %d, want 2", len(ended))
	}
	if ended[0].Int(types.FlagEnd, -1) != 9 || ended[1].Int(types.FlagEnd, -1) != 14 {
		t.Errorf("end times = %v", ended)
	}
}

func TestBuild_AppliesSchemaDefaults(t *testing.T) {
	sc := mustParse(t, "processes:\n  - {}\n  - {arrival: 3}\n")
	sim, err := sc.Build(catalog.Default(), rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := sim.AlgorithmState()
	if state.Int(types.FlagQuantum, -1) != 5 || state.Int(types.FlagSwitchTime, -1) != 1 {
		t.Errorf("algorithm state = %v, want quantum 5 switchTime 1", state)
	}

	all := sim.AllProcesses()
	if len(all) != 2 {
		t.Fatalf("processes = %d, want 2", len(all))
	}
	for _, r := range all {
		if r.Int(types.FlagExecution, -1) != 10 {
			t.Errorf("execution = %d, want default 10", r.Int(types.FlagExecution, -1))
		}
		name, _ := r.Get(types.FlagName)
		if s, _ := name.AsString(); !strings.HasPrefix(s, "process_") {
			t.Errorf("name = %q, want process_ prefix", s)
		}
	}
	if all[1].Int(types.FlagArrival, -1) != 3 {
		t.Errorf("arrival = %d, want 3", all[1].Int(types.FlagArrival, -1))
	}
}

func TestBuild_HonorsExplicitIDs(t *testing.T) {
	sc := mustParse(t, "processes:\n  - {id: 4}\n  - {}\n")
	sim, err := sc.Build(catalog.Default(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	all := sim.AllProcesses()
	if all[0].Int(types.FlagID, -1) != 4 || all[1].Int(types.FlagID, -1) != 5 {
		t.Errorf("ids = %v", all)
	}
}

func TestNewProcess(t *testing.T) {
	schema := roundrobin.Descriptor.Schema()
	p, err := scenario.NewProcess(schema, scenario.Fields{"name": types.String("x"), "execution": types.Int(2)}, nil)
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	if p.Name != "x" || p.Execution != 2 || p.Arrival != 0 {
		t.Errorf("process = %+v", p)
	}
	if p.End != types.Unset {
		t.Errorf("end = %d, want unset", p.End)
	}
}

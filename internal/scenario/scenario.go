// Package scenario loads, validates and builds simulation scenarios.
//
// A scenario names an algorithm, its configuration inputs and the initial
// process list. It is the configuration collaborator of the simulation core:
// every value is checked against the algorithm's schema here, before a
// Scheduler or Simulator is constructed. Absent values are filled from the
// schema's default providers.
//
// Example file:
//
//	name: two-jobs
//	algorithm: round-robin
//	params:
//	  quantum: 5
//	  switchTime: 1
//	tick_period_ms: 250
//	processes:
//	  - {name: editor, arrival: 0, execution: 10}
//	  - {name: compiler, arrival: 2, execution: 4}
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/scheduler/roundrobin"
	"github.com/snehjoshi/epochsim/internal/simulator"
	"github.com/snehjoshi/epochsim/internal/types"
)

// DefaultTickPeriod is the autoplay period used when a scenario sets none.
const DefaultTickPeriod = 500 * time.Millisecond

// ErrInvalid is returned when a scenario fails validation.
var ErrInvalid = errors.New("scenario: invalid")

// Fields is a set of user-supplied field values keyed by flag name.
type Fields map[string]types.Value

// Scenario is a named, reproducible simulation setup.
type Scenario struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Algorithm    string   `yaml:"algorithm" json:"algorithm"`
	Params       Fields   `yaml:"params,omitempty" json:"params,omitempty"`
	TickPeriodMs int      `yaml:"tick_period_ms,omitempty" json:"tick_period_ms,omitempty"`
	Processes    []Fields `yaml:"processes" json:"processes"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) scenario document. Unknown top-level keys
// are rejected. An empty algorithm defaults to round-robin.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if sc.Algorithm == "" {
		sc.Algorithm = roundrobin.Name
	}
	return &sc, nil
}

// TickPeriod returns the autoplay period, falling back to def when the
// scenario sets none.
func (sc *Scenario) TickPeriod(def time.Duration) time.Duration {
	if sc.TickPeriodMs > 0 {
		return time.Duration(sc.TickPeriodMs) * time.Millisecond
	}
	return def
}

// Validate checks the scenario against the algorithm's schema without
// building anything. It returns the first problem found.
func (sc *Scenario) Validate(cat *catalog.Catalog) error {
	desc, err := cat.Lookup(sc.Algorithm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if sc.TickPeriodMs < 0 {
		return fmt.Errorf("%w: tick_period_ms must be >= 0", ErrInvalid)
	}
	schema := desc.Schema()
	if err := checkFields("params", sc.Params, schema.AlgorithmIn, nil); err != nil {
		return err
	}
	if _, err := Configure(desc, sc.Params, nil); err != nil {
		return err
	}
	for i, p := range sc.Processes {
		if err := checkFields(fmt.Sprintf("processes[%d]", i), p, schema.ProcessIn, schema.ProcessInternal); err != nil {
			return err
		}
	}
	return nil
}

func checkFields(where string, in Fields, declared, optional []scheduler.Field) error {
	known := make(map[string]scheduler.Field, len(declared)+len(optional))
	for _, f := range declared {
		known[string(f.Flag)] = f
	}
	for _, f := range optional {
		known[string(f.Flag)] = f
	}
	for k, v := range in {
		f, ok := known[k]
		if !ok {
			return fmt.Errorf("%w: %s: unknown field %q", ErrInvalid, where, k)
		}
		if err := f.Check(v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, where, err)
		}
	}
	return nil
}

// Configure builds a configured Scheduler for desc, taking each
// configuration input from params or, when absent, from its default.
func Configure(desc scheduler.Descriptor, params Fields, rng *rand.Rand) (*scheduler.Scheduler, error) {
	fields := desc.Schema().AlgorithmIn
	args := make([]types.Value, len(fields))
	for i, f := range fields {
		v, ok := params[string(f.Flag)]
		if !ok {
			v = f.Initial.Eval(rng)
		}
		args[i] = v
	}
	sched := scheduler.New(desc)
	if err := sched.Configure(args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return sched, nil
}

// NewProcess builds a process from user-supplied fields. Inputs the user
// left out take their schema default; an "id" field is honored when present.
func NewProcess(schema scheduler.Schema, in Fields, rng *rand.Rand) (*types.Process, error) {
	if err := checkFields("process", in, schema.ProcessIn, schema.ProcessInternal); err != nil {
		return nil, err
	}
	p := types.NewProcess("", 0, 0)
	for _, f := range schema.ProcessIn {
		v, ok := in[string(f.Flag)]
		if !ok {
			v = f.Initial.Eval(rng)
		}
		if err := f.Check(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if err := p.Set(f.Flag, v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if v, ok := in[string(types.FlagID)]; ok {
		if err := p.Set(types.FlagID, v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return p, nil
}

// Build validates the scenario and constructs a ready-to-run simulator.
// rng drives random defaults; nil uses the global source.
func (sc *Scenario) Build(cat *catalog.Catalog, rng *rand.Rand) (*simulator.Simulator, error) {
	if err := sc.Validate(cat); err != nil {
		return nil, err
	}
	desc, _ := cat.Lookup(sc.Algorithm)

	sched, err := Configure(desc, sc.Params, rng)
	if err != nil {
		return nil, err
	}
	procs := make([]*types.Process, 0, len(sc.Processes))
	for _, in := range sc.Processes {
		p, err := NewProcess(desc.Schema(), in, rng)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	sim, err := simulator.New(sched, sc.TickPeriod(DefaultTickPeriod), procs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return sim, nil
}

package scheduler

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/snehjoshi/epochsim/internal/types"
)

// ─── Default-value providers ──────────────────────────────────────────────────

// DefaultKind selects how a field's default value is computed.
type DefaultKind string

const (
	DefaultNone     DefaultKind = ""
	DefaultConstant DefaultKind = "constant" // Value as-is
	DefaultRandom   DefaultKind = "random"   // uniform int in [Min, Max]
	DefaultName     DefaultKind = "name"     // Prefix + uniform int in [Min, Max]
)

// Default is a closed, typed rule for computing a sensible default for a
// field when the user supplies none.
type Default struct {
	Kind   DefaultKind `json:"kind,omitempty"`
	Value  types.Value `json:"value"`
	Min    int         `json:"min,omitempty"`
	Max    int         `json:"max,omitempty"`
	Prefix string      `json:"prefix,omitempty"`
}

// Constant defaults to v.
func Constant(v types.Value) Default {
	return Default{Kind: DefaultConstant, Value: v}
}

// RandomRange defaults to a uniform integer in [lo, hi].
func RandomRange(lo, hi int) Default {
	return Default{Kind: DefaultRandom, Min: lo, Max: hi}
}

// NameGenerator defaults to prefix followed by a uniform integer in [0, spread).
func NameGenerator(prefix string, spread int) Default {
	d := RandomRange(0, spread-1)
	d.Kind = DefaultName
	d.Prefix = prefix
	return d
}

// Eval computes the default. rng may be nil, in which case the global
// source is used.
func (d Default) Eval(rng *rand.Rand) types.Value {
	switch d.Kind {
	case DefaultConstant:
		return d.Value
	case DefaultRandom:
		return types.Int(d.draw(rng))
	case DefaultName:
		return types.String(d.Prefix + strconv.Itoa(d.draw(rng)))
	default:
		return types.None()
	}
}

func (d Default) draw(rng *rand.Rand) int {
	if d.Max <= d.Min {
		return d.Min
	}
	span := d.Max - d.Min + 1
	if rng == nil {
		return d.Min + rand.IntN(span)
	}
	return d.Min + rng.IntN(span)
}

// ─── Field ────────────────────────────────────────────────────────────────────

// Field declares one field of an algorithm's schema. Only Flag is semantically
// required by the simulation core; the rest is presentation metadata.
type Field struct {
	Flag        types.Flag `json:"flag"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Kind        types.Kind `json:"kind"`
	Min         *int       `json:"min,omitempty"`
	Initial     Default    `json:"initial"`
}

// AtLeast returns a lower bound for Field.Min.
func AtLeast(n int) *int { return &n }

// Check reports whether v is acceptable for this field: right kind and,
// for bounded ints, not below Min.
func (f Field) Check(v types.Value) error {
	if f.Kind != types.KindNone && v.Kind() != f.Kind {
		return fmt.Errorf("%w: %s must be %s, got %s", ErrInvalidValue, f.Flag, f.Kind, v.Kind())
	}
	if n, ok := v.AsInt(); ok && f.Min != nil && n < *f.Min {
		return fmt.Errorf("%w: %s must be >= %d, got %d", ErrInvalidValue, f.Flag, *f.Min, n)
	}
	return nil
}

// ─── Schema ───────────────────────────────────────────────────────────────────

// Schema is the single source of truth for what the simulator snapshots.
// The three algorithm lists are disjoint, and so are the three process lists.
type Schema struct {
	AlgorithmIn       []Field `json:"algorithm_in"`
	AlgorithmInternal []Field `json:"algorithm_internal"`
	AlgorithmOut      []Field `json:"algorithm_out"`
	ProcessIn         []Field `json:"process_in"`
	ProcessInternal   []Field `json:"process_internal"`
	ProcessOut        []Field `json:"process_out"`
}

// AlgorithmFlags returns configuration inputs, internal state and outputs,
// in that order.
func (s Schema) AlgorithmFlags() []types.Flag {
	return flagsOf(s.AlgorithmIn, s.AlgorithmInternal, s.AlgorithmOut)
}

// ProcessFlags returns process inputs, internal fields and outputs, in that
// order.
func (s Schema) ProcessFlags() []types.Flag {
	return flagsOf(s.ProcessIn, s.ProcessInternal, s.ProcessOut)
}

// Validate checks that no flag is empty and that each group of lists is
// disjoint.
func (s Schema) Validate() error {
	if err := disjoint("algorithm", s.AlgorithmIn, s.AlgorithmInternal, s.AlgorithmOut); err != nil {
		return err
	}
	return disjoint("process", s.ProcessIn, s.ProcessInternal, s.ProcessOut)
}

func disjoint(group string, lists ...[]Field) error {
	seen := make(map[types.Flag]struct{})
	for _, l := range lists {
		for _, f := range l {
			if f.Flag == "" {
				return fmt.Errorf("%w: empty %s flag", ErrSchema, group)
			}
			if _, dup := seen[f.Flag]; dup {
				return fmt.Errorf("%w: %s flag %q declared twice", ErrSchema, group, f.Flag)
			}
			seen[f.Flag] = struct{}{}
		}
	}
	return nil
}

func flagsOf(lists ...[]Field) []types.Flag {
	var out []types.Flag
	for _, l := range lists {
		for _, f := range l {
			out = append(out, f.Flag)
		}
	}
	return out
}

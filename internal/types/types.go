// Package types contains the core domain types shared across all EpochSim
// internal packages. It deliberately has zero imports of other EpochSim packages
// so that the scheduler, the simulator and every transport can import from it
// without creating import cycles.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownField is returned when a flag is not a field of the entity it is
// read from or written to.
var ErrUnknownField = errors.New("types: unknown field")

// ErrFieldType is returned when a Value of the wrong kind is written to a field.
var ErrFieldType = errors.New("types: wrong value kind for field")

// Flag identifies a single field of a process or of the scheduler state.
// The same flag may name a process field and a scheduler field ("time").
type Flag string

// Process fields.
const (
	FlagName      Flag = "name"
	FlagArrival   Flag = "arrival"
	FlagExecution Flag = "execution"
	FlagID        Flag = "id"
	FlagTime      Flag = "time"
	FlagService   Flag = "service"
	FlagWait      Flag = "wait"
	FlagEnd       Flag = "end"
)

// Scheduler-level fields. FlagTime doubles as the scheduler clock.
const (
	FlagQuantum      Flag = "quantum"
	FlagSwitchTime   Flag = "switchTime"
	FlagSwitchAt     Flag = "switchAt"
	FlagProcessEnded Flag = "processEnded"
	FlagCurrently    Flag = "currently"
)

// ─── Indicator ────────────────────────────────────────────────────────────────

// Indicator is the display state of the CPU for the last tick: idle, wasted
// on a context switch, or running the process with the given id.
type Indicator string

const (
	// Idle means the ready queue was empty.
	Idle Indicator = "idle"
	// Waste means the tick was consumed by the dispatcher (context switch).
	Waste Indicator = "waste"
)

// Running returns the indicator for a tick spent executing process id.
func Running(id int) Indicator { return Indicator(strconv.Itoa(id)) }

func (i Indicator) String() string { return string(i) }

// ─── Process ──────────────────────────────────────────────────────────────────

// Unset marks an output field (service, wait, end) the algorithm has not
// computed yet.
const Unset = -1

// Process is one schedulable unit of work. It lives in exactly one of the
// future, ready, ended (or killed) queues at any instant.
type Process struct {
	// ID is unique within a simulation. Zero means "not assigned yet".
	ID int

	// Inputs.
	Name      string
	Arrival   int
	Execution int

	// Outputs, mutated only by the scheduling algorithm during ticks.
	Time    int // service received so far
	Service int // clock value at first dispatch
	Wait    int // Service - Arrival
	End     int // clock value at completion
}

// NewProcess returns a process with its inputs set and its outputs unset.
func NewProcess(name string, arrival, execution int) *Process {
	return &Process{
		Name:      name,
		Arrival:   arrival,
		Execution: execution,
		Service:   Unset,
		Wait:      Unset,
		End:       Unset,
	}
}

// Done reports whether the process received all of its required service.
func (p *Process) Done() bool { return p.Time >= p.Execution }

// Get returns the value of field f.
func (p *Process) Get(f Flag) (Value, bool) {
	switch f {
	case FlagName:
		return String(p.Name), true
	case FlagArrival:
		return Int(p.Arrival), true
	case FlagExecution:
		return Int(p.Execution), true
	case FlagID:
		return Int(p.ID), true
	case FlagTime:
		return Int(p.Time), true
	case FlagService:
		return optional(p.Service), true
	case FlagWait:
		return optional(p.Wait), true
	case FlagEnd:
		return optional(p.End), true
	}
	return Value{}, false
}

// Set writes v into field f.
func (p *Process) Set(f Flag, v Value) error {
	switch f {
	case FlagName:
		return v.assignString(f, &p.Name)
	case FlagArrival:
		return v.assignInt(f, &p.Arrival)
	case FlagExecution:
		return v.assignInt(f, &p.Execution)
	case FlagID:
		return v.assignInt(f, &p.ID)
	case FlagTime:
		return v.assignInt(f, &p.Time)
	case FlagService:
		return v.assignOptional(f, &p.Service)
	case FlagWait:
		return v.assignOptional(f, &p.Wait)
	case FlagEnd:
		return v.assignOptional(f, &p.End)
	}
	return fmt.Errorf("%w: process.%s", ErrUnknownField, f)
}

// Record extracts the given fields, in order, as a flat record. Flags that
// are not process fields are skipped.
func (p *Process) Record(flags []Flag) Record {
	r := make(Record, 0, len(flags))
	for _, f := range flags {
		if v, ok := p.Get(f); ok {
			r = append(r, FieldValue{Flag: f, Value: v})
		}
	}
	return r
}

func optional(n int) Value {
	if n == Unset {
		return None()
	}
	return Int(n)
}

package types_test

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/snehjoshi/epochsim/internal/types"
)

// ─── Process ──────────────────────────────────────────────────────────────────

func TestNewProcess_OutputsUnset(t *testing.T) {
	p := types.NewProcess("p", 2, 7)

	for _, f := range []types.Flag{types.FlagService, types.FlagWait, types.FlagEnd} {
		v, ok := p.Get(f)
		if !ok {
			t.Fatalf("Get(%s): field missing", f)
		}
		if !v.IsNone() {
			t.Errorf("Get(%s) = %v, want none", f, v)
		}
	}
	if v, _ := p.Get(types.FlagTime); v != types.Int(0) {
		t.Errorf("time = %v, want 0", v)
	}
}

func TestProcess_SetGetRoundTrip(t *testing.T) {
	p := &types.Process{}
	sets := []types.FieldValue{
		{Flag: types.FlagName, Value: types.String("editor")},
		{Flag: types.FlagArrival, Value: types.Int(3)},
		{Flag: types.FlagExecution, Value: types.Int(9)},
		{Flag: types.FlagID, Value: types.Int(4)},
		{Flag: types.FlagTime, Value: types.Int(2)},
		{Flag: types.FlagService, Value: types.Int(5)},
		{Flag: types.FlagWait, Value: types.Int(2)},
		{Flag: types.FlagEnd, Value: types.None()},
	}
	for _, fv := range sets {
		if err := p.Set(fv.Flag, fv.Value); err != nil {
			t.Fatalf("Set(%s): %v", fv.Flag, err)
		}
	}
	for _, fv := range sets {
		got, _ := p.Get(fv.Flag)
		if got != fv.Value {
			t.Errorf("Get(%s) = %v, want %v", fv.Flag, got, fv.Value)
		}
	}
	if p.End != types.Unset {
		t.Errorf("End = %d, want Unset", p.End)
	}
}

func TestProcess_SetRejectsUnknownAndMistyped(t *testing.T) {
	p := types.NewProcess("p", 0, 1)

	if err := p.Set("priority", types.Int(1)); !errors.Is(err, types.ErrUnknownField) {
		t.Errorf("unknown field: want ErrUnknownField, got %v", err)
	}
	if err := p.Set(types.FlagArrival, types.String("soon")); !errors.Is(err, types.ErrFieldType) {
		t.Errorf("string arrival: want ErrFieldType, got %v", err)
	}
	if err := p.Set(types.FlagName, types.Int(1)); !errors.Is(err, types.ErrFieldType) {
		t.Errorf("int name: want ErrFieldType, got %v", err)
	}
}

func TestProcess_RecordKeepsFlagOrder(t *testing.T) {
	p := types.NewProcess("p", 1, 4)
	p.ID = 7

	r := p.Record([]types.Flag{types.FlagID, types.FlagName, "bogus", types.FlagExecution})
	want := []types.Flag{types.FlagID, types.FlagName, types.FlagExecution}
	got := r.Flags()
	if len(got) != len(want) {
		t.Fatalf("flags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flag[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if r.Int(types.FlagID, -1) != 7 {
		t.Errorf("id = %d, want 7", r.Int(types.FlagID, -1))
	}
}

// ─── Value codecs ─────────────────────────────────────────────────────────────

func TestValue_JSON(t *testing.T) {
	cases := []struct {
		in   string
		want types.Value
	}{
		{`null`, types.None()},
		{`42`, types.Int(42)},
		{`-3`, types.Int(-3)},
		{`5.0`, types.Int(5)},
		{`true`, types.Bool(true)},
		{`"waste"`, types.String("waste")},
	}
	for _, c := range cases {
		var v types.Value
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Fatalf("Unmarshal(%s): %v", c.in, err)
		}
		if v != c.want {
			t.Errorf("Unmarshal(%s) = %v (%s), want %v", c.in, v, v.Kind(), c.want)
		}
	}

	var v types.Value
	if err := json.Unmarshal([]byte(`2.5`), &v); !errors.Is(err, types.ErrFieldType) {
		t.Errorf("fractional number: want ErrFieldType, got %v", err)
	}
}

func TestValue_YAML(t *testing.T) {
	var doc struct {
		Params map[string]types.Value `yaml:"params"`
	}
	src := "params:\n  quantum: 4\n  verbose: true\n  label: \"7\"\n  empty: ~\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	want := map[string]types.Value{
		"quantum": types.Int(4),
		"verbose": types.Bool(true),
		"label":   types.String("7"),
		"empty":   types.None(),
	}
	for k, w := range want {
		if doc.Params[k] != w {
			t.Errorf("%s = %v, want %v", k, doc.Params[k], w)
		}
	}

	bad := "params:\n  quantum: [1, 2]\n"
	if err := yaml.Unmarshal([]byte(bad), &doc); err == nil {
		t.Error("expected error for non-scalar value")
	}
}

// ─── Record ───────────────────────────────────────────────────────────────────

func TestRecord_JSONPreservesOrder(t *testing.T) {
	r := types.Record{
		{Flag: types.FlagQuantum, Value: types.Int(5)},
		{Flag: types.FlagSwitchTime, Value: types.Int(1)},
		{Flag: types.FlagProcessEnded, Value: types.Bool(false)},
		{Flag: types.FlagCurrently, Value: types.String("idle")},
		{Flag: types.FlagEnd, Value: types.None()},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"quantum":5,"switchTime":1,"processEnded":false,"currently":"idle","end":null}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}

	var back types.Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(r) {
		t.Errorf("round trip = %v, want %v", back, r)
	}
}

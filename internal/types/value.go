package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind is the dynamic type held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*k = KindNone
	case "int":
		*k = KindInt
	case "bool":
		*k = KindBool
	case "string":
		*k = KindString
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrFieldType, b)
	}
	return nil
}

// Value is a closed scalar: none, int, bool or string. Values are immutable
// and comparable with ==, so copying a Value is always a deep copy.
type Value struct {
	kind Kind
	i    int
	b    bool
	s    string
}

func None() Value { return Value{} }
func Int(n int) Value { return Value{kind: KindInt, i: n} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

// AsInt returns the int held by v.
func (v Value) AsInt() (int, bool) { return v.i, v.kind == KindInt }

// AsBool returns the bool held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return "-"
	}
}

func (v Value) assignInt(f Flag, dst *int) error {
	n, ok := v.AsInt()
	if !ok {
		return fmt.Errorf("%w: %s wants int, got %s", ErrFieldType, f, v.kind)
	}
	*dst = n
	return nil
}

func (v Value) assignOptional(f Flag, dst *int) error {
	if v.IsNone() {
		*dst = Unset
		return nil
	}
	return v.assignInt(f, dst)
}

func (v Value) assignString(f Flag, dst *string) error {
	s, ok := v.AsString()
	if !ok {
		return fmt.Errorf("%w: %s wants string, got %s", ErrFieldType, f, v.kind)
	}
	*dst = s
	return nil
}

// MarshalJSON encodes v as a bare JSON scalar (null for none).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.Itoa(v.i)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Numbers must be integral.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("%w: empty value", ErrFieldType)
	case string(data) == "null":
		*v = None()
	case string(data) == "true", string(data) == "false":
		*v = Bool(data[0] == 't')
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	default:
		n, err := parseIntegral(string(data))
		if err != nil {
			return err
		}
		*v = Int(n)
	}
	return nil
}

// MarshalYAML encodes v as a plain YAML scalar.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindBool:
		return v.b, nil
	case KindString:
		return v.s, nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML decodes a YAML scalar node by its resolved tag.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: want a scalar", ErrFieldType, node.Line)
	}
	switch node.ShortTag() {
	case "!!null":
		*v = None()
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		n, err := parseIntegral(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*v = Int(n)
	default:
		*v = String(node.Value)
	}
	return nil
}

func parseIntegral(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrFieldType, s)
	}
	return int(f), nil
}

// ─── Record ───────────────────────────────────────────────────────────────────

// FieldValue is one entry of a Record.
type FieldValue struct {
	Flag  Flag
	Value Value
}

// Record is an ordered mapping from field identifier to value. It is the
// snapshot type of the simulator: only the fields listed in a Record survive
// a restore.
type Record []FieldValue

// Get returns the value stored for f.
func (r Record) Get(f Flag) (Value, bool) {
	for _, fv := range r {
		if fv.Flag == f {
			return fv.Value, true
		}
	}
	return Value{}, false
}

// Int returns the int stored for f, or def when absent or not an int.
func (r Record) Int(f Flag, def int) int {
	v, ok := r.Get(f)
	if !ok {
		return def
	}
	if n, ok := v.AsInt(); ok {
		return n
	}
	return def
}

// Flags returns the record's field identifiers in order.
func (r Record) Flags() []Flag {
	out := make([]Flag, len(r))
	for i, fv := range r {
		out[i] = fv.Flag
	}
	return out
}

// Equal reports whether both records hold the same fields in the same order.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, fv := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(string(fv.Flag))
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		val, err := fv.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the input.
func (r *Record) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*r = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("types: record must be a JSON object")
	}
	out := Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		out = append(out, FieldValue{Flag: Flag(key), Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

package internal

import (
	"fmt"
	"strconv"
	"strings"

	"shotseries-spec/specs"
)

// KeyValue is one coerced component of a record key. Exported fields keep
// keys gob-encodable for the permanent cache payloads.
type KeyValue struct {
	Kind  specs.CoercionKind
	Int   int64
	Float float64
	Str   string
}

func coerceValue(kind specs.CoercionKind, val any) (KeyValue, error) {
	switch kind {
	case specs.KindInt:
		i, err := coerceInt(val)
		if err != nil {
			return KeyValue{}, err
		}
		return KeyValue{Kind: kind, Int: i}, nil
	case specs.KindFloat:
		f, err := coerceFloat(val)
		if err != nil {
			return KeyValue{}, err
		}
		return KeyValue{Kind: kind, Float: f}, nil
	case specs.KindString:
		return KeyValue{Kind: kind, Str: canonical(val)}, nil
	case specs.KindDecimal:
		d, err := NewDecimalFromAny(val)
		if err != nil {
			return KeyValue{}, err
		}
		return KeyValue{Kind: kind, Str: d.String()}, nil
	default:
		return KeyValue{}, fmt.Errorf("unsupported coercion kind %v", kind)
	}
}

func coerceInt(val any) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("cannot coerce non-integral %v to int", v)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to int: %w", v, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to int", val)
	}
}

func coerceFloat(val any) (float64, error) {
	switch v := val.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to float: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to float", val)
	}
}

func (kv KeyValue) less(other KeyValue) bool {
	switch kv.Kind {
	case specs.KindInt:
		return kv.Int < other.Int
	case specs.KindFloat:
		return kv.Float < other.Float
	case specs.KindDecimal:
		a, errA := NewDecimal(kv.Str)
		b, errB := NewDecimal(other.Str)
		if errA != nil || errB != nil {
			return kv.Str < other.Str
		}
		return a.Cmp(b) < 0
	default:
		return kv.Str < other.Str
	}
}

func (kv KeyValue) equal(other KeyValue) bool {
	if kv.Kind != other.Kind {
		return false
	}
	switch kv.Kind {
	case specs.KindInt:
		return kv.Int == other.Int
	case specs.KindFloat:
		return kv.Float == other.Float
	case specs.KindDecimal:
		a, errA := NewDecimal(kv.Str)
		b, errB := NewDecimal(other.Str)
		if errA != nil || errB != nil {
			return kv.Str == other.Str
		}
		return a.Cmp(b) == 0
	default:
		return kv.Str == other.Str
	}
}

func (kv KeyValue) canonicalString() string {
	switch kv.Kind {
	case specs.KindInt:
		return strconv.FormatInt(kv.Int, 10)
	case specs.KindFloat:
		return strconv.FormatFloat(kv.Float, 'g', -1, 64)
	default:
		return kv.Str
	}
}

// Key is the canonical identity tuple of one record: hashable through its
// String form, orderable through Less. Equal keys mean the same physical
// event.
type Key struct {
	Values []KeyValue
}

// Less orders keys lexicographically by field position.
func (k Key) Less(other Key) bool {
	for i := range k.Values {
		if i >= len(other.Values) {
			return false
		}
		if k.Values[i].equal(other.Values[i]) {
			continue
		}
		return k.Values[i].less(other.Values[i])
	}
	return len(k.Values) < len(other.Values)
}

func (k Key) Equal(other Key) bool {
	if len(k.Values) != len(other.Values) {
		return false
	}
	for i := range k.Values {
		if !k.Values[i].equal(other.Values[i]) {
			return false
		}
	}
	return true
}

// String is the canonical encoding used as map key and as the record-key
// component of permanent cache entry keys. The unit separator keeps
// adjacent string fields unambiguous.
func (k Key) String() string {
	parts := make([]string, len(k.Values))
	for i, kv := range k.Values {
		parts[i] = kv.Kind.String() + ":" + kv.canonicalString()
	}
	return strings.Join(parts, "\x1f")
}

// KeySpec derives record keys from a fixed ordered set of (field name,
// coercion) pairs.
type KeySpec struct {
	fields []specs.KeyFieldSpec
}

func NewKeySpec(fields ...specs.KeyFieldSpec) (KeySpec, error) {
	if len(fields) == 0 {
		return KeySpec{}, fmt.Errorf("key spec requires at least one field")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return KeySpec{}, fmt.Errorf("key field name is required")
		}
		if seen[f.Name] {
			return KeySpec{}, fmt.Errorf("duplicate key field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return KeySpec{fields: fields}, nil
}

// Fields returns the ordered key fields.
func (ks KeySpec) Fields() []specs.KeyFieldSpec {
	return ks.fields
}

// Derive extracts and coerces the key fields from a record. Every field
// must be present; lazy placeholders among key fields are materialized,
// key fields are small scalars by contract.
func (ks KeySpec) Derive(r *Record) (Key, error) {
	values := make([]KeyValue, len(ks.fields))
	for i, f := range ks.fields {
		raw, err := r.Get(f.Name)
		if err != nil {
			return Key{}, fmt.Errorf("deriving key field %q: %w", f.Name, err)
		}
		kv, err := coerceValue(f.Kind, raw)
		if err != nil {
			return Key{}, fmt.Errorf("deriving key field %q: %w", f.Name, err)
		}
		values[i] = kv
	}
	return Key{Values: values}, nil
}

// Literal builds a key directly from the given values, bypassing any
// record. Useful for point lookups into a series.
func (ks KeySpec) Literal(vals ...any) (Key, error) {
	if len(vals) != len(ks.fields) {
		return Key{}, fmt.Errorf("expected %d key values, got %d", len(ks.fields), len(vals))
	}
	values := make([]KeyValue, len(vals))
	for i, v := range vals {
		kv, err := coerceValue(ks.fields[i].Kind, v)
		if err != nil {
			return Key{}, fmt.Errorf("key field %q: %w", ks.fields[i].Name, err)
		}
		values[i] = kv
	}
	return Key{Values: values}, nil
}

package internal

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"shotseries-spec/specs"
)

// Record is the accumulated key/value data of one physical event. It wraps
// a plain map and funnels every insert through Set, which is the single
// place the write-once-with-agreement and sentinel rules live.
//
// Values may be LazyValue placeholders; Get materializes them
// transparently without writing the payload back. Contains and Raw never
// materialize.
type Record struct {
	mapping   map[string]any
	sentinels map[string]bool
}

func defaultSentinels() map[string]bool {
	set := make(map[string]bool, len(specs.Sentinels))
	for _, s := range specs.Sentinels {
		set[s] = true
	}
	return set
}

// NewRecord returns an empty record with the default sentinel set.
func NewRecord() *Record {
	return &Record{
		mapping:   make(map[string]any),
		sentinels: defaultSentinels(),
	}
}

// FromSpec builds a record from a raw source mapping. Sentinel values are
// suppressed on the way in.
func FromSpec(spec specs.RecordSpec) (*Record, error) {
	r := NewRecord()
	if err := r.Update(spec); err != nil {
		return nil, err
	}
	return r, nil
}

// AsRecord converts a raw source item into a record. An item that already
// is a record is returned unchanged (identity short-circuit): pipelines
// cannot accidentally duplicate ownership of lazy placeholders.
func AsRecord(item any) (*Record, error) {
	switch v := item.(type) {
	case *Record:
		return v, nil
	case specs.RecordSpec:
		return FromSpec(v)
	default:
		return nil, fmt.Errorf("cannot build record from %T", item)
	}
}

// SetSentinels replaces the record's unknown-content string set.
func (r *Record) SetSentinels(sentinels []string) {
	set := make(map[string]bool, len(sentinels))
	for _, s := range sentinels {
		set[s] = true
	}
	r.sentinels = set
}

// isUnknown reports whether val carries no actual information: nil, a
// sentinel string, NaN, or an empty sequence.
func (r *Record) isUnknown(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return r.sentinels[v]
	case float64:
		return math.IsNaN(v)
	case float32:
		return math.IsNaN(float64(v))
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len() == 0
	}
	return false
}

// Set stores val under key. Unknown-content values are silently dropped.
// Re-setting an existing key is a no-op when the canonical string forms
// agree and an identity conflict otherwise: once assigned, records cannot
// change, so disagreeing data sources surface immediately.
//
// Comparison uses the raw stored value; a lazy placeholder is never
// materialized just to check agreement. Replacing a placeholder with its
// payload is an explicit operation, see Materialize.
func (r *Record) Set(key string, val any) error {
	if r.isUnknown(val) {
		return nil
	}
	if old, ok := r.mapping[key]; ok {
		if canonical(old) != canonical(val) {
			return fmt.Errorf("%w: attempting to reassign key %q from %q to %q on %s",
				ErrIdentityConflict, key, canonical(old), canonical(val), r)
		}
		return nil
	}
	r.mapping[key] = val
	return nil
}

// Get returns the value stored under key, materializing a lazy
// placeholder on the way out. The payload is not written back.
func (r *Record) Get(key string) (any, error) {
	val, ok := r.mapping[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if lazy, isLazy := val.(LazyValue); isLazy {
		return lazy.Access(r, key)
	}
	return val, nil
}

// Raw returns the stored value without materializing placeholders.
func (r *Record) Raw(key string) (any, bool) {
	val, ok := r.mapping[key]
	return val, ok
}

// Contains checks raw storage only. It must never materialize a
// placeholder just to answer a membership question.
func (r *Record) Contains(key string) bool {
	_, ok := r.mapping[key]
	return ok
}

// Update applies Set per key, in sorted key order so that conflicts
// surface deterministically.
func (r *Record) Update(spec specs.RecordSpec) error {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.Set(k, spec[k]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecord merges another record's raw values into r. Merging a
// record with itself is a no-op.
func (r *Record) UpdateRecord(other *Record) error {
	if other == r {
		return nil
	}
	return r.Update(other.mapping)
}

// Materialize resolves the placeholder under key and pins the concrete
// payload into the record, replacing the reference. This is the one
// sanctioned way to overwrite a stored value.
func (r *Record) Materialize(key string) error {
	val, err := r.Get(key)
	if err != nil {
		return err
	}
	r.mapping[key] = val
	return nil
}

// Keys returns the record's keys in sorted order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.mapping))
	for k := range r.mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Record) Len() int {
	return len(r.mapping)
}

// Clone returns a shallow copy. Lazy placeholders are shared as
// references, never materialized, so clones stay cheap regardless of
// payload size.
func (r *Record) Clone() *Record {
	mapping := make(map[string]any, len(r.mapping))
	for k, v := range r.mapping {
		mapping[k] = v
	}
	sentinels := make(map[string]bool, len(r.sentinels))
	for k, v := range r.sentinels {
		sentinels[k] = v
	}
	return &Record{mapping: mapping, sentinels: sentinels}
}

// Diagnostic invokes a named diagnostic from reg on this record. A nil
// context is replaced by a fresh shared (default) context.
func (r *Record) Diagnostic(reg *Registry, name string, ctx *Context, args []any, kwargs specs.Kwargs) (any, error) {
	return reg.Call(r, name, ctx, args, kwargs)
}

// CacheFingerprint identifies the record in transient cache keys. Records
// are identity-keyed owners of their data, so object identity is the
// right notion of "same input" within a session.
func (r *Record) CacheFingerprint() string {
	return fmt.Sprintf("record@%p", r)
}

func (r *Record) String() string {
	return fmt.Sprintf("<Record with %d items>", len(r.mapping))
}

// canonical is the string form used for agreement checks: data sources
// deliver the same quantity as "5", 5 and 5.0 interchangeably.
func canonical(val any) string {
	return fmt.Sprint(val)
}

package internal

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"shotseries-spec/specs"

	"shotseries-spec/internal/infra"
)

// Series is an ordered collection of records keyed by their derived key.
// Iteration order is always ascending key order, regardless of merge
// order. Records are owned by the series from first merge on and are
// never destroyed individually.
type Series struct {
	keySpec KeySpec
	byKey   map[string]*Record
	order   []Key
	sources map[string]specs.DataSource
	bus     *infra.Bus
}

// NewSeries creates an empty series whose identity is defined by keySpec.
func NewSeries(keySpec KeySpec) *Series {
	return &Series{
		keySpec: keySpec,
		byKey:   make(map[string]*Record),
		sources: make(map[string]specs.DataSource),
	}
}

// EmptyLike returns an empty series with the same key spec, sources and
// bus as other. This is the shape-preserving base of Filter and GroupBy.
func EmptyLike(other *Series) *Series {
	s := NewSeries(other.keySpec)
	s.sources = other.sources
	s.bus = other.bus
	return s
}

// SetBus attaches an event bus; merge conflicts and source loads publish
// notifications on it.
func (s *Series) SetBus(bus *infra.Bus) {
	s.bus = bus
}

// KeySpec returns the series' key derivation spec.
func (s *Series) KeySpec() KeySpec {
	return s.keySpec
}

// AttachSource registers a named data source for Load.
func (s *Series) AttachSource(name string, src specs.DataSource) {
	s.sources[name] = src
}

// Load pulls every attached source and merges its batch. Loading twice is
// harmless by merge idempotence.
func (s *Series) Load() error {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		items, err := s.sources[name]()
		if err != nil {
			return fmt.Errorf("loading source %q: %w", name, err)
		}
		if err := s.Merge(items); err != nil {
			return fmt.Errorf("merging source %q: %w", name, err)
		}
		if s.bus != nil {
			s.bus.Publish(infra.SourceLoadedEvent{Source: name, Count: len(items)})
		}
	}
	return nil
}

// Merge folds a batch of raw source mappings into the series. For each
// item the key is derived; a known key updates the existing record field
// by field, a new key inserts. Conflicting data across sources surfaces
// as ErrIdentityConflict. Merging the same batch again is a no-op.
func (s *Series) Merge(items []specs.RecordSpec) error {
	for _, item := range items {
		rec, err := FromSpec(item)
		if err != nil {
			return err
		}
		if err := s.mergeRecord(rec); err != nil {
			return err
		}
	}
	s.sortKeys()
	return nil
}

// MergeRecords merges already-built records. Records keep their identity:
// a record merged under a new key is owned as-is, not copied.
func (s *Series) MergeRecords(recs ...*Record) error {
	for _, rec := range recs {
		if err := s.mergeRecord(rec); err != nil {
			return err
		}
	}
	s.sortKeys()
	return nil
}

// MergeSeries folds another series into this one. Merging a series with
// itself is a no-op.
func (s *Series) MergeSeries(other *Series) error {
	return s.MergeRecords(other.Records()...)
}

func (s *Series) mergeRecord(rec *Record) error {
	key, err := s.keySpec.Derive(rec)
	if err != nil {
		return err
	}
	ks := key.String()
	if existing, ok := s.byKey[ks]; ok {
		if err := existing.UpdateRecord(rec); err != nil {
			if s.bus != nil && errors.Is(err, ErrIdentityConflict) {
				s.bus.Publish(infra.MergeConflictEvent{Key: ks})
			}
			return fmt.Errorf("merging key %v: %w", ks, err)
		}
		return nil
	}
	s.byKey[ks] = rec
	s.order = append(s.order, key)
	return nil
}

func (s *Series) sortKeys() {
	sort.Slice(s.order, func(i, j int) bool {
		return s.order[i].Less(s.order[j])
	})
}

// Len returns the number of records.
func (s *Series) Len() int {
	return len(s.order)
}

// Keys returns the record keys in ascending order.
func (s *Series) Keys() []Key {
	keys := make([]Key, len(s.order))
	copy(keys, s.order)
	return keys
}

// Records returns the records in ascending key order.
func (s *Series) Records() []*Record {
	recs := make([]*Record, len(s.order))
	for i, k := range s.order {
		recs[i] = s.byKey[k.String()]
	}
	return recs
}

// Lookup returns the record stored under key.
func (s *Series) Lookup(key Key) (*Record, bool) {
	rec, ok := s.byKey[key.String()]
	return rec, ok
}

// At returns the record at position i in key order. Negative indices
// count from the end.
func (s *Series) At(i int) (*Record, error) {
	if i < 0 {
		i += len(s.order)
	}
	if i < 0 || i >= len(s.order) {
		return nil, fmt.Errorf("index %d out of range for series of length %d", i, len(s.order))
	}
	return s.byKey[s.order[i].String()], nil
}

// Slice returns the records in [lo, hi) of key order. Negative bounds
// count from the end.
func (s *Series) Slice(lo, hi int) []*Record {
	n := len(s.order)
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	lo = max(0, min(lo, n))
	hi = max(lo, min(hi, n))
	recs := make([]*Record, 0, hi-lo)
	for _, k := range s.order[lo:hi] {
		recs = append(recs, s.byKey[k.String()])
	}
	return recs
}

// Filter returns a new series of the same shape holding the records the
// predicate accepts. Records are shared, not copied.
func (s *Series) Filter(pred func(*Record) bool) (*Series, error) {
	out := EmptyLike(s)
	for _, rec := range s.Records() {
		if pred(rec) {
			if err := out.MergeRecords(rec); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// FilterExpr filters with a boolean expression evaluated per record.
// Records where a name does not resolve are skipped, not fatal: missing
// data is expected at batch scale.
func (s *Series) FilterExpr(source string) (*Series, error) {
	e, err := CompileExpression(source)
	if err != nil {
		return nil, err
	}
	out := EmptyLike(s)
	for _, rec := range s.Records() {
		v, err := e.Run(rec)
		if err != nil {
			if errors.Is(err, ErrUnknownName) || errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		keep, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("filter expression %q returned %T, want bool", source, v)
		}
		if keep {
			if err := out.MergeRecords(rec); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// FilterBy keeps records whose fields all equal the given values,
// compared in canonical string form like the merge agreement check.
func (s *Series) FilterBy(fields map[string]any) (*Series, error) {
	return s.Filter(func(rec *Record) bool {
		for key, want := range fields {
			got, err := rec.Get(key)
			if err != nil || canonical(got) != canonical(want) {
				return false
			}
		}
		return true
	})
}

// Group is one contiguous run of records sharing the same projected
// key values.
type Group struct {
	Values []any
	Series *Series
}

// GroupBy sorts the records by the projection onto the given fields and
// yields one sub-series per distinct projected tuple. Every record must
// define all the fields.
func (s *Series) GroupBy(fields ...string) ([]Group, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("group by requires at least one field")
	}
	recs := s.Records()
	tuples := make([][]any, len(recs))
	for i, rec := range recs {
		tuple := make([]any, len(fields))
		for j, f := range fields {
			v, err := rec.Get(f)
			if err != nil {
				return nil, fmt.Errorf("group by %q: %w", f, err)
			}
			tuple[j] = v
		}
		tuples[i] = tuple
	}

	idx := make([]int, len(recs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return compareTuples(tuples[idx[a]], tuples[idx[b]]) < 0
	})

	var groups []Group
	for _, i := range idx {
		if len(groups) == 0 || compareTuples(groups[len(groups)-1].Values, tuples[i]) != 0 {
			groups = append(groups, Group{Values: tuples[i], Series: EmptyLike(s)})
		}
		g := groups[len(groups)-1]
		if err := g.Series.MergeRecords(recs[i]); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func compareTuples(a, b []any) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if c := compareScalars(a[i], b[i]); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

func compareScalars(a, b any) int {
	fa, errA := toFloat(a)
	fb, errB := toFloat(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(canonical(a), canonical(b))
}

// EvaluateAll evaluates an expression against every record, collecting
// the results in key order. Records where a name does not resolve are
// silently skipped; other evaluation failures abort.
func (s *Series) EvaluateAll(source string) ([]any, error) {
	e, err := CompileExpression(source)
	if err != nil {
		return nil, err
	}
	var results []any
	for _, rec := range s.Records() {
		v, err := e.Run(rec)
		if err != nil {
			if errors.Is(err, ErrUnknownName) || errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// Tally sums a field over all records with exact decimal arithmetic.
// Records lacking the field are skipped; unparseable values are fatal.
func (s *Series) Tally(field string) (Decimal, error) {
	sum := NewDecimalFromInt64(0)
	for _, rec := range s.Records() {
		v, err := rec.Get(field)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return Decimal{}, err
		}
		d, err := NewDecimalFromAny(v)
		if err != nil {
			return Decimal{}, fmt.Errorf("tally %q: %w", field, err)
		}
		sum = sum.Add(d)
	}
	return sum, nil
}

func (s *Series) String() string {
	names := make([]string, len(s.keySpec.fields))
	for i, f := range s.keySpec.fields {
		names[i] = f.Name
	}
	return fmt.Sprintf("<Series(%s) with %d records>", strings.Join(names, ","), len(s.order))
}

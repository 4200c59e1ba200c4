package internal

import (
	"fmt"
	"math/rand"

	"shotseries-spec/specs"
)

// LazyValue is a deferred-access placeholder stored in a record instead of
// expensive payload data. Access receives the owning record and the key
// under which the placeholder is stored, so one placeholder object can be
// reused across records and keys.
//
// Materialization is transparent on Record.Get and is not written back
// into the record: a serialized record carries only the reference, never
// the payload. Callers who want the payload pinned use Record.Materialize.
type LazyValue interface {
	Access(rec *Record, key string) (any, error)
}

// LazyDummy returns deterministic pseudo-random data for a given seed.
// Used in tests; DenyAccess proves that a code path never materialized
// the value.
type LazyDummy struct {
	Seed       int64
	DenyAccess bool
}

// DummyPayloadLen is the length of the generated test payload.
const DummyPayloadLen = 1000

func (l LazyDummy) Access(rec *Record, key string) (any, error) {
	if l.DenyAccess {
		return nil, fmt.Errorf("%w: LazyDummy(seed=%d) at %q", ErrLazyAccessDenied, l.Seed, key)
	}
	rng := rand.New(rand.NewSource(l.Seed))
	data := make([]float64, DummyPayloadLen)
	for i := range data {
		data[i] = rng.Float64()
	}
	return data, nil
}

func (l LazyDummy) String() string {
	return fmt.Sprintf("<LazyDummy(seed=%d)>", l.Seed)
}

// LazyFile references one dataset inside a container file: filename, key
// and an optional index into the loaded dataset. Only the reference is
// stored; the reader runs on first access.
type LazyFile struct {
	Filename string
	Key      string
	Index    int
	HasIndex bool
	Reader   specs.KeyedReader
}

func (l LazyFile) Access(rec *Record, key string) (any, error) {
	// The stored key wins over the access-site key, matching the
	// reference-reuse contract of LazyValue.
	k := l.Key
	if k == "" {
		k = key
	}
	data, err := l.Reader(l.Filename, k)
	if err != nil {
		return nil, err
	}
	if !l.HasIndex {
		return data, nil
	}
	return indexInto(data, l.Index)
}

func (l LazyFile) String() string {
	idx := "-"
	if l.HasIndex {
		idx = fmt.Sprint(l.Index)
	}
	return fmt.Sprintf("<LazyFile@%s[%q][%s]>", l.Filename, l.Key, idx)
}

// LazyFunc wraps an externally supplied loader bound to one filename.
type LazyFunc struct {
	Filename string
	Reader   specs.Reader
}

func (l LazyFunc) Access(rec *Record, key string) (any, error) {
	return l.Reader(l.Filename)
}

func (l LazyFunc) String() string {
	return fmt.Sprintf("<LazyFunc@%s>", l.Filename)
}

func indexInto(data any, i int) (any, error) {
	switch d := data.(type) {
	case []float64:
		if i < 0 || i >= len(d) {
			return nil, fmt.Errorf("index %d out of range for dataset of length %d", i, len(d))
		}
		return d[i], nil
	case []any:
		if i < 0 || i >= len(d) {
			return nil, fmt.Errorf("index %d out of range for dataset of length %d", i, len(d))
		}
		return d[i], nil
	case [][]float64:
		if i < 0 || i >= len(d) {
			return nil, fmt.Errorf("index %d out of range for dataset of length %d", i, len(d))
		}
		return d[i], nil
	default:
		return nil, fmt.Errorf("cannot index into dataset of type %T", data)
	}
}

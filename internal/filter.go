package internal

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"shotseries-spec/specs"
)

// Filter is one stage of a processing pipeline: input and context in,
// derived value out.
type Filter func(input any, ctx *Context, kwargs specs.Kwargs) (any, error)

// FilterBody is the underlying function a filter factory wraps. The args
// slice carries the factory-time positional arguments.
type FilterBody func(input any, args []any, ctx *Context, kwargs specs.Kwargs) (any, error)

// FilterFactory binds a base function into a two-stage call: the fixed
// positional arguments bound here can never be overridden, while the
// keyword defaults bound at the second stage can be overridden per call
// (call-time wins on conflict).
func FilterFactory(body FilterBody, fixed ...any) func(defaults specs.Kwargs) Filter {
	return func(defaults specs.Kwargs) Filter {
		return func(input any, ctx *Context, kwargs specs.Kwargs) (any, error) {
			merged := make(specs.Kwargs, len(defaults)+len(kwargs))
			for k, v := range defaults {
				merged[k] = v
			}
			for k, v := range kwargs {
				merged[k] = v
			}
			return body(input, fixed, ctx, merged)
		}
	}
}

// Chain composes filters left to right, threading the same context and
// kwargs through every stage.
func Chain(filters ...Filter) Filter {
	return func(input any, ctx *Context, kwargs specs.Kwargs) (any, error) {
		var err error
		for i, f := range filters {
			input, err = f(input, ctx, kwargs)
			if err != nil {
				return nil, fmt.Errorf("chain stage %d: %w", i, err)
			}
		}
		return input, nil
	}
}

// Fingerprinter lets a value define its own transient cache identity.
// Records implement it with object identity.
type Fingerprinter interface {
	CacheFingerprint() string
}

func fingerprint(v any) string {
	if f, ok := v.(Fingerprinter); ok {
		return f.CacheFingerprint()
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func fingerprintKwargs(kwargs specs.Kwargs) string {
	if len(kwargs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(kwargs))
	for k, v := range kwargs {
		parts = append(parts, k+"="+fingerprint(v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// CachedFilter wraps a filter in a bounded least-recently-used cache
// keyed by (input fingerprint, kwargs, context token). Contexts decide
// their own cache behavior through their policy: shared contexts are
// interchangeable, bypass contexts force execution.
//
// The cache assumes single-threaded access and holds no locks.
type CachedFilter struct {
	filter    Filter
	bounded   *lru.Cache[string, any]
	unbounded map[string]any
	hits      int
	misses    int
}

// NewFilterLRU wraps filter in a transient cache. maxSize bounds the
// entry count; maxSize <= 0 means unbounded within the session.
func NewFilterLRU(filter Filter, maxSize int) (*CachedFilter, error) {
	c := &CachedFilter{filter: filter}
	if maxSize > 0 {
		cache, err := lru.New[string, any](maxSize)
		if err != nil {
			return nil, fmt.Errorf("creating filter cache: %w", err)
		}
		c.bounded = cache
	} else {
		c.unbounded = make(map[string]any)
	}
	return c, nil
}

// Call runs the filter through the cache. A bypass-policy context skips
// both lookup and store: the body executes and nothing is recorded
// beyond the miss counter.
func (c *CachedFilter) Call(input any, ctx *Context, kwargs specs.Kwargs) (any, error) {
	if ctx == nil {
		ctx = DefaultContext()
	}
	if ctx.Policy() == CacheBypass {
		c.misses++
		return c.filter(input, ctx, kwargs)
	}

	key := fingerprint(input) + "|" + fingerprintKwargs(kwargs) + "|" + ctx.CacheToken()
	if v, ok := c.lookup(key); ok {
		c.hits++
		return v, nil
	}
	c.misses++
	v, err := c.filter(input, ctx, kwargs)
	if err != nil {
		return nil, err
	}
	c.store(key, v)
	return v, nil
}

func (c *CachedFilter) lookup(key string) (any, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	v, ok := c.unbounded[key]
	return v, ok
}

func (c *CachedFilter) store(key string, v any) {
	if c.bounded != nil {
		c.bounded.Add(key, v)
		return
	}
	c.unbounded[key] = v
}

// Hits returns the number of cache hits so far.
func (c *CachedFilter) Hits() int {
	return c.hits
}

// Misses returns the number of calls that executed the filter body.
func (c *CachedFilter) Misses() int {
	return c.misses
}

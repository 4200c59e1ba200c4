package internal

import (
	"fmt"
	"sync/atomic"
)

// CachePolicy controls how a context participates in transient cache keys.
type CachePolicy int

const (
	// CacheShared makes the context invisible to cache keys: two calls
	// that differ only in their (shared) context objects are
	// cache-interchangeable.
	CacheShared CachePolicy = iota

	// CacheBypass forces every call through to the wrapped function.
	// Used when a caller needs the side effects of the computation, e.g.
	// capturing intermediate fit parameters into this very context.
	CacheBypass
)

// String returns the string representation of the CachePolicy.
func (p CachePolicy) String() string {
	switch p {
	case CacheShared:
		return "shared"
	case CacheBypass:
		return "bypass"
	default:
		return "unknown"
	}
}

var contextSeq atomic.Uint64

// Context is the per-call scratch object threaded through diagnostic and
// filter pipelines. Stages read and write intermediate values (the current
// record, captured fit parameters) under string keys.
//
// The cache-key behavior is an explicit policy, not an equality trick:
// DefaultContext yields CacheShared, NewContext yields CacheBypass.
// A Context is not safe for concurrent use; pool-based evaluation creates
// one per task.
type Context struct {
	policy CachePolicy
	id     uint64
	values map[string]any
}

// DefaultContext returns a context that is invisible to transient cache
// keys. This is what implicit calls get.
func DefaultContext() *Context {
	return &Context{
		policy: CacheShared,
		id:     contextSeq.Add(1),
		values: make(map[string]any),
	}
}

// NewContext returns a context that bypasses transient caches, so the
// computation always runs and its intermediates land in this object.
func NewContext() *Context {
	ctx := DefaultContext()
	ctx.policy = CacheBypass
	return ctx
}

// WithPolicy returns a fresh context with the given policy.
func WithPolicy(p CachePolicy) *Context {
	ctx := DefaultContext()
	ctx.policy = p
	return ctx
}

func (c *Context) Policy() CachePolicy {
	return c.policy
}

// CacheToken is the context's contribution to a transient cache key.
// Shared contexts all contribute the same empty token; bypass contexts
// contribute a token unique to the object.
func (c *Context) CacheToken() string {
	if c.policy == CacheShared {
		return ""
	}
	return fmt.Sprintf("ctx#%d", c.id)
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) Set(key string, v any) {
	c.values[key] = v
}

package internal

import (
	"fmt"

	"shotseries-spec/specs"
)

// Diagnostic computes a derived quantity from one record. It receives the
// evaluation context whether or not it cares about one; context-free
// functions are adapted with Simple.
type Diagnostic func(rec *Record, ctx *Context, args []any, kwargs specs.Kwargs) (any, error)

// Simple adapts a context-free function to the Diagnostic contract. This
// replaces the call-and-retry compatibility shim of dynamic languages:
// adaptation is explicit and happens once, at registration.
func Simple(fn func(rec *Record, args []any, kwargs specs.Kwargs) (any, error)) Diagnostic {
	return func(rec *Record, ctx *Context, args []any, kwargs specs.Kwargs) (any, error) {
		return fn(rec, args, kwargs)
	}
}

// RegisteredDiagnostic is a diagnostic bound to its registry name. The
// wrapper gives diagnostics an identity, so double registration can be
// detected and short-circuited.
type RegisteredDiagnostic struct {
	name string
	fn   Diagnostic
}

func (d *RegisteredDiagnostic) Name() string {
	return d.name
}

// Registry maps diagnostic names to callables. It is an explicit object,
// constructed once and passed by reference; there is no process-wide
// table. Not safe for concurrent mutation; register everything up front.
type Registry struct {
	diagnostics map[string]*RegisteredDiagnostic
}

func NewRegistry() *Registry {
	return &Registry{diagnostics: make(map[string]*RegisteredDiagnostic)}
}

// Register wraps fn under the given name and stores it. Registering a
// name twice replaces the previous entry.
func (r *Registry) Register(name string, fn Diagnostic) (*RegisteredDiagnostic, error) {
	if name == "" {
		return nil, fmt.Errorf("diagnostic name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("diagnostic %q: function is required", name)
	}
	wrapped := &RegisteredDiagnostic{name: name, fn: fn}
	r.diagnostics[name] = wrapped
	return wrapped, nil
}

// RegisterMap registers a name→callable mapping.
func (r *Registry) RegisterMap(m map[string]Diagnostic) error {
	for name, fn := range m {
		if _, err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// Add registers an already-wrapped diagnostic under its declared name.
// Adding the same wrapped object again is a no-op returning that same
// object, mirroring the record identity short-circuit.
func (r *Registry) Add(d *RegisteredDiagnostic) (*RegisteredDiagnostic, error) {
	if d == nil {
		return nil, fmt.Errorf("diagnostic is required")
	}
	if existing, ok := r.diagnostics[d.name]; ok && existing == d {
		return existing, nil
	}
	r.diagnostics[d.name] = d
	return d, nil
}

// Lookup resolves a diagnostic name.
func (r *Registry) Lookup(name string) (*RegisteredDiagnostic, error) {
	d, ok := r.diagnostics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredDiagnostic, name)
	}
	return d, nil
}

// Names returns the registered diagnostic names, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.diagnostics))
	for name := range r.diagnostics {
		names = append(names, name)
	}
	return names
}

// Call invokes the named diagnostic on rec. A nil context becomes a fresh
// shared context; either way the context exposes the record under
// "record" for downstream pipeline stages.
func (r *Registry) Call(rec *Record, name string, ctx *Context, args []any, kwargs specs.Kwargs) (any, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = DefaultContext()
	}
	ctx.Set("record", rec)
	result, err := d.fn(rec, ctx, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("diagnostic %q: %w", name, err)
	}
	return result, nil
}

package specs

// Kwargs are named call parameters for diagnostics and filters.
//
// Kwargs participate in cache keys: the permanent cache keys an entry by
// the record key plus the sorted name=value pairs of the kwargs, so two
// calls differing in any kwarg value are distinct entries.
type Kwargs map[string]any

// Diagnostic is the spec-level shape of a derived quantity: a named,
// pure-ish function of one record producing a derived result (a fitted
// parameter set, an integrated signal, a projected image).
//
// Diagnostics are invoked through an explicit registry rather than
// attribute magic: the registry binds the record, an evaluation context
// and the call parameters. Results are numeric scalars, slices, or named
// maps (map[string]float64) so that batch aggregation can reduce them
// element-wise while preserving structure.
//
// This is the spec-level interface using only primitive types.
// See internal.Diagnostic for the reference implementation.
type Diagnostic func(record RecordSpec, kwargs Kwargs) (any, error)

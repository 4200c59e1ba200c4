package specs

// RecordSpec is the raw form of a single measured event ("shot") as produced
// by a data source: file listings, spreadsheet rows, binary array indexes.
//
// Values may be any of:
//   - concrete scalars (string, int, float64) or small slices
//   - a lazy placeholder satisfying the internal LazyValue interface, holding
//     only a reference (filename, key, index) to expensive payload data
//
// Sources are untrusted and partially overlapping: the same physical event
// typically arrives from several sources over time, each contributing a
// subset of the keys. Reconciliation happens at merge time under the
// write-once-with-agreement rule (see internal.Record).
//
// This is the spec-level type using only primitive types.
// See internal.Record for the reference implementation.
type RecordSpec = map[string]any

// DataSource produces a batch of raw records.
//
// A source is a zero-argument callable: it owns its own configuration
// (paths, patterns, sheet names) and returns plain mappings ready to be
// merged into a series. Sources must be safe to call repeatedly; merging
// the same batch twice is a no-op by the idempotence rule.
type DataSource func() ([]RecordSpec, error)

// Reader loads array-like payload data from a file.
//
// Readers are external collaborators (image decoders, HDF5 readers, binary
// array loaders). They are pure functions of the filename and are used to
// build lazy placeholders; the library never opens files itself.
type Reader func(filename string) (any, error)

// KeyedReader loads one dataset out of a container file, addressed by a
// string key (e.g. an HDF5 group path). Used by file-backed lazy
// placeholders that defer both the open and the dataset selection.
type KeyedReader func(filename, key string) (any, error)

// Sentinels lists the string forms treated as "unknown content".
//
// Assigning any of these to a record key is a silent no-op: placeholders
// exported by spreadsheets and logging scripts ("NA", "unknown", empty
// cells) never overwrite real data and are never stored themselves.
// nil, NaN and empty sequences are suppressed independently of this list.
var Sentinels = []string{"", " ", "None", "unknown", "?", "NA"}

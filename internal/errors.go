package internal

import "errors"

// Error taxonomy. Callers match with errors.Is.
var (
	// ErrIdentityConflict means two data sources disagree about the value
	// of a key on the same physical event. Always fatal, never resolved
	// silently.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrKeyNotFound means key lookup missed the record's own storage.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnregisteredDiagnostic means a diagnostic name has no entry in
	// the registry.
	ErrUnregisteredDiagnostic = errors.New("unregistered diagnostic")

	// ErrUnknownName means an expression references a name that is neither
	// a key of the record nor part of the numeric namespace. Batch
	// operations treat this as "record lacks the data" and skip.
	ErrUnknownName = errors.New("unknown name in expression")

	// ErrLazyAccessDenied is returned by access-denying lazy placeholders.
	// Test-only: proves a code path did not materialize the payload.
	ErrLazyAccessDenied = errors.New("lazy access denied")
)

package specs

// CoercionKind selects the typed coercion applied to a key field when
// deriving a record key.
type CoercionKind int

const (
	// KindInt coerces to int64. Accepts integral floats and numeric strings.
	KindInt CoercionKind = iota
	// KindFloat coerces to float64.
	KindFloat
	// KindString coerces to the canonical string form of the value.
	KindString
	// KindDecimal coerces to an exact decimal. Use for quantities exported
	// by spreadsheets where float rounding would split one physical event
	// into two identities.
	KindDecimal
)

// String returns the string representation of the CoercionKind.
func (k CoercionKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// KeyFieldSpec is one component of a record key: a field name paired with
// the coercion applied to its value.
//
// The ordered set of key fields defines event identity: two records whose
// coerced key fields are all equal describe the same physical event and
// must be merged, never duplicated. Field order also defines the sort
// order of a series.
type KeyFieldSpec struct {
	// Name of the record field this component reads.
	Name string `json:"name"`

	// Kind of coercion applied before comparison and ordering.
	Kind CoercionKind `json:"kind"`
}

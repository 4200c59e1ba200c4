package internal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Decimal wraps an exact decimal value. Spreadsheet exports carry
// quantities like "0.1" that must compare equal across sources; float64
// round-tripping would split one physical event into two identities.
type Decimal struct {
	value apd.Decimal
}

func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	_, _, err := d.SetString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal: %w", err)
	}
	return Decimal{value: d}, nil
}

func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func NewDecimalFromFloat64(f float64) (Decimal, error) {
	var d apd.Decimal
	_, err := d.SetFloat64(f)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal: %w", err)
	}
	return Decimal{value: d}, nil
}

// NewDecimalFromAny coerces the scalar forms data sources produce.
func NewDecimalFromAny(v any) (Decimal, error) {
	switch x := v.(type) {
	case Decimal:
		return x, nil
	case string:
		return NewDecimal(x)
	case int:
		return NewDecimalFromInt64(int64(x)), nil
	case int64:
		return NewDecimalFromInt64(x), nil
	case float64:
		return NewDecimalFromFloat64(x)
	case float32:
		return NewDecimalFromFloat64(float64(x))
	default:
		return Decimal{}, fmt.Errorf("cannot coerce %T to decimal", v)
	}
}

func (d Decimal) String() string {
	return d.value.String()
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Div returns the quotient of d divided by other.
func (d Decimal) Div(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Quo(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Float64 returns the nearest float64, for numeric reductions that do not
// need exactness.
func (d Decimal) Float64() (float64, error) {
	f, err := d.value.Float64()
	if err != nil {
		return 0, fmt.Errorf("decimal out of float64 range: %w", err)
	}
	return f, nil
}

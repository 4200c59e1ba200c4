package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotseries-spec/specs"
)

func shotKeySpec(t *testing.T) KeySpec {
	t.Helper()
	ks, err := NewKeySpec(
		specs.KeyFieldSpec{Name: "shot", Kind: specs.KindInt},
	)
	require.NoError(t, err)
	return ks
}

func runKeySpec(t *testing.T) KeySpec {
	t.Helper()
	ks, err := NewKeySpec(
		specs.KeyFieldSpec{Name: "run", Kind: specs.KindString},
		specs.KeyFieldSpec{Name: "shot", Kind: specs.KindInt},
	)
	require.NoError(t, err)
	return ks
}

func TestNewKeySpec(t *testing.T) {
	t.Run("rejects empty field list", func(t *testing.T) {
		_, err := NewKeySpec()
		require.Error(t, err)
	})

	t.Run("rejects duplicate field names", func(t *testing.T) {
		_, err := NewKeySpec(
			specs.KeyFieldSpec{Name: "shot", Kind: specs.KindInt},
			specs.KeyFieldSpec{Name: "shot", Kind: specs.KindString},
		)
		require.Error(t, err)
	})

	t.Run("rejects unnamed fields", func(t *testing.T) {
		_, err := NewKeySpec(specs.KeyFieldSpec{Kind: specs.KindInt})
		require.Error(t, err)
	})
}

func TestKeyCoercion(t *testing.T) {
	t.Run("numeric strings coerce to ints", func(t *testing.T) {
		ks := shotKeySpec(t)

		a, err := ks.Literal("17")
		require.NoError(t, err)
		b, err := ks.Literal(17)
		require.NoError(t, err)
		assert.True(t, a.Equal(b))
		assert.Equal(t, a.String(), b.String())
	})

	t.Run("non-integral floats do not coerce to ints", func(t *testing.T) {
		ks := shotKeySpec(t)
		_, err := ks.Literal(17.5)
		require.Error(t, err)
	})

	t.Run("decimal fields compare by value, not text", func(t *testing.T) {
		ks, err := NewKeySpec(specs.KeyFieldSpec{Name: "energy", Kind: specs.KindDecimal})
		require.NoError(t, err)

		a, err := ks.Literal("0.50")
		require.NoError(t, err)
		b, err := ks.Literal(0.5)
		require.NoError(t, err)
		assert.True(t, a.Equal(b))
	})

	t.Run("same value under different kinds is a different key", func(t *testing.T) {
		intSpec := shotKeySpec(t)
		strSpec, err := NewKeySpec(specs.KeyFieldSpec{Name: "shot", Kind: specs.KindString})
		require.NoError(t, err)

		a, err := intSpec.Literal(1)
		require.NoError(t, err)
		b, err := strSpec.Literal(1)
		require.NoError(t, err)
		assert.NotEqual(t, a.String(), b.String())
	})
}

func TestKeyOrdering(t *testing.T) {
	t.Run("int keys order numerically", func(t *testing.T) {
		ks := shotKeySpec(t)
		two, err := ks.Literal(2)
		require.NoError(t, err)
		ten, err := ks.Literal(10)
		require.NoError(t, err)

		assert.True(t, two.Less(ten))
		assert.False(t, ten.Less(two))
	})

	t.Run("composite keys order lexicographically by field position", func(t *testing.T) {
		ks := runKeySpec(t)
		a, err := ks.Literal("2024a", 9)
		require.NoError(t, err)
		b, err := ks.Literal("2024a", 10)
		require.NoError(t, err)
		c, err := ks.Literal("2024b", 1)
		require.NoError(t, err)

		assert.True(t, a.Less(b))
		assert.True(t, b.Less(c))
		assert.False(t, c.Less(a))
	})

	t.Run("equal keys are not less than each other", func(t *testing.T) {
		ks := shotKeySpec(t)
		a, err := ks.Literal(5)
		require.NoError(t, err)
		b, err := ks.Literal(5)
		require.NoError(t, err)

		assert.False(t, a.Less(b))
		assert.False(t, b.Less(a))
		assert.True(t, a.Equal(b))
	})
}

func TestKeySpecDerive(t *testing.T) {
	t.Run("extracts and coerces the key fields", func(t *testing.T) {
		ks := runKeySpec(t)
		r := newTestRecord(t, withField("run", "2024a"))

		key, err := ks.Derive(r)
		require.NoError(t, err)
		want, err := ks.Literal("2024a", 7)
		require.NoError(t, err)
		assert.True(t, key.Equal(want))
	})

	t.Run("missing key field is an error", func(t *testing.T) {
		ks := runKeySpec(t)
		r := newTestRecord(t)

		_, err := ks.Derive(r)
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("literal arity must match the spec", func(t *testing.T) {
		ks := runKeySpec(t)
		_, err := ks.Literal("2024a")
		require.Error(t, err)
	})
}

package internal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotseries-spec/specs"
)

func energyDiagnostic() Diagnostic {
	return Simple(func(rec *Record, args []any, kwargs specs.Kwargs) (any, error) {
		v, err := rec.Get("energy")
		if err != nil {
			return nil, err
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		scale := 1.0
		if s, ok := kwargs["scale"]; ok {
			if scale, err = toFloat(s); err != nil {
				return nil, err
			}
		}
		return f * scale, nil
	})
}

func TestRegistry(t *testing.T) {
	t.Run("registered diagnostics resolve and run", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register("energy", energyDiagnostic())
		require.NoError(t, err)

		r := newTestRecord(t, withField("energy", 0.5))
		v, err := r.Diagnostic(reg, "energy", nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.5, v)
	})

	t.Run("kwargs reach the diagnostic", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register("energy", energyDiagnostic())
		require.NoError(t, err)

		r := newTestRecord(t, withField("energy", 0.5))
		v, err := r.Diagnostic(reg, "energy", nil, nil, specs.Kwargs{"scale": 4.0})
		require.NoError(t, err)
		assert.Equal(t, 2.0, v)
	})

	t.Run("unregistered names fail loudly", func(t *testing.T) {
		reg := NewRegistry()
		r := newTestRecord(t)

		_, err := r.Diagnostic(reg, "nope", nil, nil, nil)
		require.ErrorIs(t, err, ErrUnregisteredDiagnostic)
	})

	t.Run("empty names and nil functions are rejected", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register("", energyDiagnostic())
		require.Error(t, err)
		_, err = reg.Register("energy", nil)
		require.Error(t, err)
	})

	t.Run("adding the same wrapped diagnostic again is a no-op", func(t *testing.T) {
		reg := NewRegistry()
		d, err := reg.Register("energy", energyDiagnostic())
		require.NoError(t, err)

		got, err := reg.Add(d)
		require.NoError(t, err)
		assert.Same(t, d, got)
		assert.Len(t, reg.Names(), 1)
	})

	t.Run("register map binds several names at once", func(t *testing.T) {
		reg := NewRegistry()
		err := reg.RegisterMap(map[string]Diagnostic{
			"a": energyDiagnostic(),
			"b": energyDiagnostic(),
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, reg.Names())
	})

	t.Run("the context exposes the record to pipeline stages", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register("probe", func(rec *Record, ctx *Context, args []any, kwargs specs.Kwargs) (any, error) {
			v, ok := ctx.Get("record")
			if !ok {
				return nil, fmt.Errorf("record missing from context")
			}
			return v == rec, nil
		})
		require.NoError(t, err)

		r := newTestRecord(t)
		v, err := reg.Call(r, "probe", NewContext(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, true, v)
	})

	t.Run("diagnostic errors carry the name", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Register("energy", energyDiagnostic())
		require.NoError(t, err)

		r := newTestRecord(t)
		_, err = r.Diagnostic(reg, "energy", nil, nil, nil)
		require.ErrorIs(t, err, ErrKeyNotFound)
		assert.Contains(t, err.Error(), `"energy"`)
	})
}

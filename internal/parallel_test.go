package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotseries-spec/specs"
)

func meanTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.RegisterMap(map[string]Diagnostic{
		"energy": energyDiagnostic(),
		"profile": Simple(func(rec *Record, args []any, kwargs specs.Kwargs) (any, error) {
			v, err := rec.Get("energy")
			if err != nil {
				return nil, err
			}
			f, _ := toFloat(v)
			return []float64{f, f * 2}, nil
		}),
		"fit": Simple(func(rec *Record, args []any, kwargs specs.Kwargs) (any, error) {
			v, err := rec.Get("energy")
			if err != nil {
				return nil, err
			}
			f, _ := toFloat(v)
			return specs.Params{"amp": f, "width": 1.0}, nil
		}),
	})
	require.NoError(t, err)
	return reg
}

func TestSeriesMean(t *testing.T) {
	t.Run("scalar results reduce to their average", func(t *testing.T) {
		s := newTestSeries(t, 10)
		reg := meanTestRegistry(t)

		m, err := s.Mean(reg, "energy", nil, nil, MeanOptions{})
		require.NoError(t, err)
		assert.InDelta(t, 0.45, m.(float64), 1e-12)
	})

	t.Run("slice results reduce element-wise", func(t *testing.T) {
		s := newTestSeries(t, 10)
		reg := meanTestRegistry(t)

		m, err := s.Mean(reg, "profile", nil, nil, MeanOptions{})
		require.NoError(t, err)
		prof := m.([]float64)
		require.Len(t, prof, 2)
		assert.InDelta(t, 0.45, prof[0], 1e-12)
		assert.InDelta(t, 0.90, prof[1], 1e-12)
	})

	t.Run("named parameter results reduce per name", func(t *testing.T) {
		s := newTestSeries(t, 10)
		reg := meanTestRegistry(t)

		m, err := s.Mean(reg, "fit", nil, nil, MeanOptions{})
		require.NoError(t, err)
		p := m.(specs.Params)
		assert.InDelta(t, 0.45, p["amp"], 1e-12)
		assert.InDelta(t, 1.0, p["width"], 1e-12)
	})

	t.Run("parallel evaluation matches serial", func(t *testing.T) {
		s := newTestSeries(t, 50)
		reg := meanTestRegistry(t)

		serial, err := s.Mean(reg, "energy", nil, nil, MeanOptions{})
		require.NoError(t, err)
		parallel, err := s.Mean(reg, "energy", nil, nil, MeanOptions{Parallel: true, Workers: 4})
		require.NoError(t, err)
		assert.InDelta(t, serial.(float64), parallel.(float64), 1e-12)
	})

	t.Run("empty series has no mean", func(t *testing.T) {
		s := NewSeries(shotKeySpec(t))
		reg := meanTestRegistry(t)

		_, err := s.Mean(reg, "energy", nil, nil, MeanOptions{})
		require.Error(t, err)
	})

	t.Run("a failing record is attributed by key", func(t *testing.T) {
		s := newTestSeries(t, 3)
		require.NoError(t, s.Merge([]specs.RecordSpec{{"shot": 99}}))
		reg := meanTestRegistry(t)

		_, err := s.Mean(reg, "energy", nil, nil, MeanOptions{})
		require.ErrorIs(t, err, ErrKeyNotFound)
		assert.Contains(t, err.Error(), "99")
	})
}

func TestMapDiagnostic(t *testing.T) {
	t.Run("results come back in key order", func(t *testing.T) {
		s := newTestSeries(t, 20)
		reg := meanTestRegistry(t)

		for _, opts := range []MeanOptions{{}, {Parallel: true}} {
			results, err := s.MapDiagnostic(reg, "energy", nil, nil, opts)
			require.NoError(t, err)
			require.Len(t, results, 20)
			for i, v := range results {
				assert.InDelta(t, float64(i)/10, v.(float64), 1e-12)
			}
		}
	})
}

func TestGroupedMean(t *testing.T) {
	t.Run("one aggregate per group, in group order", func(t *testing.T) {
		s := newTestSeries(t, 10)
		reg := meanTestRegistry(t)

		results, err := s.GroupedMean(reg, "energy", []string{"config"}, nil, nil, MeanOptions{})
		require.NoError(t, err)
		require.Len(t, results, 2)

		// baseline: shots 0,2,4,6,8; scan: shots 1,3,5,7,9.
		assert.Equal(t, []any{"baseline"}, results[0].Values)
		assert.InDelta(t, 0.4, results[0].Mean.(float64), 1e-12)
		assert.Equal(t, []any{"scan"}, results[1].Values)
		assert.InDelta(t, 0.5, results[1].Mean.(float64), 1e-12)
	})
}

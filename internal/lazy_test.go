package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyFile(t *testing.T) {
	reader := func(filename, key string) (any, error) {
		// Fake container: one dataset per key.
		datasets := map[string]any{
			"trace":  []float64{10, 20, 30},
			"frames": [][]float64{{1, 2}, {3, 4}},
		}
		data, ok := datasets[key]
		if !ok {
			return nil, assert.AnError
		}
		return data, nil
	}

	t.Run("loads the whole dataset without an index", func(t *testing.T) {
		r := newTestRecord(t, withField("trace", LazyFile{
			Filename: "shot0007.h5",
			Reader:   reader,
		}))

		v, err := r.Get("trace")
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20, 30}, v)
	})

	t.Run("the stored key wins over the access-site key", func(t *testing.T) {
		r := newTestRecord(t, withField("renamed", LazyFile{
			Filename: "shot0007.h5",
			Key:      "trace",
			Reader:   reader,
		}))

		v, err := r.Get("renamed")
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20, 30}, v)
	})

	t.Run("an index selects one element", func(t *testing.T) {
		r := newTestRecord(t, withField("trace", LazyFile{
			Filename: "shot0007.h5",
			Index:    1,
			HasIndex: true,
			Reader:   reader,
		}))

		v, err := r.Get("trace")
		require.NoError(t, err)
		assert.Equal(t, 20.0, v)
	})

	t.Run("an index selects one frame of a stacked dataset", func(t *testing.T) {
		r := newTestRecord(t, withField("frames", LazyFile{
			Filename: "shot0007.h5",
			Index:    0,
			HasIndex: true,
			Reader:   reader,
		}))

		v, err := r.Get("frames")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, v)
	})

	t.Run("out-of-range index is an error", func(t *testing.T) {
		r := newTestRecord(t, withField("trace", LazyFile{
			Filename: "shot0007.h5",
			Index:    9,
			HasIndex: true,
			Reader:   reader,
		}))

		_, err := r.Get("trace")
		require.Error(t, err)
	})

	t.Run("reader failures propagate", func(t *testing.T) {
		r := newTestRecord(t, withField("nope", LazyFile{
			Filename: "shot0007.h5",
			Reader:   reader,
		}))

		_, err := r.Get("nope")
		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestLazyFunc(t *testing.T) {
	t.Run("invokes the bound loader per access", func(t *testing.T) {
		var loads int
		r := newTestRecord(t, withField("spectrum", LazyFunc{
			Filename: "spectrum.dat",
			Reader: func(filename string) (any, error) {
				loads++
				return []float64{1, 2, 3}, nil
			},
		}))

		_, err := r.Get("spectrum")
		require.NoError(t, err)
		_, err = r.Get("spectrum")
		require.NoError(t, err)
		assert.Equal(t, 2, loads)

		// Pinning stops further loads.
		require.NoError(t, r.Materialize("spectrum"))
		_, err = r.Get("spectrum")
		require.NoError(t, err)
		assert.Equal(t, 3, loads)
	})
}

func TestLazyStrings(t *testing.T) {
	t.Run("placeholders describe the reference, never the payload", func(t *testing.T) {
		assert.Equal(t, "<LazyDummy(seed=3)>", LazyDummy{Seed: 3}.String())
		assert.Contains(t, LazyFile{Filename: "a.h5", Key: "trace"}.String(), "a.h5")
		assert.Contains(t, LazyFunc{Filename: "b.dat"}.String(), "b.dat")
	})
}

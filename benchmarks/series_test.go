package benchmarks

import (
	"testing"

	"shotseries-spec/internal"
	"shotseries-spec/specs"
)

func shotKeySpec(b *testing.B) internal.KeySpec {
	ks, err := internal.NewKeySpec(specs.KeyFieldSpec{Name: "shot", Kind: specs.KindInt})
	if err != nil {
		b.Fatal(err)
	}
	return ks
}

func shotBatch(n int) []specs.RecordSpec {
	batch := make([]specs.RecordSpec, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, specs.RecordSpec{
			"shot":   i,
			"config": "baseline",
			"energy": float64(i) / 10,
		})
	}
	return batch
}

// Benchmark merging a realistic logbook batch into an empty series
func BenchmarkSeriesMerge_1000Records(b *testing.B) {
	b.ReportAllocs()
	batch := shotBatch(1000)
	ks := shotKeySpec(b)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s := internal.NewSeries(ks)
		if err := s.Merge(batch); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark re-merging an already merged batch (the idempotent path)
func BenchmarkSeriesRemerge_1000Records(b *testing.B) {
	b.ReportAllocs()
	batch := shotBatch(1000)
	s := internal.NewSeries(shotKeySpec(b))
	if err := s.Merge(batch); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := s.Merge(batch); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark key derivation from a record
func BenchmarkKeyDerive(b *testing.B) {
	b.ReportAllocs()
	ks := shotKeySpec(b)
	rec, err := internal.FromSpec(specs.RecordSpec{"shot": 42, "config": "baseline"})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ks.Derive(rec); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark a compiled expression evaluated across the series
func BenchmarkEvaluateAll_1000Records(b *testing.B) {
	b.ReportAllocs()
	s := internal.NewSeries(shotKeySpec(b))
	if err := s.Merge(shotBatch(1000)); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := s.EvaluateAll("energy * 2"); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark the transient filter cache hit path
func BenchmarkFilterCacheHit(b *testing.B) {
	b.ReportAllocs()
	filter := func(input any, ctx *internal.Context, kwargs specs.Kwargs) (any, error) {
		return input, nil
	}
	cached, err := internal.NewFilterLRU(filter, 128)
	if err != nil {
		b.Fatal(err)
	}
	rec, err := internal.FromSpec(specs.RecordSpec{"shot": 1, "energy": 0.5})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := cached.Call(rec, nil, nil); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := cached.Call(rec, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark the permanent cache hit path, entry key derivation included
func BenchmarkPermanentCacheHit(b *testing.B) {
	b.ReportAllocs()
	cs, err := internal.NewCacheSet(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	pc, err := cs.Wrap("bench", shotKeySpec(b), "identity", func(rec *internal.Record, kwargs specs.Kwargs) (any, error) {
		return 1.0, nil
	}, internal.CacheOptions{})
	if err != nil {
		b.Fatal(err)
	}
	rec, err := internal.FromSpec(specs.RecordSpec{"shot": 1})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := pc.Call(rec, nil); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := pc.Call(rec, nil); err != nil {
			b.Fatal(err)
		}
	}
}

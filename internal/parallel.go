package internal

import (
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"shotseries-spec/specs"
)

// MeanOptions controls batch diagnostic evaluation.
type MeanOptions struct {
	// Parallel dispatches one task per record to a bounded worker pool.
	// Tasks carry only record references (lazy placeholders are plain
	// descriptors), so they are cheap to hand between workers.
	Parallel bool

	// Workers bounds the pool; zero means one worker per CPU.
	Workers int
}

// MapDiagnostic calls the named diagnostic on every record and returns
// the per-record results in key order. With opts.Parallel the calls run
// on a bounded pool; result order is still key order, only failure
// attribution depends on scheduling.
func (s *Series) MapDiagnostic(reg *Registry, name string, args []any, kwargs specs.Kwargs, opts MeanOptions) ([]any, error) {
	recs := s.Records()
	results := make([]any, len(recs))

	if !opts.Parallel {
		for i, rec := range recs {
			v, err := rec.Diagnostic(reg, name, nil, args, kwargs)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", s.order[i].String(), err)
			}
			results[i] = v
		}
		return results, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			// Each task gets its own context; contexts are not safe
			// to share across workers.
			v, err := rec.Diagnostic(reg, name, DefaultContext(), args, kwargs)
			if err != nil {
				return fmt.Errorf("record %s: %w", s.order[i].String(), err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Mean calls the named diagnostic on every record and reduces the
// results numerically. Structured results keep their structure: slices
// reduce element-wise, named parameter maps reduce per name.
func (s *Series) Mean(reg *Registry, name string, args []any, kwargs specs.Kwargs, opts MeanOptions) (any, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("mean of %q over empty series", name)
	}
	results, err := s.MapDiagnostic(reg, name, args, kwargs, opts)
	if err != nil {
		return nil, err
	}
	return meanReduce(results)
}

// GroupResult pairs a group's projected values with its aggregate.
type GroupResult struct {
	Values []any
	Mean   any
}

// GroupedMean computes Mean per group of the given fields.
func (s *Series) GroupedMean(reg *Registry, name string, groupFields []string, args []any, kwargs specs.Kwargs, opts MeanOptions) ([]GroupResult, error) {
	groups, err := s.GroupBy(groupFields...)
	if err != nil {
		return nil, err
	}
	out := make([]GroupResult, len(groups))
	for i, g := range groups {
		m, err := g.Series.Mean(reg, name, args, kwargs, opts)
		if err != nil {
			return nil, fmt.Errorf("group %v: %w", g.Values, err)
		}
		out[i] = GroupResult{Values: g.Values, Mean: m}
	}
	return out, nil
}

func meanReduce(results []any) (any, error) {
	switch results[0].(type) {
	case []float64:
		return meanSlices(results)
	case specs.Params:
		m, err := meanMaps(results)
		if err != nil {
			return nil, err
		}
		return specs.Params(m), nil
	case map[string]float64:
		return meanMaps(results)
	default:
		return meanScalars(results)
	}
}

func meanScalars(results []any) (float64, error) {
	var sum float64
	for i, v := range results {
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("result %d: %w", i, err)
		}
		sum += f
	}
	return sum / float64(len(results)), nil
}

func meanSlices(results []any) ([]float64, error) {
	first, ok := results[0].([]float64)
	if !ok {
		return nil, fmt.Errorf("mixed result types: []float64 and %T", results[0])
	}
	sum := make([]float64, len(first))
	for i, v := range results {
		vals, ok := v.([]float64)
		if !ok {
			return nil, fmt.Errorf("result %d: mixed result types: []float64 and %T", i, v)
		}
		if len(vals) != len(sum) {
			return nil, fmt.Errorf("result %d: length %d, want %d", i, len(vals), len(sum))
		}
		for j, f := range vals {
			sum[j] += f
		}
	}
	for j := range sum {
		sum[j] /= float64(len(results))
	}
	return sum, nil
}

func meanMaps(results []any) (map[string]float64, error) {
	asMap := func(v any) (map[string]float64, bool) {
		switch m := v.(type) {
		case map[string]float64:
			return m, true
		case specs.Params:
			return map[string]float64(m), true
		default:
			return nil, false
		}
	}
	first, _ := asMap(results[0])
	keys := make([]string, 0, len(first))
	for k := range first {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := make(map[string]float64, len(keys))
	for i, v := range results {
		m, ok := asMap(v)
		if !ok {
			return nil, fmt.Errorf("result %d: mixed result types: named map and %T", i, v)
		}
		if len(m) != len(keys) {
			return nil, fmt.Errorf("result %d: field count %d, want %d", i, len(m), len(keys))
		}
		for _, k := range keys {
			f, ok := m[k]
			if !ok {
				return nil, fmt.Errorf("result %d: missing field %q", i, k)
			}
			sum[k] += f
		}
	}
	for _, k := range keys {
		sum[k] /= float64(len(results))
	}
	return sum, nil
}

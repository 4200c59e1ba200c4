package internal

import (
	"fmt"

	"shotseries-spec/specs"
)

// Filter stages wiring the external fit-model collaborators into
// pipelines. The stages never compute fits themselves; they thread data
// and parameters between the model and the context.

// ContextKeyFitParams is where DoFitFilter captures the fitted
// parameters. Callers pass a bypass-policy context to force the fit to
// run and read the parameters back from that very object.
const ContextKeyFitParams = "fit_params"

// FitInitialGuessFilter estimates start parameters from the input data.
func FitInitialGuessFilter(model specs.FitModel) func(defaults specs.Kwargs) Filter {
	return FilterFactory(func(input any, args []any, ctx *Context, kwargs specs.Kwargs) (any, error) {
		return model.InitialGuess(input, kwargs)
	})
}

// DoFitFilter runs the full fit: initial guess, then least squares. The
// fitted parameters are returned and also captured into the context.
func DoFitFilter(model specs.FitModel) func(defaults specs.Kwargs) Filter {
	return FilterFactory(func(input any, args []any, ctx *Context, kwargs specs.Kwargs) (any, error) {
		p0, err := model.InitialGuess(input, kwargs)
		if err != nil {
			return nil, fmt.Errorf("initial guess: %w", err)
		}
		p, err := model.DoFit(input, p0, kwargs)
		if err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		ctx.Set(ContextKeyFitParams, p)
		return p, nil
	})
}

// EvaluateFitFilter turns fitted parameters into the model's sampling
// function. Parameters come from the input when it is a parameter set,
// otherwise from the context capture of a previous DoFitFilter stage.
func EvaluateFitFilter(model specs.FitModel) func(defaults specs.Kwargs) Filter {
	return FilterFactory(func(input any, args []any, ctx *Context, kwargs specs.Kwargs) (any, error) {
		if p, ok := input.(specs.Params); ok {
			return model.Sample(p), nil
		}
		if v, ok := ctx.Get(ContextKeyFitParams); ok {
			if p, ok := v.(specs.Params); ok {
				return model.Sample(p), nil
			}
		}
		return nil, fmt.Errorf("no fit parameters available: input is %T and context holds none", input)
	})
}

// SubtractOffsetFilter subtracts a fixed baseline from scalar or slice
// input. The offset is a factory-time argument and cannot be overridden.
func SubtractOffsetFilter(offset float64) func(defaults specs.Kwargs) Filter {
	return FilterFactory(func(input any, args []any, ctx *Context, kwargs specs.Kwargs) (any, error) {
		switch v := input.(type) {
		case []float64:
			out := make([]float64, len(v))
			for i, f := range v {
				out[i] = f - offset
			}
			return out, nil
		default:
			f, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("subtract offset: %w", err)
			}
			return f - offset, nil
		}
	})
}

// GetFieldFilter reads a field off a record input, materializing lazy
// placeholders. Typical first stage of a diagnostic pipeline.
func GetFieldFilter(field string) func(defaults specs.Kwargs) Filter {
	return FilterFactory(func(input any, args []any, ctx *Context, kwargs specs.Kwargs) (any, error) {
		rec, ok := input.(*Record)
		if !ok {
			return nil, fmt.Errorf("get field %q: input is %T, want *Record", field, input)
		}
		return rec.Get(field)
	})
}

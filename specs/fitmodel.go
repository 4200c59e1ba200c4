package specs

// Params are named fit parameters (center, width, amplitude, ...).
type Params map[string]float64

// FitModel is the contract for the external numeric fitting collaborators
// (Gaussian and poly-exponential models, projective transforms).
//
// The library never implements fitting itself; it only threads data and
// parameters through filter pipelines and caches the results. A model is
// used in three ways:
//
//  1. InitialGuess estimates start parameters from the raw data.
//  2. Sample turns a parameter set into a sampling function over
//     coordinates, used to evaluate a fit result on a grid.
//  3. DoFit runs the least-squares fit of the sampling function against
//     the data, starting from p0.
//
// Models must be pure: no retained file handles, no hidden state, so that
// fit stages stay cacheable and safe to run inside worker pools.
type FitModel interface {
	InitialGuess(data any, kwargs Kwargs) (Params, error)
	Sample(p Params) func(coords ...float64) float64
	DoFit(data any, p0 Params, kwargs Kwargs) (Params, error)
}

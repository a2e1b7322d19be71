// Package fluxfit error set. All user-triggered failure modes surface as
// one of the typed errors below, matched with errors.As, or as one of the
// package sentinels, matched with errors.Is. Solver non-convergence is not
// an error: the best iterate is returned with its convergence flag.

package fluxfit

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNonMonotonicGrid reports a radial grid whose values are not
	// strictly increasing. Derivatives over a misordered grid would be
	// silently wrong, so this always fails.
	ErrNonMonotonicGrid = errors.New("fluxfit: radial grid is not strictly increasing")

	// ErrNonMonotonicTheta reports a contour whose poloidal angle is not
	// monotonically non-decreasing modulo 2π over one traversal.
	ErrNonMonotonicTheta = errors.New("fluxfit: contour poloidal angle is not monotonic modulo 2π")

	// ErrMissingFluxFunction reports a configuration that needs the ψ→F(ψ)
	// mapping (the Bt-weighted cost modes) without one being provided.
	ErrMissingFluxFunction = errors.New("fluxfit: no ψ→F(ψ) flux function provided")

	// ErrMissingBpol reports a Bpol-dependent feature requested on a
	// contour that carries no measured poloidal field samples.
	ErrMissingBpol = errors.New("fluxfit: contour carries no poloidal field samples")

	// ErrBpolMismatch reports poloidal field samples whose count does not
	// match the contour's coordinate samples: corrupt data, as opposed to
	// the absent data of ErrMissingBpol.
	ErrBpolMismatch = errors.New("fluxfit: poloidal field sample count does not match contour")
)

// GeometryDomainError reports a shape parameter outside the mathematical
// domain of its parametrization, e.g. a triangularity |δ| > 1 passed into
// arcsin. X is the radial location being processed, or NaN when the
// violation occurred outside the fit loop.
type GeometryDomainError struct {
	Param string
	Value float64
	X     float64
}

func (e *GeometryDomainError) Error() string {
	if math.IsNaN(e.X) {
		return fmt.Sprintf("fluxfit: parameter %s = %v outside its domain", e.Param, e.Value)
	}
	return fmt.Sprintf("fluxfit: parameter %s = %v outside its domain at x = %v", e.Param, e.Value, e.X)
}

// InsufficientDataError reports a contour too degenerate to fit: too few
// samples or a vanishing minor radius.
type InsufficientDataError struct {
	Reason      string
	Samples     int
	MinorRadius float64
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("fluxfit: insufficient contour data: %s (%d samples, minor radius %v)",
		e.Reason, e.Samples, e.MinorRadius)
}

// FieldSingularityError reports a poloidal-field denominator collapsing to
// zero, which happens near singular tilt/triangularity combinations. The
// field value there would be ±Inf and is never returned silently.
type FieldSingularityError struct {
	Theta       float64
	Denominator float64
}

func (e *FieldSingularityError) Error() string {
	return fmt.Sprintf("fluxfit: poloidal field denominator %v singular at θ = %v", e.Denominator, e.Theta)
}

// GridAlignmentError reports a target radial location that is not present
// verbatim in the radial grid. Lookups into the grid are exact-match;
// callers must include the target value exactly once.
type GridAlignmentError struct {
	Target float64
	Grid   []float64
}

func (e *GridAlignmentError) Error() string {
	return fmt.Sprintf("fluxfit: target location %v not found by exact match in radial grid of %d points", e.Target, len(e.Grid))
}

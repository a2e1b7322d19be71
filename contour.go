package fluxfit

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// minContourSamples is the smallest number of (R, Z) samples a contour may
// carry and still be fit; below this the resampling interpolants degenerate.
const minContourSamples = 8

// minMinorRadius is the smallest minor radius treated as non-degenerate.
const minMinorRadius = 1e-12

// Contour is one traced flux surface: an ordered sequence of (R, Z)
// samples, the derived geometric scalars, and the per-sample reference
// poloidal angle. Bpol is optional; when absent, field-dependent features
// are disabled rather than failing.
//
// Contours are read-only to this package: fitting never mutates them.
type Contour struct {
	R, Z    []float64
	ThetaRZ []float64

	R0, Z0      float64
	MinorRadius float64
	Psi         float64

	Bpol []float64
}

// NewContour derives a Contour from raw (R, Z) samples: the geometric
// center is the midpoint of the R and Z extents, the minor radius is half
// the R extent, and ThetaRZ is the reference angle of each sample about the
// center. The samples must traverse the surface once with non-decreasing
// poloidal angle (modulo 2π).
func NewContour(r, z []float64, psi float64) (Contour, error) {
	c := Contour{R: r, Z: z, Psi: psi}
	if len(r) < minContourSamples || len(z) != len(r) {
		return Contour{}, &InsufficientDataError{
			Reason:  "too few contour samples",
			Samples: len(r),
		}
	}
	rMin, rMax := floats.Min(r), floats.Max(r)
	zMin, zMax := floats.Min(z), floats.Max(z)
	c.R0 = 0.5 * (rMax + rMin)
	c.Z0 = 0.5 * (zMax + zMin)
	c.MinorRadius = 0.5 * (rMax - rMin)
	c.ThetaRZ = refAngles(r, z, c.R0, c.Z0)
	if err := c.Validate(); err != nil {
		return Contour{}, err
	}
	return c, nil
}

// Validate checks the contour invariants: sample count, non-degenerate
// minor radius, matching Bpol length, and monotonicity of ThetaRZ modulo 2π
// over one traversal.
func (c Contour) Validate() error {
	if len(c.R) < minContourSamples || len(c.Z) != len(c.R) || len(c.ThetaRZ) != len(c.R) {
		return &InsufficientDataError{
			Reason:      "too few contour samples",
			Samples:     len(c.R),
			MinorRadius: c.MinorRadius,
		}
	}
	if !(c.MinorRadius > minMinorRadius) {
		return &InsufficientDataError{
			Reason:      "degenerate minor radius",
			Samples:     len(c.R),
			MinorRadius: c.MinorRadius,
		}
	}
	if c.Bpol != nil && len(c.Bpol) != len(c.R) {
		return ErrBpolMismatch
	}
	// One wrap through 2π is expected on a full traversal; more means the
	// angle is not monotonic about the center.
	wraps := 0
	for i := 1; i < len(c.ThetaRZ); i++ {
		if c.ThetaRZ[i] < c.ThetaRZ[i-1] {
			wraps++
		}
	}
	if wraps > 1 {
		return ErrNonMonotonicTheta
	}
	return nil
}

// thetaSpan returns the sampled poloidal angle range of the contour.
func (c Contour) thetaSpan() (min, max float64) {
	return floats.Min(c.ThetaRZ), floats.Max(c.ThetaRZ)
}

// resampler builds extrapolating interpolants θ_RZ→R and θ_RZ→Z. The
// traced angle range rarely covers [0, 2π) exactly, so evaluation slightly
// outside the sampled range extrapolates linearly from the end segments;
// contours are periodic and the overhang is a fraction of one sample
// spacing, which is why this is pragmatic rather than an error.
func (c Contour) resampler() (rOf, zOf linearInterp, err error) {
	rOf, err = newLinearInterp(c.ThetaRZ, c.R)
	if err != nil {
		return linearInterp{}, linearInterp{}, err
	}
	zOf, err = newLinearInterp(c.ThetaRZ, c.Z)
	if err != nil {
		return linearInterp{}, linearInterp{}, err
	}
	return rOf, zOf, nil
}

// bpolResampler builds the θ_RZ→Bpol interpolant. Traces that close on
// their first point carry a duplicated sample, which is dropped; open
// traversals keep every sample. Returns ErrMissingBpol when the contour has
// no field data.
func (c Contour) bpolResampler() (linearInterp, error) {
	if c.Bpol == nil {
		return linearInterp{}, ErrMissingBpol
	}
	n := len(c.ThetaRZ)
	if n > 1 && c.R[n-1] == c.R[0] && c.Z[n-1] == c.Z[0] {
		n--
	}
	return newLinearInterp(c.ThetaRZ[:n], c.Bpol[:n])
}

// linearInterp is a piecewise-linear interpolant with linear extrapolation
// outside the fitted range. The gonum predictor clamps to the end values,
// so extrapolation from the end segments is layered on top.
type linearInterp struct {
	pl               interp.PiecewiseLinear
	x0, x1           float64
	y0, y1           float64
	slopeLo, slopeHi float64
}

// newLinearInterp fits a linear interpolant to (xs, ys). The pairs are
// sorted by xs and exact duplicates dropped, so unsorted contour angles are
// accepted.
func newLinearInterp(xs, ys []float64) (linearInterp, error) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return linearInterp{}, &InsufficientDataError{
			Reason:  "too few samples to interpolate",
			Samples: len(xs),
		}
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	sx := make([]float64, 0, len(xs))
	sy := make([]float64, 0, len(ys))
	for _, i := range idx {
		if len(sx) > 0 && xs[i] == sx[len(sx)-1] {
			continue
		}
		sx = append(sx, xs[i])
		sy = append(sy, ys[i])
	}
	if len(sx) < 2 {
		return linearInterp{}, &InsufficientDataError{
			Reason:  "degenerate abscissa",
			Samples: len(sx),
		}
	}

	var li linearInterp
	if err := li.pl.Fit(sx, sy); err != nil {
		return linearInterp{}, err
	}
	n := len(sx)
	li.x0, li.x1 = sx[0], sx[n-1]
	li.y0, li.y1 = sy[0], sy[n-1]
	li.slopeLo = (sy[1] - sy[0]) / (sx[1] - sx[0])
	li.slopeHi = (sy[n-1] - sy[n-2]) / (sx[n-1] - sx[n-2])
	return li, nil
}

// Predict evaluates the interpolant at x, extrapolating linearly outside
// the fitted range.
func (li linearInterp) Predict(x float64) float64 {
	switch {
	case x < li.x0:
		return li.y0 + li.slopeLo*(x-li.x0)
	case x > li.x1:
		return li.y1 + li.slopeHi*(x-li.x1)
	default:
		return li.pl.Predict(x)
	}
}

// predictAll evaluates the interpolant over a grid.
func (li linearInterp) predictAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = li.Predict(x)
	}
	return out
}

// clampedPredict evaluates the interpolant at x, clamping to the end values
// outside the fitted range. Used where the reference data is genuinely
// undefined beyond its branch (the analytic extractor's branch resampling).
func (li linearInterp) clampedPredict(x float64) float64 {
	switch {
	case x < li.x0:
		return li.y0
	case x > li.x1:
		return li.y1
	default:
		return li.pl.Predict(x)
	}
}

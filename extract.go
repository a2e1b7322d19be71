package fluxfit

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AnalyticGeometry holds the closed-form (non-fit) Turnbull-Miller
// parameters of a single contour, plus the four raw per-quadrant squareness
// values kept for diagnostics.
type AnalyticGeometry struct {
	DeltaU, DeltaL, Delta float64
	Kappa                 float64

	Zeta                           float64
	ZetaUO, ZetaUI, ZetaLI, ZetaLO float64

	// RMiller and ZMiller are the reconstructed Miller-form curve on the
	// contour's own θ_RZ basis; ZMiller uses the extracted squareness.
	RMiller, ZMiller []float64
}

// quadrant angles at which squareness is sampled.
var zetaQuadrants = [4]float64{0.25 * math.Pi, 0.75 * math.Pi, 1.25 * math.Pi, 1.75 * math.Pi}

// ExtractAnalyticGeometry computes Turnbull-Miller shape parameters from a
// single flux-surface contour without any fitting, adapted from the
// eqdsk Miller extraction by D. Told.
//
// Triangularity and elongation come straight from the contour extents. The
// squareness is recovered by reconstructing a Miller-form R(θ), resampling
// the contour's Z onto it separately on the two monotonic branches of R
// (outboard/descending, inboard/ascending), and inverting the Miller Z
// relation at the four quadrant angles. The per-quadrant branch corrections
// (sign flips and π-shifts on the two inner quadrants) are empirically
// tuned to select the principal arcsin branch.
func ExtractAnalyticGeometry(c Contour) (AnalyticGeometry, error) {
	if err := c.Validate(); err != nil {
		return AnalyticGeometry{}, err
	}

	var g AnalyticGeometry
	iZMax := floats.MaxIdx(c.Z)
	iZMin := floats.MinIdx(c.Z)
	g.DeltaU = (c.R0 - c.R[iZMax]) / c.MinorRadius
	g.DeltaL = (c.R0 - c.R[iZMin]) / c.MinorRadius
	g.Delta = 0.5 * (g.DeltaU + g.DeltaL)
	g.Kappa = (c.Z[iZMax] - c.Z[iZMin]) / (2 * c.MinorRadius)

	x, err := asinDomain("delta", g.Delta)
	if err != nil {
		return AnalyticGeometry{}, err
	}

	// Miller-form R on the contour's own θ basis.
	rMiller := make([]float64, len(c.R))
	for i, th := range c.ThetaRZ {
		rMiller[i] = c.R0 + c.MinorRadius*math.Cos(th+x*math.Sin(th))
	}

	// Resample the contour's Z at the Miller R values separately on the
	// two monotonic branches of R to avoid multivaluedness: the contour is
	// split at its innermost point, the reconstruction at the Miller R
	// value closest to it.
	iRMin := floats.MinIdx(c.R)
	jSplit := nearestIndex(rMiller, floats.Min(c.R))
	zOnOutboard, err := newLinearInterp(c.R[:iRMin], c.Z[:iRMin])
	if err != nil {
		return AnalyticGeometry{}, err
	}
	zOnInboard, err := newLinearInterp(c.R[iRMin:], c.Z[iRMin:])
	if err != nil {
		return AnalyticGeometry{}, err
	}
	zMiller := make([]float64, len(rMiller))
	for i, rv := range rMiller {
		if i < jSplit {
			zMiller[i] = zOnOutboard.clampedPredict(rv)
		} else {
			zMiller[i] = zOnInboard.clampedPredict(rv)
		}
	}

	// Invert the Miller Z relation at the four quadrant angles,
	// interpolating the reconstructed Z within a ±π/4 window per quadrant.
	var zeta4q [4]float64
	for q, thQ := range zetaQuadrants {
		lo := nearestIndex(c.ThetaRZ, thQ-0.25*math.Pi)
		hi := nearestIndex(c.ThetaRZ, thQ+0.25*math.Pi)
		if hi <= lo {
			lo, hi = hi, lo
		}
		window, err := newLinearInterp(c.ThetaRZ[lo:hi+1], zMiller[lo:hi+1])
		if err != nil {
			return AnalyticGeometry{}, err
		}
		zQ := window.clampedPredict(thQ)

		arg := (zQ - c.Z0) / (g.Kappa * c.MinorRadius)
		asin, err := asinDomain("zeta", arg)
		if err != nil {
			return AnalyticGeometry{}, err
		}
		zeta4q[q] = asin / math.Sin(2*thQ)
	}

	// Periodic branch correction: sign flip and π-shift on the two inner
	// quadrants, then removal of the θ/sin(2θ) baseline. The upper-outer
	// baseline is reused for lower-outer and upper-inner for lower-inner.
	zeta4q[1] = -zeta4q[1] - math.Pi
	zeta4q[2] = -zeta4q[2] - math.Pi
	baseOuter := zetaQuadrants[0] / math.Sin(2*zetaQuadrants[0])
	baseInner := zetaQuadrants[1] / math.Sin(2*zetaQuadrants[1])
	g.ZetaUO = zeta4q[0] - baseOuter
	g.ZetaUI = zeta4q[1] - baseInner
	g.ZetaLI = zeta4q[2] - baseInner
	g.ZetaLO = zeta4q[3] - baseOuter
	g.Zeta = 0.25 * (g.ZetaUO + g.ZetaUI + g.ZetaLI + g.ZetaLO)

	// Final reconstruction on the contour basis, now with squareness.
	zFinal := make([]float64, len(c.ThetaRZ))
	for i, th := range c.ThetaRZ {
		zFinal[i] = c.Z0 + g.Kappa*c.MinorRadius*math.Sin(th+g.Zeta*math.Sin(2*th))
	}
	g.RMiller = rMiller
	g.ZMiller = zFinal
	return g, nil
}

// warmStart maps extracted analytic values onto a model's labels, leaving
// labels with no analytic counterpart untouched.
func (g AnalyticGeometry) warmStart(c Contour, labels []string, seed []float64) {
	for i, label := range labels {
		switch label {
		case "R0":
			seed[i] = c.R0
		case "Z0":
			seed[i] = c.Z0
		case "r":
			seed[i] = c.MinorRadius
		case "kappa":
			seed[i] = g.Kappa
		case "delta":
			seed[i] = g.Delta
		case "zeta":
			seed[i] = g.Zeta
		}
	}
}

// turnbullShape assembles the analytic parameters into a Turnbull vector.
func (g AnalyticGeometry) turnbullShape(c Contour) TurnbullShape {
	return TurnbullShape{
		R0: c.R0, Z0: c.Z0, R: c.MinorRadius,
		Kappa: g.Kappa, Delta: g.Delta, Zeta: g.Zeta,
	}
}

package fluxfit

import "math"

// BpolMethod selects how a model reconstructs the poloidal field.
type BpolMethod int

const (
	// BpolAnalytical evaluates the model's closed-form field expression.
	// Preferred when available for speed and stability.
	BpolAnalytical BpolMethod = iota + 1
	// BpolNumerical reconstructs the field from the flux-surface Jacobian
	// and the Mercier-Luc arclength element. Required fallback when no
	// closed form exists.
	BpolNumerical
)

// ShapeModel describes one member of the closed family of flux-surface
// parametrizations. Implementations are [Miller], [Turnbull],
// [TurnbullTilt], [MillerGeneral] and [MXH].
//
// Label order, bound order and parameter-vector order are identical and
// fixed for the life of a model value; the metadata methods and the
// evaluation methods index the same layout.
type ShapeModel interface {
	// Name is the model's conventional identifier, e.g. "turnbull".
	Name() string
	// NumParams is the length of the shape parameter vector.
	NumParams() int
	// Labels returns the ordered shape parameter labels.
	Labels() []string
	// Bounds returns the lower and upper box bounds of the shape
	// parameters, using ±Inf for unbounded entries.
	Bounds() (lo, hi []float64)
	// Initial returns the model's default initial guess.
	Initial() []float64
	// Center returns the geometric center encoded in a parameter vector.
	Center(params []float64) (r0, z0 float64)

	// Evaluate maps a parameter vector and a poloidal angle grid to the
	// parametrized curve (R, Z) and the reference angle
	// atan2pi(Z−Z0, R−R0) of every sample. With normalize set, R and Z are
	// returned center-subtracted.
	//
	// Parameters outside the model's mathematical domain (|δ| > 1) return
	// a [GeometryDomainError]; NaN is never propagated silently.
	Evaluate(params, theta []float64, normalize bool) (r, z, thetaRef []float64, err error)

	// BpolLabels returns the ordered shear parameter labels of the paired
	// poloidal-field model.
	BpolLabels() []string
	// BpolInitial returns the default shear parameter guess.
	BpolInitial() []float64
	// PreferredBpolMethod is the method callers should select when they
	// have no reason to choose: analytical where the closed form is
	// trusted, numerical otherwise.
	PreferredBpolMethod() BpolMethod
	// Bpol maps shear parameters, shape parameters and the evaluated
	// major-radius samples to the analytic poloidal field profile
	// Bp(θ), given the radial flux gradient dΨ/dr.
	Bpol(shear, shape, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error)
}

// bpDenomEps is the absolute threshold below which a field denominator is
// treated as singular.
const bpDenomEps = 1e-12

// asinDomain returns arcsin(v), failing with a GeometryDomainError when v
// falls outside [-1, 1].
func asinDomain(param string, v float64) (float64, error) {
	if math.Abs(v) > 1 || math.IsNaN(v) {
		return 0, &GeometryDomainError{Param: param, Value: v, X: math.NaN()}
	}
	return math.Asin(v), nil
}

// infBounds returns (-Inf, +Inf) bound vectors of length n.
func infBounds(n int) (lo, hi []float64) {
	lo = make([]float64, n)
	hi = make([]float64, n)
	for i := range lo {
		lo[i] = math.Inf(-1)
		hi[i] = math.Inf(1)
	}
	return lo, hi
}

// gradRBpol reconstructs Bp = (dΨ/dr / R)·|∇r| from the curve derivatives,
// with |∇r| = (R/J)·dl/dθ and J = R·(dR/dr·dZ/dθ − dR/dθ·dZ/dr). The R
// factors cancel, so only the in-plane Jacobian matters. A vanishing
// Jacobian is reported as a field singularity.
func gradRBpol(theta []float64, dRdTheta, dZdTheta, dRdr, dZdr func(i int) float64, r []float64, dPsiDr float64) ([]float64, error) {
	bp := make([]float64, len(theta))
	for i := range theta {
		jac := dRdr(i)*dZdTheta(i) - dRdTheta(i)*dZdr(i)
		if math.Abs(jac) < bpDenomEps {
			return nil, &FieldSingularityError{Theta: theta[i], Denominator: jac}
		}
		dl := math.Hypot(dRdTheta(i), dZdTheta(i))
		bp[i] = (dPsiDr / r[i]) * dl / jac
	}
	return bp, nil
}

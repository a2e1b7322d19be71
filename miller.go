package fluxfit

import "math"

// Miller is the flux-surface parametrization from [Miller PoP 5 (1998)]:
//
//	R = R0 + r·cos(θ + arcsin(δ)·sin θ)
//	Z = Z0 + κ·r·sin θ
//
// [Miller PoP 5 (1998)]: https://doi.org/10.1063/1.872666
type Miller struct{}

var _ ShapeModel = Miller{}

// MillerShape is the named form of the Miller parameter vector.
type MillerShape struct {
	R0, Z0, R    float64
	Kappa, Delta float64
}

// MillerShapeFromVector unpacks a flat parameter vector.
func MillerShapeFromVector(p []float64) MillerShape {
	return MillerShape{R0: p[0], Z0: p[1], R: p[2], Kappa: p[3], Delta: p[4]}
}

// Vector flattens the shape back into optimizer order.
func (s MillerShape) Vector() []float64 {
	return []float64{s.R0, s.Z0, s.R, s.Kappa, s.Delta}
}

// MillerShear is the named form of the Miller shear parameter vector.
type MillerShear struct {
	DR0Dr, DZ0Dr   float64
	SKappa, SDelta float64
}

// MillerShearFromVector unpacks a flat shear vector.
func MillerShearFromVector(p []float64) MillerShear {
	return MillerShear{DR0Dr: p[0], DZ0Dr: p[1], SKappa: p[2], SDelta: p[3]}
}

// Vector flattens the shear back into optimizer order.
func (s MillerShear) Vector() []float64 {
	return []float64{s.DR0Dr, s.DZ0Dr, s.SKappa, s.SDelta}
}

func (Miller) Name() string   { return "miller" }
func (Miller) NumParams() int { return 5 }
func (Miller) Labels() []string {
	return []string{"R0", "Z0", "r", "kappa", "delta"}
}

func (Miller) Bounds() (lo, hi []float64) {
	lo, hi = infBounds(5)
	lo[0], lo[2], lo[3] = 0, 0, 0
	return lo, hi
}

func (Miller) Initial() []float64 {
	return []float64{0, 0, 0, 1, 0}
}

func (Miller) Center(params []float64) (r0, z0 float64) {
	return params[0], params[1]
}

func (Miller) BpolLabels() []string {
	return []string{"dR0dr", "dZ0dr", "s_kappa", "s_delta"}
}

func (Miller) BpolInitial() []float64 {
	return make([]float64, 4)
}

func (Miller) PreferredBpolMethod() BpolMethod { return BpolAnalytical }

// Evaluate implements ShapeModel.
func (Miller) Evaluate(params, theta []float64, normalize bool) (r, z, thetaRef []float64, err error) {
	s := MillerShapeFromVector(params)
	x, err := asinDomain("delta", s.Delta)
	if err != nil {
		return nil, nil, nil, err
	}

	r = make([]float64, len(theta))
	z = make([]float64, len(theta))
	for i, th := range theta {
		thR := th + x*math.Sin(th)
		r[i] = s.R0 + s.R*math.Cos(thR)
		z[i] = s.Z0 + s.Kappa*s.R*math.Sin(th)
	}
	thetaRef = refAngles(r, z, s.R0, s.Z0)
	if normalize {
		for i := range r {
			r[i] -= s.R0
			z[i] -= s.Z0
		}
	}
	return r, z, thetaRef, nil
}

// Bpol implements ShapeModel.
//
// The closed form is the |∇r| expression of the Miller local equilibrium,
//
//	Bp = dΨ/dr / (R·κ) · √(sin²θ_R·(1+x·cosθ)² + κ²·cos²θ) / D
//	D  = cos(x·sinθ) + dR0/dr·cosθ + (s_κ − s_δ·cosθ + (1+s_κ)·x·cosθ)·sinθ·sinθ_R
//
// with x = arcsin δ and θ_R = θ + x·sinθ. The numerical method rebuilds the
// same field from the flux-surface Jacobian; the two agree to rounding on
// non-degenerate shapes.
func (Miller) Bpol(shear, shape, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error) {
	s := MillerShapeFromVector(shape)
	d := MillerShearFromVector(shear)
	x, err := asinDomain("delta", s.Delta)
	if err != nil {
		return nil, err
	}

	switch method {
	case BpolNumerical:
		sin, cos := sincosGrid(theta)
		thetaR := func(i int) float64 { return theta[i] + x*sin[i] }
		return gradRBpol(theta,
			func(i int) float64 { return -s.R * math.Sin(thetaR(i)) * (1 + x*cos[i]) },
			func(i int) float64 { return s.Kappa * s.R * cos[i] },
			func(i int) float64 {
				return d.DR0Dr + math.Cos(thetaR(i)) - d.SDelta*sin[i]*math.Sin(thetaR(i))
			},
			func(i int) float64 { return s.Kappa * (d.SKappa + 1) * sin[i] },
			r, dPsiDr)
	default:
		bp := make([]float64, len(theta))
		for i, th := range theta {
			sinTh, cosTh := math.Sincos(th)
			thR := th + x*sinTh
			sinThR := math.Sin(thR)
			nom := math.Sqrt(sinThR*sinThR*(1+x*cosTh)*(1+x*cosTh) +
				s.Kappa*s.Kappa*cosTh*cosTh)
			denom := math.Cos(x*sinTh) + d.DR0Dr*cosTh +
				(d.SKappa-d.SDelta*cosTh+(1+d.SKappa)*x*cosTh)*sinTh*sinThR
			if math.Abs(denom) < bpDenomEps {
				return nil, &FieldSingularityError{Theta: th, Denominator: denom}
			}
			bp[i] = dPsiDr / (r[i] * s.Kappa) * nom / denom
		}
		return bp, nil
	}
}

// sincosGrid precomputes sin and cos over a θ grid.
func sincosGrid(theta []float64) (sin, cos []float64) {
	sin = make([]float64, len(theta))
	cos = make([]float64, len(theta))
	for i, th := range theta {
		sin[i], cos[i] = math.Sincos(th)
	}
	return sin, cos
}

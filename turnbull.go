package fluxfit

import "math"

// Turnbull extends [Miller] with squareness ζ, following
// [Turnbull PoP 6 (1999)]:
//
//	R = R0 + r·cos(θ + arcsin(δ)·sin θ)
//	Z = Z0 + κ·r·sin(θ + ζ·sin 2θ)
//
// [Turnbull PoP 6 (1999)]: https://doi.org/10.1063/1.873380
type Turnbull struct{}

// TurnbullTilt extends [Turnbull] with a rigid tilt angle τ added to θ_R.
type TurnbullTilt struct{}

var (
	_ ShapeModel = Turnbull{}
	_ ShapeModel = TurnbullTilt{}
)

// TurnbullShape is the named form of the Turnbull parameter vector.
type TurnbullShape struct {
	R0, Z0, R          float64
	Kappa, Delta, Zeta float64
}

// TurnbullShapeFromVector unpacks a flat parameter vector.
func TurnbullShapeFromVector(p []float64) TurnbullShape {
	return TurnbullShape{R0: p[0], Z0: p[1], R: p[2], Kappa: p[3], Delta: p[4], Zeta: p[5]}
}

// Vector flattens the shape back into optimizer order.
func (s TurnbullShape) Vector() []float64 {
	return []float64{s.R0, s.Z0, s.R, s.Kappa, s.Delta, s.Zeta}
}

// TurnbullShear is the named form of the Turnbull shear parameter vector.
type TurnbullShear struct {
	DR0Dr, DZ0Dr          float64
	SKappa, SDelta, SZeta float64
}

// TurnbullShearFromVector unpacks a flat shear vector.
func TurnbullShearFromVector(p []float64) TurnbullShear {
	return TurnbullShear{DR0Dr: p[0], DZ0Dr: p[1], SKappa: p[2], SDelta: p[3], SZeta: p[4]}
}

// Vector flattens the shear back into optimizer order.
func (s TurnbullShear) Vector() []float64 {
	return []float64{s.DR0Dr, s.DZ0Dr, s.SKappa, s.SDelta, s.SZeta}
}

func (Turnbull) Name() string   { return "turnbull" }
func (Turnbull) NumParams() int { return 6 }
func (Turnbull) Labels() []string {
	return []string{"R0", "Z0", "r", "kappa", "delta", "zeta"}
}

func (Turnbull) Bounds() (lo, hi []float64) {
	lo, hi = infBounds(6)
	lo[0], lo[2], lo[3] = 0, 0, 0
	return lo, hi
}

func (Turnbull) Initial() []float64 {
	return []float64{0, 0, 0, 1, 0, 0}
}

func (Turnbull) Center(params []float64) (r0, z0 float64) {
	return params[0], params[1]
}

func (Turnbull) BpolLabels() []string {
	return []string{"dR0dr", "dZ0dr", "s_kappa", "s_delta", "s_zeta"}
}

func (Turnbull) BpolInitial() []float64 {
	return make([]float64, 5)
}

func (Turnbull) PreferredBpolMethod() BpolMethod { return BpolAnalytical }

// Evaluate implements ShapeModel.
func (Turnbull) Evaluate(params, theta []float64, normalize bool) (r, z, thetaRef []float64, err error) {
	s := TurnbullShapeFromVector(params)
	return turnbullCurve(s, 0, theta, normalize)
}

// Bpol implements ShapeModel.
func (Turnbull) Bpol(shear, shape, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error) {
	s := TurnbullShapeFromVector(shape)
	d := TurnbullShearFromVector(shear)
	return turnbullBpol(s, d, 0, 0, theta, r, dPsiDr, method)
}

func (TurnbullTilt) Name() string   { return "turnbull_tilt" }
func (TurnbullTilt) NumParams() int { return 7 }
func (TurnbullTilt) Labels() []string {
	return []string{"R0", "Z0", "r", "kappa", "delta", "zeta", "tilt"}
}

func (TurnbullTilt) Bounds() (lo, hi []float64) {
	lo, hi = infBounds(7)
	lo[0], lo[2], lo[3] = 0, 0, 0
	return lo, hi
}

func (TurnbullTilt) Initial() []float64 {
	return []float64{0, 0, 0, 1, 0, 0, 0}
}

func (TurnbullTilt) Center(params []float64) (r0, z0 float64) {
	return params[0], params[1]
}

func (TurnbullTilt) BpolLabels() []string {
	return []string{"dR0dr", "dZ0dr", "s_kappa", "s_delta", "s_zeta", "s_tilt"}
}

func (TurnbullTilt) BpolInitial() []float64 {
	return make([]float64, 6)
}

// PreferredBpolMethod is numerical: the tilted closed form has denominator
// singularities for moderate tilt/triangularity combinations.
func (TurnbullTilt) PreferredBpolMethod() BpolMethod { return BpolNumerical }

// Evaluate implements ShapeModel.
func (TurnbullTilt) Evaluate(params, theta []float64, normalize bool) (r, z, thetaRef []float64, err error) {
	s := TurnbullShapeFromVector(params[:6])
	return turnbullCurve(s, params[6], theta, normalize)
}

// Bpol implements ShapeModel.
func (TurnbullTilt) Bpol(shear, shape, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error) {
	s := TurnbullShapeFromVector(shape[:6])
	d := TurnbullShearFromVector(shear[:5])
	return turnbullBpol(s, d, shape[6], shear[5], theta, r, dPsiDr, method)
}

// turnbullCurve evaluates the Turnbull parametrization with an optional
// tilt offset in θ_R.
func turnbullCurve(s TurnbullShape, tilt float64, theta []float64, normalize bool) (r, z, thetaRef []float64, err error) {
	x, err := asinDomain("delta", s.Delta)
	if err != nil {
		return nil, nil, nil, err
	}

	r = make([]float64, len(theta))
	z = make([]float64, len(theta))
	for i, th := range theta {
		thR := th + x*math.Sin(th) + tilt
		thZ := th + s.Zeta*math.Sin(2*th)
		r[i] = s.R0 + s.R*math.Cos(thR)
		z[i] = s.Z0 + s.Kappa*s.R*math.Sin(thZ)
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

// turnbullBpol evaluates the Turnbull poloidal-field model with optional
// tilt terms (tilt offset in θ_R, s_tilt offset in the denominator).
//
// Analytical form:
//
//	Bp = dΨ/dr / R · √(sin²θ_R·θ_R'² + κ²·cos²θ_Z·θ_Z'²) / D
//	D  = κ·cosθ_Z·θ_Z'·(dR0/dr + cosθ_R − s_δ·sinθ·sinθ_R + s_τ)
//	   + sinθ_R·θ_R'·(dZ0/dr + κ·((s_κ+1)·sinθ_Z + s_ζ·sin2θ·cosθ_Z))
//
// with θ_R = θ + arcsin(δ)·sinθ + τ, θ_Z = θ + ζ·sin2θ and θ', the
// θ-derivatives of the two angles.
func turnbullBpol(s TurnbullShape, d TurnbullShear, tilt, sTilt float64, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error) {
	x, err := asinDomain("delta", s.Delta)
	if err != nil {
		return nil, err
	}

	thetaR := func(th float64) float64 { return th + x*math.Sin(th) + tilt }
	dThetaR := func(th float64) float64 { return 1 + x*math.Cos(th) }
	thetaZ := func(th float64) float64 { return th + s.Zeta*math.Sin(2*th) }
	dThetaZ := func(th float64) float64 { return 1 + 2*s.Zeta*math.Cos(2*th) }

	switch method {
	case BpolNumerical:
		return gradRBpol(theta,
			func(i int) float64 {
				return -s.R * math.Sin(thetaR(theta[i])) * dThetaR(theta[i])
			},
			func(i int) float64 {
				return s.Kappa * s.R * math.Cos(thetaZ(theta[i])) * dThetaZ(theta[i])
			},
			func(i int) float64 {
				th := theta[i]
				return d.DR0Dr + math.Cos(thetaR(th)) - d.SDelta*math.Sin(th)*math.Sin(thetaR(th)) + sTilt
			},
			func(i int) float64 {
				th := theta[i]
				return d.DZ0Dr + s.Kappa*((d.SKappa+1)*math.Sin(thetaZ(th))+d.SZeta*math.Sin(2*th)*math.Cos(thetaZ(th)))
			},
			r, dPsiDr)
	default:
		bp := make([]float64, len(theta))
		for i, th := range theta {
			thR, dThR := thetaR(th), dThetaR(th)
			thZ, dThZ := thetaZ(th), dThetaZ(th)
			sinThR, cosThZ := math.Sin(thR), math.Cos(thZ)

			nom := math.Sqrt(sinThR*sinThR*dThR*dThR +
				s.Kappa*s.Kappa*cosThZ*cosThZ*dThZ*dThZ)
			denom := s.Kappa*cosThZ*dThZ*(d.DR0Dr+math.Cos(thR)-d.SDelta*math.Sin(th)*sinThR+sTilt) +
				sinThR*dThR*(d.DZ0Dr+s.Kappa*((d.SKappa+1)*math.Sin(thZ)+d.SZeta*math.Sin(2*th)*cosThZ))
			if math.Abs(denom) < bpDenomEps {
				return nil, &FieldSingularityError{Theta: th, Denominator: denom}
			}
			bp[i] = dPsiDr / r[i] * nom / denom
		}
		return bp, nil
	}
}

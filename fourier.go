package fluxfit

import (
	"fmt"
	"math"
)

// MillerGeneral is the generalized Fourier parametrization from
// [Candy PPCF 51 (2009)]:
//
//	R = ½·aR_0 + Σ_n aR_n·cos nθ + bR_n·sin nθ
//	Z = ½·aZ_0 + Σ_n aZ_n·cos nθ + bZ_n·sin nθ
//
// Harmonics selects the number of harmonics N; the parameter vector is
// [aR_0, aZ_0, aR_1, bR_1, aZ_1, bZ_1, …] of length 2+4N.
//
// [Candy PPCF 51 (2009)]: https://doi.org/10.1088/0741-3335/51/10/105009
type MillerGeneral struct {
	Harmonics int
}

// MXH is the Miller eXtended Harmonic parametrization from
// [Arbon PPCF 61 (2021)]:
//
//	θ_R = θ + c_0 + Σ_n c_n·cos nθ + s_n·sin nθ
//	R   = R0 + r·cos θ_R
//	Z   = Z0 + κ·r·sin θ
//
// Harmonics selects the number of harmonics N; the parameter vector is
// [R0, Z0, r, kappa, c_0, c_1, s_1, …] of length 5+2N.
//
// [Arbon PPCF 61 (2021)]: https://doi.org/10.1088/1361-6587/abc63b
type MXH struct {
	Harmonics int
}

var (
	_ ShapeModel = MillerGeneral{}
	_ ShapeModel = MXH{}
)

func (MillerGeneral) Name() string     { return "miller_general" }
func (m MillerGeneral) NumParams() int { return 2 + 4*m.Harmonics }

func (m MillerGeneral) Labels() []string {
	labels := []string{"aR_0", "aZ_0"}
	for n := 1; n <= m.Harmonics; n++ {
		labels = append(labels,
			fmt.Sprintf("aR_%d", n), fmt.Sprintf("bR_%d", n),
			fmt.Sprintf("aZ_%d", n), fmt.Sprintf("bZ_%d", n))
	}
	return labels
}

func (m MillerGeneral) Bounds() (lo, hi []float64) {
	n := m.NumParams()
	lo = make([]float64, n)
	hi = make([]float64, n)
	for i := range lo {
		lo[i], hi[i] = -5, 5
	}
	return lo, hi
}

func (m MillerGeneral) Initial() []float64 {
	return make([]float64, m.NumParams())
}

func (MillerGeneral) Center(params []float64) (r0, z0 float64) {
	return 0.5 * params[0], 0.5 * params[1]
}

func (m MillerGeneral) BpolLabels() []string {
	labels := m.Labels()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = "d" + l + "dr"
	}
	return out
}

func (m MillerGeneral) BpolInitial() []float64 {
	out := make([]float64, m.NumParams())
	for i := range out {
		out[i] = 1
	}
	return out
}

func (MillerGeneral) PreferredBpolMethod() BpolMethod { return BpolNumerical }

// Evaluate implements ShapeModel.
func (m MillerGeneral) Evaluate(params, theta []float64, normalize bool) (r, z, thetaRef []float64, err error) {
	r0, z0 := m.Center(params)
	r = make([]float64, len(theta))
	z = make([]float64, len(theta))
	for i, th := range theta {
		rSum, zSum := r0, z0
		for n := 1; n <= m.Harmonics; n++ {
			sinN, cosN := math.Sincos(float64(n) * th)
			base := 2 + (n-1)*4
			rSum += params[base]*cosN + params[base+1]*sinN
			zSum += params[base+2]*cosN + params[base+3]*sinN
		}
		r[i] = rSum
		z[i] = zSum
	}
	thetaRef = refAngles(r, z, r0, z0)
	if normalize {
		for i := range r {
			r[i] -= r0
			z[i] -= z0
		}
	}
	return r, z, thetaRef, nil
}

// Bpol implements ShapeModel.
//
// No variant-specific field derivation exists for the Fourier
// parametrization; this reuses the Miller closed form on a Miller-equivalent
// reduction of the leading harmonic (r ≈ |aR_1|, κ ≈ |bZ_1|/r, δ = 0) and
// the first four shear entries. This is a known approximation: do not trust
// it for strongly non-Miller shapes.
func (m MillerGeneral) Bpol(shear, shape, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error) {
	if m.Harmonics < 1 {
		return nil, &GeometryDomainError{Param: "n_harmonics", Value: float64(m.Harmonics), X: math.NaN()}
	}
	r0, z0 := m.Center(shape)
	rm := math.Abs(shape[2])
	if rm < bpDenomEps {
		return nil, &FieldSingularityError{Theta: 0, Denominator: rm}
	}
	kappa := math.Abs(shape[5]) / rm
	reduced := MillerShape{R0: r0, Z0: z0, R: rm, Kappa: kappa, Delta: 0}
	return Miller{}.Bpol(shear[:4], reduced.Vector(), theta, r, dPsiDr, method)
}

func (MXH) Name() string     { return "mxh" }
func (m MXH) NumParams() int { return 5 + 2*m.Harmonics }

func (m MXH) Labels() []string {
	labels := []string{"R0", "Z0", "r", "kappa", "c_0"}
	for n := 1; n <= m.Harmonics; n++ {
		labels = append(labels, fmt.Sprintf("c_%d", n), fmt.Sprintf("s_%d", n))
	}
	return labels
}

func (m MXH) Bounds() (lo, hi []float64) {
	return infBounds(m.NumParams())
}

func (m MXH) Initial() []float64 {
	out := make([]float64, m.NumParams())
	out[3] = 1 // kappa
	return out
}

func (MXH) Center(params []float64) (r0, z0 float64) {
	return params[0], params[1]
}

func (m MXH) BpolLabels() []string {
	labels := []string{"dR0dr", "dZ0dr", "s_kappa", "dc_0dr"}
	for n := 1; n <= m.Harmonics; n++ {
		labels = append(labels, fmt.Sprintf("dc_%ddr", n), fmt.Sprintf("ds_%ddr", n))
	}
	return labels
}

func (m MXH) BpolInitial() []float64 {
	out := make([]float64, 4+2*m.Harmonics)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (MXH) PreferredBpolMethod() BpolMethod { return BpolNumerical }

// Evaluate implements ShapeModel.
func (m MXH) Evaluate(params, theta []float64, normalize bool) (r, z, thetaRef []float64, err error) {
	r0, z0, rm, kappa, c0 := params[0], params[1], params[2], params[3], params[4]
	r = make([]float64, len(theta))
	z = make([]float64, len(theta))
	for i, th := range theta {
		thR := th + c0
		for n := 1; n <= m.Harmonics; n++ {
			sinN, cosN := math.Sincos(float64(n) * th)
			base := 5 + (n-1)*2
			thR += params[base]*cosN + params[base+1]*sinN
		}
		r[i] = r0 + rm*math.Cos(thR)
		z[i] = z0 + kappa*rm*math.Sin(th)
	}
	thetaRef = refAngles(r, z, r0, z0)
	if normalize {
		for i := range r {
			r[i] -= r0
			z[i] -= z0
		}
	}
	return r, z, thetaRef, nil
}

// Bpol implements ShapeModel.
//
// As with [MillerGeneral.Bpol], no MXH-specific field derivation exists;
// the Miller closed form is reused with the leading Miller-compatible
// parameters (δ = 0, the harmonic angle corrections dropped) and the first
// four shear entries. Known approximation.
func (m MXH) Bpol(shear, shape, theta, r []float64, dPsiDr float64, method BpolMethod) ([]float64, error) {
	reduced := MillerShape{R0: shape[0], Z0: shape[1], R: shape[2], Kappa: shape[3], Delta: 0}
	return Miller{}.Bpol(shear[:4], reduced.Vector(), theta, r, dPsiDr, method)
}

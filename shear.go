package fluxfit

import (
	"math"
	"strings"
)

// Gradient returns dy/dx on a strictly increasing, possibly nonuniform
// grid, using second-order-accurate central differences in the interior and
// one-sided second-order stencils at the boundaries. It needs at least
// three points and fails with ErrNonMonotonicGrid on a misordered grid
// rather than silently misordering the derivative.
func Gradient(y, x []float64) ([]float64, error) {
	n := len(x)
	if len(y) != n || n < 3 {
		return nil, &InsufficientDataError{
			Reason:  "gradient needs at least three grid points",
			Samples: n,
		}
	}
	for i := 1; i < n; i++ {
		if !(x[i] > x[i-1]) {
			return nil, ErrNonMonotonicGrid
		}
	}

	out := make([]float64, n)
	for i := 1; i < n-1; i++ {
		hs := x[i] - x[i-1]
		hd := x[i+1] - x[i]
		out[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) /
			(hs * hd * (hd + hs))
	}

	// One-sided second-order boundary stencils.
	h1 := x[1] - x[0]
	h2 := x[2] - x[1]
	out[0] = -(2*h1+h2)/(h1*(h1+h2))*y[0] +
		(h1+h2)/(h1*h2)*y[1] -
		h1/(h2*(h1+h2))*y[2]
	g1 := x[n-2] - x[n-3]
	g2 := x[n-1] - x[n-2]
	out[n-1] = g2/(g1*(g1+g2))*y[n-3] -
		(g1+g2)/(g1*g2)*y[n-2] +
		(2*g2+g1)/(g2*(g1+g2))*y[n-1]
	return out, nil
}

// ShearProfiles converts the fitted shape-parameter radial profiles into
// the shear profiles of the paired field model.
//
// profiles maps shape labels to per-grid-point fitted values; x is the
// analysis radial coordinate and r the geometric minor radius at each grid
// point. The shear of κ is the dimensionless log-derivative r·dlnκ/dr, the
// triangularity shear carries the 1/√(1−δ²) curvature correction, ζ and
// tilt get plain r-scaled derivatives, and every remaining field label of
// the form d<param>dr becomes the unscaled derivative of its parameter.
func ShearProfiles(model ShapeModel, profiles map[string][]float64, x, r []float64) (map[string][]float64, []float64, error) {
	dxdr, err := Gradient(x, r)
	if err != nil {
		return nil, nil, err
	}
	n := len(x)

	shears := make(map[string][]float64, len(model.BpolLabels()))
	scaled := func(vals []float64, scale func(i int) float64) ([]float64, error) {
		d, err := Gradient(vals, x)
		if err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = scale(i) * dxdr[i] * d[i]
		}
		return out, nil
	}

	for _, label := range model.BpolLabels() {
		var vals []float64
		var err error
		switch label {
		case "s_kappa":
			kappa := profiles["kappa"]
			logK := make([]float64, n)
			for i, k := range kappa {
				if !(k > 0) {
					return nil, nil, &GeometryDomainError{Param: "kappa", Value: k, X: x[i]}
				}
				logK[i] = math.Log(k)
			}
			vals, err = scaled(logK, func(i int) float64 { return r[i] })
		case "s_delta":
			delta := profiles["delta"]
			for i, d := range delta {
				if math.Abs(d) >= 1 {
					return nil, nil, &GeometryDomainError{Param: "delta", Value: d, X: x[i]}
				}
			}
			vals, err = scaled(delta, func(i int) float64 {
				return r[i] / math.Sqrt(1-delta[i]*delta[i])
			})
		case "s_zeta":
			vals, err = scaled(profiles["zeta"], func(i int) float64 { return r[i] })
		case "s_tilt":
			vals, err = scaled(profiles["tilt"], func(i int) float64 { return r[i] })
		default:
			param := strings.TrimSuffix(strings.TrimPrefix(label, "d"), "dr")
			vals, err = scaled(profiles[param], func(int) float64 { return 1 })
		}
		if err != nil {
			return nil, nil, err
		}
		shears[label] = vals
	}
	return shears, dxdr, nil
}

package fluxfit

import "math"

// Atan2Pi returns the four-quadrant arctangent of y/x, normalized to
// [0, 2π). It is the reference poloidal angle of a point about a flux
// surface's geometric center.
func Atan2Pi(y, x float64) float64 {
	th := math.Atan2(y, x)
	if th < 0 {
		th += 2 * math.Pi
	}
	// A negative y smaller than one ulp of 2π rounds th + 2π to exactly
	// 2π; fold the seam back to 0 to keep the half-open range.
	if th >= 2*math.Pi {
		th = 0
	}
	return th
}

// Linspace returns n evenly spaced values covering [start, stop], both
// endpoints included. It panics if n < 2.
func Linspace(start, stop float64, n int) []float64 {
	if n < 2 {
		panic("fluxfit: Linspace requires n >= 2")
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	// Avoid accumulating rounding in the last sample.
	out[n-1] = stop
	return out
}

// closeCurve appends the first sample to the end of theta, closing one full
// poloidal traversal. Curves evaluated on the closed grid carry a duplicated
// closing sample; field quantities drop it.
func closeCurve(theta []float64) []float64 {
	out := make([]float64, len(theta)+1)
	copy(out, theta)
	out[len(theta)] = theta[0]
	return out
}

// refAngles computes the reference poloidal angle of each (R, Z) sample
// about (R0, Z0).
func refAngles(r, z []float64, r0, z0 float64) []float64 {
	out := make([]float64, len(r))
	for i := range r {
		out[i] = Atan2Pi(z[i]-z0, r[i]-r0)
	}
	return out
}

// nearestIndex returns the index of the element of xs closest to v.
func nearestIndex(xs []float64, v float64) int {
	best := 0
	bestDist := math.Abs(xs[0] - v)
	for i, x := range xs[1:] {
		if d := math.Abs(x - v); d < bestDist {
			best = i + 1
			bestDist = d
		}
	}
	return best
}

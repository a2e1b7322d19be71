package fluxfit

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func diff(t *testing.T, want, got any, opts ...cmp.Option) {
	t.Helper()
	if d := cmp.Diff(want, got, opts...); d != "" {
		t.Error(d)
	}
}

// tracedContour samples an exact Turnbull shape once around the surface.
// n should be a multiple of 4 so that the extent-defining angles 0, π/2, π
// and 3π/2 are sampled exactly.
func tracedContour(t *testing.T, s TurnbullShape, n int, psi float64) Contour {
	t.Helper()
	theta := Linspace(0, 2*math.Pi, n+1)[:n]
	r, z, _, err := Turnbull{}.Evaluate(s.Vector(), theta, false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewContour(r, z, psi)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

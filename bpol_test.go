package fluxfit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// On a circular surface with vanishing shears |∇r| = 1 and the poloidal
// field reduces to dΨ/dr / R, for both methods.
func TestBpolCircle(t *testing.T) {
	shape := []float64{3, 0.5, 1, 1, 0}
	shear := []float64{0, 0, 0, 0}
	theta := Linspace(0, 2*math.Pi, 361)[:360]
	r, _, _, err := Miller{}.Evaluate(shape, theta, false)
	if err != nil {
		t.Fatal(err)
	}

	const dPsiDr = 0.7
	for _, method := range []BpolMethod{BpolAnalytical, BpolNumerical} {
		bp, err := Miller{}.Bpol(shear, shape, theta, r, dPsiDr, method)
		if err != nil {
			t.Fatal(err)
		}
		for i := range bp {
			want := dPsiDr / r[i]
			if math.Abs(bp[i]-want) > 1e-12 {
				t.Fatalf("method %v: got Bp = %v at θ = %v, expected %v", method, bp[i], theta[i], want)
			}
		}
	}
}

// The closed form and the Jacobian reconstruction are the same field
// expressed two ways; they must agree far below the 1e-4 relative level on
// a strongly shaped surface with non-trivial shears.
func TestTurnbullBpolMethodsAgree(t *testing.T) {
	shape := TurnbullShape{R0: 1.7, Z0: 0.02, R: 0.5, Kappa: 1.4, Delta: 0.3, Zeta: 0.05}
	shear := TurnbullShear{DR0Dr: -0.1, DZ0Dr: 0, SKappa: 0.5, SDelta: 0.2, SZeta: 0.05}
	theta := Linspace(0, 2*math.Pi, 361)[:360]
	r, _, _, err := Turnbull{}.Evaluate(shape.Vector(), theta, false)
	if err != nil {
		t.Fatal(err)
	}

	analytical, err := Turnbull{}.Bpol(shear.Vector(), shape.Vector(), theta, r, 1.0, BpolAnalytical)
	if err != nil {
		t.Fatal(err)
	}
	numerical, err := Turnbull{}.Bpol(shear.Vector(), shape.Vector(), theta, r, 1.0, BpolNumerical)
	if err != nil {
		t.Fatal(err)
	}
	for i := range theta {
		rel := math.Abs(analytical[i]-numerical[i]) / math.Abs(numerical[i])
		if rel > 1e-4 {
			t.Fatalf("methods disagree at θ = %v: %v vs %v (rel %v)", theta[i], analytical[i], numerical[i], rel)
		}
	}
}

func TestMillerBpolMethodsAgree(t *testing.T) {
	shape := []float64{1.7, 0.02, 0.5, 1.4, 0.3}
	shear := []float64{-0.1, 0, 0.5, 0.2}
	theta := Linspace(0, 2*math.Pi, 361)[:360]
	r, _, _, err := Miller{}.Evaluate(shape, theta, false)
	if err != nil {
		t.Fatal(err)
	}

	analytical, err := Miller{}.Bpol(shear, shape, theta, r, 1.0, BpolAnalytical)
	if err != nil {
		t.Fatal(err)
	}
	numerical, err := Miller{}.Bpol(shear, shape, theta, r, 1.0, BpolNumerical)
	if err != nil {
		t.Fatal(err)
	}
	for i := range theta {
		rel := math.Abs(analytical[i]-numerical[i]) / math.Abs(numerical[i])
		if rel > 1e-4 {
			t.Fatalf("methods disagree at θ = %v: %v vs %v (rel %v)", theta[i], analytical[i], numerical[i], rel)
		}
	}
}

// A shifting center with dR0/dr = -1 collapses the field denominator at
// θ = 0; the singularity must be reported, never returned as ±Inf.
func TestBpolSingularity(t *testing.T) {
	shape := []float64{3, 0, 1, 1, 0}
	shear := []float64{-1, 0, 0, 0}
	theta := []float64{0, 1, 2}
	r, _, _, err := Miller{}.Evaluate(shape, theta, false)
	require.NoError(t, err)

	_, err = Miller{}.Bpol(shear, shape, theta, r, 1.0, BpolAnalytical)
	var fse *FieldSingularityError
	require.ErrorAs(t, err, &fse)
	require.Equal(t, 0.0, fse.Theta)
}

// The harmonic parametrizations delegate to the Miller reduction of their
// leading harmonic; on a circle the reduction is exact.
func TestHarmonicBpolReduction(t *testing.T) {
	theta := Linspace(0, 2*math.Pi, 181)[:180]

	mg := MillerGeneral{Harmonics: 2}
	shape := circleParams(mg)
	r, _, _, err := mg.Evaluate(shape, theta, false)
	require.NoError(t, err)
	shear := make([]float64, mg.NumParams())
	bp, err := mg.Bpol(shear, shape, theta, r, 0.7, BpolAnalytical)
	require.NoError(t, err)
	for i := range bp {
		require.InDelta(t, 0.7/r[i], bp[i], 1e-12)
	}

	mxh := MXH{Harmonics: 2}
	shape = circleParams(mxh)
	r, _, _, err = mxh.Evaluate(shape, theta, false)
	require.NoError(t, err)
	bp, err = mxh.Bpol(make([]float64, 4+2*mxh.Harmonics), shape, theta, r, 0.7, BpolAnalytical)
	require.NoError(t, err)
	for i := range bp {
		require.InDelta(t, 0.7/r[i], bp[i], 1e-12)
	}
}

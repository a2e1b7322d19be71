package fluxfit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// circleParams returns, for each model, the parameter vector describing the
// circle of radius 1 centered on (3, 0.5).
func circleParams(model ShapeModel) []float64 {
	switch m := model.(type) {
	case Miller:
		return []float64{3, 0.5, 1, 1, 0}
	case Turnbull:
		return []float64{3, 0.5, 1, 1, 0, 0}
	case TurnbullTilt:
		return []float64{3, 0.5, 1, 1, 0, 0, 0}
	case MillerGeneral:
		p := make([]float64, m.NumParams())
		p[0], p[1] = 6, 1 // aR_0, aZ_0 carry twice the center
		p[2], p[5] = 1, 1 // aR_1·cos θ, bZ_1·sin θ
		return p
	case MXH:
		p := make([]float64, m.NumParams())
		p[0], p[1], p[2], p[3] = 3, 0.5, 1, 1
		return p
	default:
		panic("unknown model")
	}
}

func allModels() []ShapeModel {
	return []ShapeModel{
		Miller{}, Turnbull{}, TurnbullTilt{},
		MillerGeneral{Harmonics: 2}, MXH{Harmonics: 2},
	}
}

func TestModelsDescribeCircle(t *testing.T) {
	theta := Linspace(0, 2*math.Pi, 361)[:360]
	for _, model := range allModels() {
		t.Run(model.Name(), func(t *testing.T) {
			p := circleParams(model)
			r, z, thetaRef, err := model.Evaluate(p, theta, false)
			if err != nil {
				t.Fatal(err)
			}
			for i := range theta {
				rad := math.Hypot(r[i]-3, z[i]-0.5)
				if math.Abs(rad-1) > 1e-12 {
					t.Fatalf("got radius %v at θ = %v, expected 1", rad, theta[i])
				}
				if math.Abs(thetaRef[i]-theta[i]) > 1e-9 {
					t.Fatalf("got reference angle %v at θ = %v", thetaRef[i], theta[i])
				}
			}

			// Normalized evaluation is center-subtracted.
			rn, zn, _, err := model.Evaluate(p, theta, true)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(rn[0]-(r[0]-3)) > 1e-15 || math.Abs(zn[0]-(z[0]-0.5)) > 1e-15 {
				t.Errorf("normalized curve is not center-subtracted")
			}
		})
	}
}

func TestModelMetadataConsistency(t *testing.T) {
	for _, model := range allModels() {
		t.Run(model.Name(), func(t *testing.T) {
			n := model.NumParams()
			if got := len(model.Labels()); got != n {
				t.Errorf("got %d labels, expected %d", got, n)
			}
			if got := len(model.Initial()); got != n {
				t.Errorf("got %d initial values, expected %d", got, n)
			}
			lo, hi := model.Bounds()
			if len(lo) != n || len(hi) != n {
				t.Errorf("got bound lengths %d, %d, expected %d", len(lo), len(hi), n)
			}
			for i := range lo {
				if !(lo[i] < hi[i]) {
					t.Errorf("bound %d is empty: [%v, %v]", i, lo[i], hi[i])
				}
			}
			if got, want := len(model.BpolInitial()), len(model.BpolLabels()); got != want {
				t.Errorf("got %d field initial values, expected %d", got, want)
			}

			// The default guess must lie inside the bounds and evaluate.
			p := model.Initial()
			for i := range p {
				if p[i] < lo[i] || p[i] > hi[i] {
					t.Errorf("initial value %d = %v outside [%v, %v]", i, p[i], lo[i], hi[i])
				}
			}
			if _, _, _, err := model.Evaluate(p, []float64{0, 1, 2}, false); err != nil {
				t.Errorf("default guess does not evaluate: %v", err)
			}
		})
	}
}

func TestEvaluateTriangularityDomain(t *testing.T) {
	theta := Linspace(0, 2*math.Pi, 16)
	_, _, _, err := Miller{}.Evaluate([]float64{1, 0, 0.3, 1, 1.5}, theta, false)
	var gde *GeometryDomainError
	require.ErrorAs(t, err, &gde)
	require.Equal(t, "delta", gde.Param)
	require.Equal(t, 1.5, gde.Value)
}

// shapedParams returns, for each model, a non-trivially shaped parameter
// vector (elongated, triangular, with harmonic content where available).
func shapedParams(model ShapeModel) []float64 {
	switch m := model.(type) {
	case Miller:
		return []float64{1.7, 0.02, 0.5, 1.4, 0.3}
	case Turnbull:
		return []float64{1.7, 0.02, 0.5, 1.4, 0.3, 0.05}
	case TurnbullTilt:
		return []float64{1.7, 0.02, 0.5, 1.4, 0.3, 0.05, 0.1}
	case MillerGeneral:
		p := make([]float64, m.NumParams())
		p[0], p[1] = 3.4, 0.04
		p[2], p[5] = 0.5, 0.7 // leading harmonic
		if m.Harmonics >= 2 {
			p[6], p[9] = 0.05, 0.03
		}
		return p
	case MXH:
		p := make([]float64, m.NumParams())
		p[0], p[1], p[2], p[3], p[4] = 1.7, 0.02, 0.5, 1.4, 0.05
		p[5], p[6] = 0.1, -0.05
		if m.Harmonics >= 2 {
			p[7], p[8] = 0.02, 0.01
		}
		return p
	default:
		panic("unknown model")
	}
}

// The reference angle must be 2π-periodic in θ and wrap at most once over
// one traversal, for every model, on shaped parameters.
func TestThetaRefPeriodicAndMonotonic(t *testing.T) {
	theta := Linspace(0, 2*math.Pi, 181)[:180]
	shifted := make([]float64, len(theta))
	for i, th := range theta {
		shifted[i] = th + 2*math.Pi
	}

	for _, model := range allModels() {
		t.Run(model.Name(), func(t *testing.T) {
			p := shapedParams(model)
			_, _, ref, err := model.Evaluate(p, theta, false)
			if err != nil {
				t.Fatal(err)
			}
			_, _, refShifted, err := model.Evaluate(p, shifted, false)
			if err != nil {
				t.Fatal(err)
			}
			for i := range ref {
				d := math.Abs(ref[i] - refShifted[i])
				d = math.Min(d, 2*math.Pi-d) // compare modulo 2π
				if d > 1e-9 {
					t.Fatalf("reference angle not periodic at θ = %v: %v vs %v", theta[i], ref[i], refShifted[i])
				}
			}

			wraps := 0
			for i := 1; i < len(ref); i++ {
				if ref[i] < ref[i-1] {
					wraps++
				}
			}
			if wraps > 1 {
				t.Errorf("reference angle wrapped %d times over one traversal", wraps)
			}
		})
	}
}

func TestTurnbullThetaRefWrapsOnce(t *testing.T) {
	s := TurnbullShape{R0: 1.7, Z0: 0.02, R: 0.5, Kappa: 1.4, Delta: 0.3, Zeta: 0.05}
	theta := Linspace(0, 2*math.Pi, 721)[:720]
	_, _, thetaRef, err := Turnbull{}.Evaluate(s.Vector(), theta, false)
	if err != nil {
		t.Fatal(err)
	}
	wraps := 0
	for i := 1; i < len(thetaRef); i++ {
		if thetaRef[i] < thetaRef[i-1] {
			wraps++
		}
	}
	if wraps > 1 {
		t.Errorf("reference angle wrapped %d times over one traversal", wraps)
	}
}

func TestTiltRotatesOutboardPoint(t *testing.T) {
	base := []float64{1.7, 0, 0.5, 1.4, 0, 0, 0}
	tilted := []float64{1.7, 0, 0.5, 1.4, 0, 0, 0.2}
	theta := []float64{0.0}
	r0, _, _, err := TurnbullTilt{}.Evaluate(base, theta, false)
	if err != nil {
		t.Fatal(err)
	}
	r1, _, _, err := TurnbullTilt{}.Evaluate(tilted, theta, false)
	if err != nil {
		t.Fatal(err)
	}
	want := 1.7 + 0.5*math.Cos(0.2)
	if math.Abs(r1[0]-want) > 1e-15 {
		t.Errorf("got tilted R = %v, expected %v", r1[0], want)
	}
	if r1[0] >= r0[0] {
		t.Errorf("tilt did not move the outboard point inward: %v >= %v", r1[0], r0[0])
	}
}

func TestShapeRecordRoundTrips(t *testing.T) {
	mv := []float64{1.7, 0.02, 0.5, 1.4, 0.3}
	diff(t, mv, MillerShapeFromVector(mv).Vector())

	tv := []float64{1.7, 0.02, 0.5, 1.4, 0.3, 0.05}
	diff(t, tv, TurnbullShapeFromVector(tv).Vector())

	ms := []float64{-0.1, 0, 0.5, 0.2}
	diff(t, ms, MillerShearFromVector(ms).Vector())

	ts := []float64{-0.1, 0, 0.5, 0.2, 0.05}
	diff(t, ts, TurnbullShearFromVector(ts).Vector())
}

func TestEvaluateDomainErrorOutsideFitLoop(t *testing.T) {
	_, _, _, err := Turnbull{}.Evaluate([]float64{1, 0, 0.3, 1, -1.2, 0}, []float64{0}, false)
	var gde *GeometryDomainError
	if !errors.As(err, &gde) {
		t.Fatalf("got %v, expected a GeometryDomainError", err)
	}
	if !math.IsNaN(gde.X) {
		t.Errorf("got X = %v, expected NaN outside the fit loop", gde.X)
	}
}

package fluxfit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevenbergMarquardtLinear(t *testing.T) {
	// Overdetermined linear system with exact solution (1, 2).
	f := func(x []float64) ([]float64, error) {
		return []float64{x[0] - 1, x[1] - 2, x[0] + x[1] - 3}, nil
	}
	lo, hi := infBounds(2)
	sol, err := LevenbergMarquardt{}.Solve(f, []float64{10, -10}, lo, hi)
	require.NoError(t, err)
	require.True(t, sol.Converged)
	require.InDelta(t, 1.0, sol.X[0], 1e-7)
	require.InDelta(t, 2.0, sol.X[1], 1e-7)
	require.Less(t, sol.Cost, 1e-12)
}

func TestLevenbergMarquardtConvergesAtOptimum(t *testing.T) {
	// Seeded on an exact zero of the residual, no trial can improve; that
	// is convergence, not failure.
	f := func(x []float64) ([]float64, error) {
		return []float64{x[0] - 1, x[1] - 2}, nil
	}
	lo, hi := infBounds(2)
	sol, err := (LevenbergMarquardt{}).Solve(f, []float64{1, 2}, lo, hi)
	require.NoError(t, err)
	require.True(t, sol.Converged)
	require.Equal(t, 0.0, sol.Cost)
}

func TestLevenbergMarquardtRespectsBounds(t *testing.T) {
	// Unconstrained optimum at x = 2; the box caps it at 1.
	f := func(x []float64) ([]float64, error) {
		return []float64{x[0] - 2}, nil
	}
	sol, err := LevenbergMarquardt{}.Solve(f, []float64{0}, []float64{math.Inf(-1)}, []float64{1})
	require.NoError(t, err)
	require.InDelta(t, 1.0, sol.X[0], 1e-12)
	require.LessOrEqual(t, sol.X[0], 1.0)
}

func TestLevenbergMarquardtClampsInitial(t *testing.T) {
	f := func(x []float64) ([]float64, error) {
		return []float64{x[0] - 0.5}, nil
	}
	sol, err := LevenbergMarquardt{}.Solve(f, []float64{-100}, []float64{0}, []float64{1})
	require.NoError(t, err)
	require.InDelta(t, 0.5, sol.X[0], 1e-9)
}

func TestLevenbergMarquardtInitialError(t *testing.T) {
	wantErr := &GeometryDomainError{Param: "delta", Value: 2, X: math.NaN()}
	f := func(x []float64) ([]float64, error) {
		return nil, wantErr
	}
	lo, hi := infBounds(1)
	_, err := LevenbergMarquardt{}.Solve(f, []float64{0}, lo, hi)
	var gde *GeometryDomainError
	require.ErrorAs(t, err, &gde)
}

func TestLevenbergMarquardtInfeasibleTrials(t *testing.T) {
	// The residual refuses half the line; the solver must still walk to
	// the constrained optimum from the feasible side.
	f := func(x []float64) ([]float64, error) {
		if x[0] > 1.5 {
			return nil, errors.New("infeasible")
		}
		return []float64{x[0] - 2}, nil
	}
	lo, hi := infBounds(1)
	sol, err := LevenbergMarquardt{}.Solve(f, []float64{0}, lo, hi)
	require.NoError(t, err)
	require.LessOrEqual(t, sol.X[0], 1.5)
	require.Greater(t, sol.X[0], 0.9)
}

func TestLevenbergMarquardtNonConvergence(t *testing.T) {
	// One iteration cannot reach the optimum of a quartic valley from far
	// away; the best iterate must still come back, without an error.
	f := func(x []float64) ([]float64, error) {
		v := x[0] - 3
		return []float64{v * v}, nil
	}
	lo, hi := infBounds(1)
	sol, err := LevenbergMarquardt{MaxIterations: 1}.Solve(f, []float64{100}, lo, hi)
	require.NoError(t, err)
	require.Less(t, sol.Cost, softL1Cost([]float64{97 * 97}))
}

func TestGonumSolverQuadratic(t *testing.T) {
	f := func(x []float64) ([]float64, error) {
		return []float64{x[0] - 1, x[1] + 2}, nil
	}
	lo, hi := infBounds(2)
	sol, err := GonumSolver{}.Solve(f, []float64{0, 0}, lo, hi)
	require.NoError(t, err)
	require.InDelta(t, 1.0, sol.X[0], 1e-3)
	require.InDelta(t, -2.0, sol.X[1], 1e-3)
}

func TestGonumSolverRespectsBounds(t *testing.T) {
	f := func(x []float64) ([]float64, error) {
		return []float64{x[0] - 2}, nil
	}
	sol, err := GonumSolver{}.Solve(f, []float64{0}, []float64{-1}, []float64{1})
	require.NoError(t, err)
	require.LessOrEqual(t, sol.X[0], 1.0)
	require.GreaterOrEqual(t, sol.X[0], -1.0)
	require.InDelta(t, 1.0, sol.X[0], 1e-3)
}

func TestSoftL1(t *testing.T) {
	if got := softL1Cost([]float64{0, 0, 0}); got != 0 {
		t.Errorf("got cost %v at zero residual, expected 0", got)
	}
	// For small residuals the robust cost approaches the half-squared sum.
	f := []float64{1e-4, -2e-4}
	want := 0.5 * (1e-8 + 4e-8)
	if got := softL1Cost(f); math.Abs(got-want) > 1e-12 {
		t.Errorf("got cost %v, expected about %v", got, want)
	}

	w := make([]float64, 2)
	softL1Weights([]float64{0, 3}, w)
	if w[0] != 1 {
		t.Errorf("got weight %v at zero residual, expected 1", w[0])
	}
	if want := math.Pow(10, -0.25); math.Abs(w[1]-want) > 1e-12 {
		t.Errorf("got weight %v, expected %v", w[1], want)
	}
}

func BenchmarkLevenbergMarquardtTurnbull(b *testing.B) {
	s := TurnbullShape{R0: 1.7, Z0: 0.02, R: 0.5, Kappa: 1.4, Delta: 0.3, Zeta: 0.05}
	theta := closeCurve(Linspace(0, 2*math.Pi, 360))
	rRef, zRef, _, err := Turnbull{}.Evaluate(s.Vector(), theta, true)
	if err != nil {
		b.Fatal(err)
	}
	f := func(p []float64) ([]float64, error) {
		r, z, _, err := Turnbull{}.Evaluate(p, theta, true)
		if err != nil {
			return nil, err
		}
		res := make([]float64, 2*len(theta))
		for i := range theta {
			res[i] = r[i] - rRef[i]
			res[len(theta)+i] = z[i] - zRef[i]
		}
		return res, nil
	}
	lo, hi := Turnbull{}.Bounds()
	seed := []float64{1.5, 0, 0.4, 1.2, 0.1, 0}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := (LevenbergMarquardt{}).Solve(f, seed, lo, hi); err != nil {
			b.Fatal(err)
		}
	}
}

package fluxfit

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MachineTolerance is the default convergence tolerance on function,
// parameter and gradient change: effectively "run until the arithmetic
// stalls".
const MachineTolerance = 2.23e-16

// ResidualFunc evaluates a residual vector at x. Returning an error marks x
// as infeasible (for example a geometry domain violation at a trial point);
// solvers treat that as an arbitrarily bad trial rather than aborting. An
// error at the initial point is returned to the caller.
type ResidualFunc func(x []float64) ([]float64, error)

// Solution is the outcome of a bounded least-squares solve.
//
// Converged reports whether a stopping tolerance was met. When false, X is
// still the best iterate found and Cost its achieved robust cost; callers
// decide whether that is acceptable.
type Solution struct {
	X          []float64
	Cost       float64
	Converged  bool
	Iterations int
}

// LeastSquaresSolver is the pluggable optimization capability: given a
// residual function, an initial vector and box bounds, return a locally
// optimal vector minimizing a robust loss. Implementations must respect the
// bounds by construction and must not fail on non-convergence.
type LeastSquaresSolver interface {
	Solve(f ResidualFunc, x0, lo, hi []float64) (Solution, error)
}

// softL1Cost is the robust cost 0.5·Σρ(f_i²) with the soft-L1 loss
// ρ(z) = 2(√(1+z) − 1).
func softL1Cost(f []float64) float64 {
	cost := 0.0
	for _, v := range f {
		cost += math.Sqrt(1+v*v) - 1
	}
	return cost
}

// softL1Weights fills w with the IRLS row weights √(ρ'(f_i²)) = (1+f_i²)^(-¼)
// that locally turn the robust problem into a weighted L2 one.
func softL1Weights(f, w []float64) {
	for i, v := range f {
		w[i] = math.Pow(1+v*v, -0.25)
	}
}

func clampVec(x, lo, hi []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = min(max(x[i], lo[i]), hi[i])
	}
	return out
}

// LevenbergMarquardt is the default bounded nonlinear least-squares solver:
// damped normal-equation steps on the soft-L1-reweighted residual, with
// trial points projected into the box bounds. Non-convergence is not an
// error; the best iterate is returned with Converged unset.
type LevenbergMarquardt struct {
	// FTol, XTol and GTol are the relative tolerances on cost change, step
	// size and gradient norm. Zero values default to [MachineTolerance].
	FTol, XTol, GTol float64
	// MaxIterations bounds the outer iterations; zero defaults to 200.
	MaxIterations int
}

var _ LeastSquaresSolver = LevenbergMarquardt{}

// Solve implements LeastSquaresSolver.
func (lm LevenbergMarquardt) Solve(f ResidualFunc, x0, lo, hi []float64) (Solution, error) {
	ftol, xtol, gtol := lm.FTol, lm.XTol, lm.GTol
	if ftol == 0 {
		ftol = MachineTolerance
	}
	if xtol == 0 {
		xtol = MachineTolerance
	}
	if gtol == 0 {
		gtol = MachineTolerance
	}
	maxIter := lm.MaxIterations
	if maxIter == 0 {
		maxIter = 200
	}

	n := len(x0)
	x := clampVec(x0, lo, hi)
	res, err := f(x)
	if err != nil {
		return Solution{}, err
	}
	m := len(res)
	cost := softL1Cost(res)

	w := make([]float64, m)
	fw := make([]float64, m)
	jac := mat.NewDense(m, n, nil)
	grad := mat.NewVecDense(n, nil)
	a := mat.NewSymDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	step := mat.NewVecDense(n, nil)

	lambda := 1e-3
	sol := Solution{X: append([]float64(nil), x...), Cost: cost}
	for iter := 0; iter < maxIter; iter++ {
		sol.Iterations = iter + 1

		softL1Weights(res, w)
		for i := range fw {
			fw[i] = w[i] * res[i]
		}
		if err := numericJacobian(f, x, res, w, lo, hi, jac); err != nil {
			// The current iterate is feasible but its neighborhood is
			// not; report the best point found so far.
			return sol, nil
		}

		// grad = Jᵀ·fw, a = Jᵀ·J on the weighted residual.
		grad.MulVec(jac.T(), mat.NewVecDense(m, fw))
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				s := 0.0
				for k := 0; k < m; k++ {
					s += jac.At(k, i) * jac.At(k, j)
				}
				a.SetSym(i, j, s)
			}
		}
		if mat.Norm(grad, math.Inf(1)) <= gtol {
			sol.Converged = true
			return sol, nil
		}

		accepted := false
		for try := 0; try < 24; try++ {
			// Marquardt scaling: damp along the diagonal of JᵀJ so the
			// step shortens in stiff directions first.
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					v := a.At(i, j)
					if i == j {
						d := a.At(i, i)
						if d == 0 {
							d = 1
						}
						v += lambda * d
					}
					damped.SetSym(i, j, v)
				}
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				continue
			}

			trial := make([]float64, n)
			for i := range trial {
				trial[i] = x[i] - step.AtVec(i)
			}
			trial = clampVec(trial, lo, hi)

			trialRes, err := f(trial)
			if err != nil {
				lambda *= 10
				continue
			}
			trialCost := softL1Cost(trialRes)
			if trialCost < cost {
				dCost := cost - trialCost
				dx := 0.0
				xNorm := 0.0
				for i := range x {
					dx = max(dx, math.Abs(trial[i]-x[i]))
					xNorm = max(xNorm, math.Abs(x[i]))
				}
				x = trial
				res = trialRes
				cost = trialCost
				sol.X = append([]float64(nil), x...)
				sol.Cost = cost
				lambda = max(lambda*0.3, 1e-14)
				accepted = true
				if dCost <= ftol*max(cost, ftol) || dx <= xtol*(xtol+xNorm) {
					sol.Converged = true
					return sol, nil
				}
				break
			}
			lambda *= 4
			if lambda > 1e16 {
				// Stalled: no direction improves the cost beyond
				// rounding. Treat as converged to the solver's own
				// stopping criterion.
				sol.Converged = true
				return sol, nil
			}
		}
		if !accepted {
			// No damping level produced an improving feasible trial: the
			// iterate is at the solver's resolution limit, the same stall
			// condition as the λ overflow above.
			sol.Converged = true
			return sol, nil
		}
	}
	return sol, nil
}

// numericJacobian fills jac with the forward-difference Jacobian of the
// weighted residual w·f about x, flipping to backward differences at the
// box bounds or where the forward point is infeasible.
func numericJacobian(f ResidualFunc, x, res, w, lo, hi []float64, jac *mat.Dense) error {
	const sqrtEps = 1.4901161193847656e-08
	n := len(x)
	xp := make([]float64, n)
	for j := 0; j < n; j++ {
		h := sqrtEps * max(1, math.Abs(x[j]))
		copy(xp, x)

		sign := 1.0
		if x[j]+h > hi[j] {
			sign = -1
		}
		xp[j] = x[j] + sign*h
		if xp[j] < lo[j] {
			xp[j] = x[j]
		}
		pres, err := f(xp)
		if err != nil {
			sign = -sign
			xp[j] = min(max(x[j]+sign*h, lo[j]), hi[j])
			pres, err = f(xp)
			if err != nil {
				return err
			}
		}
		dh := xp[j] - x[j]
		if dh == 0 {
			for i := range res {
				jac.Set(i, j, 0)
			}
			continue
		}
		for i := range res {
			jac.Set(i, j, w[i]*(pres[i]-res[i])/dh)
		}
	}
	return nil
}

// GonumSolver adapts the gonum optimizers to the bounded least-squares
// capability by minimizing the scalar robust loss directly. Bounds are
// enforced by projection with a quadratic penalty on the violation, which
// suits the derivative-free methods; it exists as a cross-check on the
// default [LevenbergMarquardt] and for cost surfaces where normal-equation
// steps misbehave.
type GonumSolver struct {
	// Method is the gonum optimization method; nil defaults to
	// Nelder-Mead, which needs no gradient.
	Method optimize.Method
}

var _ LeastSquaresSolver = GonumSolver{}

// Solve implements LeastSquaresSolver.
func (gs GonumSolver) Solve(f ResidualFunc, x0, lo, hi []float64) (Solution, error) {
	x := clampVec(x0, lo, hi)
	if _, err := f(x); err != nil {
		return Solution{}, err
	}

	const boundPenalty = 1e9
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			pc := clampVec(p, lo, hi)
			pen := 0.0
			for i := range p {
				d := p[i] - pc[i]
				pen += d * d
			}
			res, err := f(pc)
			if err != nil {
				return math.Inf(1)
			}
			return softL1Cost(res) + boundPenalty*pen
		},
	}

	method := gs.Method
	if method == nil {
		method = &optimize.NelderMead{}
	}
	result, err := optimize.Minimize(problem, x, nil, method)
	if result == nil {
		return Solution{}, err
	}
	xOut := clampVec(result.X, lo, hi)
	res, rerr := f(xOut)
	if rerr != nil {
		return Solution{}, rerr
	}
	return Solution{
		X:          xOut,
		Cost:       softL1Cost(res),
		Converged:  err == nil,
		Iterations: result.Stats.MajorIterations,
	}, nil
}

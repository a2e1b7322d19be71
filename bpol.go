package fluxfit

import (
	"math"

	"go.uber.org/zap"
)

// deriveFields runs the post-sweep stages at the target location: radial
// shears, toroidal field, poloidal field reconstruction, the analytic
// cross-check and the optional secondary field fit. Stages whose inputs
// are missing (too few grid points, no flux function, no measured field)
// are skipped, not failed.
func deriveFields(eq Equilibrium, cfg FitConfig, a *Analysis, geos []*AnalyticGeometry, target int, theta []float64) error {
	if len(a.Results) >= 3 {
		shears, dxdr, err := ShearProfiles(cfg.Model, a.Profiles, a.XGrid, a.RProfile)
		if err != nil {
			return err
		}
		a.Shears = shears
		a.DxDr = dxdr
		dPsiDx, err := Gradient(a.PsiProfile, a.XGrid)
		if err != nil {
			return err
		}
		a.DPsiDr = dxdr[target] * dPsiDx[target]

		labels := cfg.Model.BpolLabels()
		a.ShapeBpol = make([]float64, len(labels))
		for j, label := range labels {
			a.ShapeBpol[j] = shears[label][target]
		}
	} else {
		cfg.Logger.Warn("fewer than three grid points; skipping radial shears and field reconstruction",
			zap.Int("grid_points", len(a.Results)))
	}

	res := a.Results[target]
	c := eq.Surfaces[target].Contour
	n := len(theta)

	if eq.FluxFunction != nil {
		fpol := eq.FluxFunction(c.Psi)
		a.BtParam = make([]float64, n)
		a.BtRef = make([]float64, n)
		for k := 0; k < n; k++ {
			a.BtParam[k] = fpol / res.RParam[k]
			a.BtRef[k] = fpol / res.RRef[k]
		}
	}

	if a.ShapeBpol != nil && isMillerFamily(cfg.Model) {
		bp, err := cfg.Model.Bpol(a.ShapeBpol, a.Shape, theta, res.RParam[:n], a.DPsiDr, cfg.Model.PreferredBpolMethod())
		if err != nil {
			return err
		}
		a.BpParam = bp
		if bpOf, err := c.bpolResampler(); err == nil {
			a.BpRef = bpOf.predictAll(res.ThetaRef[:n])
		}
	}

	if cfg.IncludeAnalytic {
		ar, err := analyticCrossCheck(eq, a, geos, target, theta)
		if err != nil {
			return err
		}
		a.Analytic = ar
	}

	if cfg.OptimizeBpol {
		if err := optimizeBpolFit(eq, cfg, a, target, theta); err != nil {
			return err
		}
	}
	return nil
}

// analyticCrossCheck reconstructs the target surface and its fields from
// the closed-form extracted geometry alone, in the Turnbull form, as an
// independent check on the fitted values.
func analyticCrossCheck(eq Equilibrium, a *Analysis, geos []*AnalyticGeometry, target int, theta []float64) (*AnalyticResult, error) {
	g := geos[target]
	c := eq.Surfaces[target].Contour
	tb := Turnbull{}
	shape := g.turnbullShape(c).Vector()
	ar := &AnalyticResult{Geometry: *g, Shape: shape}

	closed := closeCurve(theta)
	rA, zA, thetaRef, err := tb.Evaluate(shape, closed, false)
	if err != nil {
		return nil, err
	}
	ar.R, ar.Z, ar.ThetaRef = rA, zA, thetaRef
	n := len(theta)

	if eq.FluxFunction != nil {
		rOf, _, err := c.resampler()
		if err != nil {
			return nil, err
		}
		fpol := eq.FluxFunction(c.Psi)
		ar.Bt = make([]float64, n)
		ar.BtRef = make([]float64, n)
		for k := 0; k < n; k++ {
			ar.Bt[k] = fpol / rA[k]
			ar.BtRef[k] = fpol / rOf.Predict(thetaRef[k])
		}
	}

	if len(eq.Surfaces) < 3 {
		return ar, nil
	}

	// Shear profiles of the extracted geometry across the grid, on the
	// traced minor radii.
	m := len(eq.Surfaces)
	profiles := map[string][]float64{
		"R0": make([]float64, m), "Z0": make([]float64, m), "r": make([]float64, m),
		"kappa": make([]float64, m), "delta": make([]float64, m), "zeta": make([]float64, m),
	}
	for i, s := range eq.Surfaces {
		profiles["R0"][i] = s.Contour.R0
		profiles["Z0"][i] = s.Contour.Z0
		profiles["r"][i] = s.Contour.MinorRadius
		profiles["kappa"][i] = geos[i].Kappa
		profiles["delta"][i] = geos[i].Delta
		profiles["zeta"][i] = geos[i].Zeta
	}
	shears, _, err := ShearProfiles(tb, profiles, a.XGrid, profiles["r"])
	if err != nil {
		return nil, err
	}
	labels := tb.BpolLabels()
	ar.ShapeBpol = make([]float64, len(labels))
	for j, label := range labels {
		ar.ShapeBpol[j] = shears[label][target]
	}

	bp, err := tb.Bpol(ar.ShapeBpol, shape, theta, rA[:n], a.DPsiDr, tb.PreferredBpolMethod())
	if err != nil {
		return nil, err
	}
	ar.Bp = bp
	if bpOf, err := c.bpolResampler(); err == nil {
		ar.BpRef = bpOf.predictAll(thetaRef[:n])
	}
	return ar, nil
}

// optimizeBpolFit refines the shear parameters at the target location
// against the measured poloidal field, seeded from the finite-difference
// shears. The refined values are exported under "<label>_opt" keys; the
// finite-difference ShapeBpol is left untouched.
func optimizeBpolFit(eq Equilibrium, cfg FitConfig, a *Analysis, target int, theta []float64) error {
	if a.ShapeBpol == nil {
		cfg.Logger.Warn("poloidal-field optimization skipped: no shear parameters available")
		return nil
	}
	c := eq.Surfaces[target].Contour
	bpOf, err := c.bpolResampler()
	if err != nil {
		cfg.Logger.Warn("poloidal-field optimization skipped: contour carries no field samples",
			zap.Error(err))
		return nil
	}

	res := a.Results[target]
	n := len(theta)
	bpRef := bpOf.predictAll(res.ThetaRef[:n])
	nTheta := float64(cfg.NTheta)
	method := cfg.Model.PreferredBpolMethod()

	residual := func(p []float64) ([]float64, error) {
		bp, err := cfg.Model.Bpol(p, a.Shape, theta, res.RParam[:n], a.DPsiDr, method)
		if err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for k := range out {
			out[k] = nTheta * math.Abs(bp[k]-bpRef[k])
		}
		return out, nil
	}

	seed := append([]float64(nil), a.ShapeBpol...)
	lo, hi := infBounds(len(seed))
	sol, err := cfg.Solver.Solve(residual, seed, lo, hi)
	if err != nil {
		return err
	}

	labels := cfg.Model.BpolLabels()
	a.BpolOpt = make(map[string]float64, len(labels))
	for j, label := range labels {
		a.BpolOpt[label+"_opt"] = sol.X[j]
	}
	cfg.Logger.Debug("poloidal-field optimization",
		zap.Float64("cost", sol.Cost),
		zap.Bool("converged", sol.Converged),
		zap.Int("iterations", sol.Iterations))
	return nil
}

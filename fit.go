package fluxfit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CostMode selects the residual construction of the shape fit.
type CostMode int

const (
	// CostL1L2 concatenates the L2 point distance between the fitted and
	// reference curves with the elementwise L1 mismatch, both scaled by
	// the θ resolution. The default.
	CostL1L2 CostMode = iota
	// CostBt4 weights the L2/L1 residual by the fourth power of the
	// reference toroidal field, emphasizing the high-field (inboard)
	// side. Requires the ψ→F(ψ) flux function.
	CostBt4
	// CostL1Bt concatenates the L1 point distance with a toroidal-field-
	// squared-weighted field mismatch. Requires the flux function.
	CostL1Bt
)

func (c CostMode) String() string {
	switch c {
	case CostL1L2:
		return "l1l2"
	case CostBt4:
		return "Bt4"
	case CostL1Bt:
		return "l1Bt"
	default:
		return fmt.Sprintf("CostMode(%d)", int(c))
	}
}

// Surface couples one traced flux-surface contour with its radial
// coordinate value.
type Surface struct {
	X       float64
	Contour Contour
}

// Equilibrium is the read-only input contract with the equilibrium
// provider: one contour per radial location, ordered by strictly
// increasing radial coordinate, plus the flux-function mapping ψ→F(ψ).
// FluxFunction may be nil, which disables the Bt-weighted cost modes and
// the toroidal-field outputs.
type Equilibrium struct {
	Surfaces     []Surface
	FluxFunction func(psi float64) float64
}

func (eq Equilibrium) xGrid() []float64 {
	xs := make([]float64, len(eq.Surfaces))
	for i, s := range eq.Surfaces {
		xs[i] = s.X
	}
	return xs
}

// FitConfig is the recognized configuration surface of [Fit].
type FitConfig struct {
	// Model selects the parametrization. Required.
	Model ShapeModel
	// XLoc is the target radial location. It must appear verbatim in the
	// equilibrium's radial grid.
	XLoc float64
	// XLabel names the radial coordinate convention; defaults to
	// "rho_tor". Informational.
	XLabel string
	// LRef names the reference length convention carried through to
	// consumers: "a" (minor radius, default) or "R" (major radius).
	LRef string
	// Cost selects the residual construction.
	Cost CostMode
	// NTheta is the angular resolution of the fit grid; defaults to 7200.
	NTheta int
	// IncludeAnalytic additionally computes the closed-form analytic
	// geometry cross-check at the target location.
	IncludeAnalytic bool
	// OptimizeBpol runs the secondary shear-parameter fit against the
	// measured poloidal field at the target location, when field samples
	// are available.
	OptimizeBpol bool
	// Solver is the bounded least-squares implementation; defaults to
	// [LevenbergMarquardt] with machine-precision tolerances.
	Solver LeastSquaresSolver
	// Logger receives progress and diagnostics; nil disables logging.
	Logger *zap.Logger
	// Verbosity raises per-surface solver diagnostics when > 0.
	Verbosity int
	// Parallel, when > 0, fits up to that many surfaces concurrently.
	// Parallel fitting forgoes continuation: every surface is seeded from
	// the analytic extractor or the model defaults instead of its
	// neighbour's fit, trading robustness on hard cost landscapes for
	// speed. It is never enabled implicitly.
	Parallel int
}

func (cfg FitConfig) withDefaults() (FitConfig, error) {
	if cfg.Model == nil {
		return cfg, errors.New("fluxfit: FitConfig.Model is required")
	}
	if cfg.XLabel == "" {
		cfg.XLabel = "rho_tor"
	}
	if cfg.LRef == "" {
		cfg.LRef = "a"
	}
	if cfg.NTheta == 0 {
		cfg.NTheta = 7200
	}
	if cfg.NTheta < 4 {
		return cfg, fmt.Errorf("fluxfit: NTheta = %d too small", cfg.NTheta)
	}
	if cfg.Solver == nil {
		cfg.Solver = LevenbergMarquardt{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Parallel < 0 {
		cfg.Parallel = 0
	}
	return cfg, nil
}

// TargetGrid builds the conventional radial fit grid: n points spanning
// ±0.5 % of the target location around it, clipped to [0, 1], with the
// target itself included exactly once.
func TargetGrid(xLoc float64, n int) []float64 {
	if n <= 1 {
		return []float64{xLoc}
	}
	half := max(n/2, 2)
	lower := Linspace(xLoc-xLoc*0.005, xLoc, half)
	upper := Linspace(xLoc, xLoc+xLoc*0.005, half)
	out := make([]float64, 0, 2*half-1)
	for _, x := range lower[:len(lower)-1] {
		if x >= 0 && x <= 1 {
			out = append(out, x)
		}
	}
	for _, x := range upper {
		if x >= 0 && x <= 1 {
			out = append(out, x)
		}
	}
	return out
}

// FitResult is the fitted parametrization of one radial location. The
// curve arrays are evaluated on the closed θ grid (the first sample
// repeated at the end); Theta itself is the open fit grid.
type FitResult struct {
	X      float64
	Params []float64

	Theta          []float64
	RParam, ZParam []float64
	ThetaRef       []float64
	RRef, ZRef     []float64

	Cost       float64
	Converged  bool
	Iterations int
}

// AnalyticResult is the closed-form cross-check at the target location:
// the extractor's Turnbull-form shape, its finite-difference shears, and
// the reconstructed curves and fields. Field slices are nil when their
// inputs (flux function, measured Bpol) are unavailable.
type AnalyticResult struct {
	Geometry  AnalyticGeometry
	Shape     []float64
	ShapeBpol []float64

	R, Z, ThetaRef []float64
	Bt, BtRef      []float64
	Bp, BpRef      []float64
}

// Analysis is the accumulating output record of [Fit], keyed by radial
// location. Results is append-only during the sweep: a failure at one grid
// point never invalidates previously completed entries.
type Analysis struct {
	Model        ShapeModel
	XLabel, LRef string
	XLoc         float64
	XGrid        []float64

	Results []FitResult

	// Shape is the fitted parameter vector at XLoc, in label order.
	Shape []float64
	// Profiles maps each shape label to its fitted values across XGrid.
	Profiles map[string][]float64
	// RProfile is the geometric minor radius across XGrid (the fitted
	// value where the model carries an "r" label, the traced one
	// otherwise); PsiProfile is the flux label across XGrid.
	RProfile, PsiProfile []float64

	// DxDr, DPsiDr and Shears are the radial-derivative outputs,
	// populated only when the grid has at least three points.
	DxDr   []float64
	DPsiDr float64
	Shears map[string][]float64
	// ShapeBpol is the shear parameter vector at XLoc, in field label
	// order.
	ShapeBpol []float64

	// Target-location field reconstructions on the open θ grid; nil when
	// their inputs are unavailable.
	BtParam, BtRef []float64
	BpParam, BpRef []float64

	Analytic *AnalyticResult
	// BpolOpt holds the secondary-fit shear values keyed by
	// "<label>_opt"; nil unless OptimizeBpol ran.
	BpolOpt map[string]float64
}

// Result returns the fit at radial location x by exact-match lookup.
func (a *Analysis) Result(x float64) (FitResult, error) {
	for i, gx := range a.XGrid {
		if gx == x && i < len(a.Results) {
			return a.Results[i], nil
		}
	}
	return FitResult{}, &GridAlignmentError{Target: x, Grid: a.XGrid}
}

// fitContext is the per-grid-point state threaded through one surface fit:
// the contour, its resampling interpolants and the seed. Nothing is shared
// across grid points except the seed handed forward by continuation.
type fitContext struct {
	index   int
	x       float64
	contour Contour
	rOf     linearInterp
	zOf     linearInterp
	seed    []float64
}

// Fit drives the per-radius shape optimization across the equilibrium's
// radial grid and derives the shear and field quantities at cfg.XLoc.
//
// The sweep is sequential by default so that each grid point seeds the
// next (continuation); see [FitConfig.Parallel]. Solver non-convergence at
// a grid point is not an error — the best iterate is committed and a
// warning emitted when it happens repeatedly. Domain and data errors fail
// the affected grid point and abort the sweep, returning the analysis
// accumulated so far alongside the error.
func Fit(eq Equilibrium, cfg FitConfig) (*Analysis, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if len(eq.Surfaces) == 0 {
		return nil, &InsufficientDataError{Reason: "no flux surfaces"}
	}
	xs := eq.xGrid()
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return nil, ErrNonMonotonicGrid
		}
	}
	target := -1
	for i, x := range xs {
		if x == cfg.XLoc {
			if target >= 0 {
				return nil, &GridAlignmentError{Target: cfg.XLoc, Grid: xs}
			}
			target = i
		}
	}
	if target < 0 {
		return nil, &GridAlignmentError{Target: cfg.XLoc, Grid: xs}
	}
	if (cfg.Cost == CostBt4 || cfg.Cost == CostL1Bt) && eq.FluxFunction == nil {
		return nil, ErrMissingFluxFunction
	}
	for _, s := range eq.Surfaces {
		if err := s.Contour.Validate(); err != nil {
			return nil, fmt.Errorf("fluxfit: surface at x = %v: %w", s.X, err)
		}
	}

	// Fit θ grid: the widest window sampled by every surface.
	thetaMin, thetaMax := 0.0, 2*math.Pi
	for _, s := range eq.Surfaces {
		lo, hi := s.Contour.thetaSpan()
		thetaMin = max(thetaMin, lo)
		thetaMax = min(thetaMax, hi)
	}
	theta := Linspace(thetaMin, thetaMax, cfg.NTheta)
	closed := closeCurve(theta)

	analysis := &Analysis{
		Model:  cfg.Model,
		XLabel: cfg.XLabel,
		LRef:   cfg.LRef,
		XLoc:   cfg.XLoc,
		XGrid:  xs,
	}

	// Analytic extraction per surface: warm-start seeds, and later the
	// cross-check at the target. An extraction failure only disables the
	// warm start unless the cross-check was requested.
	geos := make([]*AnalyticGeometry, len(eq.Surfaces))
	for i, s := range eq.Surfaces {
		if g, gerr := ExtractAnalyticGeometry(s.Contour); gerr == nil {
			geos[i] = &g
		} else if cfg.IncludeAnalytic {
			return nil, fmt.Errorf("fluxfit: analytic extraction at x = %v: %w", s.X, gerr)
		}
	}

	seedFor := func(i int, prev []float64) []float64 {
		seed := append([]float64(nil), cfg.Model.Initial()...)
		if prev != nil {
			copy(seed, prev)
		}
		if geos[i] != nil {
			geos[i].warmStart(eq.Surfaces[i].Contour, cfg.Model.Labels(), seed)
		}
		return seed
	}

	cfg.Logger.Info("optimizing flux-surface parametrization fit",
		zap.String("model", cfg.Model.Name()),
		zap.String("cost", cfg.Cost.String()),
		zap.Int("surfaces", len(eq.Surfaces)))

	results := make([]FitResult, len(eq.Surfaces))
	start := time.Now()
	if cfg.Parallel > 0 {
		var g errgroup.Group
		g.SetLimit(cfg.Parallel)
		for i := range eq.Surfaces {
			i := i
			g.Go(func() error {
				r, err := fitSurface(eq, cfg, i, seedFor(i, nil), closed)
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return analysis, err
		}
		analysis.Results = results
	} else {
		var prev []float64
		for i := range eq.Surfaces {
			r, err := fitSurface(eq, cfg, i, seedFor(i, prev), closed)
			if err != nil {
				return analysis, err
			}
			results[i] = r
			analysis.Results = results[:i+1]
			prev = r.Params
		}
	}

	nonConverged := 0
	for _, r := range results {
		if !r.Converged {
			nonConverged++
		}
	}
	if nonConverged > 0 {
		cfg.Logger.Warn("shape fit did not converge at every grid point; best iterates committed",
			zap.Int("grid_points", len(results)),
			zap.Int("non_converged", nonConverged))
	}
	cfg.Logger.Info("shape fit complete",
		zap.Duration("mean_solve", time.Since(start)/time.Duration(len(results))))

	analysis.Shape = results[target].Params
	analysis.Profiles = shapeProfiles(cfg.Model, results)
	analysis.RProfile = minorRadiusProfile(cfg.Model, analysis.Profiles, eq.Surfaces)
	analysis.PsiProfile = make([]float64, len(eq.Surfaces))
	for i, s := range eq.Surfaces {
		analysis.PsiProfile[i] = s.Contour.Psi
	}

	if err := deriveFields(eq, cfg, analysis, geos, target, theta); err != nil {
		return analysis, err
	}
	return analysis, nil
}

// fitSurface optimizes the shape parameters of one grid point.
func fitSurface(eq Equilibrium, cfg FitConfig, i int, seed []float64, closed []float64) (FitResult, error) {
	s := eq.Surfaces[i]
	rOf, zOf, err := s.Contour.resampler()
	if err != nil {
		return FitResult{}, fmt.Errorf("fluxfit: surface at x = %v: %w", s.X, err)
	}
	ctx := fitContext{index: i, x: s.X, contour: s.Contour, rOf: rOf, zOf: zOf, seed: seed}

	residual := shapeResidual(eq, cfg, ctx, closed)
	lo, hi := cfg.Model.Bounds()
	start := time.Now()
	sol, err := cfg.Solver.Solve(residual, ctx.seed, lo, hi)
	if err != nil {
		var gde *GeometryDomainError
		if errors.As(err, &gde) {
			gde.X = ctx.x
		}
		return FitResult{}, err
	}
	if cfg.Verbosity > 0 {
		cfg.Logger.Debug("surface fit",
			zap.Int("index", ctx.index),
			zap.Float64("x", ctx.x),
			zap.Float64("cost", sol.Cost),
			zap.Bool("converged", sol.Converged),
			zap.Int("iterations", sol.Iterations),
			zap.Duration("elapsed", time.Since(start)))
	}

	rp, zp, thetaRef, err := cfg.Model.Evaluate(sol.X, closed, false)
	if err != nil {
		return FitResult{}, err
	}
	return FitResult{
		X:          ctx.x,
		Params:     sol.X,
		Theta:      closed[:len(closed)-1],
		RParam:     rp,
		ZParam:     zp,
		ThetaRef:   thetaRef,
		RRef:       ctx.rOf.predictAll(thetaRef),
		ZRef:       ctx.zOf.predictAll(thetaRef),
		Cost:       sol.Cost,
		Converged:  sol.Converged,
		Iterations: sol.Iterations,
	}, nil
}

// shapeResidual builds the residual vector of the selected cost mode for
// one grid point. The fitted and reference curves are compared center-
// subtracted; the reference curve is the contour resampled at the
// candidate's own reference angles.
func shapeResidual(eq Equilibrium, cfg FitConfig, ctx fitContext, closed []float64) ResidualFunc {
	nTheta := float64(cfg.NTheta)
	return func(p []float64) ([]float64, error) {
		rp, zp, thetaRef, err := cfg.Model.Evaluate(p, closed, true)
		if err != nil {
			return nil, err
		}
		r0, z0 := cfg.Model.Center(p)
		m := len(closed)

		dR := make([]float64, m)
		dZ := make([]float64, m)
		l2 := make([]float64, m)
		rRef := make([]float64, m)
		for k := 0; k < m; k++ {
			rRef[k] = ctx.rOf.Predict(thetaRef[k]) - r0
			zRef := ctx.zOf.Predict(thetaRef[k]) - z0
			dR[k] = rp[k] - rRef[k]
			dZ[k] = zp[k] - zRef
			l2[k] = math.Hypot(dR[k], dZ[k])
		}

		res := make([]float64, 3*m)
		switch cfg.Cost {
		case CostBt4:
			fpol := eq.FluxFunction(ctx.contour.Psi)
			for k := 0; k < m; k++ {
				btRef := fpol / (rRef[k] + r0)
				w := btRef * btRef * btRef * btRef
				res[k] = w * l2[k]
				res[m+k] = w * math.Abs(dR[k])
				res[2*m+k] = w * math.Abs(dZ[k])
			}
		case CostL1Bt:
			fpol := eq.FluxFunction(ctx.contour.Psi)
			for k := 0; k < m; k++ {
				btParam := fpol / (rp[k] + r0)
				btRef := fpol / (rRef[k] + r0)
				res[k] = nTheta * math.Abs(dR[k])
				res[m+k] = nTheta * math.Abs(dZ[k])
				res[2*m+k] = nTheta * btRef * btRef * math.Abs(btParam-btRef)
			}
		default: // CostL1L2
			for k := 0; k < m; k++ {
				res[k] = nTheta * l2[k]
				res[m+k] = nTheta * math.Abs(dR[k])
				res[2*m+k] = nTheta * math.Abs(dZ[k])
			}
		}
		return res, nil
	}
}

// shapeProfiles reshapes the per-point parameter vectors into per-label
// radial profiles.
func shapeProfiles(model ShapeModel, results []FitResult) map[string][]float64 {
	labels := model.Labels()
	profiles := make(map[string][]float64, len(labels))
	for j, label := range labels {
		vals := make([]float64, len(results))
		for i, r := range results {
			vals[i] = r.Params[j]
		}
		profiles[label] = vals
	}
	return profiles
}

// minorRadiusProfile prefers the fitted minor radius where the model
// carries one, falling back to the traced contours'.
func minorRadiusProfile(model ShapeModel, profiles map[string][]float64, surfaces []Surface) []float64 {
	if r, ok := profiles["r"]; ok {
		return r
	}
	out := make([]float64, len(surfaces))
	for i, s := range surfaces {
		out[i] = s.Contour.MinorRadius
	}
	return out
}

// isMillerFamily reports whether the model's field expression is trusted
// for reconstruction. The Fourier and MXH variants only carry a
// Miller-reduction approximation and are excluded.
func isMillerFamily(model ShapeModel) bool {
	switch model.(type) {
	case Miller, Turnbull, TurnbullTilt:
		return true
	default:
		return false
	}
}

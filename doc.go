// Package fluxfit fits low-parameter analytic shape models to traced magnetic
// flux-surface contours of a tokamak equilibrium and derives the radial
// shear quantities required by downstream plasma-physics codes.
//
// # Shape models
//
// A flux surface is approximated by a closed curve (R(θ), Z(θ)) drawn from a
// small family of parametrizations, each paired with an analytic poloidal
// magnetic field model:
//
//   - [Miller] — elongation κ and triangularity δ
//   - [Turnbull] — adds squareness ζ
//   - [TurnbullTilt] — adds a tilt angle τ
//   - [MillerGeneral] — a plain Fourier series in θ with a configurable
//     number of harmonics
//   - [MXH] — the Miller eXtended Harmonic parametrization
//
// All models implement [ShapeModel], a closed set: the interface carries the
// fixed parameter labels, bounds and initial guess alongside the evaluation
// and field functions, so label order, bound order and vector order can
// never drift apart.
//
// # Fitting
//
// [Fit] drives a bounded nonlinear least-squares fit of the selected model
// against one traced [Contour] per radial location, sweeping the radial grid
// sequentially so that each location is seeded from its neighbour
// (continuation). The optimizer is a pluggable [LeastSquaresSolver]; the
// default is a projected [LevenbergMarquardt] with a soft-L1 robust loss,
// and [GonumSolver] adapts the gonum optimizers as an alternative. Once all
// locations are fit, the radial profiles of the fitted parameters are
// differentiated with [Gradient] to obtain the shear parameters, and the
// paired field model reconstructs an analytic Bpol profile, optionally
// refined by a second optimization pass.
//
// [ExtractAnalyticGeometry] computes a closed-form, non-iterative estimate
// of the Turnbull-Miller parameters from a single contour. It is used to
// warm-start the fit and is available as an independent cross-check.
//
// # Literature
//
// The parametrizations and field models follow:
//   - [Noncircular, finite aspect ratio, local equilibrium model] by Miller et al.
//   - [Improved magnetohydrodynamic stability through optimization of higher order moments in cross-section shape of tokamaks] by Turnbull et al.
//   - [Rapidly-convergent flux-surface shape parameterization] by Arbon, Candy and Belli
//
// [Noncircular, finite aspect ratio, local equilibrium model]: https://doi.org/10.1063/1.872666
// [Improved magnetohydrodynamic stability through optimization of higher order moments in cross-section shape of tokamaks]: https://doi.org/10.1063/1.873380
// [Rapidly-convergent flux-surface shape parameterization]: https://doi.org/10.1088/1361-6587/abc63b
package fluxfit

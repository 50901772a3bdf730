// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package levmar implements the Levenberg-Marquardt algorithm for
// unconstrained nonlinear least squares.
//
// Given a model 𝒇 : ℝᵐ → ℝⁿ with n ≥ m and measurements 𝐱 ∈ ℝⁿ, it seeks the
// parameters 𝐩 minimizing ‖𝐱 − 𝒇(𝐩)‖². The Jacobian is either supplied by
// the caller or approximated by finite differences.
//
// # Reference:
//
//   - K. Madsen, H.B. Nielsen, O. Tingleff, Methods for Non-Linear Least Squares Problems, IMM DTU, 2004.
//   - M.I.A. Lourakis, levmar: Levenberg-Marquardt nonlinear least squares algorithms in C/C++.
package levmar

import (
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/levmar/numdiff"
	"gonum.org/v1/gonum/mat"
)

// Model evaluates the predicted measurements hx (an n-vector) for the parameters p (an m-vector).
// A non-nil error aborts the minimization with InvalidValues.
type Model func(p, hx []float64) error

// Jacobian evaluates the n×m Jacobian of the model at p in row-major order:
//
//	jac[i*m+j] = ∂hxᵢ/∂pⱼ
//
// A non-nil error aborts the minimization with InvalidValues.
type Jacobian func(p, jac []float64) error

// Termination specifies the stopping criteria beside the Options thresholds.
type Termination struct {
	// The iteration stop when the number of accepted steps reaches limit.
	MaxIterations int
	// The iteration stop when the number of model evaluations reaches limit (unlimited when 0).
	// A Jacobian approximation in progress is completed, so the limit may be exceeded by up to m.
	MaxEvaluations int
	// The iteration stop with SingularMatrix when the damped normal equations
	// stay singular after this many consecutive increases of μ (default 16).
	MaxSingular int
	// The iteration stop with NoReduction when this many consecutive accepted steps
	// reduce ‖e‖² by less than machine precision relative to ‖e‖² (default 3).
	StallSteps int
}

// Problem specifies the problem for Levenberg-Marquardt optimizer.
type Problem struct {
	M, N     int          // The parameter and measurement dimensions (M ≤ N)
	Model    Model        // Model function 𝒇(𝐩)
	Jacobian Jacobian     // Optional analytic Jacobian, finite differences when nil
	X        []float64    // Measurements, nil means the zero vector
	Options  Options      // Damping and convergence thresholds
	Stop     Termination  // Stop condition
	Solver   LinearSolver // Factorization for the normal equations
	Diff     numdiff.Method
	// Whether to estimate the covariance of the solution.
	Covar bool
}

// New creates a new Levenberg-Marquardt optimizer for given problem.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	m, n := p.M, p.N
	opts := p.Options.withDefaults()
	stop := p.Stop

	stop.MaxEvaluations = max(stop.MaxEvaluations, 0)
	if stop.MaxEvaluations == 0 {
		stop.MaxEvaluations = math.MaxInt
	}
	if stop.MaxSingular <= 0 {
		stop.MaxSingular = defaultMaxSingular
	}
	if stop.StallSteps <= 0 {
		stop.StallSteps = defaultStallSteps
	}

	switch {
	case m <= 0 || n <= 0:
		err = fmt.Errorf("%w: m=%d n=%d must be greater than 0", ErrDimension, m, n)
	case m > n:
		err = fmt.Errorf("%w: m=%d parameters exceed n=%d measurements", ErrDimension, m, n)
	case p.X != nil && len(p.X) != n:
		err = fmt.Errorf("%w: %d measurements, want %d", ErrDimension, len(p.X), n)
	case p.Model == nil:
		err = ErrModel
	case stop.MaxIterations <= 0:
		err = ErrIterations
	case p.Solver < Cholesky || p.Solver > SVD:
		err = fmt.Errorf("%w: unknown solver %v", ErrOptions, p.Solver)
	case p.Diff != numdiff.Forward && p.Diff != numdiff.Central:
		err = fmt.Errorf("%w: unknown difference method %d", ErrOptions, p.Diff)
	default:
		err = opts.validate()
	}

	if err != nil {
		return
	}

	x := make([]float64, n)
	if p.X != nil {
		copy(x, p.X)
	}

	optimizer = &Optimizer{
		lmSpec{
			m: m, n: n,
			x:        x,
			model:    p.Model,
			jacobian: p.Jacobian,
			opts:     opts,
			stop:     stop,
			solver:   p.Solver,
			diff:     p.Diff,
			covar:    p.Covar,
			logger:   newLogger(logger),
		},
	}
	return
}

type lmSpec struct {
	m, n     int
	x        []float64
	model    Model
	jacobian Jacobian
	opts     Options
	stop     Termination
	solver   LinearSolver
	diff     numdiff.Method
	covar    bool
	logger   Logger
}

// Optimizer implemented using the Levenberg-Marquardt algorithm.
type Optimizer struct {
	lmSpec
}

// Workspace contains the state and context of the optimization process.
// Given problem dimension m and n, total work space is approximately float64[2×mn + 2×m² + 5×n + 5×m].
type Workspace struct {
	m, n int
	lmCtx
}

// Info summarizes one minimization.
type Info struct {
	InitErr  float64 // ‖e‖² at the initial p
	FinalErr float64 // ‖e‖² at the estimated p
	GradNorm float64 // ‖Jᵀe‖∞ of the last Jacobian
	StepNorm float64 // ‖Δp‖² of the last solved step
	MuRatio  float64 // μ / 𝚖𝚊𝚡(diag(JᵀJ)) at termination
	NumIter  int     // Number of accepted iterations
	Status   Reason  // Termination reason
	NumEval  int     // Number of model evaluations, including finite differences
	NumJac   int     // Number of Jacobian evaluations or approximations
	NumFail  int     // Number of singular normal equations
	NumSolve int     // Number of normal equations solved
}

// Slice returns the info in the fixed layout
//
//	[‖e₀‖², ‖e‖², ‖Jᵀe‖∞, ‖Δp‖², μ/𝚖𝚊𝚡(JᵀJ), #iter, reason, #eval, #jac, #fail]
func (i Info) Slice() []float64 {
	s := make([]float64, InfoSize)
	i.fill(s)
	return s
}

func (i Info) fill(s []float64) {
	_ = s[InfoSize-1]
	s[0] = i.InitErr
	s[1] = i.FinalErr
	s[2] = i.GradNorm
	s[3] = i.StepNorm
	s[4] = i.MuRatio
	s[5] = float64(i.NumIter)
	s[6] = float64(i.Status)
	s[7] = float64(i.NumEval)
	s[8] = float64(i.NumJac)
	s[9] = float64(i.NumFail)
}

// Result contains the final result of the optimization process.
type Result struct {
	OK    bool          // Whether the optimization was converged.
	X     []float64     // Final parameters.
	Covar *mat.SymDense // Covariance of X when requested and estimable.
	Err   error         // Cause of an InvalidValues termination.
	Info                // Optimization summary.
}

// Init allocate the workspace for Levenberg-Marquardt optimizer.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.m, w.n = o.m, o.n
	w.init(&o.lmSpec)
	return w
}

// Fit runs the optimization process using the initial guess p and workspace w.
// The initial guess is not modified.
func (o *Optimizer) Fit(p []float64, w *Workspace) *Result {

	if len(p) != o.m {
		panic("initial p dimension not match problem")
	}

	if w.m != o.m || w.n != o.n {
		panic("workspace dimension not match problem")
	}

	driver := lmDriver{
		optimizer: o,
		workspace: w,
		p:         slices.Clone(p),
	}

	status := driver.mainLoop()

	res := &Result{
		OK:  status.Converged(),
		X:   driver.p,
		Err: driver.err,
		Info: Info{
			InitErr:  w.initErr,
			FinalErr: w.eL2,
			GradNorm: w.gradInf,
			StepNorm: w.dpL2,
			MuRatio:  w.mu / w.maxDiag,
			NumIter:  w.iter,
			Status:   status,
			NumEval:  w.nfev,
			NumJac:   w.njev,
			NumFail:  w.nfail,
			NumSolve: w.nsolve,
		},
	}
	if w.maxDiag == zero || math.IsNaN(res.MuRatio) {
		res.MuRatio = zero
	}
	if o.covar && w.njev > 0 && status != InvalidValues {
		res.Covar = covariance(w.jtjM, w.eL2, o.m, o.n)
	}
	return res
}

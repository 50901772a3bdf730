// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"fmt"
	"math"

	"github.com/curioloop/levmar/numdiff"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type lmCtx struct {
	// model output and error e = x − hx at the current p.
	hx, e []float64 // n
	// model output and error at the trial p + Δp.
	hxNew, eNew []float64 // n
	// Jacobian in row-major order.
	jac []float64 // n × m
	// undamped JᵀJ (upper triangle) and the damped copy passed to the solver.
	jtj, a []float64 // m × m
	jte    []float64 // m
	dp     []float64 // m
	pNew   []float64 // m
	pDiff  []float64 // m, perturbed by finite differences

	jacM  *mat.Dense
	jtjM  *mat.SymDense
	aM    *mat.SymDense
	eV    *mat.VecDense
	jteV  *mat.VecDense
	dpV   *mat.VecDense
	diff  numdiff.ApproxSpec
	solve linSolver

	// damping factor and its growth on rejection.
	mu, nu float64
	// 𝚖𝚊𝚡(diag(JᵀJ)) of the last Jacobian.
	maxDiag float64
	// ‖e‖² at the initial and current p.
	initErr, eL2 float64
	// ‖Jᵀe‖∞, ‖p‖² and ‖Δp‖².
	gradInf, pL2, dpL2 float64

	iter   int // accepted iterations
	nfev   int // model evaluations
	njev   int // Jacobian evaluations
	nfail  int // singular normal equations
	nsolve int // normal equations solved

	singular int // consecutive singular systems
	stall    int // consecutive accepted steps without significant reduction
}

func (c *lmCtx) init(spec *lmSpec) {
	m, n := spec.m, spec.n
	buf := make([]float64, 4*n+n*m+2*m*m+4*m)
	take := func(size int) []float64 {
		s := buf[:size:size]
		buf = buf[size:]
		return s
	}
	c.hx, c.e = take(n), take(n)
	c.hxNew, c.eNew = take(n), take(n)
	c.jac = take(n * m)
	c.jtj, c.a = take(m*m), take(m*m)
	c.jte, c.dp, c.pNew, c.pDiff = take(m), take(m), take(m), take(m)

	c.jacM = mat.NewDense(n, m, c.jac)
	c.jtjM = mat.NewSymDense(m, c.jtj)
	c.aM = mat.NewSymDense(m, c.a)
	c.eV = mat.NewVecDense(n, c.e)
	c.jteV = mat.NewVecDense(m, c.jte)
	c.dpV = mat.NewVecDense(m, c.dp)

	c.diff = numdiff.ApproxSpec{N: m, M: n, Method: spec.diff, Object: numdiff.Object(spec.model)}
	if d := spec.opts.Delta; d > zero {
		c.diff.AbsStep = d
	} else {
		c.diff.RelStep = -d
	}
	c.solve = newLinSolver(spec.solver, m)
}

func (c *lmCtx) clear() {
	c.mu, c.nu = zero, two
	c.maxDiag = zero
	c.initErr, c.eL2 = zero, zero
	c.gradInf, c.pL2, c.dpL2 = zero, zero, zero
	c.iter, c.nfev, c.njev, c.nfail, c.nsolve = 0, 0, 0, 0, 0
	c.singular, c.stall = 0, 0
}

// lmDriver is the main driver for iterations in an optimization process,
// responsible for managing the flow of the optimization.
type lmDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	p         []float64
	err       error
}

// residual evaluates hx = 𝒇(p) and e = x − hx, and returns ‖e‖².
func (d *lmDriver) residual(p, hx, e []float64) (sq float64, err error) {
	o, w := d.optimizer, d.workspace
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: model: %v", ErrPanic, r)
		}
	}()
	w.nfev++
	if err = o.model(p, hx); err != nil {
		return zero, fmt.Errorf("levmar: model: %w", err)
	}
	floats.SubTo(e, o.x, hx)
	sq = floats.Dot(e, e)
	if math.IsNaN(sq) || math.IsInf(sq, 0) {
		return sq, fmt.Errorf("%w: model output", ErrNonFinite)
	}
	return sq, nil
}

// jacobian evaluates or approximates the Jacobian at the current p.
func (d *lmDriver) jacobian() (err error) {
	o, w := d.optimizer, d.workspace
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: jacobian: %v", ErrPanic, r)
		}
	}()
	w.njev++
	if o.jacobian != nil {
		if err = o.jacobian(d.p, w.jac); err != nil {
			return fmt.Errorf("levmar: jacobian: %w", err)
		}
	} else {
		copy(w.pDiff, d.p)
		err = w.diff.Diff(w.pDiff, w.hx, w.jac)
		w.nfev += w.diff.Evals()
		if err != nil {
			return fmt.Errorf("levmar: jacobian: %w", err)
		}
	}
	if !allFinite(w.jac) {
		return fmt.Errorf("%w: jacobian", ErrNonFinite)
	}
	return nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// normalEquations forms JᵀJ and Jᵀe and the quantities derived from them.
func (d *lmDriver) normalEquations() {
	w := d.workspace
	w.jtjM.SymOuterK(one, w.jacM.T())
	w.jteV.MulVec(w.jacM.T(), w.eV)

	w.maxDiag = zero
	for i := 0; i < w.m; i++ {
		w.maxDiag = math.Max(w.maxDiag, w.jtjM.At(i, i))
	}
	w.gradInf = floats.Norm(w.jte, math.Inf(1))
	w.pL2 = floats.Dot(d.p, d.p)
}

// damp forms A = JᵀJ + μI.
func (d *lmDriver) damp() {
	w := d.workspace
	w.aM.CopySym(w.jtjM)
	for i := 0; i < w.m; i++ {
		w.aM.SetSym(i, i, w.aM.At(i, i)+w.mu)
	}
}

// overflow checks the damping factor after an increase.
func (d *lmDriver) overflow() bool {
	mu := d.workspace.mu
	if math.IsNaN(mu) || mu > muLimit {
		d.err = fmt.Errorf("%w: damping factor %g", ErrNonFinite, mu)
		return true
	}
	return false
}

// dampedStep solves the damped normal equations and adapts μ until a step
// reducing ‖e‖² is accepted or a stopping condition holds.
func (d *lmDriver) dampedStep() (status Reason, accepted bool) {
	o, w := d.optimizer, d.workspace
	opt, log := &o.opts, &o.logger
	eps2sq := opt.Eps2 * opt.Eps2

	for {
		d.damp()
		w.nsolve++
		if !w.solve.solve(w.aM, w.jteV, w.dpV) {
			w.nfail++
			w.singular++
			if log.enable(LogTrace) {
				log.log("  singular normal equations (%s), mu = %.6e\n", o.solver, w.mu)
			}
			if w.singular > o.stop.MaxSingular {
				return SingularMatrix, false
			}
			w.mu *= singularGrowth
			if d.overflow() {
				return InvalidValues, false
			}
			continue
		}
		w.singular = 0

		w.dpL2 = floats.Dot(w.dp, w.dp)
		if w.dpL2 <= eps2sq*w.pL2 {
			return SmallStep, false
		}
		if w.dpL2 >= (w.pL2+opt.Eps2)/(eps*eps) {
			// the step is meaningless, JᵀJ is numerically singular
			return SingularMatrix, false
		}

		floats.AddTo(w.pNew, d.p, w.dp)
		eL2, err := d.residual(w.pNew, w.hxNew, w.eNew)
		if err != nil {
			d.err = err
			return InvalidValues, false
		}

		// actual and predicted reduction of ‖e‖²
		dF := w.eL2 - eL2
		dL := zero
		for i, s := range w.dp {
			dL += s * (w.mu*s + w.jte[i])
		}

		if dL > zero && dF > zero {
			rho := dF / dL
			t := two*rho - one
			w.mu *= math.Max(third, one-t*t*t)
			w.nu = two

			if dF <= eps*w.eL2 {
				w.stall++
			} else {
				w.stall = 0
			}

			copy(d.p, w.pNew)
			copy(w.hx, w.hxNew)
			copy(w.e, w.eNew)
			w.eL2 = eL2
			if w.stall >= o.stop.StallSteps {
				return NoReduction, true
			}
			return iterLoop, true
		}

		if log.enable(LogTrace) {
			log.log("  step rejected: dF = %.6e dL = %.6e mu = %.6e\n", dF, dL, w.mu)
		}
		w.mu *= w.nu
		w.nu *= two
		if w.nu > nuLimit {
			return NoReduction, false
		}
		if d.overflow() {
			return InvalidValues, false
		}
		if w.nfev >= o.stop.MaxEvaluations {
			return MaxEvaluations, false
		}
	}
}

// mainLoop is the main execution loop of the iteration process.
func (d *lmDriver) mainLoop() (status Reason) {

	o, w := d.optimizer, d.workspace
	opt := &o.opts

	w.clear()
	d.printInit()

	eL2, err := d.residual(d.p, w.hx, w.e)
	w.initErr, w.eL2 = eL2, eL2
	if err != nil {
		d.err = err
		status = InvalidValues
		d.printExit(status)
		return
	}
	d.printIter()

	for status = iterLoop; status == iterLoop; {

		if w.eL2 < opt.Eps3 {
			status = SmallResidual
			break
		}
		if w.iter >= o.stop.MaxIterations {
			status = MaxIterations
			break
		}
		if w.nfev >= o.stop.MaxEvaluations {
			status = MaxEvaluations
			break
		}

		if err := d.jacobian(); err != nil {
			d.err = err
			status = InvalidValues
			break
		}
		d.normalEquations()

		if w.gradInf < opt.Eps1 {
			status = SmallGradient
			break
		}

		if w.njev == 1 {
			w.mu = opt.Tau * w.maxDiag
		}

		var accepted bool
		if status, accepted = d.dampedStep(); accepted {
			w.iter++
			d.printIter()
		}
	}

	d.printExit(status)
	return
}

// printInit logs the problem setting before the first iteration.
func (d *lmDriver) printInit() {
	o := d.optimizer
	log := &o.logger
	if !log.enable(LogEval) {
		return
	}
	jac := "analytic"
	if o.jacobian == nil {
		jac = "finite difference"
		if o.diff == numdiff.Central {
			jac += " (central)"
		}
	}
	log.log("LEVENBERG-MARQUARDT  m = %d  n = %d  solver = %s  jacobian = %s\n", o.m, o.n, o.solver, jac)
	log.log("tau = %.2e  eps1 = %.2e  eps2 = %.2e  eps3 = %.2e  delta = %.2e\n",
		o.opts.Tau, o.opts.Eps1, o.opts.Eps2, o.opts.Eps3, o.opts.Delta)
	log.out(" iter  nfev  njev                   ||e||^2   ||J^T e||_inf          mu\n")
}

// printIter logs the current iteration.
func (d *lmDriver) printIter() {
	o, w := d.optimizer, d.workspace
	log := &o.logger
	if !log.enable(LogEval) {
		return
	}
	if log.Level < LogTrace && w.iter%int(log.Level) != 0 {
		return
	}
	log.out("%5d %5d %5d %25.16e %15.6e %11.3e\n", w.iter, w.nfev, w.njev, w.eL2, w.gradInf, w.mu)
	if log.enable(LogVerbose) {
		log.vec("p ", d.p)
		if w.iter > 0 {
			log.vec("dp", w.dp)
		}
	}
}

// printExit logs the final statistics and exit conditions of the optimization process.
func (d *lmDriver) printExit(status Reason) {
	o, w := d.optimizer, d.workspace
	log := &o.logger
	if !log.enable(LogLast) {
		return
	}
	log.log("\n           * * *\n")
	log.log("Nit   = total number of iterations\n")
	log.log("Nf    = total number of model evaluations\n")
	log.log("Nj    = total number of Jacobian evaluations\n")
	log.log("Nfail = total number of singular normal equations\n")
	log.log("E0    = initial ||e||^2\n")
	log.log("E     = final ||e||^2\n")
	log.log("\n   M     N    Nit     Nf    Nj  Nfail          E0           E\n")
	log.log("%4d %5d %6d %6d %5d %6d %11.5e %11.5e\n",
		o.m, o.n, w.iter, w.nfev, w.njev, w.nfail, w.initErr, w.eL2)
	if log.enable(LogEval) {
		log.vec("p", d.p)
	}
	log.log("\n%s\n", status)
	if d.err != nil {
		log.log(" cause: %v\n", d.err)
	}
}

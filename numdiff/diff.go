package numdiff

import (
	"errors"
	"fmt"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

var (
	// ErrDimension is returned when N, M or the supplied slices disagree.
	ErrDimension = errors.New("numdiff: invalid dimensions")
	// ErrMethod is returned for an unknown difference Method.
	ErrMethod = errors.New("numdiff: unknown method")
	// ErrObject is returned when no object function is configured.
	ErrObject = errors.New("numdiff: object function is required")
)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	// It costs one evaluation per variable once f(x0) is known.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	// It costs two evaluations per variable.
	Central
)

// Object evaluates a vector function: x is an N-vector, the result is
// stored in the M-vector y. A non-nil error aborts the approximation.
type Object func(x, y []float64) error

// ApproxSpec estimates the Jacobian of a vector function by finite differences.
//
// The Jacobian is stored row-major as an M×N matrix: jac[i*N+j] = ∂yᵢ/∂xⱼ.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type ApproxSpec struct {
	N, M int
	// Function of which to estimate the derivatives.
	Object Object
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = ε * sign(x0) * max(1, abs(x0)) with ε being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	approxCtx
}

type approxCtx struct {
	f0, fx  []float64
	absStep []float64
	evals   int
}

// Check the parameters and initialize approxCtx.
func (as *ApproxSpec) Check(x0, diff []float64) error {

	switch {
	case as.N <= 0 || as.M <= 0:
		return fmt.Errorf("%w: N=%d M=%d", ErrDimension, as.N, as.M)
	case as.Method != Forward && as.Method != Central:
		return ErrMethod
	case as.Object == nil:
		return ErrObject
	case as.N != len(x0):
		return fmt.Errorf("%w: len(x0)=%d want %d", ErrDimension, len(x0), as.N)
	case as.N*as.M != len(diff):
		return fmt.Errorf("%w: len(diff)=%d want %d", ErrDimension, len(diff), as.N*as.M)
	}

	if len(as.fx) != as.M*(int(as.Method)+1) {
		as.f0 = make([]float64, as.M)
		as.fx = make([]float64, as.M*(int(as.Method)+1))
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
	}
	return nil
}

// Evals reports the number of object evaluations performed by the last Diff.
func (as *ApproxSpec) Evals() int {
	return as.evals
}

// Diff calculate approximation of derivatives by finite differences.
//
// When f0 is not nil it must hold Object(x0) and the base evaluation is skipped.
// x0 is perturbed in place during the computation and restored before return.
func (as *ApproxSpec) Diff(x0, f0, diff []float64) error {

	if err := as.Check(x0, diff); err != nil {
		return err
	}
	if f0 != nil && len(f0) != as.M {
		return fmt.Errorf("%w: len(f0)=%d want %d", ErrDimension, len(f0), as.M)
	}

	as.evals = 0
	as.absoluteStep(x0)

	if as.Method == Central {
		for i, v := range as.absStep {
			as.absStep[i] = math.Abs(v)
		}
		return as.approxCentral(x0, diff)
	}

	if f0 == nil {
		if err := as.eval(x0, as.f0); err != nil {
			return err
		}
		f0 = as.f0
	}
	return as.approxForward(x0, f0, diff)
}

func (as *ApproxSpec) eval(x, y []float64) error {
	as.evals++
	return as.Object(x, y)
}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	h := as.absStep
	if len(h) != len(x0) {
		panic("bound check error")
	}

	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	abs := as.AbsStep
	rel := as.RelStep
	if abs == 0 && rel == 0 {
		for i, v := range x0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		return
	}
	for i, v := range x0 {
		s := abs
		if s == 0 {
			s = math.Copysign(rel, v) * math.Abs(v)
		}
		// the step vanished in floating point
		if (v+s)-v == 0 {
			s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		h[i] = s
	}
}

func (as *ApproxSpec) approxForward(x0, f0, df []float64) error {

	fx, h, n := as.fx, as.absStep, as.N
	if len(h) != len(x0) || len(f0) != len(fx) {
		panic("bound check error")
	}

	for i, s := range h {
		t := x0[i]
		x0[i] = t + s
		// the actual step may differ from s after rounding
		d := 1.0 / (x0[i] - t)
		err := as.eval(x0, fx)
		x0[i] = t
		if err != nil {
			return fmt.Errorf("numdiff: forward difference of x[%d]: %w", i, err)
		}
		for j := range f0 {
			df[i+j*n] = (fx[j] - f0[j]) * d
		}
	}
	return nil
}

func (as *ApproxSpec) approxCentral(x0, df []float64) error {

	h, n, m := as.absStep, as.N, as.M
	f1, f2 := as.fx[:m], as.fx[m:]
	if len(h) != len(x0) || len(f1) != len(f2) {
		panic("bound check error")
	}

	for i, s := range h {
		x := x0[i]
		x0[i] = x - s
		lo := x0[i]
		err := as.eval(x0, f1)
		if err == nil {
			x0[i] = x + s
			err = as.eval(x0, f2)
		}
		d := 1.0 / (x0[i] - lo)
		x0[i] = x
		if err != nil {
			return fmt.Errorf("numdiff: central difference of x[%d]: %w", i, err)
		}
		for j := range f1 {
			df[i+j*n] = (f2[j] - f1[j]) * d
		}
	}
	return nil
}

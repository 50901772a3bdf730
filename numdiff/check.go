package numdiff

import (
	"fmt"
	"math"
)

// CheckDerivative checks the consistency of a user supplied Jacobian with
// the object function at x0, using one forward perturbation of all variables.
//
// The Jacobian layout matches ApproxSpec: jac[i*N+j] = ∂yᵢ/∂xⱼ with N = len(x0).
// On return score[i] is close to 1 when the gradient of yᵢ is probably
// correct, and close to 0 when it is probably wrong. Scores between those
// values are inconclusive; results are unreliable near a point where yᵢ
// vanishes or loses significant digits.
//
// # Reference:
//
//   - MINPACK chkder, https://www.netlib.org/minpack/chkder.f
func CheckDerivative(object Object, jacobian func(x, jac []float64) error, x0 []float64, m int) ([]float64, error) {

	n := len(x0)
	switch {
	case n <= 0 || m <= 0:
		return nil, fmt.Errorf("%w: N=%d M=%d", ErrDimension, n, m)
	case object == nil || jacobian == nil:
		return nil, ErrObject
	}

	epsmch := math.Nextafter(1, 2) - 1
	eps := sqrtEps
	epsf := 100 * epsmch
	epslog := math.Log10(eps)

	fvec := make([]float64, m)
	fvecp := make([]float64, m)
	fjac := make([]float64, m*n)
	xp := make([]float64, n)

	if err := object(x0, fvec); err != nil {
		return nil, fmt.Errorf("numdiff: check object at x0: %w", err)
	}
	if err := jacobian(x0, fjac); err != nil {
		return nil, fmt.Errorf("numdiff: check jacobian at x0: %w", err)
	}

	for j, v := range x0 {
		h := eps * math.Abs(v)
		if h == 0 {
			h = eps
		}
		xp[j] = v + h
	}
	if err := object(xp, fvecp); err != nil {
		return nil, fmt.Errorf("numdiff: check object at perturbed x0: %w", err)
	}

	// predicted change of yᵢ along the perturbation
	score := make([]float64, m)
	for j, v := range x0 {
		t := math.Abs(v)
		if t == 0 {
			t = 1
		}
		for i := range score {
			score[i] += t * fjac[i*n+j]
		}
	}

	for i := range score {
		t := 1.0
		if fvec[i] != 0 && fvecp[i] != 0 && math.Abs(fvecp[i]-fvec[i]) >= epsf*math.Abs(fvec[i]) {
			t = eps * math.Abs((fvecp[i]-fvec[i])/eps-score[i]) / (math.Abs(fvec[i]) + math.Abs(fvecp[i]))
		}
		score[i] = 1
		if t > epsmch && t < eps {
			score[i] = (math.Log10(t) - epslog) / epslog
		}
		if t >= eps {
			score[i] = 0
		}
	}
	return score, nil
}

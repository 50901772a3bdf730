// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"errors"
	"math"
)

// Case Sources : J.J. Moré, B.S. Garbow, K.E. Hillstrom, Testing Unconstrained Optimization Software, 1981.

// wood is Wood's function written as 6 residuals, n must be a multiple of 6.
func wood(p, hx []float64) error {
	for i := 0; i < len(hx); i += 6 {
		hx[i] = 10.0 * (p[1] - p[0]*p[0])
		hx[i+1] = 1.0 - p[0]
		hx[i+2] = math.Sqrt(90.0) * (p[3] - p[2]*p[2])
		hx[i+3] = 1.0 - p[2]
		hx[i+4] = math.Sqrt(10.0) * (p[1] + p[3] - 2.0)
		hx[i+5] = (p[1] - p[3]) / math.Sqrt(10.0)
	}
	return nil
}

// osborneX are the 33 measurements of Osborne's exponential fitting problem.
var osborneX = []float64{
	8.44e-1, 9.08e-1, 9.32e-1, 9.36e-1, 9.25e-1, 9.08e-1, 8.81e-1,
	8.5e-1, 8.18e-1, 7.84e-1, 7.51e-1, 7.18e-1, 6.85e-1, 6.58e-1,
	6.28e-1, 6.03e-1, 5.8e-1, 5.58e-1, 5.38e-1, 5.22e-1, 5.06e-1,
	4.9e-1, 4.78e-1, 4.67e-1, 4.57e-1, 4.48e-1, 4.38e-1, 4.31e-1,
	4.24e-1, 4.2e-1, 4.14e-1, 4.11e-1, 4.06e-1,
}

var osborneP0 = []float64{0.5, 1.5, -1.0, 1.0e-2, 2.0e-2}

// osborneMin is the minimal ‖e‖² of Osborne's problem.
const osborneMin = 5.46489e-5

func osborne(p, hx []float64) error {
	for i := range hx {
		t := 10.0 * float64(i)
		hx[i] = p[0] + p[1]*math.Exp(-p[3]*t) + p[2]*math.Exp(-p[4]*t)
	}
	return nil
}

func osborneJac(p, jac []float64) error {
	j := 0
	for i := 0; i < len(jac)/5; i++ {
		t := 10.0 * float64(i)
		tmp1 := math.Exp(-p[3] * t)
		tmp2 := math.Exp(-p[4] * t)
		jac[j] = 1.0
		jac[j+1] = tmp1
		jac[j+2] = tmp2
		jac[j+3] = -p[1] * t * tmp1
		jac[j+4] = -p[2] * t * tmp2
		j += 5
	}
	return nil
}

// rosenbrock is the 2 residual form of Rosenbrock's function with minimum at (1, 1).
func rosenbrock(p, hx []float64) error {
	hx[0] = 10.0 * (p[1] - p[0]*p[0])
	hx[1] = 1.0 - p[0]
	return nil
}

func rosenbrockJac(p, jac []float64) error {
	jac[0], jac[1] = -20.0*p[0], 10.0
	jac[2], jac[3] = -1.0, 0.0
	return nil
}

// polyT are the abscissae of a quadratic fit with design rows [1, t, t²].
var polyT = []float64{0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 1.75}

func polyDesign() []float64 {
	a := make([]float64, 0, 3*len(polyT))
	for _, t := range polyT {
		a = append(a, 1, t, t*t)
	}
	return a
}

func poly(p, hx []float64) error {
	for i, t := range polyT {
		hx[i] = p[0] + p[1]*t + p[2]*t*t
	}
	return nil
}

func polyJac(p, jac []float64) error {
	copy(jac, polyDesign())
	return nil
}

// polyNoisy are measurements of 1 − 2t + 0.5t² with a deterministic perturbation.
func polyNoisy() []float64 {
	x := make([]float64, len(polyT))
	for i, t := range polyT {
		x[i] = 1 - 2*t + 0.5*t*t + 0.01*math.Sin(7*float64(i))
	}
	return x
}

var errBoom = errors.New("boom")

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"github.com/curioloop/levmar/numdiff"
)

// Der seeks the parameters p that best describe the measurements x using an analytic Jacobian.
//
// More precisely, given a vector function 𝒇 : ℝᵐ → ℝⁿ with n ≥ m, it finds p such that
// 𝒇(p) ≈ x, i.e. the squared L2 norm of e = x − 𝒇(p) is minimized.
//
//   - p     : m initial parameter estimates, on return holds the estimated solution.
//   - x     : n measurements, nil implies a zero vector.
//   - itmax : maximum number of iterations.
//   - opts  : [τ, ε1, ε2, ε3] or [τ, ε1, ε2, ε3, δ], nil for defaults.
//   - info  : when not nil, receives InfoSize values in the layout of Info.Slice.
//
// It returns the termination Reason code (≥ 1), or Error if the arguments are
// unacceptable, in which case the model is never evaluated.
func Der(model Model, jac Jacobian, p, x []float64, m, n, itmax int, opts, info []float64) int {
	if jac == nil {
		return Error
	}
	return run(model, jac, p, x, m, n, itmax, opts, info)
}

// Dif is the variant of Der approximating the Jacobian with forward finite differences.
// The step is δ when δ > 0 and |δ|·|pⱼ| when δ < 0.
func Dif(model Model, p, x []float64, m, n, itmax int, opts, info []float64) int {
	return run(model, nil, p, x, m, n, itmax, opts, info)
}

func run(model Model, jac Jacobian, p, x []float64, m, n, itmax int, opts, info []float64) int {

	if len(p) != m || (info != nil && len(info) < InfoSize) {
		return Error
	}

	o, err := OptionsFromSlice(opts)
	if err != nil {
		return Error
	}

	prob := Problem{
		M: m, N: n,
		Model:    model,
		Jacobian: jac,
		X:        x,
		Options:  o,
		Stop:     Termination{MaxIterations: itmax},
		Diff:     numdiff.Forward,
	}

	s, err := prob.New(nil)
	if err != nil {
		return Error
	}

	r := s.Fit(p, s.Init())
	copy(p, r.X)
	if info != nil {
		r.Info.fill(info)
	}
	return int(r.Status)
}

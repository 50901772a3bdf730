// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearSolver selects the factorization used for the damped normal equations
//
//	(JᵀJ + μI)·Δp = Jᵀe
type LinearSolver int

const (
	// Cholesky factorization, fails when the matrix is not positive definite.
	Cholesky LinearSolver = iota
	// LU factorization with partial pivoting.
	LU
	// QR factorization.
	QR
	// SVD solves in the least-squares sense with rank truncation,
	// it is the most robust choice for near-singular systems.
	SVD
)

func (s LinearSolver) String() string {
	switch s {
	case Cholesky:
		return "Cholesky"
	case LU:
		return "LU"
	case QR:
		return "QR"
	case SVD:
		return "SVD"
	default:
		return fmt.Sprintf("LinearSolver(%d)", int(s))
	}
}

// linSolver keeps the factorizations of one workspace so repeated solves reuse their storage.
type linSolver struct {
	kind LinearSolver
	m    int
	chol mat.Cholesky
	lu   mat.LU
	qr   mat.QR
	svd  mat.SVD
	u, v mat.Dense
	sv   []float64
	ub   []float64
}

func newLinSolver(kind LinearSolver, m int) linSolver {
	return linSolver{
		kind: kind, m: m,
		sv: make([]float64, m),
		ub: make([]float64, m),
	}
}

// solve solves A·x = b for a symmetric A.
// It returns false when A is singular to working precision,
// in which case the content of x is undefined.
func (s *linSolver) solve(a *mat.SymDense, b, x *mat.VecDense) (ok bool) {
	switch s.kind {
	case Cholesky:
		if !s.chol.Factorize(a) {
			return false
		}
		return s.chol.SolveVecTo(x, b) == nil
	case LU:
		s.lu.Factorize(a)
		return s.lu.SolveVecTo(x, false, b) == nil
	case QR:
		s.qr.Factorize(a)
		return s.qr.SolveVecTo(x, false, b) == nil
	case SVD:
		return s.solveSVD(a, b, x)
	default:
		panic("unknown linear solver")
	}
}

// solveSVD computes the minimum-norm solution x = V·Σ⁺·Uᵀ·b where singular
// values below m·eps·σ₀ are truncated.
func (s *linSolver) solveSVD(a *mat.SymDense, b, x *mat.VecDense) bool {
	if !s.svd.Factorize(a, mat.SVDThin) {
		return false
	}
	sv := s.svd.Values(s.sv)
	rank := svdRank(sv, s.m)
	if rank == 0 {
		return false
	}
	s.svd.UTo(&s.u)
	s.svd.VTo(&s.v)

	m := s.m
	ub := s.ub
	for k := 0; k < rank; k++ {
		d := zero
		for i := 0; i < m; i++ {
			d += s.u.At(i, k) * b.AtVec(i)
		}
		ub[k] = d / sv[k]
	}
	for i := 0; i < m; i++ {
		d := zero
		for k := 0; k < rank; k++ {
			d += s.v.At(i, k) * ub[k]
		}
		x.SetVec(i, d)
	}
	return true
}

// svdRank counts the singular values above the truncation threshold.
// Values are sorted in decreasing order.
func svdRank(sv []float64, m int) int {
	if len(sv) == 0 || !(sv[0] > zero) {
		return 0
	}
	tol := float64(m) * eps * sv[0]
	rank := 0
	for _, v := range sv {
		if v <= tol {
			break
		}
		rank++
	}
	return rank
}

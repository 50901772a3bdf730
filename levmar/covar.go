// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// covariance estimates the covariance of the fitted parameters
//
//	C = (JᵀJ)⁺ · ‖e‖² / (n − r)
//
// where (JᵀJ)⁺ is the pseudo-inverse and r its numerical rank.
// It returns nil when the rank cannot be determined or n equals r.
func covariance(jtj *mat.SymDense, sumsq float64, m, n int) *mat.SymDense {
	var svd mat.SVD
	if !svd.Factorize(jtj, mat.SVDThin) {
		return nil
	}
	sv := svd.Values(nil)
	rank := svdRank(sv, m)
	if rank == 0 || n <= rank {
		return nil
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	fac := sumsq / float64(n-rank)
	c := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			s := zero
			for k := 0; k < rank; k++ {
				s += v.At(i, k) * u.At(j, k) / sv[k]
			}
			c.SetSym(i, j, s*fac)
		}
	}
	return c
}

// StdDev returns the standard deviation of the i-th parameter from its covariance.
func StdDev(covar mat.Symmetric, i int) float64 {
	return math.Sqrt(covar.At(i, i))
}

// CorrCoef returns the Pearson correlation coefficient of the i-th and j-th parameters.
func CorrCoef(covar mat.Symmetric, i, j int) float64 {
	return covar.At(i, j) / math.Sqrt(covar.At(i, i)*covar.At(j, j))
}

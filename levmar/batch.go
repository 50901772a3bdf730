// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FitAll runs independent fits from every initial guess in starts, at most
// limit at a time (unbounded when limit ≤ 0). Each running fit owns a workspace.
//
// Results are returned in the order of starts. When ctx is cancelled no
// further fit is started, the missing results are nil and the context error
// is returned; fits already running complete normally.
func (o *Optimizer) FitAll(ctx context.Context, starts [][]float64, limit int) ([]*Result, error) {

	for i, p := range starts {
		if len(p) != o.m {
			return nil, fmt.Errorf("%w: start %d has %d parameters, want %d", ErrDimension, i, len(p), o.m)
		}
	}

	pool := sync.Pool{
		New: func() any { return o.Init() },
	}

	results := make([]*Result, len(starts))
	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, p := range starts {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			w := pool.Get().(*Workspace)
			defer pool.Put(w)
			results[i] = o.Fit(p, w)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Best returns the converged result with the smallest final ‖e‖²,
// or the smallest final ‖e‖² overall when none converged.
func Best(results []*Result) *Result {
	var best *Result
	better := func(r *Result) bool {
		switch {
		case best == nil:
			return true
		case r.OK != best.OK:
			return r.OK
		default:
			return r.FinalErr < best.FinalErr
		}
	}
	for _, r := range results {
		if r != nil && better(r) {
			best = r
		}
	}
	return best
}

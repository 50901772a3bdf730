// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"errors"
	"fmt"
	"math"
)

const (
	zero  = 0.0
	one   = 1.0
	two   = 2.0
	third = 1.0 / 3.0
	eps   = float64(7)/3 - float64(4)/3 - 1.
)

const (
	// Error is returned by Der and Dif when the arguments are unacceptable.
	Error = -1
	// OptionsSize is the length of the options slice [τ, ε1, ε2, ε3, δ].
	OptionsSize = 5
	// InfoSize is the length of the info slice filled by Der and Dif.
	InfoSize = 10
	// InitMu is the default scale τ of the initial damping μ₀ = τ·𝚖𝚊𝚡(diag(JᵀJ)).
	InitMu = 1e-3
	// StopThresh is the default value of the thresholds ε1, ε2 and ε3.
	StopThresh = 1e-17
	// DiffDelta is the default finite difference step δ.
	DiffDelta = 1e-6
)

const (
	// growth of μ after a singular normal equation
	singularGrowth = 10.0
	// μ above this value is treated as an overflow
	muLimit = 1e300
	// ν above this value means no reduction is possible with any damping
	nuLimit = float64(1 << 31)

	defaultMaxSingular = 16
	defaultStallSteps  = 3
)

var (
	// ErrDimension reports inconsistent problem dimensions (e.g. M > N).
	ErrDimension = errors.New("levmar: invalid dimensions")
	// ErrModel reports a missing model function.
	ErrModel = errors.New("levmar: model function is required")
	// ErrOptions reports an invalid option value.
	ErrOptions = errors.New("levmar: invalid options")
	// ErrIterations reports a non-positive iteration limit.
	ErrIterations = errors.New("levmar: max iterations must be greater than 0")
	// ErrNonFinite reports a NaN or ±Inf produced during the iteration.
	ErrNonFinite = errors.New("levmar: NaN or Inf encountered")
	// ErrPanic reports a panic recovered from a user callback.
	ErrPanic = errors.New("levmar: callback panic")
)

// Reason is the termination reason of a minimization.
// The numeric values are part of the Info layout and must not change.
type Reason int

const (
	iterLoop Reason = iota
	// SmallGradient stopped by ‖Jᵀe‖∞ < ε1.
	SmallGradient
	// SmallStep stopped by ‖Δp‖ ≤ ε2·‖p‖.
	SmallStep
	// MaxIterations stopped by reaching the iteration limit.
	MaxIterations
	// SingularMatrix the damped normal equations stayed singular.
	SingularMatrix
	// NoReduction no further error reduction is possible.
	NoReduction
	// SmallResidual stopped by ‖e‖² < ε3.
	SmallResidual
	// InvalidValues a NaN or Inf was met, or a callback failed.
	InvalidValues
	// MaxEvaluations stopped by reaching the model evaluation limit.
	MaxEvaluations
)

func (r Reason) String() string {
	switch r {
	case SmallGradient:
		return "CONVERGENCE: SMALL GRADIENT J^T e"
	case SmallStep:
		return "CONVERGENCE: SMALL Dp"
	case MaxIterations:
		return "STOP: MAXIMUM NUMBER OF ITERATIONS REACHED"
	case SingularMatrix:
		return "STOP: SINGULAR MATRIX, RESTART WITH INCREASED MU"
	case NoReduction:
		return "STOP: NO FURTHER ERROR REDUCTION IS POSSIBLE"
	case SmallResidual:
		return "CONVERGENCE: SMALL ||e||_2"
	case InvalidValues:
		return "ABNORMAL: INVALID (NaN OR Inf) VALUES OR CALLBACK FAILURE"
	case MaxEvaluations:
		return "STOP: TOTAL NO. OF MODEL EVALUATIONS EXCEEDS LIMIT"
	default:
		return fmt.Sprintf("UNKNOWN REASON %d", int(r))
	}
}

// Converged reports whether r is one of the convergence tests.
func (r Reason) Converged() bool {
	return r == SmallGradient || r == SmallStep || r == SmallResidual
}

// Options are the tuning parameters of the minimizer.
// A zero field is replaced by its default value.
type Options struct {
	// Scale factor τ of the initial damping μ₀ = τ·𝚖𝚊𝚡(diag(JᵀJ)).
	Tau float64
	// The iteration stop when ‖Jᵀe‖∞ < ε1.
	Eps1 float64
	// The iteration stop when ‖Δp‖ ≤ ε2·‖p‖.
	Eps2 float64
	// The iteration stop when ‖e‖² < ε3.
	Eps3 float64
	// Step of the finite difference Jacobian.
	// A positive δ is an absolute step h = δ,
	// a negative δ is a relative step h = |δ|·|pⱼ|.
	Delta float64
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Tau:   InitMu,
		Eps1:  StopThresh,
		Eps2:  StopThresh,
		Eps3:  StopThresh,
		Delta: DiffDelta,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tau == zero {
		o.Tau = d.Tau
	}
	if o.Eps1 == zero {
		o.Eps1 = d.Eps1
	}
	if o.Eps2 == zero {
		o.Eps2 = d.Eps2
	}
	if o.Eps3 == zero {
		o.Eps3 = d.Eps3
	}
	if o.Delta == zero {
		o.Delta = d.Delta
	}
	return o
}

func (o Options) validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	switch {
	case !finite(o.Tau) || o.Tau <= zero:
		return fmt.Errorf("%w: tau must be positive, got %g", ErrOptions, o.Tau)
	case !finite(o.Eps1) || o.Eps1 <= zero:
		return fmt.Errorf("%w: eps1 must be positive, got %g", ErrOptions, o.Eps1)
	case !finite(o.Eps2) || o.Eps2 <= zero:
		return fmt.Errorf("%w: eps2 must be positive, got %g", ErrOptions, o.Eps2)
	case !finite(o.Eps3) || o.Eps3 <= zero:
		return fmt.Errorf("%w: eps3 must be positive, got %g", ErrOptions, o.Eps3)
	case !finite(o.Delta) || o.Delta == zero:
		return fmt.Errorf("%w: delta must be non-zero, got %g", ErrOptions, o.Delta)
	}
	return nil
}

// Slice returns the options in the layout [τ, ε1, ε2, ε3, δ].
func (o Options) Slice() []float64 {
	return []float64{o.Tau, o.Eps1, o.Eps2, o.Eps3, o.Delta}
}

// OptionsFromSlice reads options in the layout [τ, ε1, ε2, ε3, δ].
// A nil slice selects the defaults, and δ may be omitted.
func OptionsFromSlice(opts []float64) (Options, error) {
	var o Options
	switch len(opts) {
	case 0:
		if opts != nil {
			return o, fmt.Errorf("%w: empty options", ErrOptions)
		}
		return DefaultOptions(), nil
	case OptionsSize - 1, OptionsSize:
		o.Tau, o.Eps1, o.Eps2, o.Eps3 = opts[0], opts[1], opts[2], opts[3]
		o.Delta = DiffDelta
		if len(opts) == OptionsSize {
			o.Delta = opts[4]
		}
	default:
		return o, fmt.Errorf("%w: expect %d or %d options, got %d", ErrOptions, OptionsSize-1, OptionsSize, len(opts))
	}
	return o, o.validate()
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromSlice(t *testing.T) {

	o, err := OptionsFromSlice(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), o)
	assert.Equal(t, []float64{InitMu, StopThresh, StopThresh, StopThresh, DiffDelta}, o.Slice())

	o, err = OptionsFromSlice([]float64{1e-2, 1e-10, 1e-11, 1e-12})
	require.NoError(t, err)
	assert.Equal(t, Options{Tau: 1e-2, Eps1: 1e-10, Eps2: 1e-11, Eps3: 1e-12, Delta: DiffDelta}, o)

	o, err = OptionsFromSlice([]float64{1e-2, 1e-10, 1e-11, 1e-12, -1e-4})
	require.NoError(t, err)
	assert.Equal(t, -1e-4, o.Delta)

	for name, opts := range map[string][]float64{
		"empty":     {},
		"short":     {1, 1, 1},
		"long":      {1, 1, 1, 1, 1, 1},
		"zero tau":  {0, 1, 1, 1},
		"neg eps1":  {1, -1, 1, 1},
		"nan eps2":  {1, 1, math.NaN(), 1},
		"inf eps3":  {1, 1, 1, math.Inf(1)},
		"zero step": {1, 1, 1, 1, 0},
	} {
		_, err := OptionsFromSlice(opts)
		assert.ErrorIs(t, err, ErrOptions, name)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{Eps1: 1e-9, Delta: -1e-3}.withDefaults()
	assert.Equal(t, Options{Tau: InitMu, Eps1: 1e-9, Eps2: StopThresh, Eps3: StopThresh, Delta: -1e-3}, o)
	assert.NoError(t, o.validate())
}

func TestReason(t *testing.T) {

	codes := map[Reason]int{
		SmallGradient:  1,
		SmallStep:      2,
		MaxIterations:  3,
		SingularMatrix: 4,
		NoReduction:    5,
		SmallResidual:  6,
		InvalidValues:  7,
		MaxEvaluations: 8,
	}
	for r, code := range codes {
		assert.Equal(t, code, int(r))
		assert.NotContains(t, r.String(), "UNKNOWN")
	}

	for _, r := range []Reason{SmallGradient, SmallStep, SmallResidual} {
		assert.True(t, r.Converged(), r.String())
	}
	for _, r := range []Reason{MaxIterations, SingularMatrix, NoReduction, InvalidValues, MaxEvaluations} {
		assert.False(t, r.Converged(), r.String())
	}
	assert.Equal(t, "UNKNOWN REASON 42", Reason(42).String())
}

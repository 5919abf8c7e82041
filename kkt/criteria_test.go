// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStoppingCriteriaTranspose(t *testing.T) {
	p := mixedProblem(t)
	s := newSolver(t, p, nil)
	xs, us := guess(p)
	require.NoError(t, s.SetCandidate(xs, us, false))
	s.SetRegularization(1e-6, 1e-6)
	require.NoError(t, s.ComputeDirection(true))

	// ‖g + Jᵀλ‖² + ‖c‖² with J read back from the assembled matrix
	var r mat.VecDense
	r.MulVec(s.ctx.jac.T(), s.Dual())
	r.AddVec(&r, s.ctx.grad)
	want := mat.Dot(&r, &r) + mat.Dot(s.ctx.gap, s.ctx.gap)

	got := s.StoppingCriteria()
	assert.InDelta(t, want, got, 1e-12*math.Max(1, want))
	assert.Equal(t, got, s.Stop())
}

func TestStoppingCriteriaVanishes(t *testing.T) {
	p := mixedProblem(t)
	s := newSolver(t, p, nil)
	xs, us := guess(p)

	ok, err := s.Solve(xs, us, 20, false, math.NaN())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.ComputeDirection(true))
	stop := s.StoppingCriteria()
	assert.GreaterOrEqual(t, stop, 0.0)
	assert.Less(t, stop, 1e-14)

	// dual infeasibility
	s.Lambdas()[2][0] += 1
	assert.Greater(t, s.StoppingCriteria(), 0.5)

	// primal infeasibility
	require.NoError(t, s.ComputeDirection(true))
	s.Xs()[2][1] += 0.1
	_, err = s.Calc()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.StoppingCriteria(), 0.0099)
}

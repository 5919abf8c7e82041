// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"math"
	"testing"

	"github.com/curioloop/trajopt/shooting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryStep(t *testing.T) {
	p := mixedProblem(t)
	s := newSolver(t, p, nil)
	xs, us := guess(p)
	require.NoError(t, s.SetCandidate(xs, us, false))
	require.NoError(t, s.ComputeDirection(true))

	const alpha = 0.25
	xsTry := make([][]float64, len(xs))
	for i, x := range xs {
		xsTry[i] = make([]float64, len(x))
		for j := range x {
			xsTry[i][j] = x[j] + alpha*s.Dxs()[i][j]
		}
	}
	usTry := make([][]float64, len(us))
	for i, u := range us {
		usTry[i] = make([]float64, len(u))
		for j := range u {
			usTry[i][j] = u[j] + alpha*s.Dus()[i][j]
		}
	}
	want, err := p.Calc(xsTry, usTry)
	require.NoError(t, err)

	cost := s.Cost()
	dV, err := s.TryStep(alpha)
	require.NoError(t, err)
	assert.InDelta(t, cost-want, dV, 1e-12)

	// the iterate is left unchanged
	assert.Equal(t, xs, s.Xs())
	assert.Equal(t, us, s.Us())
	assert.Equal(t, cost, s.Cost())
}

func TestTryStepManifold(t *testing.T) {
	var st shooting.StateSO2
	p, err := shooting.NewProblem(so2(0.5), []shooting.ActionModel{&rotorModel{w: 1, r: 1}}, &rotorModel{w: 1})
	require.NoError(t, err)
	s := newSolver(t, p, nil)
	require.NoError(t, s.SetCandidate([][]float64{so2(1), so2(-3)}, [][]float64{{0.2}}, false))
	require.NoError(t, s.ComputeDirection(true))

	// every node, the last one included, moves along its own increment
	_, err = s.TryStep(0.5)
	require.NoError(t, err)
	dx0, dx1 := s.Dxs()[0][0], s.Dxs()[1][0]
	assert.InDelta(t, -0.5, dx0, 1e-9)
	assert.InDelta(t, 1+0.5*dx0, st.Angle(s.ctx.xsTry[0]), 1e-12)

	want := math.Remainder(-3+0.5*dx1, 2*math.Pi)
	assert.InDelta(t, want, st.Angle(s.ctx.xsTry[1]), 1e-12)
	assert.InDelta(t, 0.2+0.5*s.Dus()[0][0], s.ctx.usTry[0][0], 1e-15)
}

func TestRegularizationSchedule(t *testing.T) {
	p := integratorProblem(t, 1, 0)
	s := newSolver(t, p, nil)
	spec, ctx := &s.spec, &s.ctx

	for _, c := range []struct {
		from, up, down float64
	}{
		{math.NaN(), 1e-9, 1e-9},
		{0, 1e-9, 1e-9},
		{1e-9, 1e-8, 1e-9},
		{1, 10, 0.1},
		{2e8, 1e9, 2e7},
		{1e9, 1e9, 1e8},
	} {
		ctx.xreg = c.from
		increaseRegularization(spec, ctx)
		assert.InDelta(t, c.up, ctx.xreg, c.up*1e-12, "increase from %v", c.from)
		assert.Equal(t, ctx.xreg, ctx.ureg)

		ctx.xreg = c.from
		decreaseRegularization(spec, ctx)
		assert.InDelta(t, c.down, ctx.xreg, c.down*1e-12, "decrease from %v", c.from)
		assert.Equal(t, ctx.xreg, ctx.ureg)
	}
}

func TestRejectedTrialPoints(t *testing.T) {
	running := []shooting.ActionModel{
		rejectingModel{scalarLQR(t, 1, 1, 2, 2)},
		scalarLQR(t, 1, 1, 2, 2),
	}
	p, err := shooting.NewProblem([]float64{1}, running, scalarTerminal(t, 2))
	require.NoError(t, err)

	s := newSolver(t, p, nil)
	var h history
	s.AddCallback(h.record)

	xs := [][]float64{{1}, {0.5}, {0.2}}
	us := [][]float64{{0.1}, {0.3}}
	_, err = s.TryStep(1)
	assert.ErrorIs(t, err, ErrTrialEvaluation)
	assert.ErrorIs(t, err, errOutOfDomain)

	ok, err := s.Solve(xs, us, 100, false, math.NaN())
	require.NoError(t, err)
	assert.False(t, ok)

	o := s.Options()
	assert.Equal(t, o.RegMax, s.Xreg())
	assert.Less(t, s.Iter(), 100)
	assert.Equal(t, s.StepLengths()[len(s.StepLengths())-1], s.Steplength())

	require.NotEmpty(t, h.xreg)
	prev := o.RegMin
	for _, reg := range h.xreg {
		assert.Greater(t, reg, prev)
		assert.LessOrEqual(t, reg, o.RegMax)
		prev = reg
	}

	// no trial point was ever adopted
	assert.Equal(t, xs, s.Xs())
	assert.Equal(t, us, s.Us())
	assert.False(t, s.IsFeasible())
}

func TestSufficientDecrease(t *testing.T) {
	p := integratorProblem(t, 2, 1)
	us := [][]float64{{1}, {1}}
	xs, err := p.Rollout(us)
	require.NoError(t, err)

	s := newSolver(t, p, nil)
	ok, err := s.Solve(xs, us, 1, true, math.NaN())
	require.NoError(t, err)
	assert.False(t, ok)

	d := s.ExpectedImprovement()
	alpha := s.Steplength()
	assert.Equal(t, 1.0, alpha)
	assert.InDelta(t, alpha*(d[0]+0.5*alpha*d[1]), s.DVexp(), 1e-12)
	assert.Greater(t, s.DV(), s.Options().ThAcceptStep*s.DVexp())
	assert.True(t, s.WasFeasible())
	assert.True(t, s.IsFeasible())
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"errors"
	"math"
	"testing"

	"github.com/curioloop/trajopt/shooting"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var errOutOfDomain = errors.New("out of domain")

func scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// scalarLQR returns x⁺ = a x + b u, ℓ = ½q x² + ½r u².
func scalarLQR(t *testing.T, a, b, q, r float64) *shooting.ActionModelLQR {
	t.Helper()
	m, err := shooting.NewActionModelLQR(scalar(a), scalar(b), scalar(q), scalar(r))
	require.NoError(t, err)
	return m
}

// scalarTerminal returns ℓ = ½q x².
func scalarTerminal(t *testing.T, q float64) *shooting.ActionModelLQR {
	t.Helper()
	m, err := shooting.NewActionModelLQR(scalar(1), nil, scalar(q), nil)
	require.NoError(t, err)
	return m
}

// integratorProblem is x⁺ = x + u with ℓ = x² + u² and ℓ_T = x².
func integratorProblem(t *testing.T, T int, x0 float64) *shooting.Problem {
	t.Helper()
	running := make([]shooting.ActionModel, T)
	for i := range running {
		running[i] = scalarLQR(t, 1, 1, 2, 2)
	}
	p, err := shooting.NewProblem([]float64{x0}, running, scalarTerminal(t, 2))
	require.NoError(t, err)
	return p
}

// planarLQR is a double integrator with nu inputs acting on the velocity.
func planarLQR(t *testing.T, nu int) *shooting.ActionModelLQR {
	t.Helper()
	const dt = 0.1
	A := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	B := mat.NewDense(2, nu, nil)
	for j := 0; j < nu; j++ {
		B.Set(1, j, dt*float64(j+1))
	}
	Q := mat.NewDense(2, 2, []float64{2, 0.3, 0.3, 1})
	R := mat.NewDense(nu, nu, nil)
	for j := 0; j < nu; j++ {
		R.Set(j, j, 0.5)
	}
	m, err := shooting.NewActionModelLQR(A, B, Q, R)
	require.NoError(t, err)
	m.SetLinearTerms([]float64{0.1, -0.2}, nil).SetDrift([]float64{0, 0.05})
	return m
}

// mixedProblem has a different number of controls on every node.
func mixedProblem(t *testing.T) *shooting.Problem {
	t.Helper()
	running := []shooting.ActionModel{planarLQR(t, 1), planarLQR(t, 2), planarLQR(t, 1), planarLQR(t, 3)}
	terminal, err := shooting.NewActionModelLQR(
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}), nil,
		mat.NewDense(2, 2, []float64{5, 0, 0, 5}), nil)
	require.NoError(t, err)
	p, err := shooting.NewProblem([]float64{1, -0.5}, running, terminal)
	require.NoError(t, err)
	return p
}

// splitModel maps ℝ¹ onto ℝ²: x⁺ = (x + u, x - u), ℓ = ½x² + ½u².
type splitModel struct {
	st *shooting.StateVector
}

func (m *splitModel) State() shooting.State { return m.st }
func (m *splitModel) Nu() int               { return 1 }

func (m *splitModel) Calc(d *shooting.ActionData, x, u []float64) error {
	d.Cost = 0.5 * x[0] * x[0]
	if u == nil {
		return nil
	}
	d.Cost += 0.5 * u[0] * u[0]
	d.Xnext[0] = x[0] + u[0]
	d.Xnext[1] = x[0] - u[0]
	return nil
}

func (m *splitModel) CalcDiff(d *shooting.ActionData, x, u []float64) error {
	if err := m.Calc(d, x, u); err != nil {
		return err
	}
	d.Lx[0] = x[0]
	d.Lxx.Set(0, 0, 1)
	if u == nil {
		return nil
	}
	d.Lu[0] = u[0]
	d.Luu.Set(0, 0, 1)
	d.Lxu.Set(0, 0, 0)
	d.Fx.Set(0, 0, 1)
	d.Fx.Set(1, 0, 1)
	d.Fu.Set(0, 0, 1)
	d.Fu.Set(1, 0, -1)
	return nil
}

// splitProblem starts on ℝ¹ and continues on ℝ² with planarLQR(1) and ℓ_T = 2.5‖x‖².
func splitProblem(t *testing.T) *shooting.Problem {
	t.Helper()
	terminal, err := shooting.NewActionModelLQR(
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}), nil,
		mat.NewDense(2, 2, []float64{5, 0, 0, 5}), nil)
	require.NoError(t, err)
	running := []shooting.ActionModel{&splitModel{st: shooting.NewStateVector(1)}, planarLQR(t, 1)}
	p, err := shooting.NewProblem([]float64{1}, running, terminal)
	require.NoError(t, err)
	return p
}

// guess returns a deterministic infeasible trajectory for p.
func guess(p *shooting.Problem) (xs, us [][]float64) {
	xs = make([][]float64, p.T()+1)
	for t := range xs {
		x := p.State(t).Zero()
		for i := range x {
			x[i] = 0.3*math.Sin(float64(3*t+i+1)) + 0.2
		}
		xs[t] = x
	}
	us = make([][]float64, p.T())
	for t, m := range p.RunningModels() {
		u := make([]float64, m.Nu())
		for i := range u {
			u[i] = 0.4 * math.Cos(float64(2*t+i))
		}
		us[t] = u
	}
	return
}

func so2(theta float64) []float64 {
	x := make([]float64, 2)
	shooting.StateSO2{}.FromAngle(theta, x)
	return x
}

// rotorModel rotates an SO(2) state by the control: x⁺ = x ⊕ u, ℓ = ½w θ² + ½r u².
type rotorModel struct {
	st   shooting.StateSO2
	w, r float64
}

func (m *rotorModel) State() shooting.State { return m.st }
func (m *rotorModel) Nu() int               { return 1 }

func (m *rotorModel) Calc(d *shooting.ActionData, x, u []float64) error {
	theta := m.st.Angle(x)
	d.Cost = 0.5 * m.w * theta * theta
	if u == nil {
		return nil
	}
	d.Cost += 0.5 * m.r * u[0] * u[0]
	m.st.Integrate(x, u, d.Xnext)
	return nil
}

func (m *rotorModel) CalcDiff(d *shooting.ActionData, x, u []float64) error {
	if err := m.Calc(d, x, u); err != nil {
		return err
	}
	d.Lx[0] = m.w * m.st.Angle(x)
	d.Lxx.Set(0, 0, m.w)
	if u == nil {
		return nil
	}
	d.Lu[0] = m.r * u[0]
	d.Luu.Set(0, 0, m.r)
	d.Lxu.Set(0, 0, 0)
	d.Fx.Set(0, 0, 1)
	d.Fu.Set(0, 0, 1)
	return nil
}

// rejectingModel differentiates like its embedded model but refuses every
// cost-only evaluation, so that no trial point can ever be accepted.
type rejectingModel struct {
	shooting.ActionModel
}

func (rejectingModel) Calc(*shooting.ActionData, []float64, []float64) error {
	return errOutOfDomain
}

// brokenModel fails to provide derivatives.
type brokenModel struct {
	shooting.ActionModel
}

func (brokenModel) CalcDiff(*shooting.ActionData, []float64, []float64) error {
	return errOutOfDomain
}

// history records a few scalars per iteration.
type history struct {
	xreg, cost, stop, step []float64
}

func (h *history) record(s *Solver) {
	h.xreg = append(h.xreg, s.Xreg())
	h.cost = append(h.cost, s.Cost())
	h.stop = append(h.stop, s.Stop())
	h.step = append(h.step, s.Steplength())
}

func newSolver(t *testing.T, p *shooting.Problem, opts *Options) *Solver {
	t.Helper()
	s, err := New(p, opts)
	require.NoError(t, err)
	return s
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shooting

import (
	"math"
)

// ActionModelUnicycle is the kinematic unicycle x = (p₁, p₂, θ), u = (v, ω):
//
//	x⁺ = x + Δt (v cos θ, v sin θ, ω)
//	ℓ(x, u) = ½ ‖(wₓ x, wᵤ u)‖²
//
// The cost residual is linear so the Gauss-Newton Hessian is exact.
type ActionModelUnicycle struct {
	state *StateVector
	// Dt is the integration step.
	Dt float64
	// Weights holds (wₓ, wᵤ).
	Weights [2]float64
}

// NewActionModelUnicycle returns a unicycle with Δt = 0.1 and weights (10, 1).
func NewActionModelUnicycle() *ActionModelUnicycle {
	return &ActionModelUnicycle{
		state:   NewStateVector(3),
		Dt:      0.1,
		Weights: [2]float64{10, 1},
	}
}

func (m *ActionModelUnicycle) State() State { return m.state }
func (m *ActionModelUnicycle) Nu() int      { return 2 }

func (m *ActionModelUnicycle) Calc(d *ActionData, x, u []float64) error {
	if len(x) != 3 || (u != nil && len(u) != 2) {
		return ErrDimension
	}
	wx, wu := m.Weights[0], m.Weights[1]
	d.Cost = 0.5 * wx * wx * (x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
	if u == nil {
		return nil
	}
	d.Cost += 0.5 * wu * wu * (u[0]*u[0] + u[1]*u[1])

	c, s := math.Cos(x[2]), math.Sin(x[2])
	d.Xnext[0] = x[0] + c*u[0]*m.Dt
	d.Xnext[1] = x[1] + s*u[0]*m.Dt
	d.Xnext[2] = x[2] + u[1]*m.Dt
	return nil
}

func (m *ActionModelUnicycle) CalcDiff(d *ActionData, x, u []float64) error {
	if err := m.Calc(d, x, u); err != nil {
		return err
	}
	wx2, wu2 := m.Weights[0]*m.Weights[0], m.Weights[1]*m.Weights[1]

	d.Lxx.Zero()
	for i := 0; i < 3; i++ {
		d.Lx[i] = wx2 * x[i]
		d.Lxx.Set(i, i, wx2)
	}
	if u == nil {
		return nil
	}

	d.Luu.Zero()
	d.Lxu.Zero()
	for i := 0; i < 2; i++ {
		d.Lu[i] = wu2 * u[i]
		d.Luu.Set(i, i, wu2)
	}

	c, s := math.Cos(x[2]), math.Sin(x[2])
	dt := m.Dt
	d.Fx.Zero()
	d.Fx.Set(0, 0, 1)
	d.Fx.Set(1, 1, 1)
	d.Fx.Set(2, 2, 1)
	d.Fx.Set(0, 2, -s*u[0]*dt)
	d.Fx.Set(1, 2, c*u[0]*dt)

	d.Fu.Zero()
	d.Fu.Set(0, 0, c*dt)
	d.Fu.Set(1, 0, s*dt)
	d.Fu.Set(2, 1, dt)
	return nil
}

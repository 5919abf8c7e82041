// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shooting

import (
	"github.com/curioloop/trajopt/numdiff"
)

// ActionModelNumDiff computes the derivatives of Model by finite differences
// along tangent directions. Only Model.Calc is ever called.
//
// Given z = (x, u) and z ⊕ 𝛿z = (x ⊕ 𝛿x, u + 𝛿u):
//   - (Fx, Fu) = ∂ [f(z ⊕ 𝛿z) ⊖ f(z)] / ∂𝛿z
//   - (Lx, Lu) = ∂ ℓ(z ⊕ 𝛿z) / ∂𝛿z
//   - (Lxx, Lxu, Luu) = ∂ ∇ℓ(z ⊕ 𝛿z) / ∂𝛿z, symmetrized
//
// The transition is assumed to map into Model.State().
type ActionModelNumDiff struct {
	Model  ActionModel
	Method numdiff.Method

	nx, ndx, nu int

	z0   []float64 // nx + nu
	next []float64 // nx
	work *ActionData

	jac, hess, grad []float64
}

// NewActionModelNumDiff wraps model with central differences.
func NewActionModelNumDiff(model ActionModel) *ActionModelNumDiff {
	st := model.State()
	m := &ActionModelNumDiff{
		Model:  model,
		Method: numdiff.Central,
		nx:     st.Nx(),
		ndx:    st.Ndx(),
		nu:     model.Nu(),
	}
	m.z0 = make([]float64, m.nx+m.nu)
	m.next = st.Zero()
	m.work = NewActionData(model, st)
	return m
}

func (m *ActionModelNumDiff) State() State { return m.Model.State() }
func (m *ActionModelNumDiff) Nu() int      { return m.nu }

func (m *ActionModelNumDiff) Calc(d *ActionData, x, u []float64) error {
	return m.Model.Calc(d, x, u)
}

// retract moves z₀ = (x, u) along 𝛿z.
func (m *ActionModelNumDiff) retract(z0, dz, z []float64) {
	nx, ndx := m.nx, m.ndx
	m.Model.State().Integrate(z0[:nx], dz[:ndx], z[:nx])
	for i := nx; i < len(z); i++ {
		z[i] = z0[i] + dz[ndx+i-nx]
	}
}

// split returns the state and control parts of z, u is nil for a terminal evaluation.
func (m *ActionModelNumDiff) split(z []float64, terminal bool) (x, u []float64) {
	x = z[:m.nx]
	if !terminal {
		u = z[m.nx:]
	}
	return
}

func resize(v []float64, n int) []float64 {
	if len(v) != n {
		return make([]float64, n)
	}
	return v
}

func (m *ActionModelNumDiff) CalcDiff(d *ActionData, x, u []float64) error {
	if err := m.Model.Calc(d, x, u); err != nil {
		return err
	}

	terminal := u == nil
	nz, ndz := m.nx, m.ndx
	if !terminal {
		nz += m.nu
		ndz += m.nu
	}
	z0 := m.z0[:nz]
	copy(z0, x)
	copy(z0[m.nx:], u)

	var evalErr error
	keep := func(err error) {
		if err != nil && evalErr == nil {
			evalErr = err
		}
	}

	// ∇ℓ
	cost := numdiff.ApproxSpec{
		N: ndz, M: 1, Nx: nz,
		Object: func(z, y []float64) {
			zx, zu := m.split(z, terminal)
			keep(m.Model.Calc(m.work, zx, zu))
			y[0] = m.work.Cost
		},
		Retract: m.retract,
		Method:  m.Method,
	}
	m.grad = resize(m.grad, ndz)
	if err := cost.Diff(z0, m.grad); err != nil {
		return err
	}

	// ∇²ℓ as the Jacobian of ∇ℓ
	hess := numdiff.ApproxSpec{
		N: ndz, M: ndz, Nx: nz,
		Object: func(z, y []float64) {
			keep(cost.Diff(z, y))
		},
		Retract: m.retract,
		Method:  m.Method,
	}
	m.hess = resize(m.hess, ndz*ndz)
	if err := hess.Diff(z0, m.hess); err != nil {
		return err
	}
	if evalErr != nil {
		return evalErr
	}

	ndx, nu := m.ndx, m.nu
	h := func(i, j int) float64 {
		return 0.5 * (m.hess[i*ndz+j] + m.hess[j*ndz+i])
	}
	copy(d.Lx, m.grad[:ndx])
	for i := 0; i < ndx; i++ {
		for j := 0; j < ndx; j++ {
			d.Lxx.Set(i, j, h(i, j))
		}
	}
	if terminal {
		return nil
	}

	copy(d.Lu, m.grad[ndx:])
	for i := 0; i < nu; i++ {
		for j := 0; j < nu; j++ {
			d.Luu.Set(i, j, h(ndx+i, ndx+j))
		}
		for j := 0; j < ndx; j++ {
			d.Lxu.Set(j, i, h(j, ndx+i))
		}
	}

	// transition measured in the tangent space at the nominal successor
	st := m.Model.State()
	copy(m.next, d.Xnext)
	dyn := numdiff.ApproxSpec{
		N: ndz, M: ndx, Nx: nz,
		Object: func(z, y []float64) {
			zx, zu := m.split(z, false)
			keep(m.Model.Calc(m.work, zx, zu))
			st.Diff(m.next, m.work.Xnext, y)
		},
		Retract: m.retract,
		Method:  m.Method,
	}
	m.jac = resize(m.jac, ndx*ndz)
	if err := dyn.Diff(z0, m.jac); err != nil {
		return err
	}
	if evalErr != nil {
		return evalErr
	}
	for i := 0; i < ndx; i++ {
		for j := 0; j < ndx; j++ {
			d.Fx.Set(i, j, m.jac[i*ndz+j])
		}
		for j := 0; j < nu; j++ {
			d.Fu.Set(i, j, m.jac[i*ndz+ndx+j])
		}
	}
	return nil
}

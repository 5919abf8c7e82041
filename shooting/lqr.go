// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shooting

import (
	"errors"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// ActionModelLQR is a linear-quadratic node on the Euclidean space:
//
//	x⁺ = A x + B u + f₀
//	ℓ(x, u) = ½ xᵀQx + ½ uᵀRu + xᵀNu + qᵀx + rᵀu
//
// Evaluated as a terminal node (u == nil) only the terms in x remain.
type ActionModelLQR struct {
	state *StateVector
	nu    int

	A, B    *mat.Dense
	Q, R, N *mat.Dense
	F0      []float64
	Lq, Lr  []float64
}

// NewActionModelLQR creates a linear-quadratic node with zero drift and zero linear cost terms.
// B, R may be nil when the node has no control.
func NewActionModelLQR(A, B, Q, R *mat.Dense) (*ActionModelLQR, error) {
	if A == nil || Q == nil {
		return nil, errors.New("lqr: A and Q are required")
	}
	nx, c := A.Dims()
	if nx != c {
		return nil, errors.New("lqr: A must be square")
	}
	if r, c := Q.Dims(); r != nx || c != nx {
		return nil, errors.New("lqr: Q must be nx × nx")
	}
	nu := 0
	if B != nil {
		var r int
		r, nu = B.Dims()
		if r != nx {
			return nil, errors.New("lqr: B must have nx rows")
		}
		if R == nil {
			return nil, errors.New("lqr: R is required with B")
		}
		if r, c := R.Dims(); r != nu || c != nu {
			return nil, errors.New("lqr: R must be nu × nu")
		}
	}
	m := &ActionModelLQR{
		state: NewStateVector(nx),
		nu:    nu,
		A:     A, B: B,
		Q: Q, R: R,
		F0: make([]float64, nx),
		Lq: make([]float64, nx),
	}
	if nu > 0 {
		m.N = mat.NewDense(nx, nu, nil)
		m.Lr = make([]float64, nu)
	}
	return m, nil
}

// SetLinearTerms sets q and r of the cost.
func (m *ActionModelLQR) SetLinearTerms(q, r []float64) *ActionModelLQR {
	copy(m.Lq, q)
	copy(m.Lr, r)
	return m
}

// SetDrift sets f₀ of the transition.
func (m *ActionModelLQR) SetDrift(f0 []float64) *ActionModelLQR {
	copy(m.F0, f0)
	return m
}

// SetCross sets N of the cost.
func (m *ActionModelLQR) SetCross(n *mat.Dense) *ActionModelLQR {
	if m.N != nil {
		m.N.Copy(n)
	}
	return m
}

func (m *ActionModelLQR) State() State { return m.state }
func (m *ActionModelLQR) Nu() int      { return m.nu }

func (m *ActionModelLQR) Calc(d *ActionData, x, u []float64) error {
	nx := m.state.n
	if len(x) != nx || (u != nil && len(u) != m.nu) {
		return ErrDimension
	}
	xv := mat.NewVecDense(nx, x)

	var tmp mat.VecDense
	tmp.MulVec(m.Q, xv)
	d.Cost = 0.5*mat.Dot(xv, &tmp) + mat.Dot(xv, mat.NewVecDense(nx, m.Lq))

	if u == nil {
		return nil
	}
	if len(d.Xnext) != nx {
		return ErrDimension
	}

	next := mat.NewVecDense(nx, d.Xnext)
	next.MulVec(m.A, xv)
	next.AddVec(next, mat.NewVecDense(nx, m.F0))
	if m.nu == 0 {
		return nil
	}

	uv := mat.NewVecDense(m.nu, u)
	tmp.Reset()
	tmp.MulVec(m.B, uv)
	next.AddVec(next, &tmp)

	tmp.Reset()
	tmp.MulVec(m.R, uv)
	d.Cost += 0.5*mat.Dot(uv, &tmp) + mat.Dot(uv, mat.NewVecDense(m.nu, m.Lr))
	tmp.Reset()
	tmp.MulVec(m.N, uv)
	d.Cost += mat.Dot(xv, &tmp)
	return nil
}

func (m *ActionModelLQR) CalcDiff(d *ActionData, x, u []float64) error {
	if err := m.Calc(d, x, u); err != nil {
		return err
	}
	nx := m.state.n
	xv := mat.NewVecDense(nx, x)

	// Lx = Qx + Nu + q
	lx := mat.NewVecDense(nx, d.Lx)
	lx.MulVec(m.Q, xv)
	lx.AddVec(lx, mat.NewVecDense(nx, m.Lq))
	d.Lxx.Copy(m.Q)

	if u == nil {
		return nil
	}
	d.Fx.Copy(m.A)
	if m.nu == 0 {
		return nil
	}

	uv := mat.NewVecDense(m.nu, u)
	var tmp mat.VecDense
	tmp.MulVec(m.N, uv)
	lx.AddVec(lx, &tmp)

	// Lu = Ru + Nᵀx + r
	lu := mat.NewVecDense(m.nu, d.Lu)
	lu.MulVec(m.R, uv)
	tmp.Reset()
	tmp.MulVec(m.N.T(), xv)
	lu.AddVec(lu, &tmp)
	lu.AddVec(lu, mat.NewVecDense(m.nu, m.Lr))

	d.Luu.Copy(m.R)
	d.Lxu.Copy(m.N)
	d.Fu.Copy(m.B)
	return nil
}

// Clone returns an independent copy of the model.
func (m *ActionModelLQR) Clone() *ActionModelLQR {
	c := &ActionModelLQR{
		state: m.state, nu: m.nu,
		A: mat.DenseCopyOf(m.A), Q: mat.DenseCopyOf(m.Q),
		F0: slices.Clone(m.F0), Lq: slices.Clone(m.Lq),
	}
	if m.nu > 0 {
		c.B, c.R, c.N = mat.DenseCopyOf(m.B), mat.DenseCopyOf(m.R), mat.DenseCopyOf(m.N)
		c.Lr = slices.Clone(m.Lr)
	}
	return c
}

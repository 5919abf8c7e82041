// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// setBlock stores α·src into dst at (i, j).
func setBlock(dst *mat.Dense, i, j int, src *mat.Dense, alpha float64) {
	if src == nil {
		return
	}
	r, c := src.Dims()
	for a := 0; a < r; a++ {
		for b := 0; b < c; b++ {
			dst.Set(i+a, j+b, alpha*src.At(a, b))
		}
	}
}

// setBlockT stores srcᵀ into dst at (i, j).
func setBlockT(dst *mat.Dense, i, j int, src *mat.Dense) {
	if src == nil {
		return
	}
	r, c := src.Dims()
	for a := 0; a < r; a++ {
		for b := 0; b < c; b++ {
			dst.Set(i+b, j+a, src.At(a, b))
		}
	}
}

// assemble evaluates the problem derivatives at the current iterate and rebuilds
// the KKT matrix and residual from scratch. Returns the total cost.
//
// For node t the continuity constraint 𝛿xₜ₊₁ - Fxₜ𝛿xₜ - Fuₜ𝛿uₜ = -cₜ₊₁ uses the gap
//
//	cₜ₊₁ = xₜ₊₁ ⊖ f(xₜ, uₜ)   and   c₀ = x₀ ⊖ x̄₀
func assemble(spec *kktSpec, ctx *kktCtx) (float64, error) {

	p := spec.problem
	cost, err := p.CalcDiff(ctx.xs, ctx.us)
	if err != nil {
		return cost, err
	}
	ctx.cost = cost

	ndx := spec.ndx
	n1 := ndx + spec.nu
	kkt := ctx.kkt
	ref := ctx.kktRef.RawVector().Data

	kkt.Zero()

	// ∂cₜ/∂𝛿xₜ = I on every node
	for i := 0; i < ndx; i++ {
		kkt.Set(n1+i, i, one)
	}

	p.State(0).Diff(p.X0(), ctx.xs[0], ref[n1:n1+p.State(0).Ndx()])

	models, datas := p.RunningModels(), p.RunningData()
	for t, m := range models {
		d := datas[t]
		ndxi, nui := m.State().Ndx(), m.Nu()
		ndxn := p.State(t + 1).Ndx()
		ix, iu, ixn := spec.ix[t], ndx+spec.iu[t], n1+spec.ix[t+1]

		// hessian
		setBlock(kkt, ix, ix, d.Lxx, one)
		if nui > 0 {
			setBlock(kkt, ix, iu, d.Lxu, one)
			setBlockT(kkt, iu, ix, d.Lxu)
			setBlock(kkt, iu, iu, d.Luu, one)
		}

		// jacobian
		setBlock(kkt, ixn, ix, d.Fx, -one)
		if nui > 0 {
			setBlock(kkt, ixn, iu, d.Fu, -one)
		}

		copy(ref[ix:ix+ndxi], d.Lx)
		copy(ref[iu:iu+nui], d.Lu)
		p.State(t+1).Diff(d.Xnext, ctx.xs[t+1], ref[ixn:ixn+ndxn])
	}

	df := p.TerminalData()
	ix := spec.ix[spec.T]
	ndxf := p.State(spec.T).Ndx()
	setBlock(kkt, ix, ix, df.Lxx, one)
	copy(ref[ix:ix+ndxf], df.Lx)

	// Jᵀ
	for i := n1; i < n1+ndx; i++ {
		for j := 0; j < n1; j++ {
			kkt.Set(j, i, kkt.At(i, j))
		}
	}

	ctx.xregApplied, ctx.uregApplied = zero, zero
	regularize(spec, ctx)
	return cost, nil
}

// regularize brings the diagonal shift of the state and control Hessian blocks
// to the current regularization. An undefined (NaN) value removes the shift.
func regularize(spec *kktSpec, ctx *kktCtx) {
	ndx, nu := spec.ndx, spec.nu
	ctx.xregApplied = shiftDiagonal(ctx.kkt, 0, ndx, ctx.xreg, ctx.xregApplied)
	ctx.uregApplied = shiftDiagonal(ctx.kkt, ndx, ndx+nu, ctx.ureg, ctx.uregApplied)
}

// shiftDiagonal replaces the shift applied on kkt[i, i] for i ∈ [lo, hi) with reg
// and returns the new shift.
func shiftDiagonal(kkt *mat.Dense, lo, hi int, reg, applied float64) float64 {
	if math.IsNaN(reg) {
		reg = zero
	}
	if delta := reg - applied; delta != zero {
		for i := lo; i < hi; i++ {
			kkt.Set(i, i, kkt.At(i, i)+delta)
		}
	}
	return reg
}

// Calc evaluates the problem derivatives at the current iterate and assembles
// the KKT system. Errors of the problem are returned unmodified.
func (s *Solver) Calc() (float64, error) {
	return assemble(&s.spec, &s.ctx)
}

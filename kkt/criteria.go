// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import "gonum.org/v1/gonum/mat"

// stoppingCriteria evaluates ‖g + Jᵀλ‖² + ‖c‖² where
//
//	(Jᵀλ)ₓₜ = λₜ - Fxₜᵀλₜ₊₁,  (Jᵀλ)ᵤₜ = -Fuₜᵀλₜ₊₁,  (Jᵀλ)ₓ_T = λ_T
//
// The first term measures dual optimality, the second primal feasibility.
func stoppingCriteria(spec *kktSpec, ctx *kktCtx) float64 {

	p := spec.problem
	ndx := spec.ndx
	dF := ctx.dF.RawVector().Data

	for t, d := range p.RunningData() {
		ix, iu := spec.ix[t], ndx+spec.iu[t]
		lt, ln := ctx.lambdas[t], ctx.lambdas[t+1]

		for j := range lt {
			v := lt[j]
			for i, l := range ln {
				v -= d.Fx.At(i, j) * l
			}
			dF[ix+j] = v
		}
		for j := range ctx.us[t] {
			v := zero
			for i, l := range ln {
				v -= d.Fu.At(i, j) * l
			}
			dF[iu+j] = v
		}
	}
	copy(dF[spec.ix[spec.T]:ndx], ctx.lambdas[spec.T])

	ctx.dF.AddVec(ctx.dF, ctx.grad)
	ctx.stop = mat.Dot(ctx.dF, ctx.dF) + mat.Dot(ctx.gap, ctx.gap)
	return ctx.stop
}

// StoppingCriteria evaluates the optimality residual of the last direction.
func (s *Solver) StoppingCriteria() float64 {
	return stoppingCriteria(&s.spec, &s.ctx)
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import "gonum.org/v1/gonum/mat"

// computeDirection optionally reassembles the KKT system, solves it and
// scatters the solution into the per-node sequences. Without reassembly only
// the regularization of the previous system is brought up to date.
func computeDirection(spec *kktSpec, ctx *kktCtx, recalc bool) error {
	if recalc {
		if _, err := assemble(spec, ctx); err != nil {
			return err
		}
	} else {
		regularize(spec, ctx)
	}
	if err := factorize(spec, ctx); err != nil {
		return err
	}
	solvePrimalDual(spec, ctx)
	extractDirection(spec, ctx)
	return nil
}

// extractDirection slices p = [𝛿x; 𝛿u] and λ with the stride of every node.
func extractDirection(spec *kktSpec, ctx *kktCtx) {
	ndx, n1 := spec.ndx, spec.ndx+spec.nu
	pd := ctx.primalDual.RawVector().Data
	px, pu, dual := pd[:ndx], pd[ndx:n1], pd[n1:]

	for t := 0; t < spec.T; t++ {
		ix, iu := spec.ix[t], spec.iu[t]
		copy(ctx.dxs[t], px[ix:])
		copy(ctx.dus[t], pu[iu:])
		copy(ctx.lambdas[t], dual[ix:])
	}
	ix := spec.ix[spec.T]
	copy(ctx.dxs[spec.T], px[ix:])
	copy(ctx.lambdas[spec.T], dual[ix:])
}

// expectedImprovement returns the first and second order predicted decrease
//
//	d₀ = -gᵀp,  d₁ = -pᵀHp
//
// so that a step α is expected to decrease the cost by α(d₀ + ½αd₁).
func expectedImprovement(spec *kktSpec, ctx *kktCtx) [2]float64 {
	ctx.d[0] = -mat.Dot(ctx.grad, ctx.primal)
	ctx.kktPrimal.MulVec(ctx.hess, ctx.primal)
	ctx.d[1] = -mat.Dot(ctx.kktPrimal, ctx.primal)
	return ctx.d
}

// ComputeDirection computes the search direction at the current iterate.
// With recalc unset the previously assembled KKT system is reused.
func (s *Solver) ComputeDirection(recalc bool) error {
	return computeDirection(&s.spec, &s.ctx, recalc)
}

// ExpectedImprovement returns (d₀, d₁) along the last computed direction.
func (s *Solver) ExpectedImprovement() [2]float64 {
	return expectedImprovement(&s.spec, &s.ctx)
}

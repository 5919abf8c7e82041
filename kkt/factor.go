// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// factorize computes the block Cholesky factorization of the KKT matrix
//
//	⎡ H  Jᵀ ⎤   ⎡ L  0 ⎤ ⎡ Lᵀ  L⁻¹Jᵀ ⎤
//	⎣ J  0  ⎦ = ⎣ JL⁻ᵀ M ⎦ ⎣ 0   -Mᵀ  ⎦ ,  H = LLᵀ,  JH⁻¹Jᵀ = MMᵀ
//
// J always contains the identity on the state columns, so the Schur complement
// JH⁻¹Jᵀ is positive definite whenever the regularized H is.
func factorize(spec *kktSpec, ctx *kktCtx) error {

	n1 := spec.ndx + spec.nu
	ndx := spec.ndx

	h := ctx.hess
	for i := 0; i < n1; i++ {
		for j := i; j < n1; j++ {
			ctx.hsym.SetSym(i, j, h.At(i, j))
		}
	}
	if !ctx.cholH.Factorize(ctx.hsym) {
		return fmt.Errorf("%w: cost hessian", ErrNotPositiveDefinite)
	}

	if err := ctx.cholH.SolveTo(ctx.hinvJt, ctx.jacT); err != nil {
		conditionWarn(spec, err)
	}
	ctx.schur.Mul(ctx.jac, ctx.hinvJt)
	for i := 0; i < ndx; i++ {
		for j := i; j < ndx; j++ {
			ctx.ssym.SetSym(i, j, half*(ctx.schur.At(i, j)+ctx.schur.At(j, i)))
		}
	}
	if !ctx.cholS.Factorize(ctx.ssym) {
		return fmt.Errorf("%w: schur complement", ErrNotPositiveDefinite)
	}
	return nil
}

// solvePrimalDual solves KKT·[p; λ] = -[g; c] into the primal-dual buffer:
//
//	JH⁻¹Jᵀ λ = c - JH⁻¹g
//	p = -H⁻¹(g + Jᵀλ)
func solvePrimalDual(spec *kktSpec, ctx *kktCtx) {

	conditionWarn(spec, ctx.cholH.SolveVecTo(ctx.hinvG, ctx.grad))
	ctx.tmpDual.MulVec(ctx.jac, ctx.hinvG)
	ctx.tmpDual.SubVec(ctx.gap, ctx.tmpDual)
	conditionWarn(spec, ctx.cholS.SolveVecTo(ctx.dual, ctx.tmpDual))

	ctx.tmpPrimal.MulVec(ctx.jacT, ctx.dual)
	ctx.tmpPrimal.AddVec(ctx.tmpPrimal, ctx.grad)
	conditionWarn(spec, ctx.cholH.SolveVecTo(ctx.primal, ctx.tmpPrimal))
	ctx.primal.ScaleVec(-one, ctx.primal)
}

// conditionWarn logs the ill-conditioning reported by a successful solve.
func conditionWarn(spec *kktSpec, err error) {
	if err == nil {
		return
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		spec.log.Debug("ill-conditioned factor", zap.Float64("cond", float64(cond)))
		return
	}
	spec.log.Debug("solve reported error", zap.Error(err))
}

// ComputePrimalDual factorizes the assembled KKT matrix and solves for the
// primal-dual increment. Returns ErrNotPositiveDefinite when the regularized
// matrix cannot be factorized.
func (s *Solver) ComputePrimalDual() error {
	if err := factorize(&s.spec, &s.ctx); err != nil {
		return err
	}
	solvePrimalDual(&s.spec, &s.ctx)
	return nil
}

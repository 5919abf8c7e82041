// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// tryStep evaluates the trial point xₜ ⊕ α𝛿xₜ, uₜ + α𝛿uₜ and returns the actual
// cost decrease. Errors wrap ErrTrialEvaluation.
func tryStep(spec *kktSpec, ctx *kktCtx, alpha float64) (float64, error) {

	p := spec.problem
	for t := 0; t <= spec.T; t++ {
		dx := ctx.dx[:len(ctx.dxs[t])]
		for i, v := range ctx.dxs[t] {
			dx[i] = alpha * v
		}
		p.State(t).Integrate(ctx.xs[t], dx, ctx.xsTry[t])
	}
	for t, u := range ctx.us {
		du, ut := ctx.dus[t], ctx.usTry[t]
		for i, v := range u {
			ut[i] = v + alpha*du[i]
		}
	}

	cost, err := p.Calc(ctx.xsTry, ctx.usTry)
	if err != nil {
		return math.NaN(), fmt.Errorf("%w: %w", ErrTrialEvaluation, err)
	}
	ctx.costTry = cost
	return ctx.cost - cost, nil
}

// lineSearch scans the step lengths from the largest and adopts the first
// acceptable trial point. Returns whether a step was accepted.
//
// A step α is accepted when the predicted linear improvement is negligible,
// when the current iterate is infeasible, or when
//
//	ΔV > θ ΔVₑₓₚ,  ΔVₑₓₚ = α(d₀ + ½αd₁)
func lineSearch(spec *kktSpec, ctx *kktCtx) bool {

	for _, alpha := range spec.alphas {
		ctx.steplength = alpha

		dV, err := tryStep(spec, ctx, alpha)
		if err != nil {
			spec.log.Debug("trial step rejected",
				zap.Int("iter", ctx.iter),
				zap.Float64("alpha", alpha),
				zap.Error(err))
			continue
		}
		ctx.dV = dV
		ctx.dVexp = alpha * (ctx.d[0] + half*alpha*ctx.d[1])

		if ctx.d[0] < spec.ThGrad || !ctx.isFeasible || dV > spec.ThAcceptStep*ctx.dVexp {
			ctx.wasFeasible = ctx.isFeasible
			for t := range ctx.xs {
				copy(ctx.xs[t], ctx.xsTry[t])
			}
			for t := range ctx.us {
				copy(ctx.us[t], ctx.usTry[t])
			}
			ctx.isFeasible = true
			ctx.cost = ctx.costTry
			return true
		}
	}
	return false
}

// increaseRegularization multiplies the regularization by the factor, capped at RegMax.
// An undefined regularization starts from RegMin.
func increaseRegularization(spec *kktSpec, ctx *kktCtx) {
	reg := ctx.xreg * spec.RegFactor
	if math.IsNaN(reg) || reg < spec.RegMin {
		reg = spec.RegMin
	}
	if reg > spec.RegMax {
		reg = spec.RegMax
	}
	ctx.xreg, ctx.ureg = reg, reg
}

// decreaseRegularization divides the regularization by the factor, floored at RegMin.
func decreaseRegularization(spec *kktSpec, ctx *kktCtx) {
	reg := ctx.xreg / spec.RegFactor
	if math.IsNaN(reg) || reg < spec.RegMin {
		reg = spec.RegMin
	}
	ctx.xreg, ctx.ureg = reg, reg
}

// TryStep evaluates the cost decrease of step length alpha along the last direction.
// The current iterate is left unchanged.
func (s *Solver) TryStep(alpha float64) (float64, error) {
	return tryStep(&s.spec, &s.ctx, alpha)
}

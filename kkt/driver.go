// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"errors"
	"math"

	"go.uber.org/zap"
)

// Solve iterates from (xs, us) until the stopping criterion falls below ThStop
// on a feasible iterate, or until maxIter iterations are done.
//
// The regularization starts at regInit clamped into [RegMin, RegMax],
// a NaN regInit starts at RegMin.
//
// Factorization and trial evaluation failures are handled internally and reported
// as a false outcome once the regularization cannot grow anymore. A non-nil error
// is returned only for invalid inputs and problem derivative failures.
func (s *Solver) Solve(xs, us [][]float64, maxIter int, isFeasible bool, regInit float64) (bool, error) {

	spec, ctx := &s.spec, &s.ctx
	if err := s.SetCandidate(xs, us, isFeasible); err != nil {
		return false, err
	}

	reg := regInit
	if math.IsNaN(reg) {
		reg = spec.RegMin
	}
	reg = min(max(reg, spec.RegMin), spec.RegMax)
	ctx.xreg, ctx.ureg = reg, reg
	ctx.wasFeasible = false
	ctx.stop = math.NaN()

	log := spec.log
	smallest := spec.alphas[len(spec.alphas)-1]

	for ctx.iter = 0; ctx.iter < maxIter; ctx.iter++ {

		recalc := true
		for {
			err := computeDirection(spec, ctx, recalc)
			if err == nil {
				break
			}
			if !errors.Is(err, ErrNotPositiveDefinite) {
				return false, err
			}
			if ctx.xreg == spec.RegMax {
				log.Debug("factorization failed at maximal regularization",
					zap.Int("iter", ctx.iter), zap.Error(err))
				return false, nil
			}
			// reuse the assembled system, only the diagonal shift changes
			recalc = false
			increaseRegularization(spec, ctx)
			log.Debug("factorization failed",
				zap.Int("iter", ctx.iter),
				zap.Float64("xreg", ctx.xreg),
				zap.Error(err))
		}

		expectedImprovement(spec, ctx)

		if !lineSearch(spec, ctx) {
			log.Debug("no step length accepted", zap.Int("iter", ctx.iter))
		}

		if ctx.steplength > spec.ThStep {
			decreaseRegularization(spec, ctx)
		}
		if ctx.steplength == smallest {
			increaseRegularization(spec, ctx)
			if ctx.xreg == spec.RegMax {
				log.Debug("regularization reached its maximum", zap.Int("iter", ctx.iter))
				return false, nil
			}
		}

		stoppingCriteria(spec, ctx)

		for _, cb := range s.callbacks {
			cb(s)
		}

		if ctx.wasFeasible && ctx.stop < spec.ThStop {
			log.Info("converged",
				zap.Int("iter", ctx.iter),
				zap.Float64("cost", ctx.cost),
				zap.Float64("stop", ctx.stop))
			return true, nil
		}
	}
	log.Info("iteration limit reached",
		zap.Int("iter", ctx.iter),
		zap.Float64("cost", ctx.cost),
		zap.Float64("stop", ctx.stop))
	return false, nil
}

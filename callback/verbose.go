// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package callback

import (
	"github.com/curioloop/trajopt/kkt"
	"go.uber.org/zap"
)

// Verbose returns a callback that logs one line per iteration at info level.
func Verbose(logger *zap.Logger) kkt.Callback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(s *kkt.Solver) {
		logger.Info("iteration",
			zap.Int("iter", s.Iter()),
			zap.Float64("cost", s.Cost()),
			zap.Float64("stop", s.Stop()),
			zap.Float64("xreg", s.Xreg()),
			zap.Float64("ureg", s.Ureg()),
			zap.Float64("step", s.Steplength()),
			zap.Float64("dV", s.DV()),
			zap.Float64("dVexp", s.DVexp()),
			zap.Bool("feasible", s.IsFeasible()))
	}
}

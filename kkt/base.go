// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"errors"

	"go.uber.org/zap"
)

const (
	zero = 0.0
	one  = 1.0
	half = 0.5
	two  = 2.0
)

var (
	// ErrNotPositiveDefinite reports a KKT matrix that cannot be factorized
	// under the current regularization.
	ErrNotPositiveDefinite = errors.New("kkt: matrix is not positive definite")
	// ErrTrialEvaluation reports a trial point at which the problem is undefined.
	ErrTrialEvaluation = errors.New("kkt: trial point evaluation failed")
	// ErrInvalidOptions reports unusable solver options.
	ErrInvalidOptions = errors.New("kkt: invalid options")
)

// Options specifies the regularization schedule and the thresholds of the solver.
type Options struct {
	// Factor applied when increasing or decreasing the regularization.
	RegFactor float64 `koanf:"reg_factor" yaml:"reg_factor"`
	// Regularization lower bound.
	RegMin float64 `koanf:"reg_min" yaml:"reg_min"`
	// Regularization upper bound, reaching it ends the solve with failure.
	RegMax float64 `koanf:"reg_max" yaml:"reg_max"`
	// The iteration stop when the stopping criterion is below ThStop
	// and the previous iterate was feasible.
	ThStop float64 `koanf:"th_stop" yaml:"th_stop"`
	// Any step is accepted when the expected linear improvement is below ThGrad.
	ThGrad float64 `koanf:"th_grad" yaml:"th_grad"`
	// Accepted steps longer than ThStep decrease the regularization.
	ThStep float64 `koanf:"th_step" yaml:"th_step"`
	// Sufficient decrease ratio: ΔV > ThAcceptStep × ΔVₑₓₚ.
	ThAcceptStep float64 `koanf:"th_accept_step" yaml:"th_accept_step"`
	// Number of step lengths tried by the line search: 1, ½, ¼, …
	NumSteps int `koanf:"num_steps" yaml:"num_steps"`
	// Logger receives debug entries, nil disables logging.
	Logger *zap.Logger `koanf:"-" yaml:"-"`
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		RegFactor:    10,
		RegMin:       1e-9,
		RegMax:       1e9,
		ThStop:       1e-9,
		ThGrad:       1e-12,
		ThStep:       0.5,
		ThAcceptStep: 0.1,
		NumSteps:     10,
	}
}

func (o *Options) check() (err error) {
	switch {
	case !(o.RegFactor > one):
		err = errors.New("regularization factor must greater than 1")
	case !(o.RegMin > zero):
		err = errors.New("minimal regularization must greater than 0")
	case !(o.RegMax >= o.RegMin):
		err = errors.New("maximal regularization must not less than minimal regularization")
	case !(o.ThStop >= zero):
		err = errors.New("stop threshold must not less than 0")
	case !(o.ThStep >= zero && o.ThStep <= one):
		err = errors.New("step threshold must lie in [0, 1]")
	case !(o.ThAcceptStep >= zero && o.ThAcceptStep < one):
		err = errors.New("acceptance ratio must lie in [0, 1)")
	case o.NumSteps <= 0:
		err = errors.New("number of step lengths must greater than 0")
	}
	return
}

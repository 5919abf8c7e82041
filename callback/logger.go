// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package callback provides per-iteration observers of the KKT solver.
package callback

import (
	"github.com/curioloop/trajopt/kkt"
)

// Logger keeps the history of a solve, one entry per iteration.
type Logger struct {
	Iters    []int
	Costs    []float64
	Stops    []float64
	Xregs    []float64
	Uregs    []float64
	Steps    []float64
	Feasible []bool
}

// NewLogger returns an empty history.
func NewLogger() *Logger {
	return &Logger{}
}

// Callback appends the current state of s.
func (l *Logger) Callback(s *kkt.Solver) {
	l.Iters = append(l.Iters, s.Iter())
	l.Costs = append(l.Costs, s.Cost())
	l.Stops = append(l.Stops, s.Stop())
	l.Xregs = append(l.Xregs, s.Xreg())
	l.Uregs = append(l.Uregs, s.Ureg())
	l.Steps = append(l.Steps, s.Steplength())
	l.Feasible = append(l.Feasible, s.IsFeasible())
}

// Len returns the number of recorded iterations.
func (l *Logger) Len() int { return len(l.Iters) }

// Reset drops the history.
func (l *Logger) Reset() {
	*l = Logger{}
}

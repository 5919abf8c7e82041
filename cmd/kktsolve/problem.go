// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/curioloop/trajopt/internal/config"
	"github.com/curioloop/trajopt/shooting"
	"gonum.org/v1/gonum/mat"
)

// buildProblem creates the problem described by c.
func buildProblem(c config.Problem) (*shooting.Problem, error) {
	var (
		running  = make([]shooting.ActionModel, c.Horizon)
		terminal shooting.ActionModel
		x0       []float64
	)

	switch c.Kind {
	case config.KindLQR:
		// double integrator driven by an acceleration
		dt := c.Dt
		A := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
		B := mat.NewDense(2, 1, []float64{0.5 * dt * dt, dt})
		Q := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
		R := mat.NewDense(1, 1, []float64{0.1})
		m, err := shooting.NewActionModelLQR(A, B, Q, R)
		if err != nil {
			return nil, err
		}
		for t := range running {
			running[t] = m
		}
		tm, err := shooting.NewActionModelLQR(A, nil, mat.NewDense(2, 2, []float64{10, 0, 0, 10}), nil)
		if err != nil {
			return nil, err
		}
		terminal = tm
		x0 = []float64{1, 0}

	case config.KindUnicycle:
		for t := range running {
			m := shooting.NewActionModelUnicycle()
			m.Dt = c.Dt
			running[t] = m
		}
		tm := shooting.NewActionModelUnicycle()
		tm.Dt = c.Dt
		terminal = tm
		x0 = []float64{-1, -1, 1}

	default:
		return nil, fmt.Errorf("unknown problem kind %q", c.Kind)
	}

	if c.NumDiff {
		for t, m := range running {
			running[t] = shooting.NewActionModelNumDiff(m)
		}
		terminal = shooting.NewActionModelNumDiff(terminal)
	}
	if len(c.X0) > 0 {
		x0 = c.X0
	}
	return shooting.NewProblem(x0, running, terminal)
}

// warmStart returns the rollout of zero controls.
func warmStart(p *shooting.Problem) (xs, us [][]float64, err error) {
	us = make([][]float64, p.T())
	for t, m := range p.RunningModels() {
		us[t] = make([]float64, m.Nu())
	}
	xs, err = p.Rollout(us)
	return
}

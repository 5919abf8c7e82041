// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shooting

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrDimension reports trajectories or models with inconsistent sizes.
	ErrDimension = errors.New("shooting: dimension mismatch")
	// ErrNonFinite reports a cost evaluation that produced NaN or ±Inf.
	ErrNonFinite = errors.New("shooting: non-finite cost")
)

// Problem is a multiple-shooting optimal control problem of horizon T:
//
//	minimize   Σₜ ℓₜ(xₜ, uₜ) + ℓ_T(x_T)
//	subject to x₀ = x̄₀,  xₜ₊₁ = fₜ(xₜ, uₜ)
//
// The problem owns one ActionData per node. Derivatives stored there
// are valid until the next call of CalcDiff.
type Problem struct {
	x0       []float64
	running  []ActionModel
	terminal ActionModel

	runningData  []*ActionData
	terminalData *ActionData
}

// NewProblem creates the problem with initial state x0.
func NewProblem(x0 []float64, running []ActionModel, terminal ActionModel) (p *Problem, err error) {

	switch {
	case len(running) == 0:
		err = errors.New("horizon must contain at least one running model")
	case terminal == nil:
		err = errors.New("terminal model is required")
	case slices.Contains(running, nil):
		err = errors.New("running model must not be nil")
	}
	if err != nil {
		return
	}

	if nx := running[0].State().Nx(); len(x0) != nx {
		return nil, fmt.Errorf("%w: x0 has %d entries, want %d", ErrDimension, len(x0), nx)
	}

	T := len(running)
	p = &Problem{
		x0:          slices.Clone(x0),
		running:     slices.Clone(running),
		terminal:    terminal,
		runningData: make([]*ActionData, T),
	}
	for t, m := range p.running {
		p.runningData[t] = NewActionData(m, p.stateAt(t+1))
	}
	p.terminalData = NewActionData(terminal, nil)
	return
}

// stateAt returns the space of node t ∈ [0, T].
func (p *Problem) stateAt(t int) State {
	if t == len(p.running) {
		return p.terminal.State()
	}
	return p.running[t].State()
}

// runningControl returns u as the control of a running node.
// A nil u would be taken for a terminal evaluation.
func runningControl(u []float64) []float64 {
	if u == nil {
		return []float64{}
	}
	return u
}

// T returns the number of running nodes.
func (p *Problem) T() int { return len(p.running) }

// X0 returns the fixed initial state.
func (p *Problem) X0() []float64 { return p.x0 }

// SetX0 replaces the initial state.
func (p *Problem) SetX0(x0 []float64) error {
	if len(x0) != len(p.x0) {
		return fmt.Errorf("%w: x0 has %d entries, want %d", ErrDimension, len(x0), len(p.x0))
	}
	copy(p.x0, x0)
	return nil
}

func (p *Problem) RunningModels() []ActionModel { return p.running }
func (p *Problem) RunningData() []*ActionData   { return p.runningData }
func (p *Problem) TerminalModel() ActionModel   { return p.terminal }
func (p *Problem) TerminalData() *ActionData    { return p.terminalData }

// State returns the space of node t ∈ [0, T].
func (p *Problem) State(t int) State { return p.stateAt(t) }

// Check verifies the trajectory sizes against the horizon.
func (p *Problem) Check(xs, us [][]float64) error {
	T := len(p.running)
	if len(xs) != T+1 {
		return fmt.Errorf("%w: got %d states, want %d", ErrDimension, len(xs), T+1)
	}
	if len(us) != T {
		return fmt.Errorf("%w: got %d controls, want %d", ErrDimension, len(us), T)
	}
	for t, x := range xs {
		if nx := p.stateAt(t).Nx(); len(x) != nx {
			return fmt.Errorf("%w: state %d has %d entries, want %d", ErrDimension, t, len(x), nx)
		}
	}
	for t, u := range us {
		if nu := p.running[t].Nu(); len(u) != nu {
			return fmt.Errorf("%w: control %d has %d entries, want %d", ErrDimension, t, len(u), nu)
		}
	}
	return nil
}

// Calc evaluates the total cost of (xs, us).
func (p *Problem) Calc(xs, us [][]float64) (float64, error) {
	if err := p.Check(xs, us); err != nil {
		return math.NaN(), err
	}
	cost := 0.0
	for t, m := range p.running {
		d := p.runningData[t]
		if err := m.Calc(d, xs[t], runningControl(us[t])); err != nil {
			return math.NaN(), fmt.Errorf("node %d: %w", t, err)
		}
		cost += d.Cost
	}
	if err := p.terminal.Calc(p.terminalData, xs[len(xs)-1], nil); err != nil {
		return math.NaN(), fmt.Errorf("terminal node: %w", err)
	}
	cost += p.terminalData.Cost
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return cost, ErrNonFinite
	}
	return cost, nil
}

// CalcDiff evaluates the total cost of (xs, us) and the derivatives of every node.
func (p *Problem) CalcDiff(xs, us [][]float64) (float64, error) {
	if err := p.Check(xs, us); err != nil {
		return math.NaN(), err
	}
	cost := 0.0
	for t, m := range p.running {
		d := p.runningData[t]
		if err := m.CalcDiff(d, xs[t], runningControl(us[t])); err != nil {
			return math.NaN(), fmt.Errorf("node %d: %w", t, err)
		}
		cost += d.Cost
	}
	if err := p.terminal.CalcDiff(p.terminalData, xs[len(xs)-1], nil); err != nil {
		return math.NaN(), fmt.Errorf("terminal node: %w", err)
	}
	cost += p.terminalData.Cost
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return cost, ErrNonFinite
	}
	return cost, nil
}

// Rollout integrates the dynamics from x0 under us and returns the
// resulting dynamically feasible state trajectory.
func (p *Problem) Rollout(us [][]float64) ([][]float64, error) {
	T := len(p.running)
	if len(us) != T {
		return nil, fmt.Errorf("%w: got %d controls, want %d", ErrDimension, len(us), T)
	}
	xs := make([][]float64, T+1)
	xs[0] = slices.Clone(p.x0)
	for t, m := range p.running {
		if len(us[t]) != m.Nu() {
			return nil, fmt.Errorf("%w: control %d has %d entries, want %d", ErrDimension, t, len(us[t]), m.Nu())
		}
		d := p.runningData[t]
		if err := m.Calc(d, xs[t], runningControl(us[t])); err != nil {
			return nil, fmt.Errorf("node %d: %w", t, err)
		}
		xs[t+1] = slices.Clone(d.Xnext)
	}
	return xs, nil
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shooting

import "gonum.org/v1/gonum/mat"

// ActionModel describes one node of the horizon: a cost ℓ(x, u) and,
// for running nodes, a transition x⁺ = f(x, u).
//
// The terminal node is evaluated with u == nil and must leave the
// transition related fields of ActionData untouched.
type ActionModel interface {
	// State returns the space of x.
	State() State
	// Nu returns the control dimension.
	Nu() int
	// Calc evaluates d.Cost and d.Xnext.
	// It must not modify the derivative fields of d.
	Calc(d *ActionData, x, u []float64) error
	// CalcDiff evaluates d.Cost, d.Xnext and every derivative.
	CalcDiff(d *ActionData, x, u []float64) error
}

// ActionData holds the evaluation of an ActionModel at a given (x, u).
//
// All derivatives are taken with respect to tangent increments:
//   - Lx ∈ ℝⁿᵈˣ, Lu ∈ ℝⁿᵘ
//   - Lxx ∈ ℝⁿᵈˣˣⁿᵈˣ, Lxu ∈ ℝⁿᵈˣˣⁿᵘ, Luu ∈ ℝⁿᵘˣⁿᵘ
//   - Fx ∈ ℝⁿᵈˣ⁺ˣⁿᵈˣ, Fu ∈ ℝⁿᵈˣ⁺ˣⁿᵘ (ndx⁺ is the tangent dimension of the successor)
//
// Fields whose dimension would be zero are nil.
type ActionData struct {
	Cost  float64
	Xnext []float64

	Lx, Lu        []float64
	Lxx, Lxu, Luu *mat.Dense
	Fx, Fu        *mat.Dense
}

// NewActionData allocates the data of model whose successor lives in next.
// The terminal node passes a nil next.
func NewActionData(model ActionModel, next State) *ActionData {
	ndx, nu := model.State().Ndx(), model.Nu()
	d := &ActionData{
		Lx:  make([]float64, ndx),
		Lxx: mat.NewDense(ndx, ndx, nil),
	}
	if next == nil {
		return d
	}
	d.Xnext = next.Zero()
	d.Fx = mat.NewDense(next.Ndx(), ndx, nil)
	if nu > 0 {
		d.Lu = make([]float64, nu)
		d.Lxu = mat.NewDense(ndx, nu, nil)
		d.Luu = mat.NewDense(nu, nu, nil)
		d.Fu = mat.NewDense(next.Ndx(), nu, nil)
	}
	return d
}

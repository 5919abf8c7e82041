// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shooting

import "math"

// State describes the configuration space of a node.
//
// A state x lives in an Nx-dimensional representation while increments 𝛿x
// live in the Ndx-dimensional tangent space. The two operators generalize
// subtraction and addition to non-Euclidean spaces:
//   - Diff(x₀, x₁) = x₁ ⊖ x₀
//   - Integrate(x, 𝛿x) = x ⊕ 𝛿x
type State interface {
	Nx() int
	Ndx() int
	// Zero returns a freshly allocated neutral state.
	Zero() []float64
	// Diff stores x₁ ⊖ x₀ into dx.
	Diff(x0, x1, dx []float64)
	// Integrate stores x ⊕ dx into xout. xout may alias x.
	Integrate(x, dx, xout []float64)
}

// StateVector is the Euclidean space ℝⁿ.
type StateVector struct {
	n int
}

// NewStateVector returns the Euclidean state of dimension n.
func NewStateVector(n int) *StateVector {
	if n <= 0 {
		panic("state dimension must greater than 0")
	}
	return &StateVector{n: n}
}

func (s *StateVector) Nx() int  { return s.n }
func (s *StateVector) Ndx() int { return s.n }

func (s *StateVector) Zero() []float64 {
	return make([]float64, s.n)
}

func (s *StateVector) Diff(x0, x1, dx []float64) {
	if len(x0) != s.n || len(x1) != s.n || len(dx) != s.n {
		panic("bound check error")
	}
	for i := range dx {
		dx[i] = x1[i] - x0[i]
	}
}

func (s *StateVector) Integrate(x, dx, xout []float64) {
	if len(x) != s.n || len(dx) != s.n || len(xout) != s.n {
		panic("bound check error")
	}
	for i := range xout {
		xout[i] = x[i] + dx[i]
	}
}

// StateSO2 is the rotation group of the plane.
// A rotation by θ is stored as the unit vector (cos θ, sin θ),
// its tangent space is the scalar angular increment.
type StateSO2 struct{}

// NewStateSO2 returns the planar rotation state.
func NewStateSO2() StateSO2 { return StateSO2{} }

// Angle returns θ ∈ (-π, π] of a stored rotation.
func (StateSO2) Angle(x []float64) float64 {
	return math.Atan2(x[1], x[0])
}

// FromAngle stores the rotation θ into x.
func (StateSO2) FromAngle(theta float64, x []float64) {
	x[0], x[1] = math.Cos(theta), math.Sin(theta)
}

func (StateSO2) Nx() int  { return 2 }
func (StateSO2) Ndx() int { return 1 }

func (StateSO2) Zero() []float64 {
	return []float64{1, 0}
}

// Diff returns the shortest signed angle taking x₀ onto x₁.
func (StateSO2) Diff(x0, x1, dx []float64) {
	if len(x0) != 2 || len(x1) != 2 || len(dx) != 1 {
		panic("bound check error")
	}
	// R₀ᵀR₁
	c := x0[0]*x1[0] + x0[1]*x1[1]
	s := x0[0]*x1[1] - x0[1]*x1[0]
	dx[0] = math.Atan2(s, c)
}

func (StateSO2) Integrate(x, dx, xout []float64) {
	if len(x) != 2 || len(dx) != 1 || len(xout) != 2 {
		panic("bound check error")
	}
	dc, ds := math.Cos(dx[0]), math.Sin(dx[0])
	c, s := x[0], x[1]
	xout[0] = c*dc - s*ds
	xout[1] = s*dc + c*ds
}

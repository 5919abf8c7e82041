// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// Retraction stores x₀ ⊕ dx into x, where dx is a tangent increment at x₀.
type Retraction func(x0, dx, x []float64)

// ApproxSpec estimates the Jacobian of a function whose argument may live on a manifold.
//
// The input point has an Nx-dimensional representation and an N-dimensional tangent space;
// the i-th column of the Jacobian is obtained by perturbing x₀ along the i-th tangent direction:
//
//	J[:,i] ≈ (f(x₀ ⊕ hᵢeᵢ) - f(x₀)) / hᵢ              (Forward)
//	J[:,i] ≈ (f(x₀ ⊕ hᵢeᵢ) - f(x₀ ⊕ -hᵢeᵢ)) / 2hᵢ      (Central)
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type ApproxSpec struct {
	N, M int
	// Dimension of the input representation, zero means N.
	Nx int
	// Function of which to estimate the derivatives.
	// The argument x passed to this function is an Nx-vector.
	// The result is store in an M-vector y.
	Object func(x, y []float64)
	// Retraction used to move along tangent directions.
	// The Euclidean x₀ + dx is used when nil.
	Retract Retraction
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = RelStep * sign(x0) * max(1, abs(x0)) with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	// With a retraction the coordinates of x0 carry no scale and 1 is used instead of abs(x0).
	RelStep float64
	// Absolute step size to use.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	// Whether transpose the Jacobian matrix.
	TransJac bool
	approxCtx
}

type approxCtx struct {
	f0, fx  []float64
	absStep []float64
	dx, xt  []float64
}

// Check the parameters and initialize approxCtx.
func (as *ApproxSpec) Check(x0, diff []float64) (err error) {

	nx := as.Nx
	if nx == 0 {
		nx = as.N
	}

	switch {
	case as.N <= 0 || as.M <= 0 || nx < 0:
		err = errors.New("negative dimensions")
	case as.Retract == nil && nx != as.N:
		err = errors.New("representation dimension requires a retraction")
	case as.Method != Forward && as.Method != Central:
		err = errors.New("unknown method")
	case as.Object == nil:
		err = errors.New("object function is required")
	case nx != len(x0):
		err = errors.New("invalid x0 dimensions")
	case as.N*as.M != len(diff):
		err = errors.New("invalid diff dimensions")
	}
	if err != nil {
		return
	}

	if len(as.fx) != as.M*(int(as.Method)+1) {
		as.f0 = make([]float64, as.M)
		as.fx = make([]float64, as.M*(int(as.Method)+1))
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
		as.dx = make([]float64, as.N)
	}
	if len(as.xt) != nx {
		as.xt = make([]float64, nx)
	}
	return
}

// Diff calculate approximation of derivatives by finite differences.
// The Jacobian is stored row-major as M×N, or N×M when TransJac is set.
func (as *ApproxSpec) Diff(x0, diff []float64) error {

	if err := as.Check(x0, diff); err != nil {
		return err
	}

	as.absoluteStep(x0)

	if as.Method == Central {
		for i, v := range as.absStep {
			as.absStep[i] = math.Abs(v)
		}
		as.approxCentral(x0, diff)
	} else {
		as.approxForward(x0, diff)
	}

	return nil
}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	h := as.absStep
	if len(h) != as.N {
		panic("bound check error")
	}

	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	// tangent coordinates have no reference value
	scale := func(i int) float64 {
		if as.Retract != nil {
			return 1
		}
		return x0[i]
	}

	abs := as.AbsStep
	rel := as.RelStep
	if abs == 0 && rel == 0 {
		for i := range h {
			v := scale(i)
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	} else {
		for i := range h {
			v := scale(i)
			s := abs
			if s == 0 {
				s = math.Copysign(rel, v) * math.Abs(v)
			}
			d := (v + s) - v
			if d == 0 {
				s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			}
			h[i] = s
		}
	}
}

// perturb evaluates the object at x₀ ⊕ s·eᵢ.
func (as *ApproxSpec) perturb(x0 []float64, i int, s float64, y []float64) {
	xt := as.xt
	if as.Retract == nil {
		copy(xt, x0)
		xt[i] += s
	} else {
		dx := as.dx
		for k := range dx {
			dx[k] = 0
		}
		dx[i] = s
		as.Retract(x0, dx, xt)
	}
	as.Object(xt, y)
}

func (as *ApproxSpec) store(df []float64, i int, col func(j int) float64) {
	n, m := as.N, as.M
	if !as.TransJac {
		for j := 0; j < m; j++ {
			df[i+j*n] = col(j)
		}
	} else {
		t := df[i*m : (i+1)*m]
		for j := range t {
			t[j] = col(j)
		}
	}
}

func (as *ApproxSpec) approxForward(x0, df []float64) {

	f0, fx, h := as.f0, as.fx, as.absStep
	if len(f0) != len(fx) {
		panic("bound check error")
	}

	as.Object(x0, f0)
	for i, s := range h {
		as.perturb(x0, i, s, fx)
		d := 1.0 / s
		as.store(df, i, func(j int) float64 {
			return (fx[j] - f0[j]) * d
		})
	}
}

func (as *ApproxSpec) approxCentral(x0, df []float64) {

	h, m := as.absStep, as.M
	f1, f2 := as.fx[:m], as.fx[m:]
	if len(f1) != len(f2) {
		panic("bound check error")
	}

	for i, s := range h {
		as.perturb(x0, i, -s, f1)
		as.perturb(x0, i, s, f2)
		d := 1.0 / (2 * s)
		as.store(df, i, func(j int) float64 {
			return (f2[j] - f1[j]) * d
		})
	}
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"fmt"
	"math"

	"github.com/curioloop/trajopt/shooting"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Callback is invoked once per iteration after the stopping criterion is evaluated.
// The solver must not be modified from a callback.
type Callback func(s *Solver)

// kktSpec holds what never changes after New.
type kktSpec struct {
	problem *shooting.Problem
	// horizon
	T int
	// stacked dimensions of states, tangent increments and controls
	nx, ndx, nu int
	// offsets of node t inside the stacked tangent (T+1) and control (T) vectors
	ix, iu []int
	// descending step lengths
	alphas []float64
	Options
	log *zap.Logger
}

// kktCtx holds the buffers and scalars mutated while solving.
//
// The KKT system is ordered as [𝛿x₀ … 𝛿x_T | 𝛿u₀ … 𝛿u_{T-1} | λ₀ … λ_T]:
//
//	⎡ H  Jᵀ ⎤ ⎡ p ⎤     ⎡ g ⎤
//	⎣ J  0  ⎦ ⎣ λ ⎦ = - ⎣ c ⎦
//
// where H is the regularized cost Hessian, g the cost gradient,
// J the linearized continuity constraints and c the gaps.
type kktCtx struct {
	xs, us       [][]float64
	xsTry, usTry [][]float64
	dxs, dus     [][]float64
	lambdas      [][]float64
	dx           []float64 // scaled tangent increment of one node

	kkt        *mat.Dense    // 2ndx+nu square
	kktRef     *mat.VecDense // [g; c]
	primalDual *mat.VecDense // [p; λ]
	primal     *mat.VecDense // view of primalDual
	dual       *mat.VecDense // view of primalDual
	kktPrimal  *mat.VecDense // H p
	dF         *mat.VecDense // Jᵀλ

	// views of kkt and kktRef
	hess, jac, jacT *mat.Dense
	grad, gap       *mat.VecDense

	// block factorization
	hsym, ssym   *mat.SymDense
	cholH, cholS mat.Cholesky
	hinvJt       *mat.Dense // H⁻¹Jᵀ
	schur        *mat.Dense // JH⁻¹Jᵀ
	hinvG        *mat.VecDense
	tmpPrimal    *mat.VecDense
	tmpDual      *mat.VecDense

	cost, costTry float64
	// regularization and the amount currently added to the diagonal of kkt
	xreg, ureg               float64
	xregApplied, uregApplied float64

	iter        int
	steplength  float64
	stop        float64
	d           [2]float64
	dV, dVexp   float64
	isFeasible  bool
	wasFeasible bool
}

// Solver is the direct KKT solver of a shooting problem.
// To avoid race conditions, separate solvers need to be created for each goroutine.
type Solver struct {
	spec      kktSpec
	ctx       kktCtx
	callbacks []Callback
}

// New allocates a solver for problem. A nil opts uses DefaultOptions.
func New(problem *shooting.Problem, opts *Options) (*Solver, error) {

	if problem == nil {
		return nil, fmt.Errorf("%w: problem is required", ErrInvalidOptions)
	}
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if err := o.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	T := problem.T()
	spec := kktSpec{
		problem: problem,
		T:       T,
		ix:      make([]int, T+1),
		iu:      make([]int, T),
		alphas:  make([]float64, o.NumSteps),
		Options: o,
		log:     log.Named("kkt"),
	}
	for n := range spec.alphas {
		spec.alphas[n] = one / math.Pow(two, float64(n))
	}

	s := &Solver{spec: spec}
	s.allocate()
	return s, nil
}

func (s *Solver) allocate() {
	spec, ctx := &s.spec, &s.ctx
	p, T := spec.problem, spec.T

	ctx.xs = make([][]float64, T+1)
	ctx.xsTry = make([][]float64, T+1)
	ctx.dxs = make([][]float64, T+1)
	ctx.lambdas = make([][]float64, T+1)
	ctx.us = make([][]float64, T)
	ctx.usTry = make([][]float64, T)
	ctx.dus = make([][]float64, T)

	maxNdx := 0
	for t := 0; t <= T; t++ {
		st := p.State(t)
		nx, ndx := st.Nx(), st.Ndx()
		spec.ix[t] = spec.ndx
		spec.nx += nx
		spec.ndx += ndx
		maxNdx = max(maxNdx, ndx)

		ctx.xs[t] = st.Zero()
		ctx.xsTry[t] = st.Zero()
		ctx.dxs[t] = make([]float64, ndx)
		ctx.lambdas[t] = make([]float64, ndx)
		if t == T {
			break
		}
		nu := p.RunningModels()[t].Nu()
		spec.iu[t] = spec.nu
		spec.nu += nu
		ctx.us[t] = make([]float64, nu)
		ctx.usTry[t] = make([]float64, nu)
		ctx.dus[t] = make([]float64, nu)
	}
	copy(ctx.xs[0], p.X0())
	copy(ctx.xsTry[0], p.X0())
	ctx.dx = make([]float64, maxNdx)

	ndx, nu := spec.ndx, spec.nu
	n1, n := ndx+nu, 2*ndx+nu

	ctx.kkt = mat.NewDense(n, n, nil)
	ctx.kktRef = mat.NewVecDense(n, nil)
	ctx.primalDual = mat.NewVecDense(n, nil)
	ctx.primal = ctx.primalDual.SliceVec(0, n1).(*mat.VecDense)
	ctx.dual = ctx.primalDual.SliceVec(n1, n).(*mat.VecDense)
	ctx.kktPrimal = mat.NewVecDense(n1, nil)
	ctx.dF = mat.NewVecDense(n1, nil)

	ctx.hess = ctx.kkt.Slice(0, n1, 0, n1).(*mat.Dense)
	ctx.jac = ctx.kkt.Slice(n1, n, 0, n1).(*mat.Dense)
	ctx.jacT = ctx.kkt.Slice(0, n1, n1, n).(*mat.Dense)
	ctx.grad = ctx.kktRef.SliceVec(0, n1).(*mat.VecDense)
	ctx.gap = ctx.kktRef.SliceVec(n1, n).(*mat.VecDense)

	ctx.hsym = mat.NewSymDense(n1, nil)
	ctx.ssym = mat.NewSymDense(ndx, nil)
	ctx.hinvJt = mat.NewDense(n1, ndx, nil)
	ctx.schur = mat.NewDense(ndx, ndx, nil)
	ctx.hinvG = mat.NewVecDense(n1, nil)
	ctx.tmpPrimal = mat.NewVecDense(n1, nil)
	ctx.tmpDual = mat.NewVecDense(ndx, nil)

	ctx.xreg, ctx.ureg = math.NaN(), math.NaN()
	ctx.cost, ctx.costTry = math.NaN(), math.NaN()
}

// AddCallback registers cb to be invoked once per iteration.
func (s *Solver) AddCallback(cb ...Callback) {
	s.callbacks = append(s.callbacks, cb...)
}

// SetCandidate copies (xs, us) into the current iterate.
//
// A nil xs starts from x̄₀ followed by neutral states and a nil us from zero controls.
func (s *Solver) SetCandidate(xs, us [][]float64, isFeasible bool) error {
	spec, ctx := &s.spec, &s.ctx
	p := spec.problem

	if xs != nil {
		if err := p.Check(xs, ctx.us); err != nil {
			return err
		}
	}
	if us != nil {
		if err := p.Check(ctx.xs, us); err != nil {
			return err
		}
	}

	if xs == nil {
		copy(ctx.xs[0], p.X0())
		for t := 1; t <= spec.T; t++ {
			copy(ctx.xs[t], p.State(t).Zero())
		}
	} else {
		for t, x := range xs {
			copy(ctx.xs[t], x)
		}
	}
	if us == nil {
		for _, u := range ctx.us {
			clear(u)
		}
	} else {
		for t, u := range us {
			copy(ctx.us[t], u)
		}
	}
	ctx.isFeasible = isFeasible
	return nil
}

// SetRegularization sets the state and control regularization, NaN disables it.
func (s *Solver) SetRegularization(xreg, ureg float64) {
	s.ctx.xreg, s.ctx.ureg = xreg, ureg
}

// Problem returns the problem being solved.
func (s *Solver) Problem() *shooting.Problem { return s.spec.problem }

// Options returns the options in use.
func (s *Solver) Options() Options { return s.spec.Options }

// Dims returns the stacked state, tangent and control dimensions.
func (s *Solver) Dims() (nx, ndx, nu int) { return s.spec.nx, s.spec.ndx, s.spec.nu }

// StepLengths returns the candidate step lengths, largest first.
func (s *Solver) StepLengths() []float64 { return s.spec.alphas }

// Xs returns the state trajectory of the current iterate.
func (s *Solver) Xs() [][]float64 { return s.ctx.xs }

// Us returns the control trajectory of the current iterate.
func (s *Solver) Us() [][]float64 { return s.ctx.us }

// Dxs returns the state increments of the last direction.
func (s *Solver) Dxs() [][]float64 { return s.ctx.dxs }

// Dus returns the control increments of the last direction.
func (s *Solver) Dus() [][]float64 { return s.ctx.dus }

// Lambdas returns the continuity multipliers of the last direction.
func (s *Solver) Lambdas() [][]float64 { return s.ctx.lambdas }

// Xreg returns the state regularization.
func (s *Solver) Xreg() float64 { return s.ctx.xreg }

// Ureg returns the control regularization.
func (s *Solver) Ureg() float64 { return s.ctx.ureg }

// Cost returns the total cost of the current iterate.
func (s *Solver) Cost() float64 { return s.ctx.cost }

// Stop returns the last stopping criterion value.
func (s *Solver) Stop() float64 { return s.ctx.stop }

// Steplength returns the step length of the last line search.
func (s *Solver) Steplength() float64 { return s.ctx.steplength }

// Iter returns the index of the current iteration.
func (s *Solver) Iter() int { return s.ctx.iter }

// IsFeasible reports whether the current iterate satisfies the dynamics.
func (s *Solver) IsFeasible() bool { return s.ctx.isFeasible }

// WasFeasible reports whether the iterate before the last accepted step was feasible.
func (s *Solver) WasFeasible() bool { return s.ctx.wasFeasible }

// DV returns the actual cost decrease of the last trial step.
func (s *Solver) DV() float64 { return s.ctx.dV }

// DVexp returns the predicted cost decrease of the last trial step.
func (s *Solver) DVexp() float64 { return s.ctx.dVexp }

// KKT returns the assembled KKT matrix.
func (s *Solver) KKT() mat.Matrix { return s.ctx.kkt }

// KKTRef returns the assembled KKT residual [g; c].
func (s *Solver) KKTRef() mat.Vector { return s.ctx.kktRef }

// PrimalDual returns the solution [p; λ] of the last KKT solve.
func (s *Solver) PrimalDual() mat.Vector { return s.ctx.primalDual }

// Primal returns the view p of PrimalDual.
func (s *Solver) Primal() mat.Vector { return s.ctx.primal }

// Dual returns the view λ of PrimalDual.
func (s *Solver) Dual() mat.Vector { return s.ctx.dual }

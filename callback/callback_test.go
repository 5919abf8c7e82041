// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package callback

import (
	"math"
	"testing"

	"github.com/curioloop/trajopt/kkt"
	"github.com/curioloop/trajopt/shooting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

func solve(t *testing.T, cbs ...kkt.Callback) *kkt.Solver {
	t.Helper()
	one := mat.NewDense(1, 1, []float64{1})
	two := mat.NewDense(1, 1, []float64{2})
	running := make([]shooting.ActionModel, 3)
	for i := range running {
		m, err := shooting.NewActionModelLQR(one, one, two, two)
		require.NoError(t, err)
		running[i] = m
	}
	terminal, err := shooting.NewActionModelLQR(one, nil, two, nil)
	require.NoError(t, err)
	p, err := shooting.NewProblem([]float64{1}, running, terminal)
	require.NoError(t, err)

	s, err := kkt.New(p, nil)
	require.NoError(t, err)
	s.AddCallback(cbs...)
	ok, err := s.Solve(nil, nil, 10, false, math.NaN())
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func TestLogger(t *testing.T) {
	l := NewLogger()
	s := solve(t, l.Callback)

	require.Equal(t, s.Iter()+1, l.Len())
	for i := 0; i < l.Len(); i++ {
		assert.Equal(t, i, l.Iters[i])
		assert.GreaterOrEqual(t, l.Stops[i], 0.0)
		assert.Equal(t, l.Xregs[i], l.Uregs[i])
		assert.True(t, l.Feasible[i])
	}
	assert.Len(t, l.Costs, l.Len())
	assert.Len(t, l.Steps, l.Len())
	assert.Equal(t, s.Cost(), l.Costs[l.Len()-1])
	assert.Equal(t, s.Stop(), l.Stops[l.Len()-1])

	l.Reset()
	assert.Equal(t, 0, l.Len())
}

func TestVerbose(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := solve(t, Verbose(zap.New(core)))

	entries := logs.FilterMessage("iteration").All()
	require.Len(t, entries, s.Iter()+1)
	for i, e := range entries {
		fields := e.ContextMap()
		assert.Equal(t, int64(i), fields["iter"])
		for _, k := range []string{"cost", "stop", "xreg", "ureg", "step", "dV", "dVexp"} {
			assert.Contains(t, fields, k)
		}
		assert.Equal(t, true, fields["feasible"])
	}

	// a nil logger is accepted
	solve(t, Verbose(nil))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	s := solve(t, m.Callback)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	var observed uint64
	for _, mf := range families {
		metric := mf.GetMetric()[0]
		switch {
		case metric.GetGauge() != nil:
			values[mf.GetName()] = metric.GetGauge().GetValue()
		case metric.GetCounter() != nil:
			values[mf.GetName()] = metric.GetCounter().GetValue()
		case metric.GetHistogram() != nil:
			observed = metric.GetHistogram().GetSampleCount()
		}
	}

	iters := float64(s.Iter() + 1)
	assert.Equal(t, iters, values["kkt_iterations_total"])
	assert.Equal(t, 0.0, values["kkt_infeasible_iterations_total"])
	assert.Equal(t, s.Cost(), values["kkt_cost"])
	assert.Equal(t, s.Stop(), values["kkt_stop"])
	assert.Equal(t, s.Xreg(), values["kkt_regularization"])
	assert.Equal(t, s.Steplength(), values["kkt_step_length"])
	assert.Equal(t, uint64(iters), observed)

	// collectors cannot be registered twice
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetricsRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	taken := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "regularization"})
	require.NoError(t, reg.Register(taken))

	_, err := NewMetrics(reg)
	require.Error(t, err)

	// collectors registered before the conflict were released
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "kkt_regularization", families[0].GetName())

	require.True(t, reg.Unregister(taken))
	_, err = NewMetrics(reg)
	assert.NoError(t, err)
}

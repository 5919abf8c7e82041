// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package callback

import (
	"fmt"

	"github.com/curioloop/trajopt/kkt"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kkt"

// Metrics exports the progress of a solve as prometheus collectors.
type Metrics struct {
	cost       prometheus.Gauge
	stop       prometheus.Gauge
	xreg       prometheus.Gauge
	step       prometheus.Gauge
	iterations prometheus.Counter
	infeasible prometheus.Counter
	steps      prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// Nothing stays registered when an error is returned.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost",
			Help:      "Total cost of the current iterate",
		}),
		stop: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stop",
			Help:      "Stopping criterion of the last iteration",
		}),
		xreg: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regularization",
			Help:      "State regularization after the last iteration",
		}),
		step: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_length",
			Help:      "Step length of the last iteration",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Total number of iterations",
		}),
		infeasible: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infeasible_iterations_total",
			Help:      "Iterations ending on an iterate that violates the dynamics",
		}),
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_lengths",
			Help:      "Distribution of step lengths",
			Buckets:   prometheus.ExponentialBuckets(1.0/1024, 2, 11),
		}),
	}
	collectors := []prometheus.Collector{m.cost, m.stop, m.xreg, m.step, m.iterations, m.infeasible, m.steps}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// leave reg as it was
			for _, r := range collectors[:i] {
				reg.Unregister(r)
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Callback updates the collectors from s.
func (m *Metrics) Callback(s *kkt.Solver) {
	m.cost.Set(s.Cost())
	m.stop.Set(s.Stop())
	m.xreg.Set(s.Xreg())
	m.step.Set(s.Steplength())
	m.steps.Observe(s.Steplength())
	m.iterations.Inc()
	if !s.IsFeasible() {
		m.infeasible.Inc()
	}
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/curioloop/trajopt/callback"
	"github.com/curioloop/trajopt/internal/config"
	"github.com/curioloop/trajopt/kkt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type options struct {
	configPath string
	outputPath string
	metrics    bool
	verbose    bool
}

// result is the YAML document written after a solve.
type result struct {
	Kind       string      `yaml:"kind"`
	Converged  bool        `yaml:"converged"`
	Iterations int         `yaml:"iterations"`
	Cost       float64     `yaml:"cost"`
	Stop       float64     `yaml:"stop"`
	Xreg       float64     `yaml:"xreg"`
	Xs         [][]float64 `yaml:"xs,flow"`
	Us         [][]float64 `yaml:"us,flow"`
	History    history     `yaml:"history"`
}

type history struct {
	Cost []float64 `yaml:"cost,flow"`
	Stop []float64 `yaml:"stop,flow"`
	Step []float64 `yaml:"step,flow"`
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "kktsolve",
		Short: "Solve a multiple-shooting optimal control problem with a direct KKT solver",
		Long: `kktsolve builds the configured demo problem, warm-starts it with a rollout
of zero controls and solves it. Settings come from the defaults, an optional
YAML file and KKTSOLVE_ environment variables, in increasing precedence.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&o.outputPath, "output", "o", "-", "result file, - for stdout")
	f.BoolVar(&o.metrics, "metrics", false, "print the solver metrics to stderr")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log every iteration")
	return cmd
}

func newLogger(cfg *config.Config, w io.Writer) *zap.Logger {
	zc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zc), zapcore.AddSync(w), cfg.Level())
	return zap.New(core)
}

func run(cmd *cobra.Command, o options) error {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	problem, err := buildProblem(cfg.Problem)
	if err != nil {
		return fmt.Errorf("failed to build problem: %w", err)
	}

	opts := cfg.Solver
	opts.Logger = logger
	solver, err := kkt.New(problem, &opts)
	if err != nil {
		return err
	}

	hist := callback.NewLogger()
	solver.AddCallback(hist.Callback)
	if o.verbose || cfg.Log.Verbose {
		solver.AddCallback(callback.Verbose(logger))
	}
	reg := prometheus.NewRegistry()
	if o.metrics {
		m, err := callback.NewMetrics(reg)
		if err != nil {
			return err
		}
		solver.AddCallback(m.Callback)
	}

	xs, us, err := warmStart(problem)
	if err != nil {
		return fmt.Errorf("failed to warm start: %w", err)
	}
	converged, err := solver.Solve(xs, us, cfg.Problem.MaxIter, true, cfg.Problem.RegInit)
	if err != nil {
		return fmt.Errorf("solve failed: %w", err)
	}
	logger.Info("solve finished",
		zap.String("kind", cfg.Problem.Kind),
		zap.Bool("converged", converged),
		zap.Int("iterations", hist.Len()),
		zap.Float64("cost", solver.Cost()))

	res := result{
		Kind:       cfg.Problem.Kind,
		Converged:  converged,
		Iterations: hist.Len(),
		Cost:       solver.Cost(),
		Stop:       solver.Stop(),
		Xreg:       solver.Xreg(),
		Xs:         solver.Xs(),
		Us:         solver.Us(),
		History:    history{Cost: hist.Costs, Stop: hist.Stops, Step: hist.Steps},
	}
	if err := writeResult(cmd.OutOrStdout(), o.outputPath, &res); err != nil {
		return err
	}

	if o.metrics {
		return printMetrics(cmd.ErrOrStderr(), reg)
	}
	return nil
}

func writeResult(stdout io.Writer, path string, res *result) (err error) {
	w := stdout
	if path != "-" && path != "" {
		var f *os.File
		if f, err = os.Create(path); err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return enc.Close()
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", mf.GetName(), m.GetGauge().GetValue())
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", mf.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s_count %d\n", mf.GetName(), h.GetSampleCount())
				fmt.Fprintf(w, "%s_sum %g\n", mf.GetName(), h.GetSampleSum())
			}
		}
	}
	return nil
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the configuration of the kktsolve command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/curioloop/trajopt/kkt"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables overriding the configuration.
const EnvPrefix = "KKTSOLVE_"

const maxConfigFileSize = 1 << 20

// Problem kinds understood by the command.
const (
	KindLQR      = "lqr"
	KindUnicycle = "unicycle"
)

// Config is the configuration of a kktsolve run.
type Config struct {
	Solver  kkt.Options `koanf:"solver" yaml:"solver"`
	Problem Problem     `koanf:"problem" yaml:"problem"`
	Log     Log         `koanf:"log" yaml:"log"`
}

// Problem describes the demo problem to build and how to solve it.
type Problem struct {
	// Kind is one of KindLQR and KindUnicycle.
	Kind    string `koanf:"kind" yaml:"kind"`
	Horizon int    `koanf:"horizon" yaml:"horizon"`
	// Dt is the integration step of the unicycle.
	Dt float64 `koanf:"dt" yaml:"dt"`
	// X0 overrides the initial state of the problem.
	X0 []float64 `koanf:"x0" yaml:"x0"`
	// NumDiff replaces analytic derivatives with finite differences.
	NumDiff bool    `koanf:"numdiff" yaml:"numdiff"`
	MaxIter int     `koanf:"max_iter" yaml:"max_iter"`
	RegInit float64 `koanf:"reg_init" yaml:"reg_init"`
}

// Log selects the verbosity of the command.
type Log struct {
	Level string `koanf:"level" yaml:"level"`
	// Verbose logs every solver iteration.
	Verbose bool `koanf:"verbose" yaml:"verbose"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Solver: kkt.DefaultOptions(),
		Problem: Problem{
			Kind:    KindUnicycle,
			Horizon: 20,
			Dt:      0.1,
			MaxIter: 100,
			RegInit: 1e-9,
		},
		Log: Log{Level: "info"},
	}
}

// Load builds the configuration from, in increasing precedence,
// the defaults, the YAML content when not empty, and the environment.
//
// Environment variables map onto keys by splitting on the first underscore
// after the prefix:
//
//	KKTSOLVE_SOLVER_REG_MIN  -> solver.reg_min
//	KKTSOLVE_PROBLEM_KIND    -> problem.kind
func Load(content []byte) (*Config, error) {
	k := koanf.New(".")

	defaults, err := yamlv3.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads the YAML file at path then applies Load.
// An empty path loads the defaults and the environment only.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load(nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(content)
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Validate checks the problem and logging settings.
// Solver options are checked by kkt.New.
func (c *Config) Validate() (err error) {
	p := c.Problem
	switch {
	case p.Kind != KindLQR && p.Kind != KindUnicycle:
		err = fmt.Errorf("unknown problem kind %q", p.Kind)
	case p.Horizon <= 0:
		err = errors.New("horizon must greater than 0")
	case !(p.Dt > 0):
		err = errors.New("integration step must greater than 0")
	case p.MaxIter < 0:
		err = errors.New("iteration limit must not less than 0")
	case p.RegInit < 0:
		err = errors.New("initial regularization must not less than 0")
	}
	if err != nil {
		return
	}
	if _, err = zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config resolves the runtime knobs an interpreter instance is
// built from: the recursion limit (spec §7), the module search path (spec
// §6 embedding API), and PYRO_RAISE_ON_UNIMPLEMENTED (spec §6).
//
// Grounded on the teacher's options.go: a functional-options struct
// (Option wraps an apply closure rather than being a bare func type or an
// interface) plus its own use of gopkg.in/yaml.v3 for file-based settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pyro-lang/pyro/internal/interp"
)

// Config is the resolved set of runtime knobs. Build one with New or
// LoadYAML; the exported fields exist so yaml.Unmarshal can decode directly
// into them, but Option is the supported way to set them programmatically.
type Config struct {
	RecursionLimit       int      `yaml:"recursion_limit"`
	SearchPath           []string `yaml:"search_path"`
	RaiseOnUnimplemented bool     `yaml:"raise_on_unimplemented"`
}

// Option is a functional configuration setting.
type Option struct{ apply func(*Config) }

// WithRecursionLimit overrides the maximum live call-stack depth
// (Machine.RecursionLimit, spec §7 "cooperative stack-overflow
// protection").
func WithRecursionLimit(n int) Option {
	return Option{func(c *Config) { c.RecursionLimit = n }}
}

// WithSearchPath sets the module search path an embedding collaborator
// consults to resolve an import (spec §6 embedding API).
func WithSearchPath(paths ...string) Option {
	return Option{func(c *Config) { c.SearchPath = append([]string(nil), paths...) }}
}

// WithRaiseOnUnimplemented toggles the behavior spec §6's
// PYRO_RAISE_ON_UNIMPLEMENTED environment variable names: whether hitting
// an opcode or builtin this exercise left unimplemented raises a catchable
// exception instead of failing the call outright.
func WithRaiseOnUnimplemented(raise bool) Option {
	return Option{func(c *Config) { c.RaiseOnUnimplemented = raise }}
}

// New builds a Config from defaults — interp.DefaultRecursionLimit, no
// search path, PYRO_RAISE_ON_UNIMPLEMENTED read from the environment —
// with opts applied afterward, in order.
func New(opts ...Option) *Config {
	c := &Config{
		RecursionLimit:       interp.DefaultRecursionLimit,
		RaiseOnUnimplemented: os.Getenv("PYRO_RAISE_ON_UNIMPLEMENTED") != "",
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// LoadYAML reads a Config from a YAML file (the cmd/pyro CLI's
// configuration path, SPEC_FULL.md §1). Fields the file omits keep New's
// defaults; opts are applied after the file is parsed, so a caller can use
// them to let command-line flags override a loaded file.
func LoadYAML(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pyro: reading config %s: %w", path, err)
	}

	c := New()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("pyro: parsing config %s: %w", path, err)
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c, nil
}

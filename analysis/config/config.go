// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
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

// Package config defines the deduction engine's configuration record and
// the leveled logger threaded through every analysis.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config tunes a deduction run. If some field is not defined in the config
// file, it will be zero in the struct; Load applies the defaults afterwards.
type Config struct {
	// MaxIterations caps the fixpoint loop (default 32).
	MaxIterations int `yaml:"max-iterations"`

	// DepRecomputeInterval discards the dependency graph every n
	// iterations to flush stale edges; 0 disables (default 4).
	DepRecomputeInterval int `yaml:"dep-recompute-interval"`

	// MaxHeapToStackSize bounds the allocations the heap-to-stack
	// rewrite will move, in bytes (default 128).
	MaxHeapToStackSize int64 `yaml:"max-heap-to-stack-size"`

	// EnableHeapToStack turns the heap-to-stack rewrite on (default true).
	EnableHeapToStack *bool `yaml:"enable-heap-to-stack"`

	// EnableShallowWrappers wraps non-amendable functions so deductions
	// about their bodies stay usable (default false).
	EnableShallowWrappers bool `yaml:"enable-shallow-wrappers"`

	// AnnotateDeclarationCallSites manifests deductions on call sites of
	// declared-only functions (default false).
	AnnotateDeclarationCallSites bool `yaml:"annotate-declaration-call-sites"`

	// VerifyMaxIterations aborts with a diagnostic when the iteration cap
	// is reached instead of pessimizing the stragglers (default false).
	VerifyMaxIterations bool `yaml:"verify-max-iterations"`

	// LogLevel controls the verbosity of the log group (default info).
	LogLevel int `yaml:"log-level"`

	sourceFile string
}

// NewDefault returns a config holding the documented defaults.
func NewDefault() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 32
	}
	if c.DepRecomputeInterval == 0 {
		c.DepRecomputeInterval = 4
	}
	if c.MaxHeapToStackSize == 0 {
		c.MaxHeapToStackSize = 128
	}
	if c.EnableHeapToStack == nil {
		t := true
		c.EnableHeapToStack = &t
	}
	if c.LogLevel == 0 {
		c.LogLevel = int(InfoLevel)
	}
}

// HeapToStackEnabled returns whether the heap-to-stack rewrite runs.
func (c *Config) HeapToStackEnabled() bool {
	return c.EnableHeapToStack == nil || *c.EnableHeapToStack
}

// SourceFile returns the file the config was loaded from, if any.
func (c *Config) SourceFile() string { return c.sourceFile }

// Load reads a yaml config file and applies the defaults. An empty
// filename yields the default config.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return NewDefault(), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", filename, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", filename, err)
	}
	cfg.sourceFile = filename
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return cfg, nil
}

// Validate rejects configurations no run could honor.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max-iterations must be positive, got %d", c.MaxIterations)
	}
	if c.DepRecomputeInterval < 0 {
		return fmt.Errorf("dep-recompute-interval must be non-negative, got %d", c.DepRecomputeInterval)
	}
	if c.MaxHeapToStackSize < 0 {
		return fmt.Errorf("max-heap-to-stack-size must be non-negative, got %d", c.MaxHeapToStackSize)
	}
	if c.LogLevel < int(ErrLevel) || c.LogLevel > int(TraceLevel) {
		return fmt.Errorf("log-level must be between %d and %d, got %d", ErrLevel, TraceLevel, c.LogLevel)
	}
	return nil
}

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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.NewDefault()
	if cfg.MaxIterations != 32 {
		t.Errorf("default max-iterations should be 32, got %d", cfg.MaxIterations)
	}
	if cfg.DepRecomputeInterval != 4 {
		t.Errorf("default dep-recompute-interval should be 4, got %d", cfg.DepRecomputeInterval)
	}
	if cfg.MaxHeapToStackSize != 128 {
		t.Errorf("default max-heap-to-stack-size should be 128, got %d", cfg.MaxHeapToStackSize)
	}
	if !cfg.HeapToStackEnabled() {
		t.Errorf("heap-to-stack should default to enabled")
	}
	if cfg.VerifyMaxIterations || cfg.EnableShallowWrappers {
		t.Errorf("verification and wrappers default to off")
	}
}

func TestLoadYaml(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	data := `
max-iterations: 8
max-heap-to-stack-size: 64
enable-heap-to-stack: false
verify-max-iterations: true
log-level: 4
`
	if err := os.WriteFile(file, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(file)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.MaxIterations != 8 {
		t.Errorf("max-iterations not loaded, got %d", cfg.MaxIterations)
	}
	if cfg.MaxHeapToStackSize != 64 {
		t.Errorf("max-heap-to-stack-size not loaded, got %d", cfg.MaxHeapToStackSize)
	}
	if cfg.HeapToStackEnabled() {
		t.Errorf("heap-to-stack should be disabled")
	}
	if !cfg.VerifyMaxIterations {
		t.Errorf("verify-max-iterations should be on")
	}
	if cfg.DepRecomputeInterval != 4 {
		t.Errorf("unset fields should default, got %d", cfg.DepRecomputeInterval)
	}
	if cfg.SourceFile() != file {
		t.Errorf("source file not recorded")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(file, []byte("max-iterations: -3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(file); err == nil {
		t.Errorf("negative max-iterations must be rejected")
	}
}

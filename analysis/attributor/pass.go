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

package attributor

import (
	"github.com/fixpoint-tools/deduce/analysis/callgraph"
	"github.com/fixpoint-tools/deduce/analysis/config"
	"github.com/fixpoint-tools/deduce/internal/funcutil"
	"github.com/fixpoint-tools/deduce/ir"
)

// RunOnFunctions deduces and manifests facts for the given functions. It
// reports whether the IR changed.
func RunOnFunctions(fns []*ir.Function, cache *InformationCache,
	cfg *config.Config, log *config.LogGroup, cg callgraph.Updater) bool {

	a := New(cfg, log, cache, fns)
	a.rewriter.SetCallGraphUpdater(cg)

	defined := funcutil.Filter(fns, func(f *ir.Function) bool { return !f.IsDeclaration() })
	for _, fn := range defined {
		if !fn.IsIPOAmendable() && cfg.EnableShallowWrappers {
			a.rewriter.CreateShallowWrapper(fn)
		}
		a.SeedFunction(fn)
	}
	log.Infof("seeded %d functions, %d records", len(defined), len(a.order))
	return bool(a.Run())
}

// RunOnModule is the module-pass shim: every function in the module is
// admitted.
func RunOnModule(m *ir.Module, cfg *config.Config, log *config.LogGroup,
	tli *ir.TargetLibraryInfo, cg callgraph.Updater) bool {

	cache := NewInformationCache(m, tli)
	return RunOnFunctions(m.Funcs, cache, cfg, log, cg)
}

// RunOnSCCs is the call-graph-SCC shim: components are processed
// callees-first, each component as one function set.
func RunOnSCCs(m *ir.Module, cfg *config.Config, log *config.LogGroup,
	tli *ir.TargetLibraryInfo, cg callgraph.Updater) bool {

	cache := NewInformationCache(m, tli)
	changed := false
	for _, scc := range cache.CallGraph.SCCs() {
		if len(scc) == 0 {
			continue
		}
		// Each component gets a fresh cache when the previous one changed
		// the IR underneath it.
		if changed {
			cache = NewInformationCache(m, tli)
		}
		changed = RunOnFunctions(scc, cache, cfg, log, cg) || changed
	}
	return changed
}

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

// Package callgraph builds the direct call graph of a module and its
// strongly connected components. Indirect calls contribute no edges; the
// engine treats their callees as unknown.
package callgraph

import (
	"github.com/fixpoint-tools/deduce/internal/graphutil"
	"github.com/fixpoint-tools/deduce/ir"
)

// Graph is the direct call graph of one module.
type Graph struct {
	Module *ir.Module

	index map[*ir.Function]int
	funcs []*ir.Function

	// sccID maps each function to its component; components are numbered
	// in reverse topological order (callees before callers).
	sccID   map[*ir.Function]int
	sccSize []int
}

// Build constructs the call graph and its SCCs.
func Build(m *ir.Module) *Graph {
	g := &Graph{
		Module: m,
		index:  map[*ir.Function]int{},
		sccID:  map[*ir.Function]int{},
	}
	for _, f := range m.Funcs {
		g.index[f] = len(g.funcs)
		g.funcs = append(g.funcs, f)
	}
	ig := graphutil.NewIntGraph(len(g.funcs))
	for _, f := range m.Funcs {
		f.Instructions(func(in ir.Instruction) bool {
			if cs, ok := ir.AsCallSite(in); ok {
				if callee := cs.Base.CalledFunction(); callee != nil {
					ig.AddEdge(g.index[f], g.index[callee])
				}
			}
			return true
		})
	}
	for id, comp := range ig.StrongComponents() {
		g.sccSize = append(g.sccSize, len(comp))
		for _, v := range comp {
			g.sccID[g.funcs[v]] = id
		}
	}
	return g
}

// SCCSize returns the size of f's strongly connected component.
func (g *Graph) SCCSize(f *ir.Function) int {
	id, ok := g.sccID[f]
	if !ok {
		return 1
	}
	return g.sccSize[id]
}

// InCycle reports whether f can transitively call itself: it sits in a
// non-trivial SCC, or carries a direct self edge.
func (g *Graph) InCycle(f *ir.Function) bool {
	if g.SCCSize(f) > 1 {
		return true
	}
	for _, cs := range ir.CallSitesOf(f) {
		if enclosing(cs) == f {
			return true
		}
	}
	return false
}

// SCCs returns the functions grouped by component, callees-first.
func (g *Graph) SCCs() [][]*ir.Function {
	out := make([][]*ir.Function, len(g.sccSize))
	for _, f := range g.funcs {
		id := g.sccID[f]
		out[id] = append(out[id], f)
	}
	return out
}

func enclosing(cs ir.CallSite) *ir.Function {
	if b := cs.Instr.Parent(); b != nil {
		return b.Parent()
	}
	return nil
}

// An Updater keeps an external call-graph representation coherent while
// the rewriter mutates the module. The engine never edits a graph
// directly; it reports every change through this interface.
type Updater interface {
	// Initialize is called once before any rewrite with the graph of the
	// functions under analysis.
	Initialize(g *Graph)

	// ReplaceCallSite reports that the call old was rewritten to new.
	ReplaceCallSite(old, new ir.Instruction)

	// ReplaceFunctionWith reports that every reference to old now goes to
	// new.
	ReplaceFunctionWith(old, new *ir.Function)

	// RemoveFunction reports that f was deleted from the module.
	RemoveFunction(f *ir.Function)

	// ReanalyzeFunction reports that f's body changed enough that cached
	// derived results are stale.
	ReanalyzeFunction(f *ir.Function)

	// Finalize is called once after the rewrite queue drained.
	Finalize()
}

// NoopUpdater ignores every notification. Standalone runs that rebuild
// analyses from scratch use it.
type NoopUpdater struct{}

func (NoopUpdater) Initialize(*Graph)                          {}
func (NoopUpdater) ReplaceCallSite(ir.Instruction, ir.Instruction) {}
func (NoopUpdater) ReplaceFunctionWith(*ir.Function, *ir.Function) {}
func (NoopUpdater) RemoveFunction(*ir.Function)                {}
func (NoopUpdater) ReanalyzeFunction(*ir.Function)             {}
func (NoopUpdater) Finalize()                                  {}

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

package callgraph_test

import (
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/callgraph"
	"github.com/fixpoint-tools/deduce/ir"
)

const cgSrc = `
define void @a() {
entry:
  call void @b()
  ret void
}

define void @b() {
entry:
  call void @a()
  ret void
}

define void @self() {
entry:
  call void @self()
  ret void
}

define void @leaf() {
entry:
  ret void
}
`

func TestSCCs(t *testing.T) {
	m := ir.MustParse(cgSrc)
	g := callgraph.Build(m)

	a := m.FuncNamed("a")
	b := m.FuncNamed("b")
	self := m.FuncNamed("self")
	leaf := m.FuncNamed("leaf")

	if g.SCCSize(a) != 2 || g.SCCSize(b) != 2 {
		t.Errorf("a and b form a 2-cycle, sizes %d/%d", g.SCCSize(a), g.SCCSize(b))
	}
	if !g.InCycle(a) || !g.InCycle(b) {
		t.Errorf("a and b are recursive")
	}
	if !g.InCycle(self) {
		t.Errorf("self edge is a cycle even in a singleton component")
	}
	if g.InCycle(leaf) {
		t.Errorf("leaf is not recursive")
	}

	total := 0
	for _, scc := range g.SCCs() {
		total += len(scc)
	}
	if total != len(m.Funcs) {
		t.Errorf("SCCs must partition the functions: %d != %d", total, len(m.Funcs))
	}
}

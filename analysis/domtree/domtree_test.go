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

package domtree_test

import (
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/domtree"
	"github.com/fixpoint-tools/deduce/ir"
)

const diamond = `
define i32 @f(i1 %c) {
entry:
  br i1 %c, label %a, label %b
a:
  br label %join
b:
  br label %join
join:
  ret i32 0
unreached:
  ret i32 1
}
`

func TestDominators(t *testing.T) {
	m := ir.MustParse(diamond)
	f := m.FuncNamed("f")
	dt := domtree.New(f)

	entry := f.BlockNamed("entry")
	a := f.BlockNamed("a")
	b := f.BlockNamed("b")
	join := f.BlockNamed("join")
	unreached := f.BlockNamed("unreached")

	if !dt.Dominates(entry, join) || !dt.Dominates(entry, a) || !dt.Dominates(entry, b) {
		t.Errorf("entry dominates everything reachable")
	}
	if dt.Dominates(a, join) || dt.Dominates(b, join) {
		t.Errorf("neither diamond arm dominates the join")
	}
	if dt.Idom(join) != entry {
		t.Errorf("idom(join) should be entry, got %v", dt.Idom(join))
	}
	if !dt.Dominates(a, a) {
		t.Errorf("blocks dominate themselves")
	}
	if dt.Reachable(unreached) {
		t.Errorf("unreached block must not be reachable")
	}
	if dt.Dominates(unreached, join) {
		t.Errorf("unreachable blocks dominate nothing")
	}
}

func TestDominatesInstr(t *testing.T) {
	m := ir.MustParse(`
define i32 @g(i32 %x) {
entry:
  %a = add i32 %x, 1
  %b = add i32 %a, 2
  ret i32 %b
}
`)
	f := m.FuncNamed("g")
	dt := domtree.New(f)
	entry := f.EntryBlock()
	if !dt.DominatesInstr(entry.Instrs[0], entry.Instrs[1]) {
		t.Errorf("earlier instruction dominates later one in the same block")
	}
	if dt.DominatesInstr(entry.Instrs[1], entry.Instrs[0]) {
		t.Errorf("later instruction does not dominate an earlier one")
	}
}

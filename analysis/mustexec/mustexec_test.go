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

package mustexec_test

import (
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/mustexec"
	"github.com/fixpoint-tools/deduce/ir"
)

func TestForwardStopsAtBranches(t *testing.T) {
	m := ir.MustParse(`
define i8 @f(i8* %p, i1 %c) {
entry:
  %v = load i8, i8* %p, align 1
  br i1 %c, label %a, label %b
a:
  %w = load i8, i8* %p, align 1
  ret i8 %w
b:
  ret i8 %v
}
`)
	f := m.FuncNamed("f")
	e := mustexec.NewExplorer()
	start := f.EntryBlock().Instrs[0]

	load := f.EntryBlock().Instrs[0]
	branch := f.EntryBlock().Instrs[1]
	condLoad := f.BlockNamed("a").Instrs[0]

	if !e.Covers(start, load) {
		t.Errorf("an instruction covers itself")
	}
	if !e.Covers(start, branch) {
		t.Errorf("the branch at the end of the entry must execute")
	}
	if e.Covers(start, condLoad) {
		t.Errorf("instructions behind a conditional branch are not guaranteed")
	}
}

func TestForwardFollowsStraightLine(t *testing.T) {
	m := ir.MustParse(`
define i8 @g(i8* %p) {
entry:
  br label %next
next:
  %v = load i8, i8* %p, align 1
  ret i8 %v
}
`)
	f := m.FuncNamed("g")
	e := mustexec.NewExplorer()
	start := f.EntryBlock().Instrs[0]
	load := f.BlockNamed("next").Instrs[0]
	if !e.Covers(start, load) {
		t.Errorf("a unique unconditional successor must execute")
	}
}

func TestForwardStopsAtUnknownCalls(t *testing.T) {
	m := ir.MustParse(`
declare void @ext()

define void @h(i8* %p) {
entry:
  call void @ext()
  store i8 1, i8* %p, align 1
  ret void
}
`)
	f := m.FuncNamed("h")
	e := mustexec.NewExplorer()
	start := f.EntryBlock().Instrs[0]
	store := f.EntryBlock().Instrs[1]
	if e.Covers(start, store) {
		t.Errorf("an unknown call may diverge; later instructions are not guaranteed")
	}
}

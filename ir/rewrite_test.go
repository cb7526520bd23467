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

package ir_test

import (
	"testing"

	"github.com/fixpoint-tools/deduce/ir"
)

func TestReplaceAllUsesWith(t *testing.T) {
	m := ir.MustParse(`
define i32 @f(i32 %x) {
entry:
  %a = add i32 %x, 1
  %b = add i32 %a, 2
  %c = add i32 %a, 3
  ret i32 %b
}
`)
	f := m.FuncNamed("f")
	entry := f.EntryBlock()
	a := entry.Instrs[0].(*ir.BinOp)
	if got := len(a.Uses()); got != 2 {
		t.Fatalf("expected 2 uses of %%a, got %d", got)
	}
	repl := ir.NewConstInt(ir.I32, 9)
	ir.ReplaceAllUsesWith(a, repl)
	if len(a.Uses()) != 0 {
		t.Errorf("%%a should have no uses left")
	}
	if len(repl.Uses()) != 2 {
		t.Errorf("replacement should have 2 uses, got %d", len(repl.Uses()))
	}
	b := entry.Instrs[1].(*ir.BinOp)
	if b.X() != repl {
		t.Errorf("%%b operand not rewritten")
	}
}

func TestEraseDropsOperandUses(t *testing.T) {
	m := ir.MustParse(`
define void @f(i8* %p) {
entry:
  store i8 0, i8* %p, align 1
  ret void
}
`)
	f := m.FuncNamed("f")
	p := f.Arg(0)
	entry := f.EntryBlock()
	st := entry.Instrs[0]
	if len(p.Uses()) != 1 {
		t.Fatalf("expected 1 use of %%p")
	}
	entry.Erase(st)
	if len(p.Uses()) != 0 {
		t.Errorf("erase should drop operand uses")
	}
	if len(entry.Instrs) != 1 {
		t.Errorf("store should be gone")
	}
}

func TestBlockDetachFixesPhis(t *testing.T) {
	m := ir.MustParse(`
define i32 @f(i1 %c) {
entry:
  br i1 %c, label %a, label %b
a:
  br label %join
b:
  br label %join
join:
  %v = phi i32 [ 1, %a ], [ 2, %b ]
  ret i32 %v
}
`)
	f := m.FuncNamed("f")
	b := f.BlockNamed("b")
	join := f.BlockNamed("join")
	b.Detach()
	if f.BlockNamed("b") != nil {
		t.Fatalf("block b still attached")
	}
	// The phi collapsed to its single incoming value.
	ret := join.Term().(*ir.Ret)
	c, ok := ret.Value().(*ir.ConstInt)
	if !ok || c.V != 1 {
		t.Errorf("phi should fold to 1, got %s", ret.Value().Ident())
	}
}

func TestSplitAfter(t *testing.T) {
	m := ir.MustParse(`
define i32 @f(i32 %x) {
entry:
  %a = add i32 %x, 1
  %b = add i32 %a, 2
  ret i32 %b
}
`)
	f := m.FuncNamed("f")
	entry := f.EntryBlock()
	nb := entry.SplitAfter(entry.Instrs[0], "tail")
	if len(entry.Instrs) != 2 {
		t.Fatalf("entry should hold add + br, got %d instructions", len(entry.Instrs))
	}
	if _, ok := entry.Term().(*ir.Br); !ok {
		t.Fatalf("entry should end in a branch")
	}
	if len(nb.Instrs) != 2 {
		t.Errorf("tail should hold add + ret, got %d", len(nb.Instrs))
	}
	if nb.Term() == nil {
		t.Errorf("tail must be terminated")
	}
}

func TestHasAddressTaken(t *testing.T) {
	m := ir.MustParse(`
declare void @broker(void ()* %cb)

define void @target() {
entry:
  ret void
}

define void @direct() {
entry:
  call void @target()
  ret void
}

define void @indirect() {
entry:
  call void @broker(void ()* @target)
  ret void
}
`)
	target := m.FuncNamed("target")
	if !target.HasAddressTaken() {
		t.Errorf("passing @target as data takes its address")
	}
	direct := m.FuncNamed("direct")
	if direct.HasAddressTaken() {
		t.Errorf("@direct is never referenced, so its address is not taken")
	}
}

func TestDataLayout(t *testing.T) {
	var dl ir.DataLayout
	st := &ir.StructType{Fields: []ir.Type{ir.I8, ir.I32}}
	if got := dl.TypeSize(st); got != 8 {
		t.Errorf("struct {i8, i32} should be 8 bytes with padding, got %d", got)
	}
	if !dl.HasPadding(st) {
		t.Errorf("struct {i8, i32} has padding")
	}
	packed := &ir.StructType{Fields: []ir.Type{ir.I32, ir.I32}}
	if dl.HasPadding(packed) {
		t.Errorf("struct {i32, i32} has no padding")
	}
	if got := dl.FieldOffset(st, 1); got != 4 {
		t.Errorf("field 1 offset should be 4, got %d", got)
	}
	arr := &ir.ArrayType{Len: 3, Elem: ir.I16}
	if got := dl.TypeSize(arr); got != 6 {
		t.Errorf("[3 x i16] should be 6 bytes, got %d", got)
	}
}

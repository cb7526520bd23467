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

package attributor_test

import (
	"io"
	"strings"
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/attributor"
	"github.com/fixpoint-tools/deduce/analysis/callgraph"
	"github.com/fixpoint-tools/deduce/analysis/config"
	"github.com/fixpoint-tools/deduce/ir"
)

func runDeduce(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	runOnModule(t, m)
	return m
}

func runOnModule(t *testing.T, m *ir.Module) bool {
	t.Helper()
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	log := config.NewLogGroup(cfg)
	log.SetAllOutput(io.Discard)
	return attributor.RunOnModule(m, cfg, log, &ir.TargetLibraryInfo{}, callgraph.NoopUpdater{})
}

func wantAttr(t *testing.T, set *ir.AttrSet, kind ir.AttrKind, what string) {
	t.Helper()
	if !set.Has(kind) {
		t.Errorf("expected %s on %s, have [%s]", kind, what, set)
	}
}

func wantNoAttr(t *testing.T, set *ir.AttrSet, kind ir.AttrKind, what string) {
	t.Helper()
	if set.Has(kind) {
		t.Errorf("did not expect %s on %s", kind, what)
	}
}

// Constant returns propagate to the callers and both functions collect
// the pure-function facts.
func TestDeduceConstantReturn(t *testing.T) {
	m := runDeduce(t, `
define internal i32 @f() {
entry:
  ret i32 42
}

define internal i32 @g(i32 %x) {
entry:
  %r = call i32 @f()
  ret i32 %r
}
`)
	for _, name := range []string{"f", "g"} {
		f := m.FuncNamed(name)
		wantAttr(t, &f.Attrs, ir.AttrWillReturn, "@"+name)
		wantAttr(t, &f.Attrs, ir.AttrNoUnwind, "@"+name)
		wantAttr(t, &f.Attrs, ir.AttrReadNone, "@"+name)
		wantAttr(t, &f.Attrs, ir.AttrNoRecurse, "@"+name)
	}
	// @g now returns the constant directly.
	g := m.FuncNamed("g")
	rets := g.Returns()
	if len(rets) != 1 {
		t.Fatalf("expected 1 return in @g")
	}
	c, ok := rets[0].Value().(*ir.ConstInt)
	if !ok || c.V != 42 {
		t.Errorf("expected @g to return 42, got %s", rets[0].Value().Ident())
	}
}

// An argument flowing directly to the return gains `returned`; a pointer
// advanced by a constant offset keeps the remaining dereferenceable bytes
// and stays non-null.
func TestDeducePointerReturn(t *testing.T) {
	m := runDeduce(t, `
define i8* @id(i8* nonnull %p) {
entry:
  ret i8* %p
}

define i8* @h(i8* nonnull dereferenceable(16) %p) {
entry:
  %q = getelementptr i8, i8* %p, i64 4
  ret i8* %q
}
`)
	id := m.FuncNamed("id")
	wantAttr(t, &id.Arg(0).Attrs, ir.AttrReturned, "@id %p")

	h := m.FuncNamed("h")
	wantAttr(t, &h.RetAttrs, ir.AttrNonNull, "@h return")
	d, ok := h.RetAttrs.Get(ir.AttrDereferenceable)
	if !ok {
		t.Fatalf("expected dereferenceable on @h return, have [%s]", h.RetAttrs.String())
	}
	if d.Int != 12 {
		t.Errorf("expected dereferenceable(12), got %d", d.Int)
	}
}

// A small constant malloc that is only stored through and freed becomes a
// stack allocation.
func TestDeduceHeapToStack(t *testing.T) {
	m := runDeduce(t, `
declare i8* @malloc(i64)

declare void @free(i8*)

define void @k() {
entry:
  %m = call i8* @malloc(i64 32)
  store i8 0, i8* %m, align 1
  call void @free(i8* %m)
  ret void
}
`)
	k := m.FuncNamed("k")
	sawAlloca := false
	k.Instructions(func(in ir.Instruction) bool {
		switch v := in.(type) {
		case *ir.Alloca:
			at, ok := v.Allocated.(*ir.ArrayType)
			if ok && at.Len == 32 {
				sawAlloca = true
			}
		case *ir.Call:
			callee := v.CalledFunction()
			if callee != nil && (callee.Name() == "malloc" || callee.Name() == "free") {
				t.Errorf("%s call should have been eliminated", callee.Name())
			}
		}
		return true
	})
	if !sawAlloca {
		t.Errorf("expected a [32 x i8] stack allocation:\n%s", ir.Print(m))
	}
}

// When every caller passes a small constant, the comparison folds and the
// call sites see a settled range.
func TestDeduceValueRange(t *testing.T) {
	m := runDeduce(t, `
define internal i1 @cmp(i32 %x) {
entry:
  %c = icmp ult i32 %x, 10
  ret i1 %c
}

define i1 @use() {
entry:
  %a = call i1 @cmp(i32 3)
  %b = call i1 @cmp(i32 5)
  %r = and i1 %a, %b
  ret i1 %r
}
`)
	use := m.FuncNamed("use")
	// Uses of both calls fold to true, so the `and` operates on constants.
	var and *ir.BinOp
	use.Instructions(func(in ir.Instruction) bool {
		if b, ok := in.(*ir.BinOp); ok && b.Op == ir.OpAnd {
			and = b
		}
		return true
	})
	if and == nil {
		t.Fatalf("expected and instruction:\n%s", ir.Print(m))
	}
	for i, op := range and.Operands() {
		c, ok := op.(*ir.ConstInt)
		if !ok || c.V != 1 {
			t.Errorf("operand %d of and should be true, got %s", i, op.Ident())
		}
	}
}

// A function that only reaches itself is no-return and the trailing
// return disappears.
func TestDeduceNoReturnRecursion(t *testing.T) {
	m := runDeduce(t, `
define internal void @rec() {
entry:
  call void @rec()
  ret void
}
`)
	rec := m.FuncNamed("rec")
	wantAttr(t, &rec.Attrs, ir.AttrNoReturn, "@rec")
	wantNoAttr(t, &rec.Attrs, ir.AttrWillReturn, "@rec")
	entry := rec.EntryBlock()
	if _, ok := entry.Term().(*ir.Unreachable); !ok {
		t.Errorf("expected unreachable after the recursive call:\n%s", ir.Print(m))
	}
}

// An unbounded loop blocks will-return but not the other facts.
func TestDeduceInfiniteLoop(t *testing.T) {
	m := runDeduce(t, `
define internal void @inf() {
entry:
  br label %loop
loop:
  br label %loop
}
`)
	inf := m.FuncNamed("inf")
	wantNoAttr(t, &inf.Attrs, ir.AttrWillReturn, "@inf")
	wantAttr(t, &inf.Attrs, ir.AttrNoUnwind, "@inf")
	if len(inf.Blocks) != 2 {
		t.Errorf("live loop must not be deleted")
	}
}

// A bounded counted loop still allows will-return.
func TestDeduceBoundedLoop(t *testing.T) {
	m := runDeduce(t, `
define internal i32 @sum() {
entry:
  br label %head
head:
  %i = phi i32 [ 0, %entry ], [ %next, %body ]
  %acc = phi i32 [ 0, %entry ], [ %acc2, %body ]
  %c = icmp slt i32 %i, 10
  br i1 %c, label %body, label %exit
body:
  %next = add i32 %i, 1
  %acc2 = add i32 %acc, %i
  br label %head
exit:
  ret i32 %acc
}
`)
	sum := m.FuncNamed("sum")
	wantAttr(t, &sum.Attrs, ir.AttrWillReturn, "@sum")
	wantAttr(t, &sum.Attrs, ir.AttrReadNone, "@sum")
}

// Unknown callees poison the callers through the required dependency
// cascade; facts that need the callee collapse, facts that do not
// survive.
func TestDeduceUnknownCalleeCascade(t *testing.T) {
	m := runDeduce(t, `
declare void @ext()

define void @caller() {
entry:
  call void @ext()
  ret void
}
`)
	caller := m.FuncNamed("caller")
	wantNoAttr(t, &caller.Attrs, ir.AttrNoUnwind, "@caller")
	wantNoAttr(t, &caller.Attrs, ir.AttrWillReturn, "@caller")
	wantNoAttr(t, &caller.Attrs, ir.AttrReadNone, "@caller")
}

// Dead branches discovered through constant conditions are folded and the
// dead blocks removed.
func TestDeduceDeadBranch(t *testing.T) {
	m := runDeduce(t, `
define internal i32 @pick() {
entry:
  br i1 true, label %a, label %b
a:
  ret i32 1
b:
  ret i32 2
}
`)
	pick := m.FuncNamed("pick")
	if pick.BlockNamed("b") != nil {
		t.Errorf("block %%b should be deleted:\n%s", ir.Print(m))
	}
	if _, ok := pick.EntryBlock().Term().(*ir.Br); !ok {
		t.Errorf("conditional branch should be folded:\n%s", ir.Print(m))
	}
}

// Running the engine twice yields byte-identical IR.
func TestDeduceIdempotent(t *testing.T) {
	src := `
declare i8* @malloc(i64)

declare void @free(i8*)

define internal i32 @f() {
entry:
  ret i32 42
}

define internal i32 @g(i32 %x) {
entry:
  %r = call i32 @f()
  %m = call i8* @malloc(i64 16)
  store i8 1, i8* %m, align 1
  call void @free(i8* %m)
  ret i32 %r
}
`
	m := runDeduce(t, src)
	first := ir.Print(m)

	m2, err := ir.Parse(first)
	if err != nil {
		t.Fatalf("reparse failed: %v\n%s", err, first)
	}
	runOnModule(t, m2)
	second := ir.Print(m2)
	if first != second {
		t.Errorf("second run changed the IR\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

// The engine never deletes live code: a store feeding a later load stays.
func TestDeduceLivenessConservative(t *testing.T) {
	m := runDeduce(t, `
define internal i8 @roundtrip(i8 %v) {
entry:
  %slot = alloca i8
  store i8 %v, i8* %slot, align 1
  %r = load i8, i8* %slot, align 1
  ret i8 %r
}
`)
	f := m.FuncNamed("roundtrip")
	counts := map[string]int{}
	f.Instructions(func(in ir.Instruction) bool {
		switch in.(type) {
		case *ir.Store:
			counts["store"]++
		case *ir.Load:
			counts["load"]++
		case *ir.Alloca:
			counts["alloca"]++
		}
		return true
	})
	if counts["store"] != 1 || counts["load"] != 1 || counts["alloca"] != 1 {
		t.Errorf("live instructions were removed: %v\n%s", counts, ir.Print(m))
	}
}

// Privatization splits a pointer argument whose callers pass private
// stack slots.
func TestDeducePrivatizePointer(t *testing.T) {
	m := runDeduce(t, `
define internal i32 @reader(i32* %p) {
entry:
  %v = load i32, i32* %p, align 4
  ret i32 %v
}

define i32 @outer() {
entry:
  %slot = alloca i32
  store i32 7, i32* %slot, align 4
  %r = call i32 @reader(i32* %slot)
  ret i32 %r
}
`)
	// The original @reader is replaced by a variant taking i32 by value.
	reader := m.FuncNamed("reader")
	if reader == nil {
		t.Fatalf("rewritten @reader missing:\n%s", ir.Print(m))
	}
	if len(reader.Args) != 1 {
		t.Fatalf("expected 1 argument, got %d", len(reader.Args))
	}
	if _, ok := reader.Args[0].Typ.(*ir.IntType); !ok {
		t.Errorf("expected flattened i32 argument, got %s:\n%s", reader.Args[0].Typ, ir.Print(m))
	}
	outer := m.FuncNamed("outer")
	found := false
	outer.Instructions(func(in ir.Instruction) bool {
		if c, ok := in.(*ir.Call); ok && c.CalledFunction() == reader {
			found = true
			if len(c.Args()) != 1 || !ir.TypesEqual(c.Args()[0].Type(), ir.I32) {
				t.Errorf("call site not repaired: %s", ir.Print(m))
			}
		}
		return true
	})
	if !found {
		t.Errorf("no repaired call to @reader:\n%s", ir.Print(m))
	}
}

func TestStatsCounters(t *testing.T) {
	m := ir.MustParse(`
define internal i32 @f() {
entry:
  ret i32 5
}
`)
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	log := config.NewLogGroup(cfg)
	log.SetAllOutput(io.Discard)
	cache := attributor.NewInformationCache(m, &ir.TargetLibraryInfo{})
	a := attributor.New(cfg, log, cache, m.Funcs)
	a.SeedFunction(m.Funcs[0])
	a.Run()
	if a.Stats().Created.Get() == 0 {
		t.Errorf("expected created records")
	}
	if a.Stats().Updates.Get() == 0 {
		t.Errorf("expected updates")
	}
	var sb strings.Builder
	a.Stats().WritePrometheus(&sb)
	if !strings.Contains(sb.String(), "deduce_records_created_total") {
		t.Errorf("prometheus dump missing counters: %s", sb.String())
	}
}

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
	"strings"
	"testing"

	"github.com/fixpoint-tools/deduce/ir"
)

const roundTripSrc = `declare i8* @malloc(i64)

declare void @free(i8*)

define internal i32 @callee(i32 %x, i8* nonnull dereferenceable(16) %p) nounwind {
entry:
  %q = getelementptr i8, i8* %p, i64 4
  %v = load i8, i8* %q, align 1
  %c = icmp ult i32 %x, 10
  br i1 %c, label %a, label %b
a:
  %w = zext i8 %v to i32
  ret i32 %w
b:
  %m = call i8* @malloc(i64 32)
  store i8 0, i8* %m, align 1
  call void @free(i8* %m)
  ret i32 0
}

define i32 @caller(i32 %x) {
entry:
  %p = alloca [16 x i8], align 8
  %p0 = getelementptr [16 x i8], [16 x i8]* %p, i64 0, i64 0
  %r = call i32 @callee(i32 %x, i8* %p0)
  ret i32 %r
}
`

func TestParsePrintRoundTrip(t *testing.T) {
	m, err := ir.Parse(roundTripSrc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	first := ir.Print(m)
	m2, err := ir.Parse(first)
	if err != nil {
		t.Fatalf("reparse failed: %v\nprinted:\n%s", err, first)
	}
	second := ir.Print(m2)
	if first != second {
		t.Errorf("print is not stable\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestParseStructure(t *testing.T) {
	m := ir.MustParse(roundTripSrc)
	callee := m.FuncNamed("callee")
	if callee == nil {
		t.Fatal("missing @callee")
	}
	if callee.Linkage != ir.InternalLinkage {
		t.Errorf("expected internal linkage")
	}
	if !callee.Attrs.Has(ir.AttrNoUnwind) {
		t.Errorf("expected nounwind on @callee")
	}
	arg := callee.Arg(1)
	if !arg.Attrs.Has(ir.AttrNonNull) {
		t.Errorf("expected nonnull on %%p")
	}
	if d, ok := arg.Attrs.Get(ir.AttrDereferenceable); !ok || d.Int != 16 {
		t.Errorf("expected dereferenceable(16) on %%p, got %v", arg.Attrs)
	}
	if got := len(callee.Blocks); got != 3 {
		t.Fatalf("expected 3 blocks, got %d", got)
	}
	if len(callee.Returns()) != 2 {
		t.Errorf("expected 2 returns")
	}
	malloc := m.FuncNamed("malloc")
	if !malloc.IsDeclaration() {
		t.Errorf("@malloc should be a declaration")
	}
	if got := len(ir.CallSitesOf(callee)); got != 1 {
		t.Errorf("expected 1 call site of @callee, got %d", got)
	}
}

func TestParsePhiAndSwitch(t *testing.T) {
	src := `define i32 @loop(i32 %n) {
entry:
  br label %head
head:
  %i = phi i32 [ 0, %entry ], [ %next, %body ]
  %c = icmp slt i32 %i, %n
  br i1 %c, label %body, label %exit
body:
  %next = add i32 %i, 1
  br label %head
exit:
  switch i32 %i, label %done [ i32 0, label %zero  i32 1, label %zero ]
zero:
  ret i32 0
done:
  ret i32 %i
}
`
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	f := m.FuncNamed("loop")
	head := f.BlockNamed("head")
	phi, ok := head.Instrs[0].(*ir.Phi)
	if !ok {
		t.Fatalf("expected phi, got %T", head.Instrs[0])
	}
	if len(phi.Blocks) != 2 {
		t.Fatalf("expected 2 incoming edges, got %d", len(phi.Blocks))
	}
	// The forward reference to %next must be resolved to the add.
	if _, ok := phi.Operands()[1].(*ir.BinOp); !ok {
		t.Errorf("forward phi operand not resolved: %T", phi.Operands()[1])
	}
	out := ir.Print(m)
	if !strings.Contains(out, "phi i32 [ 0, %entry ], [ %next, %body ]") {
		t.Errorf("phi not printed back:\n%s", out)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"define i32 @f( {",
		"define i32 @f() {\nentry:\n  ret i32 %nosuch\n}",
		"define i32 @f() {\nentry:\n  br label %nosuch\n}",
	} {
		if _, err := ir.Parse(src); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}

func TestCallbackMetadata(t *testing.T) {
	src := `declare void @broker(void (i8*)* %cb, i8* %data) !callback(0, 1)
`
	m := ir.MustParse(src)
	f := m.FuncNamed("broker")
	if f.Callback == nil {
		t.Fatal("missing callback metadata")
	}
	if f.Callback.CalleeArgNo != 0 || len(f.Callback.PayloadArgs) != 1 || f.Callback.PayloadArgs[0] != 1 {
		t.Errorf("bad callback metadata: %+v", f.Callback)
	}
}

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

package aliasing_test

import (
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/aliasing"
	"github.com/fixpoint-tools/deduce/ir"
)

func TestUnderlyingObject(t *testing.T) {
	m := ir.MustParse(`
define i8* @f(i8* %p) {
entry:
  %a = getelementptr i8, i8* %p, i64 4
  %b = bitcast i8* %a to i8*
  %c = getelementptr i8, i8* %b, i64 2
  ret i8* %c
}
`)
	f := m.FuncNamed("f")
	ret := f.Returns()[0]
	if got := aliasing.UnderlyingObject(ret.Value()); got != ir.Value(f.Arg(0)) {
		t.Errorf("expected %%p as underlying object, got %s", got.Ident())
	}
}

func TestBasicAlias(t *testing.T) {
	m := ir.MustParse(`
define void @f(i8* %p) {
entry:
  %a = alloca i8
  %b = alloca i8
  %a4 = getelementptr i8, i8* %a, i64 0
  ret void
}
`)
	f := m.FuncNamed("f")
	entry := f.EntryBlock()
	a := entry.Instrs[0].(*ir.Alloca)
	b := entry.Instrs[1].(*ir.Alloca)
	a4 := entry.Instrs[2].(*ir.GetElementPtr)

	if aliasing.Alias(a, b) != aliasing.NoAlias {
		t.Errorf("distinct allocas do not alias")
	}
	if aliasing.Alias(a, a) != aliasing.MustAlias {
		t.Errorf("a value must-aliases itself")
	}
	if aliasing.Alias(a4, b) != aliasing.NoAlias {
		t.Errorf("offset into a does not alias b")
	}
	if aliasing.Alias(a4, a) == aliasing.NoAlias {
		t.Errorf("offset into a may alias a")
	}
	if aliasing.Alias(f.Arg(0), a) == aliasing.NoAlias {
		t.Errorf("argument may alias without more facts")
	}
}

type recordingTracker struct {
	captures int
}

func (r *recordingTracker) ShouldExplore(ir.Use) bool { return true }
func (r *recordingTracker) CapturedBy(ir.Use) bool {
	r.captures++
	return false
}

func TestCaptureTracking(t *testing.T) {
	m := ir.MustParse(`
define i8* @f(i8* %p, i8** %slot) {
entry:
  %v = load i8, i8* %p, align 1
  store i8* %p, i8** %slot
  %q = getelementptr i8, i8* %p, i64 1
  ret i8* %q
}
`)
	f := m.FuncNamed("f")
	tr := &recordingTracker{}
	aliasing.PointerMayBeCaptured(f.Arg(0), tr)
	// The store of %p and the return of %q capture; the load does not.
	if tr.captures != 2 {
		t.Errorf("expected 2 captures, got %d", tr.captures)
	}

	m2 := ir.MustParse(`
define void @g(i8* %p) {
entry:
  %v = load i8, i8* %p, align 1
  %c = icmp eq i8* %p, null
  ret void
}
`)
	g := m2.FuncNamed("g")
	tr2 := &recordingTracker{}
	aliasing.PointerMayBeCaptured(g.Arg(0), tr2)
	if tr2.captures != 0 {
		t.Errorf("loads and null compares do not capture, got %d", tr2.captures)
	}
}

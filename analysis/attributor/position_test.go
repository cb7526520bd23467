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
	"testing"

	"github.com/fixpoint-tools/deduce/ir"
)

const posSrc = `
define i8* @callee(i8* returned nonnull %p, i32 %n) nounwind {
entry:
  ret i8* %p
}

define i8* @caller(i8* %q) {
entry:
  %r = call i8* @callee(i8* %q, i32 1)
  ret i8* %r
}
`

func TestPositionIdentity(t *testing.T) {
	m := ir.MustParse(posSrc)
	callee := m.FuncNamed("callee")

	p1 := FunctionPos(callee)
	p2 := FunctionPos(callee)
	if p1 != p2 {
		t.Errorf("positions for the same location must be equal")
	}
	if ArgumentPos(callee.Arg(0)) == ArgumentPos(callee.Arg(1)) {
		t.Errorf("distinct arguments give distinct positions")
	}
	if ReturnedPos(callee) == FunctionPos(callee) {
		t.Errorf("returned and function positions differ")
	}
	set := map[Position]bool{p1: true}
	if !set[p2] {
		t.Errorf("positions must work as map keys")
	}
}

func TestPositionAccessors(t *testing.T) {
	m := ir.MustParse(posSrc)
	callee := m.FuncNamed("callee")
	argPos := ArgumentPos(callee.Arg(0))
	if argPos.AnchorScope() != callee {
		t.Errorf("argument anchor scope is the function")
	}
	if argPos.AssociatedValue() != ir.Value(callee.Arg(0)) {
		t.Errorf("argument associated value is the argument")
	}
	if argPos.ArgNo() != 0 {
		t.Errorf("argument index wrong")
	}

	caller := m.FuncNamed("caller")
	var cs ir.CallSite
	caller.Instructions(func(in ir.Instruction) bool {
		if c, ok := ir.AsCallSite(in); ok {
			cs = c
			return false
		}
		return true
	})
	csArg := CallSiteArgumentPos(cs, 0)
	if csArg.AssociatedValue() != ir.Value(caller.Arg(0)) {
		t.Errorf("call-site argument associated value is the operand")
	}
	if csArg.Callee() != callee {
		t.Errorf("call-site callee wrong")
	}
}

func TestSubsumingPositions(t *testing.T) {
	m := ir.MustParse(posSrc)
	callee := m.FuncNamed("callee")
	caller := m.FuncNamed("caller")
	var cs ir.CallSite
	caller.Instructions(func(in ir.Instruction) bool {
		if c, ok := ir.AsCallSite(in); ok {
			cs = c
			return false
		}
		return true
	})

	// A call-site return subsumes the callee's return and function, and
	// the argument marked `returned`, both at the call site and in the
	// callee.
	subs := CallSiteReturnedPos(cs).SubsumingPositions()
	want := map[Position]bool{
		CallSiteReturnedPos(cs):      true,
		ReturnedPos(callee):          true,
		FunctionPos(callee):          true,
		CallSiteArgumentPos(cs, 0):   true,
		ArgumentPos(callee.Arg(0)):   true,
	}
	if len(subs) != len(want) {
		t.Fatalf("expected %d subsuming positions, got %d: %v", len(want), len(subs), subs)
	}
	for _, p := range subs {
		if !want[p] {
			t.Errorf("unexpected subsuming position %v", p)
		}
	}

	// Attribute lookup sees the nonnull through the returned argument.
	if !CallSiteReturnedPos(cs).HasAttr(ir.AttrNonNull) {
		t.Errorf("call-site return should see nonnull via the returned argument")
	}
	// And the callee's nounwind through the function position.
	if !CallSitePos(cs).HasAttr(ir.AttrNoUnwind) {
		t.Errorf("call site should see the callee's nounwind")
	}
}

func TestManifestAttr(t *testing.T) {
	m := ir.MustParse(posSrc)
	callee := m.FuncNamed("callee")
	pos := FunctionPos(callee)
	if pos.ManifestAttr(ir.Attribute{Kind: ir.AttrNoFree}) != Changed {
		t.Errorf("new attribute should report a change")
	}
	if pos.ManifestAttr(ir.Attribute{Kind: ir.AttrNoFree}) != Unchanged {
		t.Errorf("re-manifesting should be a no-op")
	}
	argPos := ArgumentPos(callee.Arg(0))
	argPos.ManifestAttr(ir.Attribute{Kind: ir.AttrDereferenceable, Int: 8})
	if argPos.ManifestAttr(ir.Attribute{Kind: ir.AttrDereferenceable, Int: 4}) != Unchanged {
		t.Errorf("weaker payload must not overwrite")
	}
	if argPos.ManifestAttr(ir.Attribute{Kind: ir.AttrDereferenceable, Int: 16}) != Changed {
		t.Errorf("stronger payload should win")
	}
}

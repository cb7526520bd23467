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
	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindNoUnwind, func(pos Position) AbstractAttribute {
		return &AANoUnwind{aaMeta: aaMeta{pos: pos, kind: KindNoUnwind}, BooleanState: NewBooleanState()}
	})
}

// NoUnwindAA returns the no-unwind record at pos.
func (a *Attributor) NoUnwindAA(pos Position, dep DepClass) *AANoUnwind {
	return getOrCreate[*AANoUnwind](a, KindNoUnwind, pos, dep)
}

// AANoUnwind deduces that a function never raises an exception: every
// potentially throwing instruction is a call whose callee is itself
// assumed no-unwind.
type AANoUnwind struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANoUnwind) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANoUnwind) Initialize(a *Attributor) {
	initFromAttr(a, aa, ir.AttrNoUnwind)
}

// Update implements AbstractAttribute.
func (aa *AANoUnwind) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() != PosFunction {
		return callSiteBoolFromCallee(a, aa)
	}
	ok := a.CheckForAllInstructions(aa, ir.MayThrow, func(in ir.Instruction) bool {
		cs, ok := ir.AsCallSite(in)
		if !ok {
			return false
		}
		return assumedBoolAt(a, aa, CallSitePos(cs))
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// Manifest implements AbstractAttribute.
func (aa *AANoUnwind) Manifest(a *Attributor) ChangeStatus {
	return manifestBoolAttr(a, aa, ir.AttrNoUnwind)
}

// AsString implements AbstractAttribute.
func (aa *AANoUnwind) AsString() string { return boolString(aa, "nounwind") }

// initFromAttr is the shared initializer of the boolean families: an IR
// attribute at a subsuming position makes the fact known immediately;
// unanalyzable positions collapse.
func initFromAttr(a *Attributor, aa boolAA, kind ir.AttrKind) {
	pos := aa.Position()
	if pos.HasAttr(kind) {
		aa.Bool().SetKnown()
		aa.Bool().IndicateOptimisticFixpoint()
		return
	}
	switch pos.Kind() {
	case PosFunction:
		fn := pos.AnchorScope()
		if fn == nil || fn.IsDeclaration() {
			aa.Bool().IndicatePessimisticFixpoint()
		}
	case PosCallSite, PosCallSiteReturned, PosCallSiteArgument:
		callee := pos.Callee()
		if callee == nil {
			// Unknown callees abstain: nothing can be deduced.
			aa.Bool().IndicatePessimisticFixpoint()
		}
	}
}

// manifestBoolAttr writes the IR attribute when the fact is known.
func manifestBoolAttr(a *Attributor, aa boolAA, kind ir.AttrKind) ChangeStatus {
	if !aa.Bool().IsKnown() && !aa.Bool().IsAssumed() {
		return Unchanged
	}
	if !aa.Bool().IsKnown() {
		// At a valid fixpoint assumed facts are proven.
		aa.Bool().SetKnown()
	}
	pos := aa.Position()
	if fn := pos.AnchorScope(); fn != nil {
		switch pos.Kind() {
		case PosCallSite, PosCallSiteReturned, PosCallSiteArgument:
			// Call-site facts mirroring an annotated callee carry no new
			// information unless declaration call sites are annotated.
			if callee := pos.Callee(); callee != nil && !callee.IsDeclaration() {
				return Unchanged
			}
			if !a.Cfg.AnnotateDeclarationCallSites {
				return Unchanged
			}
		}
	}
	return pos.ManifestAttr(ir.Attribute{Kind: kind})
}

func boolString(aa boolAA, name string) string {
	m := aa.meta()
	switch {
	case aa.Bool().IsKnown():
		return m.describe(name)
	case aa.Bool().IsAssumed():
		return m.describe("assumed-" + name)
	default:
		return m.describe("may-" + notName(name))
	}
}

func notName(name string) string {
	if len(name) > 2 && name[:2] == "no" {
		return name[2:]
	}
	return "not-" + name
}

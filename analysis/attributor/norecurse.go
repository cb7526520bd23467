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
	registerAA(KindNoRecurse, func(pos Position) AbstractAttribute {
		return &AANoRecurse{aaMeta: aaMeta{pos: pos, kind: KindNoRecurse}, BooleanState: NewBooleanState()}
	})
}

// NoRecurseAA returns the no-recurse record at pos.
func (a *Attributor) NoRecurseAA(pos Position, dep DepClass) *AANoRecurse {
	return getOrCreate[*AANoRecurse](a, KindNoRecurse, pos, dep)
}

// AANoRecurse deduces that a function never reaches itself again, by
// checking either that every callee avoids recursion and is not the
// function itself, or that every caller is already known non-recursive.
type AANoRecurse struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANoRecurse) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANoRecurse) Initialize(a *Attributor) {
	if aa.pos.Kind() == PosFunction {
		if fn := aa.pos.AnchorScope(); fn != nil && a.Cache.CallGraph.InCycle(fn) {
			aa.IndicatePessimisticFixpoint()
			return
		}
	}
	initFromAttr(a, aa, ir.AttrNoRecurse)
}

// Update implements AbstractAttribute.
func (aa *AANoRecurse) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() != PosFunction {
		return callSiteBoolFromCallee(a, aa)
	}
	fn := aa.pos.AnchorScope()

	// Every callee is no-recurse and is not this function.
	calleesOK := a.CheckForAllCallLikeInstructions(aa, func(cs ir.CallSite) bool {
		callee := cs.Base.CalledFunction()
		if callee == fn {
			return false
		}
		return assumedBoolAt(a, aa, CallSitePos(cs))
	})
	if calleesOK {
		return Unchanged
	}

	// Every caller is already known no-recurse, so no path re-enters.
	callersOK := a.CheckForAllCallSites(aa, fn, true, func(acs ACS) bool {
		caller := acs.CS.Instr.Parent().Parent()
		if caller == fn {
			return false
		}
		nr := a.NoRecurseAA(FunctionPos(caller), RequiredDep)
		return nr.Bool().IsKnown()
	})
	if callersOK {
		return aa.SetKnown()
	}
	return aa.IndicatePessimisticFixpoint()
}

// Manifest implements AbstractAttribute.
func (aa *AANoRecurse) Manifest(a *Attributor) ChangeStatus {
	return manifestBoolAttr(a, aa, ir.AttrNoRecurse)
}

// AsString implements AbstractAttribute.
func (aa *AANoRecurse) AsString() string { return boolString(aa, "norecurse") }

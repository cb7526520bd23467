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
	registerAA(KindWillReturn, func(pos Position) AbstractAttribute {
		return &AAWillReturn{aaMeta: aaMeta{pos: pos, kind: KindWillReturn}, BooleanState: NewBooleanState()}
	})
}

// WillReturnAA returns the will-return record at pos.
func (a *Attributor) WillReturnAA(pos Position, dep DepClass) *AAWillReturn {
	return getOrCreate[*AAWillReturn](a, KindWillReturn, pos, dep)
}

// AAWillReturn deduces that a function always runs to completion: its own
// cycles are bounded and every callee either is known to return or is
// assumed to return without recursing.
type AAWillReturn struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AAWillReturn) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AAWillReturn) Initialize(a *Attributor) {
	if aa.pos.Kind() == PosFunction {
		fn := aa.pos.AnchorScope()
		if fn != nil && !fn.IsDeclaration() && !fn.Attrs.Has(ir.AttrWillReturn) {
			if a.Cache.LoopInfo(fn).HasUnboundedCycle() {
				aa.IndicatePessimisticFixpoint()
				return
			}
		}
	}
	initFromAttr(a, aa, ir.AttrWillReturn)
}

// Update implements AbstractAttribute.
func (aa *AAWillReturn) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() != PosFunction {
		return callSiteBoolFromCallee(a, aa)
	}
	ok := a.CheckForAllCallLikeInstructions(aa, func(cs ir.CallSite) bool {
		wr := a.WillReturnAA(CallSitePos(cs), RequiredDep)
		if wr.Bool().IsKnown() {
			return true
		}
		if !wr.Bool().IsAssumed() {
			return false
		}
		// An assumed-returning callee must also avoid re-entering us, or
		// the recursion could spin forever.
		callee := cs.Base.CalledFunction()
		if callee == nil {
			return false
		}
		nr := a.NoRecurseAA(FunctionPos(callee), RequiredDep)
		return nr.Bool().IsAssumed()
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// Manifest implements AbstractAttribute.
func (aa *AAWillReturn) Manifest(a *Attributor) ChangeStatus {
	return manifestBoolAttr(a, aa, ir.AttrWillReturn)
}

// AsString implements AbstractAttribute.
func (aa *AAWillReturn) AsString() string { return boolString(aa, "willreturn") }

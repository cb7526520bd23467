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
	registerAA(KindNoFree, func(pos Position) AbstractAttribute {
		return &AANoFree{aaMeta: aaMeta{pos: pos, kind: KindNoFree}, BooleanState: NewBooleanState()}
	})
}

// NoFreeAA returns the no-free record at pos.
func (a *Attributor) NoFreeAA(pos Position, dep DepClass) *AANoFree {
	return getOrCreate[*AANoFree](a, KindNoFree, pos, dep)
}

// AANoFree deduces that a function never frees memory, or that a pointer
// is never freed: for pointer positions the uses are followed through
// geps, casts, phis, selects and call-site arguments.
type AANoFree struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANoFree) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANoFree) Initialize(a *Attributor) {
	if cs, ok := aa.pos.CallSite(); ok && a.Cache.TLI.IsFreeCall(cs) {
		// A call to free frees, and so does its pointer operand.
		if aa.pos.Kind() == PosCallSite || aa.pos.Kind() == PosCallSiteArgument {
			aa.IndicatePessimisticFixpoint()
			return
		}
	}
	initFromAttr(a, aa, ir.AttrNoFree)
}

// Update implements AbstractAttribute.
func (aa *AANoFree) Update(a *Attributor) ChangeStatus {
	switch aa.pos.Kind() {
	case PosFunction:
		ok := a.CheckForAllCallLikeInstructions(aa, func(cs ir.CallSite) bool {
			return assumedBoolAt(a, aa, CallSitePos(cs))
		})
		if !ok {
			return aa.IndicatePessimisticFixpoint()
		}
		return Unchanged
	case PosArgument, PosFloat:
		return aa.updatePointer(a)
	default:
		return callSiteBoolFromCallee(a, aa)
	}
}

// updatePointer follows the value's uses; a use as a call argument defers
// to the matching call-site-argument record.
func (aa *AANoFree) updatePointer(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosArgument {
		// The whole function not freeing anything settles it.
		fnFree := a.NoFreeAA(FunctionPos(aa.pos.AnchorScope()), OptionalDep)
		if fnFree.Bool().IsAssumed() {
			return Unchanged
		}
	}
	v := aa.pos.AssociatedValue()
	ok := a.CheckForAllUses(aa, v, func(u ir.Use) bool {
		switch user := u.User.(type) {
		case *ir.Load, *ir.Store, *ir.ICmp, *ir.Ret,
			*ir.GetElementPtr, *ir.Phi, *ir.Select, *ir.Cast:
			return true
		case *ir.Call, *ir.Invoke:
			cs, _ := ir.AsCallSite(user)
			argNo := cs.Base.ArgOperandNo(u)
			if argNo < 0 {
				return true // callee operand, not a payload
			}
			return assumedBoolAt(a, aa, CallSiteArgumentPos(cs, argNo))
		}
		return false
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// Manifest implements AbstractAttribute.
func (aa *AANoFree) Manifest(a *Attributor) ChangeStatus {
	switch aa.pos.Kind() {
	case PosFloat:
		return Unchanged
	}
	return manifestBoolAttr(a, aa, ir.AttrNoFree)
}

// AsString implements AbstractAttribute.
func (aa *AANoFree) AsString() string { return boolString(aa, "nofree") }

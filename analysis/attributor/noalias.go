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
	"github.com/fixpoint-tools/deduce/analysis/aliasing"
	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindNoAlias, func(pos Position) AbstractAttribute {
		return &AANoAlias{aaMeta: aaMeta{pos: pos, kind: KindNoAlias}, BooleanState: NewBooleanState()}
	})
}

// NoAliasAA returns the no-alias record at pos.
func (a *Attributor) NoAliasAA(pos Position, dep DepClass) *AANoAlias {
	return getOrCreate[*AANoAlias](a, KindNoAlias, pos, dep)
}

// AANoAlias deduces that a pointer does not alias any other accessible
// pointer: fresh stack or heap objects, arguments whose call sites all
// pass non-aliasing operands, and results of no-alias returning callees.
type AANoAlias struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANoAlias) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANoAlias) Initialize(a *Attributor) {
	if !ir.IsPointer(aa.pos.AssociatedType()) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	initFromAttr(a, aa, ir.AttrNoAlias)
}

// valueIsFreshObject reports whether v names storage no one else holds a
// pointer to: a stack slot, null, or a no-alias call result.
func valueIsFreshObject(a *Attributor, aa AbstractAttribute, v ir.Value) bool {
	base := aliasing.UnderlyingObject(v)
	switch x := base.(type) {
	case *ir.Alloca:
		return true
	case *ir.ConstNull:
		return !ir.NullPointerIsDefined(aa.Position().AnchorScope())
	case *ir.Call:
		if cs, ok := ir.AsCallSite(x); ok {
			if a.Cache.TLI.IsAllocLikeCall(cs) {
				return true
			}
		}
		return x.RetAttrs.Has(ir.AttrNoAlias)
	}
	return false
}

// Update implements AbstractAttribute.
func (aa *AANoAlias) Update(a *Attributor) ChangeStatus {
	switch aa.pos.Kind() {
	case PosFloat:
		if valueIsFreshObject(a, aa, aa.pos.AssociatedValue()) {
			return Unchanged
		}
		return aa.IndicatePessimisticFixpoint()
	case PosReturned:
		return aa.updateReturned(a)
	case PosArgument:
		return aa.updateArgument(a)
	case PosCallSiteArgument:
		return aa.updateCallSiteArgument(a)
	default:
		return callSiteBoolFromCallee(a, aa)
	}
}

func (aa *AANoAlias) updateReturned(a *Attributor) ChangeStatus {
	ok := a.CheckForAllReturnedValues(aa, aa.pos.AnchorScope(), func(v ir.Value) bool {
		if valueIsFreshObject(a, aa, v) {
			return true
		}
		return assumedBoolAt(a, aa, posForValue(v, nil))
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// updateArgument delegates to the call sites, but only when the callee
// cannot observe the pointer through a second route while running:
// synchronization-free callees, read-only arguments, and arguments that
// never flow through a callback qualify.
func (aa *AANoAlias) updateArgument(a *Attributor) ChangeStatus {
	fn := aa.pos.AnchorScope()
	nosync := a.NoSyncAA(FunctionPos(fn), OptionalDep)
	if !nosync.Bool().IsAssumed() {
		mb := a.MemoryBehaviorAA(aa.pos, OptionalDep)
		if !mb.IsAssumed(memNoWrites) {
			return aa.IndicatePessimisticFixpoint()
		}
	}
	usedInCallback := false
	a.CheckForAllCallSites(aa, fn, false, func(acs ACS) bool {
		if acs.Callback {
			usedInCallback = true
		}
		return true
	})
	if usedInCallback {
		return aa.IndicatePessimisticFixpoint()
	}
	return boolArgumentFromCallSiteArguments(a, aa)
}

// updateCallSiteArgument combines the callee's requirement with local
// evidence: the operand must be capture-free up to the call and must not
// alias any other pointer operand of the same call.
func (aa *AANoAlias) updateCallSiteArgument(a *Attributor) ChangeStatus {
	v := aa.pos.AssociatedValue()
	if valueIsFreshObject(a, aa, v) {
		if aa.noOtherOperandAliases(a, v) {
			return Unchanged
		}
		return aa.IndicatePessimisticFixpoint()
	}

	// The callee must accept a no-alias pointer here.
	if callSiteBoolFromCallee(a, aa) == Changed && !aa.IsAssumed() {
		return Changed
	}
	if !aa.IsAssumed() {
		return Unchanged
	}

	// The value must not escape into state the callee can observe. A
	// capture only matters if the capturing code can reach the call; the
	// reachability deduction decides, pessimistically for now.
	nc := a.NoCaptureAA(posForValue(v, aa.pos.CtxInstruction()), RequiredDep)
	if !nc.IsAssumed(capNotInMem | capNotInInt) {
		cs, _ := aa.pos.CallSite()
		reach := a.ReachabilityAA(FunctionPos(aa.pos.AnchorScope()), OptionalDep)
		if in, ok := v.(ir.Instruction); !ok || reach.IsAssumedReachable(in, cs.Instr) {
			return aa.IndicatePessimisticFixpoint()
		}
	}
	if !aa.noOtherOperandAliases(a, v) {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// noOtherOperandAliases checks the other pointer operands of the call via
// the alias analysis.
func (aa *AANoAlias) noOtherOperandAliases(a *Attributor, v ir.Value) bool {
	cs, ok := aa.pos.CallSite()
	if !ok {
		return false
	}
	for i := 0; i < cs.Base.NumArgs(); i++ {
		if i == aa.pos.ArgNo() {
			continue
		}
		op := cs.Base.Arg(i)
		if !ir.IsPointer(op.Type()) {
			continue
		}
		if a.Cache.Alias(v, op) != aliasing.NoAlias {
			return false
		}
	}
	return true
}

// Manifest implements AbstractAttribute.
func (aa *AANoAlias) Manifest(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosFloat {
		return Unchanged
	}
	return manifestBoolAttr(a, aa, ir.AttrNoAlias)
}

// AsString implements AbstractAttribute.
func (aa *AANoAlias) AsString() string { return boolString(aa, "noalias") }

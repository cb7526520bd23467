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
	"fmt"

	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindUndefinedBehavior, func(pos Position) AbstractAttribute {
		return &AAUndefinedBehavior{aaMeta: aaMeta{pos: pos, kind: KindUndefinedBehavior}}
	})
}

// UndefinedBehaviorAA returns the undefined-behavior record of a function.
func (a *Attributor) UndefinedBehaviorAA(pos Position, dep DepClass) *AAUndefinedBehavior {
	return getOrCreate[*AAUndefinedBehavior](a, KindUndefinedBehavior, pos, dep)
}

// AAUndefinedBehavior classifies instructions whose execution would be
// undefined: accesses through pointers that simplified to null where null
// is not a valid address, and branches on undefined conditions.
type AAUndefinedBehavior struct {
	aaMeta
	fn *ir.Function

	// knownUB holds instructions proven undefined; assumedOK holds
	// instructions inspected and cleared this far.
	knownUB   map[ir.Instruction]bool
	assumedOK map[ir.Instruction]bool

	fixed bool
}

// IsValidState implements AbstractState.
func (aa *AAUndefinedBehavior) IsValidState() bool { return true }

// IsAtFixpoint implements AbstractState.
func (aa *AAUndefinedBehavior) IsAtFixpoint() bool { return aa.fixed }

// IndicateOptimisticFixpoint implements AbstractState.
func (aa *AAUndefinedBehavior) IndicateOptimisticFixpoint() ChangeStatus {
	aa.fixed = true
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState: nothing further is
// classified as undefined.
func (aa *AAUndefinedBehavior) IndicatePessimisticFixpoint() ChangeStatus {
	aa.fixed = true
	return Unchanged
}

// State implements AbstractAttribute.
func (aa *AAUndefinedBehavior) State() AbstractState { return aa }

// Initialize implements AbstractAttribute.
func (aa *AAUndefinedBehavior) Initialize(a *Attributor) {
	aa.fn = aa.pos.AnchorScope()
	aa.knownUB = map[ir.Instruction]bool{}
	aa.assumedOK = map[ir.Instruction]bool{}
	if aa.fn == nil || aa.fn.IsDeclaration() {
		aa.fixed = true
	}
}

// pointerIsNull consults value simplification for a settled null pointer.
func (aa *AAUndefinedBehavior) pointerIsNull(a *Attributor, ptr ir.Value) bool {
	if ir.IsNullPointer(ptr) {
		return true
	}
	if ir.IsConstant(ptr) {
		return false
	}
	vs := a.ValueSimplifyAA(posForValue(ptr, nil), OptionalDep)
	if sv, ok := vs.SimplifiedValue(); ok {
		return ir.IsNullPointer(sv)
	}
	return false
}

func (aa *AAUndefinedBehavior) conditionIsUndef(a *Attributor, cond ir.Value) bool {
	if _, isUndef := cond.(*ir.Undef); isUndef {
		return true
	}
	if ir.IsConstant(cond) {
		return false
	}
	vs := a.ValueSimplifyAA(posForValue(cond, nil), OptionalDep)
	if sv, ok := vs.SimplifiedValue(); ok {
		_, isUndef := sv.(*ir.Undef)
		return isUndef
	}
	return false
}

// Update implements AbstractAttribute.
func (aa *AAUndefinedBehavior) Update(a *Attributor) ChangeStatus {
	if ir.NullPointerIsDefined(aa.fn) {
		aa.fixed = true
		return Unchanged
	}
	changed := Unchanged
	aa.fn.Instructions(func(in ir.Instruction) bool {
		if aa.knownUB[in] || a.IsInstructionAssumedDead(in) {
			return true
		}
		ub := false
		switch v := in.(type) {
		case *ir.Load:
			ub = aa.pointerIsNull(a, v.Pointer())
		case *ir.Store:
			ub = aa.pointerIsNull(a, v.Pointer())
		case *ir.CondBr:
			ub = aa.conditionIsUndef(a, v.Cond())
		}
		if ub {
			aa.knownUB[in] = true
			delete(aa.assumedOK, in)
			changed = Changed
		} else if !aa.assumedOK[in] {
			aa.assumedOK[in] = true
		}
		return true
	})
	return changed
}

// Manifest implements AbstractAttribute: each undefined instruction is
// replaced by an unreachable marker.
func (aa *AAUndefinedBehavior) Manifest(a *Attributor) ChangeStatus {
	changed := Unchanged
	for in := range aa.knownUB {
		a.rewriter.ChangeToUnreachableAfterManifest(in)
		changed = Changed
	}
	return changed
}

// AsString implements AbstractAttribute.
func (aa *AAUndefinedBehavior) AsString() string {
	return aa.describe(fmt.Sprintf("undefined-behavior(known=%d)", len(aa.knownUB)))
}

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
	registerAA(KindNoReturn, func(pos Position) AbstractAttribute {
		return &AANoReturn{aaMeta: aaMeta{pos: pos, kind: KindNoReturn}, BooleanState: NewBooleanState()}
	})
}

// NoReturnAA returns the no-return record at pos.
func (a *Attributor) NoReturnAA(pos Position, dep DepClass) *AANoReturn {
	return getOrCreate[*AANoReturn](a, KindNoReturn, pos, dep)
}

// AANoReturn deduces that a function never returns to its caller: no
// return instruction is reachable.
type AANoReturn struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANoReturn) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANoReturn) Initialize(a *Attributor) {
	initFromAttr(a, aa, ir.AttrNoReturn)
}

// Update implements AbstractAttribute.
func (aa *AANoReturn) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() != PosFunction {
		return callSiteBoolFromCallee(a, aa)
	}
	// Any live return kills the deduction; the liveness filter inside the
	// helper is what lets mutually recursive no-return cycles settle.
	ok := a.CheckForAllInstructions(aa, func(in ir.Instruction) bool {
		_, isRet := in.(*ir.Ret)
		return isRet
	}, func(in ir.Instruction) bool {
		return false
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// Manifest implements AbstractAttribute.
func (aa *AANoReturn) Manifest(a *Attributor) ChangeStatus {
	return manifestBoolAttr(a, aa, ir.AttrNoReturn)
}

// AsString implements AbstractAttribute.
func (aa *AANoReturn) AsString() string { return boolString(aa, "noreturn") }

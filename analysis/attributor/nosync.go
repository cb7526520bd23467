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
	registerAA(KindNoSync, func(pos Position) AbstractAttribute {
		return &AANoSync{aaMeta: aaMeta{pos: pos, kind: KindNoSync}, BooleanState: NewBooleanState()}
	})
}

// NoSyncAA returns the no-sync record at pos.
func (a *Attributor) NoSyncAA(pos Position, dep DepClass) *AANoSync {
	return getOrCreate[*AANoSync](a, KindNoSync, pos, dep)
}

// AANoSync deduces that a function never synchronizes with other threads:
// no volatile access, no atomic ordering stronger than relaxed, and every
// callee is itself no-sync.
type AANoSync struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANoSync) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANoSync) Initialize(a *Attributor) {
	initFromAttr(a, aa, ir.AttrNoSync)
}

// Update implements AbstractAttribute.
func (aa *AANoSync) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() != PosFunction {
		return callSiteBoolFromCallee(a, aa)
	}
	ok := a.CheckForAllInstructions(aa, func(in ir.Instruction) bool {
		return true
	}, func(in ir.Instruction) bool {
		switch v := in.(type) {
		case *ir.Load:
			return !v.Volatile && isRelaxed(v.Ordering)
		case *ir.Store:
			return !v.Volatile && isRelaxed(v.Ordering)
		case *ir.Call, *ir.Invoke:
			cs, _ := ir.AsCallSite(in)
			return assumedBoolAt(a, aa, CallSitePos(cs))
		}
		return true
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// isRelaxed reports whether the ordering carries no synchronization:
// non-atomic, unordered, and relaxed (monotonic) accesses qualify.
func isRelaxed(o ir.AtomicOrdering) bool {
	return o <= ir.Monotonic
}

// Manifest implements AbstractAttribute.
func (aa *AANoSync) Manifest(a *Attributor) ChangeStatus {
	return manifestBoolAttr(a, aa, ir.AttrNoSync)
}

// AsString implements AbstractAttribute.
func (aa *AANoSync) AsString() string { return boolString(aa, "nosync") }

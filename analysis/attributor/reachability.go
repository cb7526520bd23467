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
	registerAA(KindReachability, func(pos Position) AbstractAttribute {
		return &AAReachability{aaMeta: aaMeta{pos: pos, kind: KindReachability}}
	})
}

// ReachabilityAA returns the reachability record of a function.
func (a *Attributor) ReachabilityAA(pos Position, dep DepClass) *AAReachability {
	return getOrCreate[*AAReachability](a, KindReachability, pos, dep)
}

// AAReachability answers whether one instruction can reach another. The
// implementation is a pessimistic stub: everything is reachable. The
// query surface exists so dependent deductions are already wired for a
// real implementation.
type AAReachability struct {
	aaMeta
}

// IsValidState implements AbstractState.
func (aa *AAReachability) IsValidState() bool { return true }

// IsAtFixpoint implements AbstractState.
func (aa *AAReachability) IsAtFixpoint() bool { return true }

// IndicateOptimisticFixpoint implements AbstractState.
func (aa *AAReachability) IndicateOptimisticFixpoint() ChangeStatus { return Unchanged }

// IndicatePessimisticFixpoint implements AbstractState.
func (aa *AAReachability) IndicatePessimisticFixpoint() ChangeStatus { return Unchanged }

// State implements AbstractAttribute.
func (aa *AAReachability) State() AbstractState { return aa }

// Initialize implements AbstractAttribute.
func (aa *AAReachability) Initialize(a *Attributor) {}

// Update implements AbstractAttribute.
func (aa *AAReachability) Update(a *Attributor) ChangeStatus { return Unchanged }

// Manifest implements AbstractAttribute.
func (aa *AAReachability) Manifest(a *Attributor) ChangeStatus { return Unchanged }

// IsAssumedReachable pessimistically reports that to is reachable from
// from.
func (aa *AAReachability) IsAssumedReachable(from, to ir.Instruction) bool { return true }

// AsString implements AbstractAttribute.
func (aa *AAReachability) AsString() string { return aa.describe("reachable(pessimistic)") }

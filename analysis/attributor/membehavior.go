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

// Memory behavior classes.
const (
	memNoReads uint32 = 1 << iota
	memNoWrites

	memReadNone = memNoReads | memNoWrites
)

func init() {
	registerAA(KindMemoryBehavior, func(pos Position) AbstractAttribute {
		return &AAMemoryBehavior{
			aaMeta:          aaMeta{pos: pos, kind: KindMemoryBehavior},
			BitIntegerState: NewBitIntegerState(memReadNone),
		}
	})
}

// MemoryBehaviorAA returns the memory-behavior record at pos.
func (a *Attributor) MemoryBehaviorAA(pos Position, dep DepClass) *AAMemoryBehavior {
	return getOrCreate[*AAMemoryBehavior](a, KindMemoryBehavior, pos, dep)
}

// AAMemoryBehavior deduces whether a function or pointer reads or writes
// memory.
type AAMemoryBehavior struct {
	aaMeta
	BitIntegerState
}

// Initialize implements AbstractAttribute.
func (aa *AAMemoryBehavior) Initialize(a *Attributor) {
	pos := aa.pos
	if pos.HasAttr(ir.AttrReadNone) {
		aa.AddKnownBits(memReadNone)
		aa.IndicateOptimisticFixpoint()
		return
	}
	if pos.HasAttr(ir.AttrReadOnly) {
		aa.AddKnownBits(memNoWrites)
	}
	if pos.HasAttr(ir.AttrWriteOnly) {
		aa.AddKnownBits(memNoReads)
	}
	switch pos.Kind() {
	case PosFunction:
		if fn := pos.AnchorScope(); fn == nil || fn.IsDeclaration() {
			aa.IndicatePessimisticFixpoint()
		}
	case PosArgument, PosFloat, PosCallSiteArgument:
		if !ir.IsPointer(pos.AssociatedType()) {
			aa.IndicatePessimisticFixpoint()
		}
	case PosCallSite:
		if pos.Callee() == nil {
			aa.IndicatePessimisticFixpoint()
		}
	}
}

// Update implements AbstractAttribute.
func (aa *AAMemoryBehavior) Update(a *Attributor) ChangeStatus {
	switch aa.pos.Kind() {
	case PosFunction:
		return aa.updateFunction(a)
	case PosArgument, PosFloat:
		return aa.updatePointer(a)
	case PosCallSiteArgument:
		callee := aa.pos.Callee()
		if callee == nil || aa.pos.ArgNo() >= len(callee.Args) {
			return aa.IndicatePessimisticFixpoint()
		}
		peer := a.MemoryBehaviorAA(ArgumentPos(callee.Arg(aa.pos.ArgNo())), RequiredDep)
		changed := aa.AddKnownBits(peer.Known)
		return changed.Or(aa.IntersectAssumedBits(peer.Assumed))
	default:
		callee := aa.pos.Callee()
		if callee == nil || !callee.IsIPOAmendable() {
			return aa.IndicatePessimisticFixpoint()
		}
		peer := a.MemoryBehaviorAA(FunctionPos(callee), RequiredDep)
		changed := aa.AddKnownBits(peer.Known)
		return changed.Or(aa.IntersectAssumedBits(peer.Assumed))
	}
}

func (aa *AAMemoryBehavior) updateFunction(a *Attributor) ChangeStatus {
	var removed uint32
	ok := a.CheckForAllInstructions(aa, func(in ir.Instruction) bool {
		return true
	}, func(in ir.Instruction) bool {
		switch v := in.(type) {
		case *ir.Load:
			removed |= memNoReads
		case *ir.Store:
			removed |= memNoWrites
		case *ir.Call, *ir.Invoke:
			cs, _ := ir.AsCallSite(v)
			peer := a.MemoryBehaviorAA(CallSitePos(cs), RequiredDep)
			removed |= memReadNone &^ peer.Assumed
		}
		return true
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return aa.RemoveAssumedBits(removed)
}

// updatePointer walks the uses of a pointer value: reads and writes
// through it clear the matching bits, passing it to a callee imports that
// argument's behavior, anything address-escaping is pessimistic.
func (aa *AAMemoryBehavior) updatePointer(a *Attributor) ChangeStatus {
	var removed uint32
	v := aa.pos.AssociatedValue()
	ok := a.CheckForAllUses(aa, v, func(u ir.Use) bool {
		switch user := u.User.(type) {
		case *ir.Load:
			removed |= memNoReads
			return true
		case *ir.Store:
			if user.Stored() == u.Get() {
				// The pointer itself escapes into memory.
				return false
			}
			removed |= memNoWrites
			return true
		case *ir.Call, *ir.Invoke:
			cs, _ := ir.AsCallSite(user)
			argNo := cs.Base.ArgOperandNo(u)
			if argNo < 0 {
				return true
			}
			peer := a.MemoryBehaviorAA(CallSiteArgumentPos(cs, argNo), RequiredDep)
			removed |= memReadNone &^ peer.Assumed
			return true
		case *ir.GetElementPtr, *ir.Phi, *ir.Select, *ir.Cast, *ir.ICmp, *ir.Ret:
			return true
		}
		return false
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return aa.RemoveAssumedBits(removed)
}

// Manifest implements AbstractAttribute.
func (aa *AAMemoryBehavior) Manifest(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosFloat {
		return Unchanged
	}
	switch {
	case aa.IsKnown(memReadNone) || aa.IsAssumed(memReadNone):
		return aa.pos.ManifestAttr(ir.Attribute{Kind: ir.AttrReadNone})
	case aa.IsAssumed(memNoWrites):
		return aa.pos.ManifestAttr(ir.Attribute{Kind: ir.AttrReadOnly})
	case aa.IsAssumed(memNoReads):
		return aa.pos.ManifestAttr(ir.Attribute{Kind: ir.AttrWriteOnly})
	}
	return Unchanged
}

// AsString implements AbstractAttribute.
func (aa *AAMemoryBehavior) AsString() string {
	switch {
	case aa.IsAssumed(memReadNone):
		return aa.describe("readnone")
	case aa.IsAssumed(memNoWrites):
		return aa.describe("readonly")
	case aa.IsAssumed(memNoReads):
		return aa.describe("writeonly")
	default:
		return aa.describe("may-read-write")
	}
}

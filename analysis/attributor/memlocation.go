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
	"strings"

	"github.com/fixpoint-tools/deduce/analysis/aliasing"
	"github.com/fixpoint-tools/deduce/ir"
)

// Memory location classes; a set bit means the class is proven
// untouched.
const (
	locLocal uint32 = 1 << iota
	locConst
	locGlobalInternal
	locGlobalExternal
	locArgument
	locInaccessible
	locMalloced
	locUnknown

	locAll = locLocal | locConst | locGlobalInternal | locGlobalExternal |
		locArgument | locInaccessible | locMalloced | locUnknown
)

var locNames = map[uint32]string{
	locLocal:          "local",
	locConst:          "const",
	locGlobalInternal: "internal-global",
	locGlobalExternal: "external-global",
	locArgument:       "argument",
	locInaccessible:   "inaccessible",
	locMalloced:       "malloced",
	locUnknown:        "unknown",
}

func init() {
	registerAA(KindMemoryLocation, func(pos Position) AbstractAttribute {
		return &AAMemoryLocation{
			aaMeta:          aaMeta{pos: pos, kind: KindMemoryLocation},
			BitIntegerState: NewBitIntegerState(locAll),
		}
	})
}

// MemoryLocationAA returns the memory-location record at pos.
func (a *Attributor) MemoryLocationAA(pos Position, dep DepClass) *AAMemoryLocation {
	return getOrCreate[*AAMemoryLocation](a, KindMemoryLocation, pos, dep)
}

// AAMemoryLocation deduces which classes of memory a function can touch,
// by categorizing the pointer origin of every access and importing callee
// summaries at call sites.
type AAMemoryLocation struct {
	aaMeta
	BitIntegerState
}

// Initialize implements AbstractAttribute.
func (aa *AAMemoryLocation) Initialize(a *Attributor) {
	pos := aa.pos
	if pos.HasAttr(ir.AttrReadNone) {
		aa.AddKnownBits(locAll)
		aa.IndicateOptimisticFixpoint()
		return
	}
	switch pos.Kind() {
	case PosFunction:
		if fn := pos.AnchorScope(); fn == nil || fn.IsDeclaration() {
			aa.IndicatePessimisticFixpoint()
		}
	case PosCallSite:
		if pos.Callee() == nil {
			aa.IndicatePessimisticFixpoint()
		}
	default:
		aa.IndicatePessimisticFixpoint()
	}
}

// classify maps a pointer operand back to its origin class.
func classify(ptr ir.Value) uint32 {
	switch base := aliasing.UnderlyingObject(ptr).(type) {
	case *ir.Alloca:
		return locLocal
	case *ir.Global:
		if base.Const {
			return locConst
		}
		if base.Internal {
			return locGlobalInternal
		}
		return locGlobalExternal
	case *ir.Argument:
		return locArgument
	case *ir.Call:
		if base.RetAttrs.Has(ir.AttrNoAlias) {
			return locMalloced
		}
	}
	return locUnknown
}

// Update implements AbstractAttribute.
func (aa *AAMemoryLocation) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosCallSite {
		callee := aa.pos.Callee()
		if callee == nil || !callee.IsIPOAmendable() {
			return aa.IndicatePessimisticFixpoint()
		}
		peer := a.MemoryLocationAA(FunctionPos(callee), RequiredDep)
		changed := aa.AddKnownBits(peer.Known)
		return changed.Or(aa.IntersectAssumedBits(peer.Assumed))
	}
	var touched uint32
	ok := a.CheckForAllInstructions(aa, func(in ir.Instruction) bool {
		return true
	}, func(in ir.Instruction) bool {
		switch v := in.(type) {
		case *ir.Load:
			touched |= classify(v.Pointer())
		case *ir.Store:
			touched |= classify(v.Pointer())
		case *ir.Call, *ir.Invoke:
			cs, _ := ir.AsCallSite(v)
			peer := a.MemoryLocationAA(CallSitePos(cs), RequiredDep)
			touched |= locAll &^ peer.Assumed
		}
		return true
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return aa.RemoveAssumedBits(touched)
}

// Manifest implements AbstractAttribute: the location set feeds other
// deductions; nothing is written to the IR.
func (aa *AAMemoryLocation) Manifest(a *Attributor) ChangeStatus { return Unchanged }

// AsString implements AbstractAttribute.
func (aa *AAMemoryLocation) AsString() string {
	if aa.IsAssumed(locAll) {
		return aa.describe("memory(none)")
	}
	var touched []string
	for bit := locLocal; bit <= locUnknown; bit <<= 1 {
		if aa.Assumed&bit == 0 {
			touched = append(touched, locNames[bit])
		}
	}
	return aa.describe("memory(" + strings.Join(touched, "|") + ")")
}

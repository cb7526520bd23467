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

// derefBest is the optimistic upper bound on provable bytes.
const derefBest = uint64(1) << 32

func init() {
	registerAA(KindDereferenceable, func(pos Position) AbstractAttribute {
		return &AADereferenceable{
			aaMeta:          aaMeta{pos: pos, kind: KindDereferenceable},
			IncIntegerState: NewIncIntegerState(derefBest),
		}
	})
}

// DereferenceableAA returns the dereferenceable record at pos.
func (a *Attributor) DereferenceableAA(pos Position, dep DepClass) *AADereferenceable {
	return getOrCreate[*AADereferenceable](a, KindDereferenceable, pos, dep)
}

// AADereferenceable deduces how many bytes behind a pointer are always
// safe to access, from annotations, allocation sizes, constant-offset
// arithmetic and accesses that must execute.
type AADereferenceable struct {
	aaMeta
	IncIntegerState

	// orNull is set when only dereferenceable_or_null is justified.
	orNull bool
}

// AssumedBytes returns the optimistic byte bound.
func (aa *AADereferenceable) AssumedBytes() uint64 { return aa.Assumed }

// KnownBytes returns the proven byte bound.
func (aa *AADereferenceable) KnownBytes() uint64 { return aa.Known }

// Initialize implements AbstractAttribute.
func (aa *AADereferenceable) Initialize(a *Attributor) {
	if !ir.IsPointer(aa.pos.AssociatedType()) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	for _, attr := range aa.pos.AttrsAt(ir.AttrDereferenceable, ir.AttrDereferenceableOrNull) {
		if attr.Kind == ir.AttrDereferenceableOrNull {
			aa.orNull = true
		}
		aa.TakeKnownMaximum(attr.Int)
	}
	if fn := aa.pos.AnchorScope(); fn == nil || fn.IsDeclaration() {
		if aa.pos.Kind() == PosFunction || aa.pos.Kind() == PosReturned || aa.pos.Kind() == PosArgument {
			aa.IndicatePessimisticFixpoint()
		}
	}
}

// derefBytesOfValue computes the bytes dereferenceable behind v: a stack
// or global object contributes its allocation size, a constant-offset gep
// the base's bytes minus the offset.
func (aa *AADereferenceable) derefBytesOfValue(a *Attributor, v ir.Value, ctx ir.Instruction) (known, assumed uint64) {
	dl := a.Cache.Layout
	switch x := v.(type) {
	case *ir.Alloca:
		sz := uint64(dl.TypeSize(x.Allocated))
		return sz, sz
	case *ir.Global:
		sz := uint64(dl.TypeSize(x.Elem))
		return sz, sz
	case *ir.GetElementPtr:
		off, okOff := x.ConstantOffset(dl)
		if !okOff || off < 0 {
			return 0, 0
		}
		peer := a.DereferenceableAA(posForValue(x.Pointer(), ctx), RequiredDep)
		sub := func(b uint64) uint64 {
			if b <= uint64(off) {
				return 0
			}
			return b - uint64(off)
		}
		return sub(peer.KnownBytes()), sub(peer.AssumedBytes())
	case *ir.Cast:
		if x.Op == ir.CastBitcast {
			peer := a.DereferenceableAA(posForValue(x.X(), ctx), RequiredDep)
			return peer.KnownBytes(), peer.AssumedBytes()
		}
	case *ir.Argument:
		peer := a.DereferenceableAA(ArgumentPos(x), RequiredDep)
		return peer.KnownBytes(), peer.AssumedBytes()
	}
	return 0, 0
}

// accessedBytes scans the must-be-executed uses for loads and stores and
// returns the largest offset+size access, which execution itself proves
// dereferenceable.
func (aa *AADereferenceable) accessedBytes(a *Attributor) uint64 {
	dl := a.Cache.Layout
	v := aa.pos.AssociatedValue()
	if v == nil {
		return 0
	}
	start := contextStart(aa.pos)
	if start == nil {
		return 0
	}
	ctx := mustExecContext(a, start)
	var max uint64

	// Walk the constant-offset cone of v, tracking the offset of each
	// derived pointer.
	type entry struct {
		v   ir.Value
		off uint64
	}
	seen := map[ir.Value]bool{}
	work := []entry{{v: v}}
	for len(work) > 0 {
		e := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[e.v] {
			continue
		}
		seen[e.v] = true
		for _, u := range e.v.Uses() {
			switch user := u.User.(type) {
			case *ir.GetElementPtr:
				if off, ok := user.ConstantOffset(dl); ok && off >= 0 {
					work = append(work, entry{v: user, off: e.off + uint64(off)})
				}
			case *ir.Cast:
				if user.Op == ir.CastBitcast {
					work = append(work, entry{v: user, off: e.off})
				}
			case *ir.Load:
				if user.Pointer() == e.v && ctx[user] {
					if b := e.off + uint64(dl.TypeSize(user.Type())); b > max {
						max = b
					}
				}
			case *ir.Store:
				if user.Pointer() == e.v && ctx[user] {
					if b := e.off + uint64(dl.TypeSize(user.Stored().Type())); b > max {
						max = b
					}
				}
			}
		}
	}
	return max
}

// Update implements AbstractAttribute.
func (aa *AADereferenceable) Update(a *Attributor) ChangeStatus {
	changed := Unchanged
	switch aa.pos.Kind() {
	case PosFloat:
		known, assumed := aa.derefBytesOfValue(a, aa.pos.AssociatedValue(), aa.pos.CtxInstruction())
		changed = changed.Or(aa.TakeKnownMaximum(known))
		changed = changed.Or(aa.TakeAssumedMinimum(assumed))
	case PosArgument:
		if acc := aa.accessedBytes(a); acc > 0 {
			changed = changed.Or(aa.TakeKnownMaximum(acc))
		}
		lo := derefBest
		ok := a.CheckForAllCallSites(aa, aa.pos.AnchorScope(), true, func(acs ACS) bool {
			op := acs.OperandOf(aa.pos.ArgNo())
			if op < 0 || op >= acs.CS.Base.NumArgs() {
				return false
			}
			peer := a.DereferenceableAA(CallSiteArgumentPos(acs.CS, op), RequiredDep)
			if peer.AssumedBytes() < lo {
				lo = peer.AssumedBytes()
			}
			return true
		})
		if ok {
			changed = changed.Or(aa.TakeAssumedMinimum(lo))
		} else {
			changed = changed.Or(aa.TakeAssumedMinimum(aa.Known))
		}
	case PosCallSiteArgument:
		v := aa.pos.AssociatedValue()
		known, assumed := aa.derefBytesOfValue(a, v, aa.pos.CtxInstruction())
		changed = changed.Or(aa.TakeKnownMaximum(known))
		if callee := aa.pos.Callee(); callee != nil && aa.pos.ArgNo() < len(callee.Args) {
			peer := a.DereferenceableAA(ArgumentPos(callee.Arg(aa.pos.ArgNo())), RequiredDep)
			if peer.AssumedBytes() > assumed {
				assumed = peer.AssumedBytes()
			}
			changed = changed.Or(aa.TakeKnownMaximum(peer.KnownBytes()))
		}
		changed = changed.Or(aa.TakeAssumedMinimum(assumed))
	case PosReturned:
		lo := derefBest
		knownLo := derefBest
		ok := a.CheckForAllReturnedValues(aa, aa.pos.AnchorScope(), func(v ir.Value) bool {
			known, assumed := aa.derefBytesOfValue(a, v, nil)
			if assumed < lo {
				lo = assumed
			}
			if known < knownLo {
				knownLo = known
			}
			return true
		})
		if !ok {
			return aa.TakeAssumedMinimum(aa.Known)
		}
		if knownLo < derefBest {
			changed = changed.Or(aa.TakeKnownMaximum(knownLo))
		}
		changed = changed.Or(aa.TakeAssumedMinimum(lo))
	case PosCallSiteReturned:
		callee := aa.pos.Callee()
		if callee == nil || !callee.IsIPOAmendable() {
			return aa.TakeAssumedMinimum(aa.Known)
		}
		peer := a.DereferenceableAA(ReturnedPos(callee), RequiredDep)
		changed = changed.Or(aa.TakeKnownMaximum(peer.KnownBytes()))
		changed = changed.Or(aa.TakeAssumedMinimum(peer.AssumedBytes()))
	default:
		return aa.TakeAssumedMinimum(aa.Known)
	}
	return changed
}

// Manifest implements AbstractAttribute.
func (aa *AADereferenceable) Manifest(a *Attributor) ChangeStatus {
	if aa.Known == 0 || aa.pos.Kind() == PosFloat {
		return Unchanged
	}
	kind := ir.AttrDereferenceable
	if aa.orNull {
		kind = ir.AttrDereferenceableOrNull
	}
	return aa.pos.ManifestAttr(ir.Attribute{Kind: kind, Int: aa.Known})
}

// AsString implements AbstractAttribute.
func (aa *AADereferenceable) AsString() string {
	return aa.describe(fmt.Sprintf("dereferenceable(known=%d, assumed=%d)", aa.Known, aa.Assumed))
}

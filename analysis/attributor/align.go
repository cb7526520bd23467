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

// alignBest is the largest alignment the deduction tracks.
const alignBest = uint64(1) << 29

func init() {
	registerAA(KindAlign, func(pos Position) AbstractAttribute {
		return &AAAlign{
			aaMeta:          aaMeta{pos: pos, kind: KindAlign},
			IncIntegerState: NewIncIntegerState(alignBest),
		}
	})
}

// AlignAA returns the alignment record at pos.
func (a *Attributor) AlignAA(pos Position, dep DepClass) *AAAlign {
	return getOrCreate[*AAAlign](a, KindAlign, pos, dep)
}

// AAAlign deduces a power-of-two alignment for a pointer from
// annotations, allocation alignments, offset arithmetic and natural
// alignment of must-executed accesses.
type AAAlign struct {
	aaMeta
	IncIntegerState
}

// KnownAlign returns the proven alignment, at least 1.
func (aa *AAAlign) KnownAlign() uint64 {
	if aa.Known == 0 {
		return 1
	}
	return aa.Known
}

// AssumedAlign returns the optimistic alignment.
func (aa *AAAlign) AssumedAlign() uint64 {
	if aa.Assumed == 0 {
		return 1
	}
	return aa.Assumed
}

// Initialize implements AbstractAttribute.
func (aa *AAAlign) Initialize(a *Attributor) {
	if !ir.IsPointer(aa.pos.AssociatedType()) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	for _, attr := range aa.pos.AttrsAt(ir.AttrAlign) {
		aa.TakeKnownMaximum(attr.Int)
	}
	if fn := aa.pos.AnchorScope(); fn == nil || fn.IsDeclaration() {
		switch aa.pos.Kind() {
		case PosReturned, PosArgument:
			aa.IndicatePessimisticFixpoint()
		}
	}
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// alignOfValue computes the known/assumed alignment of v.
func (aa *AAAlign) alignOfValue(a *Attributor, v ir.Value, ctx ir.Instruction) (known, assumed uint64) {
	dl := a.Cache.Layout
	switch x := v.(type) {
	case *ir.Alloca:
		al := x.Align
		if al == 0 {
			al = uint64(dl.TypeAlign(x.Allocated))
		}
		return al, al
	case *ir.Global:
		al := uint64(dl.TypeAlign(x.Elem))
		return al, al
	case *ir.ConstNull:
		return alignBest, alignBest
	case *ir.GetElementPtr:
		off, okOff := x.ConstantOffset(dl)
		if !okOff {
			return 1, 1
		}
		peer := a.AlignAA(posForValue(x.Pointer(), ctx), RequiredDep)
		known, assumed = peer.KnownAlign(), peer.AssumedAlign()
		if off != 0 {
			o := uint64(off)
			if off < 0 {
				o = uint64(-off)
			}
			known = gcd(known, o)
			assumed = gcd(assumed, o)
		}
		return known, assumed
	case *ir.Cast:
		if x.Op == ir.CastBitcast {
			peer := a.AlignAA(posForValue(x.X(), ctx), RequiredDep)
			return peer.KnownAlign(), peer.AssumedAlign()
		}
	case *ir.Argument:
		peer := a.AlignAA(ArgumentPos(x), RequiredDep)
		return peer.KnownAlign(), peer.AssumedAlign()
	}
	return 1, 1
}

// accessAlign scans must-executed loads and stores through the value and
// returns the largest natural alignment they imply.
func (aa *AAAlign) accessAlign(a *Attributor) uint64 {
	dl := a.Cache.Layout
	start := contextStart(aa.pos)
	if start == nil {
		return 0
	}
	ctx := mustExecContext(a, start)
	var max uint64
	v := aa.pos.AssociatedValue()
	if v == nil {
		return 0
	}
	for _, u := range v.Uses() {
		switch user := u.User.(type) {
		case *ir.Load:
			if user.Pointer() == v && ctx[user] {
				if al := uint64(dl.TypeAlign(user.Type())); al > max {
					max = al
				}
			}
		case *ir.Store:
			if user.Pointer() == v && ctx[user] {
				if al := uint64(dl.TypeAlign(user.Stored().Type())); al > max {
					max = al
				}
			}
		}
	}
	return max
}

// Update implements AbstractAttribute.
func (aa *AAAlign) Update(a *Attributor) ChangeStatus {
	changed := Unchanged
	switch aa.pos.Kind() {
	case PosFloat:
		known, assumed := aa.alignOfValue(a, aa.pos.AssociatedValue(), aa.pos.CtxInstruction())
		changed = changed.Or(aa.TakeKnownMaximum(known))
		changed = changed.Or(aa.TakeAssumedMinimum(assumed))
	case PosArgument:
		if acc := aa.accessAlign(a); acc > 0 {
			changed = changed.Or(aa.TakeKnownMaximum(acc))
		}
		lo := alignBest
		ok := a.CheckForAllCallSites(aa, aa.pos.AnchorScope(), true, func(acs ACS) bool {
			op := acs.OperandOf(aa.pos.ArgNo())
			if op < 0 || op >= acs.CS.Base.NumArgs() {
				return false
			}
			peer := a.AlignAA(CallSiteArgumentPos(acs.CS, op), RequiredDep)
			if peer.AssumedAlign() < lo {
				lo = peer.AssumedAlign()
			}
			return true
		})
		if ok {
			changed = changed.Or(aa.TakeAssumedMinimum(lo))
		} else {
			changed = changed.Or(aa.TakeAssumedMinimum(aa.KnownAlign()))
		}
	case PosCallSiteArgument:
		known, assumed := aa.alignOfValue(a, aa.pos.AssociatedValue(), aa.pos.CtxInstruction())
		changed = changed.Or(aa.TakeKnownMaximum(known))
		if callee := aa.pos.Callee(); callee != nil && aa.pos.ArgNo() < len(callee.Args) {
			peer := a.AlignAA(ArgumentPos(callee.Arg(aa.pos.ArgNo())), RequiredDep)
			changed = changed.Or(aa.TakeKnownMaximum(peer.KnownAlign()))
			if peer.AssumedAlign() > assumed {
				assumed = peer.AssumedAlign()
			}
		}
		changed = changed.Or(aa.TakeAssumedMinimum(assumed))
	case PosReturned:
		lo := alignBest
		knownLo := alignBest
		ok := a.CheckForAllReturnedValues(aa, aa.pos.AnchorScope(), func(v ir.Value) bool {
			known, assumed := aa.alignOfValue(a, v, nil)
			if assumed < lo {
				lo = assumed
			}
			if known < knownLo {
				knownLo = known
			}
			return true
		})
		if !ok {
			return aa.TakeAssumedMinimum(aa.KnownAlign())
		}
		changed = changed.Or(aa.TakeKnownMaximum(knownLo))
		changed = changed.Or(aa.TakeAssumedMinimum(lo))
	case PosCallSiteReturned:
		callee := aa.pos.Callee()
		if callee == nil || !callee.IsIPOAmendable() {
			return aa.TakeAssumedMinimum(aa.KnownAlign())
		}
		peer := a.AlignAA(ReturnedPos(callee), RequiredDep)
		changed = changed.Or(aa.TakeKnownMaximum(peer.KnownAlign()))
		changed = changed.Or(aa.TakeAssumedMinimum(peer.AssumedAlign()))
	default:
		return aa.TakeAssumedMinimum(aa.KnownAlign())
	}
	return changed
}

// Manifest implements AbstractAttribute: positions gain the align
// attribute, and loads and stores through the pointer have their
// annotations raised.
func (aa *AAAlign) Manifest(a *Attributor) ChangeStatus {
	changed := Unchanged
	if aa.Known > 1 && aa.pos.Kind() != PosFloat {
		changed = aa.pos.ManifestAttr(ir.Attribute{Kind: ir.AttrAlign, Int: aa.Known})
	}
	v := aa.pos.AssociatedValue()
	if v == nil || aa.Known <= 1 {
		return changed
	}
	for _, u := range v.Uses() {
		switch user := u.User.(type) {
		case *ir.Load:
			if user.Pointer() == v && user.Align < aa.Known {
				user.Align = aa.Known
				changed = Changed
			}
		case *ir.Store:
			if user.Pointer() == v && user.Align < aa.Known {
				user.Align = aa.Known
				changed = Changed
			}
		}
	}
	return changed
}

// AsString implements AbstractAttribute.
func (aa *AAAlign) AsString() string {
	return aa.describe(fmt.Sprintf("align(known=%d, assumed=%d)", aa.KnownAlign(), aa.AssumedAlign()))
}

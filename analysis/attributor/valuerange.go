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
	registerAA(KindValueRange, func(pos Position) AbstractAttribute {
		bits := 0
		if it, ok := pos.AssociatedType().(*ir.IntType); ok && it.Bits <= 64 {
			bits = it.Bits
		}
		return &AAValueRange{
			aaMeta:            aaMeta{pos: pos, kind: KindValueRange},
			IntegerRangeState: NewIntegerRangeState(bits),
		}
	})
}

// ValueRangeAA returns the value-range record at pos.
func (a *Attributor) ValueRangeAA(pos Position, dep DepClass) *AAValueRange {
	return getOrCreate[*AAValueRange](a, KindValueRange, pos, dep)
}

// AAValueRange deduces a constant range for an integer value through
// interval arithmetic over its producers.
type AAValueRange struct {
	aaMeta
	IntegerRangeState
}

// AssumedSingleElement returns the only value of the assumed range, if the
// range pinned down exactly one.
func (aa *AAValueRange) AssumedSingleElement() (int64, bool) {
	if !aa.IsValidState() {
		return 0, false
	}
	return aa.Assumed.SingleElement()
}

// AssumedRange returns the assumed constant range.
func (aa *AAValueRange) AssumedRange() ConstantRange { return aa.Assumed }

// Initialize implements AbstractAttribute.
func (aa *AAValueRange) Initialize(a *Attributor) {
	if aa.Bits == 0 {
		aa.IndicatePessimisticFixpoint()
		return
	}
	v := aa.pos.AssociatedValue()
	if c, ok := v.(*ir.ConstInt); ok {
		aa.UnionAssumed(SingleRange(aa.Bits, c.V))
		aa.IndicateOptimisticFixpoint()
		return
	}
	// Range metadata seeds the assumed interval.
	switch x := v.(type) {
	case *ir.Load:
		if x.Range != nil {
			aa.UnionAssumed(MakeRange(aa.Bits, x.Range.Lo, x.Range.Hi))
			aa.IndicateOptimisticFixpoint()
		}
	case *ir.Call:
		if x.Range != nil {
			aa.UnionAssumed(MakeRange(aa.Bits, x.Range.Lo, x.Range.Hi))
			aa.IndicateOptimisticFixpoint()
		}
	}
}

// rangeOf reads the assumed range of v at ctx, avoiding self-recursion.
func (aa *AAValueRange) rangeOf(a *Attributor, v ir.Value, ctx ir.Instruction) (ConstantRange, bool) {
	it, ok := v.Type().(*ir.IntType)
	if !ok || it.Bits > 64 {
		return ConstantRange{}, false
	}
	if c, isC := v.(*ir.ConstInt); isC {
		return SingleRange(it.Bits, c.V), true
	}
	pos := posForValue(v, ctx)
	if pos == aa.pos {
		return ConstantRange{}, false
	}
	peer := a.ValueRangeAA(pos, RequiredDep)
	if !peer.IsValidState() {
		return ConstantRange{}, false
	}
	r := peer.AssumedRange()
	if r.IsEmpty() {
		// Not yet computed; stay optimistic this round.
		return EmptyRange(it.Bits), true
	}
	return r, true
}

// Update implements AbstractAttribute.
func (aa *AAValueRange) Update(a *Attributor) ChangeStatus {
	switch aa.pos.Kind() {
	case PosArgument:
		return aa.updateArgument(a)
	case PosReturned:
		return aa.updateReturned(a)
	case PosCallSiteReturned:
		return aa.updateCallSiteReturned(a)
	default:
		return aa.updateFloat(a)
	}
}

func (aa *AAValueRange) updateFloat(a *Attributor) ChangeStatus {
	v := aa.pos.AssociatedValue()
	switch x := v.(type) {
	case *ir.BinOp:
		lr, okL := aa.rangeOf(a, x.X(), x)
		rr, okR := aa.rangeOf(a, x.Y(), x)
		if !okL || !okR {
			return aa.IndicatePessimisticFixpoint()
		}
		return aa.UnionAssumed(lr.BinOp(x.Op.String(), rr))
	case *ir.ICmp:
		lr, okL := aa.rangeOf(a, x.X(), x)
		rr, okR := aa.rangeOf(a, x.Y(), x)
		if !okL || !okR {
			return aa.IndicatePessimisticFixpoint()
		}
		return aa.UnionAssumed(ICmpRegion(x.Pred.String(), lr, rr))
	case *ir.Cast:
		xr, ok := aa.rangeOf(a, x.X(), x)
		if !ok {
			return aa.IndicatePessimisticFixpoint()
		}
		switch x.Op {
		case ir.CastZExt, ir.CastSExt:
			return aa.UnionAssumed(xr.Extend(aa.Bits))
		case ir.CastTrunc:
			return aa.UnionAssumed(xr.Truncate(aa.Bits))
		}
		return aa.IndicatePessimisticFixpoint()
	case *ir.Select:
		tr, okT := aa.rangeOf(a, x.True(), x)
		fr, okF := aa.rangeOf(a, x.False(), x)
		if !okT || !okF {
			return aa.IndicatePessimisticFixpoint()
		}
		return aa.UnionAssumed(tr.Union(fr))
	case *ir.Phi:
		changed := Unchanged
		for _, inc := range x.Operands() {
			if inc == x {
				continue
			}
			r, ok := aa.rangeOf(a, inc, x)
			if !ok {
				return aa.IndicatePessimisticFixpoint()
			}
			changed = changed.Or(aa.UnionAssumed(r))
		}
		return changed
	case *ir.Load:
		if x.Range != nil {
			return aa.UnionAssumed(MakeRange(aa.Bits, x.Range.Lo, x.Range.Hi))
		}
	}
	return aa.IndicatePessimisticFixpoint()
}

func (aa *AAValueRange) updateArgument(a *Attributor) ChangeStatus {
	f := aa.pos.AnchorScope()
	argNo := aa.pos.ArgNo()
	changed := Unchanged
	ok := a.CheckForAllCallSites(aa, f, true, func(acs ACS) bool {
		op := acs.OperandOf(argNo)
		if op < 0 || op >= acs.CS.Base.NumArgs() {
			return false
		}
		r, okR := aa.rangeOf(a, acs.CS.Base.Arg(op), acs.CS.Instr)
		if !okR {
			return false
		}
		changed = changed.Or(aa.UnionAssumed(r))
		return true
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return changed
}

func (aa *AAValueRange) updateReturned(a *Attributor) ChangeStatus {
	f := aa.pos.AnchorScope()
	changed := Unchanged
	ok := a.CheckForAllReturnedValues(aa, f, func(v ir.Value) bool {
		r, okR := aa.rangeOf(a, v, nil)
		if !okR {
			return false
		}
		changed = changed.Or(aa.UnionAssumed(r))
		return true
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	return changed
}

func (aa *AAValueRange) updateCallSiteReturned(a *Attributor) ChangeStatus {
	callee := aa.pos.Callee()
	if callee == nil || !callee.IsIPOAmendable() {
		return aa.IndicatePessimisticFixpoint()
	}
	peer := a.ValueRangeAA(ReturnedPos(callee), RequiredDep)
	if !peer.IsValidState() {
		return aa.IndicatePessimisticFixpoint()
	}
	return aa.UnionAssumed(peer.AssumedRange())
}

// Manifest implements AbstractAttribute: settled ranges become !range
// metadata on loads and calls.
func (aa *AAValueRange) Manifest(a *Attributor) ChangeStatus {
	r := aa.Assumed
	if r.IsEmpty() || r.IsFull() {
		return Unchanged
	}
	switch v := aa.pos.AssociatedValue().(type) {
	case *ir.Load:
		if v.Range == nil || v.Range.Lo < r.Lo || v.Range.Hi > r.Hi {
			v.Range = &ir.RangeMeta{Lo: r.Lo, Hi: r.Hi}
			return Changed
		}
	case *ir.Call:
		if aa.pos.Kind() == PosCallSiteReturned {
			if v.Range == nil || v.Range.Lo < r.Lo || v.Range.Hi > r.Hi {
				v.Range = &ir.RangeMeta{Lo: r.Lo, Hi: r.Hi}
				return Changed
			}
		}
	}
	return Unchanged
}

// AsString implements AbstractAttribute.
func (aa *AAValueRange) AsString() string {
	return aa.describe("range" + aa.Assumed.String())
}

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
	fu "github.com/fixpoint-tools/deduce/internal/funcutil"
	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindValueSimplify, func(pos Position) AbstractAttribute {
		return &AAValueSimplify{
			aaMeta:       aaMeta{pos: pos, kind: KindValueSimplify},
			BooleanState: NewBooleanState(),
			simplified:   fu.None[ir.Value](),
		}
	})
}

// ValueSimplifyAA returns the value-simplify record at pos.
func (a *Attributor) ValueSimplifyAA(pos Position, dep DepClass) *AAValueSimplify {
	return getOrCreate[*AAValueSimplify](a, KindValueSimplify, pos, dep)
}

// AAValueSimplify deduces a single replacement value for a position. The
// optional starts empty ("not simplified yet"); an agreeing set of
// producers fills it; disagreement collapses the state.
type AAValueSimplify struct {
	aaMeta
	BooleanState
	simplified fu.Optional[ir.Value]
}

// Bool exposes the boolean state.
func (aa *AAValueSimplify) Bool() *BooleanState { return &aa.BooleanState }

// SimplifiedValue returns the replacement value once one is assumed.
func (aa *AAValueSimplify) SimplifiedValue() (ir.Value, bool) {
	if !aa.IsAssumed() || aa.simplified.IsNone() {
		return nil, false
	}
	return aa.simplified.Value(), true
}

// Initialize implements AbstractAttribute.
func (aa *AAValueSimplify) Initialize(a *Attributor) {
	v := aa.pos.AssociatedValue()
	if v != nil && ir.IsConstant(v) {
		aa.simplified = fu.Some(v)
		aa.SetKnown()
		aa.IndicateOptimisticFixpoint()
		return
	}
	switch aa.pos.Kind() {
	case PosReturned, PosCallSiteReturned:
		if ir.IsVoid(aa.pos.AssociatedType()) {
			aa.IndicatePessimisticFixpoint()
		}
	}
}

// merge accumulates candidate v; two distinct candidates collapse the
// state.
func (aa *AAValueSimplify) merge(v ir.Value) bool {
	if aa.simplified.IsNone() {
		aa.simplified = fu.Some(v)
		return true
	}
	return sameValue(aa.simplified.Value(), v)
}

// sameValue compares candidates: identity for non-constants, structural
// equality for integer constants.
func sameValue(a, b ir.Value) bool {
	if a == b {
		return true
	}
	ca, okA := a.(*ir.ConstInt)
	cb, okB := b.(*ir.ConstInt)
	if okA && okB {
		return ca.V == cb.V && ir.TypesEqual(ca.Typ, cb.Typ)
	}
	_, nullA := a.(*ir.ConstNull)
	_, nullB := b.(*ir.ConstNull)
	return nullA && nullB && ir.TypesEqual(a.Type(), b.Type())
}

// Update implements AbstractAttribute.
func (aa *AAValueSimplify) Update(a *Attributor) ChangeStatus {
	before := aa.simplified
	ok := true
	switch aa.pos.Kind() {
	case PosArgument:
		ok = aa.updateArgument(a)
	case PosReturned:
		ok = aa.updateReturned(a)
	case PosCallSiteReturned:
		ok = aa.updateCallSiteReturned(a)
	default:
		ok = aa.updateFloat(a)
	}
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	if before.IsNone() != aa.simplified.IsNone() {
		return Changed
	}
	return Unchanged
}

// simplifiedOf resolves v through the peer record at its natural
// position; constants resolve to themselves, and a settled range with a
// single element resolves to that constant.
func (aa *AAValueSimplify) simplifiedOf(a *Attributor, v ir.Value, ctx ir.Instruction) (ir.Value, bool) {
	if ir.IsConstant(v) {
		return v, true
	}
	pos := posForValue(v, ctx)
	if pos == aa.pos {
		// Self-dependency discovered while stripping; do not recurse.
		return nil, false
	}
	peer := a.ValueSimplifyAA(pos, RequiredDep)
	if sv, ok := peer.SimplifiedValue(); ok {
		return sv, true
	}
	if it, ok := v.Type().(*ir.IntType); ok && it.Bits <= 64 {
		vr := a.ValueRangeAA(pos, OptionalDep)
		if c, ok := vr.AssumedSingleElement(); ok {
			return ir.NewConstInt(it, c), true
		}
	}
	if peer.IsAssumed() {
		// Still optimistic but unresolved; treat the value as itself
		// without giving up.
		return nil, true
	}
	return nil, false
}

func (aa *AAValueSimplify) updateFloat(a *Attributor) bool {
	v := aa.pos.AssociatedValue()
	switch x := v.(type) {
	case *ir.Cast:
		if x.Op == ir.CastBitcast {
			if sv, ok := aa.simplifiedOf(a, x.X(), x); ok {
				return sv == nil || aa.merge(sv)
			}
			return false
		}
	case *ir.Select:
		if sv, ok := aa.simplifiedOf(a, x.Cond(), x); ok && sv != nil {
			if c, isC := sv.(*ir.ConstInt); isC {
				branch := x.False()
				if c.V != 0 {
					branch = x.True()
				}
				if bv, ok := aa.simplifiedOf(a, branch, x); ok {
					return bv == nil || aa.merge(bv)
				}
				return false
			}
		}
		tv, okT := aa.simplifiedOf(a, x.True(), x)
		fv, okF := aa.simplifiedOf(a, x.False(), x)
		if !okT || !okF {
			return false
		}
		if tv == nil || fv == nil {
			return true
		}
		return aa.merge(tv) && aa.merge(fv)
	case *ir.Phi:
		for _, inc := range x.Operands() {
			if inc == x {
				continue
			}
			sv, ok := aa.simplifiedOf(a, inc, x)
			if !ok {
				return false
			}
			if sv == nil {
				continue
			}
			if !aa.merge(sv) {
				return false
			}
		}
		return true
	}
	// Plain values: a settled single-element range still simplifies. A
	// range that widened past a single element retracts any candidate it
	// supplied earlier.
	if it, ok := v.Type().(*ir.IntType); ok && it.Bits <= 64 {
		if in, isIn := v.(ir.Instruction); isIn {
			vr := a.ValueRangeAA(ValuePos(v, in), OptionalDep)
			if c, ok := vr.AssumedSingleElement(); ok {
				return aa.merge(ir.NewConstInt(it, c))
			}
			return aa.simplified.IsNone()
		}
	}
	return false
}

func (aa *AAValueSimplify) updateArgument(a *Attributor) bool {
	pos := aa.pos
	f := pos.AnchorScope()
	argNo := pos.ArgNo()
	return a.CheckForAllCallSites(aa, f, true, func(acs ACS) bool {
		if acs.Callback {
			// Callback payloads may differ per thread of the broker; a
			// constant seen here proves nothing.
			return false
		}
		op := acs.OperandOf(argNo)
		if op < 0 || op >= acs.CS.Base.NumArgs() {
			return false
		}
		val := acs.CS.Base.Arg(op)
		sv, ok := aa.simplifiedOf(a, val, acs.CS.Instr)
		if !ok {
			return false
		}
		if sv == nil {
			return true
		}
		return aa.merge(sv)
	})
}

func (aa *AAValueSimplify) updateReturned(a *Attributor) bool {
	f := aa.pos.AnchorScope()
	return a.CheckForAllReturnedValues(aa, f, func(v ir.Value) bool {
		sv, ok := aa.simplifiedOf(a, v, nil)
		if !ok {
			return false
		}
		if sv == nil {
			return true
		}
		return aa.merge(sv)
	})
}

func (aa *AAValueSimplify) updateCallSiteReturned(a *Attributor) bool {
	callee := aa.pos.Callee()
	if callee == nil || !callee.IsIPOAmendable() {
		return false
	}
	peer := a.ValueSimplifyAA(ReturnedPos(callee), RequiredDep)
	if !peer.IsAssumed() {
		return false
	}
	sv, ok := peer.SimplifiedValue()
	if !ok {
		return true
	}
	// Translate callee-scope values into this call's operands.
	if arg, isArg := sv.(*ir.Argument); isArg {
		cs, _ := aa.pos.CallSite()
		if arg.Parent == callee && arg.Index < cs.Base.NumArgs() {
			return aa.merge(cs.Base.Arg(arg.Index))
		}
		return false
	}
	if !ir.IsConstant(sv) {
		return false
	}
	return aa.merge(sv)
}

// Manifest implements AbstractAttribute: uses of the position's value are
// redirected to the simplified value.
func (aa *AAValueSimplify) Manifest(a *Attributor) ChangeStatus {
	sv, ok := aa.SimplifiedValue()
	if !ok {
		return Unchanged
	}
	v := aa.pos.AssociatedValue()
	if v == nil || v == sv || !ir.TypesEqual(v.Type(), sv.Type()) {
		return Unchanged
	}
	if ir.IsConstant(v) || len(v.Uses()) == 0 {
		return Unchanged
	}
	a.rewriter.ChangeValueAfterManifest(v, sv)
	return Changed
}

// AsString implements AbstractAttribute.
func (aa *AAValueSimplify) AsString() string {
	if sv, ok := aa.SimplifiedValue(); ok {
		return aa.describe("simplified-to(" + sv.Ident() + ")")
	}
	if aa.IsAssumed() {
		return aa.describe("not-simplified-yet")
	}
	return aa.describe("cannot-simplify")
}

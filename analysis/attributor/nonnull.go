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
	"github.com/fixpoint-tools/deduce/analysis/aliasing"
	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindNonNull, func(pos Position) AbstractAttribute {
		return &AANonNull{aaMeta: aaMeta{pos: pos, kind: KindNonNull}, BooleanState: NewBooleanState()}
	})
}

// NonNullAA returns the non-null record at pos.
func (a *Attributor) NonNullAA(pos Position, dep DepClass) *AANonNull {
	return getOrCreate[*AANonNull](a, KindNonNull, pos, dep)
}

// AANonNull deduces that a pointer is never null, from existing
// annotations, from its origin, and from dereferences in the
// must-be-executed context.
type AANonNull struct {
	aaMeta
	BooleanState
}

// Bool exposes the boolean state.
func (aa *AANonNull) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AANonNull) Initialize(a *Attributor) {
	if !ir.IsPointer(aa.pos.AssociatedType()) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	v := aa.pos.AssociatedValue()
	if v != nil {
		if ir.IsNullPointer(v) {
			aa.IndicatePessimisticFixpoint()
			return
		}
		if _, isUndef := v.(*ir.Undef); isUndef {
			aa.IndicatePessimisticFixpoint()
			return
		}
	}
	if aa.pos.HasAttr(ir.AttrNonNull) {
		aa.SetKnown()
		aa.IndicateOptimisticFixpoint()
		return
	}
	// Dereferenceable bytes imply a valid, and hence non-null, address
	// unless the target defines address zero.
	fn := aa.pos.AnchorScope()
	if !ir.NullPointerIsDefined(fn) && aa.pos.HasAttr(ir.AttrDereferenceable) {
		aa.SetKnown()
		aa.IndicateOptimisticFixpoint()
	}
}

// originIsNonNull reports whether the stripped base of v cannot be null.
func originIsNonNull(a *Attributor, aa AbstractAttribute, v ir.Value) bool {
	base := aliasing.UnderlyingObject(v)
	switch base.(type) {
	case *ir.Alloca, *ir.Global, *ir.Function:
		return true
	}
	if base != v {
		return assumedBoolAt(a, aa, posForValue(base, nil))
	}
	return false
}

// derefInMustExecContext reports whether the value is dereferenced on
// every path from the position's context.
func derefInMustExecContext(a *Attributor, aa AbstractAttribute) bool {
	fn := aa.Position().AnchorScope()
	if ir.NullPointerIsDefined(fn) {
		return false
	}
	found := false
	forEachMustExecUse(a, aa, func(u ir.Use) bool {
		switch user := u.User.(type) {
		case *ir.Load:
			if user.Pointer() == u.Get() {
				found = true
				return false
			}
		case *ir.Store:
			if user.Pointer() == u.Get() {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// Update implements AbstractAttribute.
func (aa *AANonNull) Update(a *Attributor) ChangeStatus {
	switch aa.pos.Kind() {
	case PosFloat:
		if originIsNonNull(a, aa, aa.pos.AssociatedValue()) {
			return Unchanged
		}
		if derefInMustExecContext(a, aa) {
			return Unchanged
		}
		return aa.IndicatePessimisticFixpoint()
	case PosArgument:
		if derefInMustExecContext(a, aa) {
			return Unchanged
		}
		return boolArgumentFromCallSiteArguments(a, aa)
	case PosReturned:
		return boolReturnedFromReturnedValues(a, aa)
	case PosCallSiteArgument:
		v := aa.pos.AssociatedValue()
		if originIsNonNull(a, aa, v) {
			return Unchanged
		}
		if assumedBoolAt(a, aa, posForValue(v, aa.pos.CtxInstruction())) {
			return Unchanged
		}
		return callSiteBoolFromCallee(a, aa)
	default:
		return callSiteBoolFromCallee(a, aa)
	}
}

// Manifest implements AbstractAttribute.
func (aa *AANonNull) Manifest(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosFloat {
		return Unchanged
	}
	return manifestBoolAttr(a, aa, ir.AttrNonNull)
}

// AsString implements AbstractAttribute.
func (aa *AANonNull) AsString() string { return boolString(aa, "nonnull") }

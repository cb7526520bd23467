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

// Capture classes: a pointer can leak into memory, into an integer, or
// out through the return value.
const (
	capNotInMem uint32 = 1 << iota
	capNotInInt
	capNotInRet

	capAll = capNotInMem | capNotInInt | capNotInRet
)

func init() {
	registerAA(KindNoCapture, func(pos Position) AbstractAttribute {
		return &AANoCapture{
			aaMeta:          aaMeta{pos: pos, kind: KindNoCapture},
			BitIntegerState: NewBitIntegerState(capAll),
		}
	})
}

// NoCaptureAA returns the no-capture record at pos.
func (a *Attributor) NoCaptureAA(pos Position, dep DepClass) *AANoCapture {
	return getOrCreate[*AANoCapture](a, KindNoCapture, pos, dep)
}

// AANoCapture deduces that a pointer does not escape through memory,
// integers or the return value, by driving the capture tracker over its
// uses and consulting peer records at call boundaries.
type AANoCapture struct {
	aaMeta
	BitIntegerState
}

// Initialize implements AbstractAttribute.
func (aa *AANoCapture) Initialize(a *Attributor) {
	pos := aa.pos
	if !ir.IsPointer(pos.AssociatedType()) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	if pos.HasAttr(ir.AttrNoCapture) {
		aa.AddKnownBits(capNotInMem | capNotInInt)
	}
	fn := pos.AnchorScope()
	switch pos.Kind() {
	case PosArgument:
		if fn == nil || fn.IsDeclaration() {
			aa.IndicatePessimisticFixpoint()
			return
		}
		// A function that reads no memory and returns nothing pointerish
		// bounds what a capture could even mean.
		if fn.Attrs.Has(ir.AttrReadNone) {
			aa.AddKnownBits(capNotInMem | capNotInInt)
		}
		if !ir.IsPointer(fn.ReturnType()) {
			aa.AddKnownBits(capNotInRet)
		}
	case PosCallSiteArgument:
		if pos.Callee() == nil {
			aa.IndicatePessimisticFixpoint()
		}
	case PosFloat:
		// Tracked directly below.
	default:
		aa.IndicatePessimisticFixpoint()
	}
}

// captureTracker adapts the aliasing package's use walk to the record.
type captureTracker struct {
	a        *Attributor
	aa       *AANoCapture
	captured uint32
}

// ShouldExplore implements aliasing.CaptureTracker.
func (t *captureTracker) ShouldExplore(u ir.Use) bool { return true }

// CapturedBy implements aliasing.CaptureTracker: call operands defer to
// the callee's view of the argument, everything else records the class.
func (t *captureTracker) CapturedBy(u ir.Use) bool {
	switch user := u.User.(type) {
	case *ir.Call, *ir.Invoke:
		cs, _ := ir.AsCallSite(user)
		argNo := cs.Base.ArgOperandNo(u)
		if argNo >= 0 {
			peer := t.a.NoCaptureAA(CallSiteArgumentPos(cs, argNo), RequiredDep)
			if peer.IsAssumed(capNotInMem | capNotInInt) {
				return false
			}
		}
		t.captured |= capNotInMem | capNotInInt
	case *ir.Store:
		t.captured |= capNotInMem
	case *ir.Cast:
		// Pointer-to-integer lets the address lurk in arithmetic; the
		// resulting integer's uses would need their own tracking.
		t.captured |= capNotInInt
	case *ir.Ret:
		t.captured |= capNotInRet
	default:
		t.captured |= capAll
	}
	return t.captured&(capNotInMem|capNotInInt) == (capNotInMem | capNotInInt)
}

// Update implements AbstractAttribute.
func (aa *AANoCapture) Update(a *Attributor) ChangeStatus {
	pos := aa.pos
	if pos.Kind() == PosCallSiteArgument {
		callee := pos.Callee()
		if callee == nil || pos.ArgNo() >= len(callee.Args) {
			return aa.IndicatePessimisticFixpoint()
		}
		peer := a.NoCaptureAA(ArgumentPos(callee.Arg(pos.ArgNo())), RequiredDep)
		changed := aa.AddKnownBits(peer.Known)
		return changed.Or(aa.IntersectAssumedBits(peer.Assumed))
	}
	v := pos.AssociatedValue()
	t := &captureTracker{a: a, aa: aa}
	aliasing.PointerMayBeCaptured(v, t)
	return aa.RemoveAssumedBits(t.captured)
}

// Manifest implements AbstractAttribute.
func (aa *AANoCapture) Manifest(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosFloat {
		return Unchanged
	}
	if !aa.IsAssumed(capNotInMem | capNotInInt) {
		return Unchanged
	}
	return aa.pos.ManifestAttr(ir.Attribute{Kind: ir.AttrNoCapture})
}

// AsString implements AbstractAttribute.
func (aa *AANoCapture) AsString() string {
	switch {
	case aa.IsAssumed(capAll):
		return aa.describe("nocapture")
	case aa.IsAssumed(capNotInMem | capNotInInt):
		return aa.describe("nocapture(maybe-returned)")
	default:
		return aa.describe("maybe-captured")
	}
}

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

func init() {
	registerAA(KindHeapToStack, func(pos Position) AbstractAttribute {
		return &AAHeapToStack{aaMeta: aaMeta{pos: pos, kind: KindHeapToStack}}
	})
}

// HeapToStackAA returns the heap-to-stack record of a function.
func (a *Attributor) HeapToStackAA(pos Position, dep DepClass) *AAHeapToStack {
	return getOrCreate[*AAHeapToStack](a, KindHeapToStack, pos, dep)
}

// AAHeapToStack finds heap allocations that can live on the stack: small,
// constant-sized, used only in known-safe ways, and freed in a
// predictable place if at all.
type AAHeapToStack struct {
	aaMeta
	fn *ir.Function

	// safe and bad partition the allocator calls seen so far; frees maps
	// each safe allocation to the free calls that release it.
	safe  map[*ir.Call]bool
	bad   map[*ir.Call]bool
	frees map[*ir.Call]map[*ir.Call]bool

	fixed bool
}

// IsValidState implements AbstractState; no allocation being convertible
// is a usable result, so the state is always valid.
func (aa *AAHeapToStack) IsValidState() bool { return true }

// IsAtFixpoint implements AbstractState.
func (aa *AAHeapToStack) IsAtFixpoint() bool { return aa.fixed }

// IndicateOptimisticFixpoint implements AbstractState.
func (aa *AAHeapToStack) IndicateOptimisticFixpoint() ChangeStatus {
	aa.fixed = true
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState.
func (aa *AAHeapToStack) IndicatePessimisticFixpoint() ChangeStatus {
	changed := Unchanged
	if len(aa.safe) > 0 {
		changed = Changed
	}
	for c := range aa.safe {
		aa.bad[c] = true
	}
	aa.safe = map[*ir.Call]bool{}
	aa.fixed = true
	return changed
}

// State implements AbstractAttribute.
func (aa *AAHeapToStack) State() AbstractState { return aa }

// Initialize implements AbstractAttribute.
func (aa *AAHeapToStack) Initialize(a *Attributor) {
	aa.fn = aa.pos.AnchorScope()
	aa.safe = map[*ir.Call]bool{}
	aa.bad = map[*ir.Call]bool{}
	aa.frees = map[*ir.Call]map[*ir.Call]bool{}
	if aa.fn == nil || aa.fn.IsDeclaration() || !a.Cfg.HeapToStackEnabled() {
		aa.fixed = true
	}
}

// Update implements AbstractAttribute.
func (aa *AAHeapToStack) Update(a *Attributor) ChangeStatus {
	changed := Unchanged
	aa.fn.Instructions(func(in ir.Instruction) bool {
		call, ok := in.(*ir.Call)
		if !ok || aa.bad[call] {
			return true
		}
		cs, _ := ir.AsCallSite(call)
		if !a.Cache.TLI.IsMallocLikeCall(cs) && !a.Cache.TLI.IsAlignedAllocLikeCall(cs) {
			// Zero-initialized allocations would need an initializing
			// rewrite this pass does not perform.
			return true
		}
		if a.IsInstructionAssumedDead(call) {
			return true
		}
		ok = aa.checkAllocation(a, call, cs)
		if ok && !aa.safe[call] {
			aa.safe[call] = true
			changed = Changed
		}
		if !ok && aa.safe[call] {
			delete(aa.safe, call)
			aa.bad[call] = true
			changed = Changed
		}
		if !ok && !aa.bad[call] {
			aa.bad[call] = true
			changed = Changed
		}
		return true
	})
	return changed
}

// checkAllocation applies the admission predicate: a recognized allocator
// call with a small constant size whose uses pass the use check or whose
// frees pass the free check. The disjunction mirrors the long-standing
// behavior of this analysis.
func (aa *AAHeapToStack) checkAllocation(a *Attributor, call *ir.Call, cs ir.CallSite) bool {
	size, okSize := a.Cache.TLI.AllocSize(cs)
	if !okSize || size < 0 || size > a.Cfg.MaxHeapToStackSize {
		return false
	}
	usesOK := aa.usesCheck(a, call)
	freesOK := aa.freeCheck(a, call)
	return usesOK || freesOK
}

// usesCheck validates every transitive use of the allocation against the
// known-safe patterns.
func (aa *AAHeapToStack) usesCheck(a *Attributor, call *ir.Call) bool {
	frees := map[*ir.Call]bool{}
	ok := a.CheckForAllUses(aa, call, func(u ir.Use) bool {
		switch user := u.User.(type) {
		case *ir.Load:
			return true
		case *ir.Store:
			// Storing through the buffer is fine; storing the buffer
			// pointer itself leaks it.
			return user.Stored() != u.Get()
		case *ir.GetElementPtr, *ir.Phi, *ir.Select, *ir.ICmp:
			return true
		case *ir.Cast:
			return user.Op == ir.CastBitcast
		case *ir.Call, *ir.Invoke:
			ucs, _ := ir.AsCallSite(user)
			if a.Cache.TLI.IsFreeCall(ucs) {
				if fc, isCall := user.(*ir.Call); isCall {
					frees[fc] = true
				}
				return true
			}
			argNo := ucs.Base.ArgOperandNo(u)
			if argNo < 0 {
				return false
			}
			nc := a.NoCaptureAA(CallSiteArgumentPos(ucs, argNo), RequiredDep)
			nf := a.NoFreeAA(CallSiteArgumentPos(ucs, argNo), RequiredDep)
			return nc.IsAssumed(capNotInMem|capNotInInt) && nf.Bool().IsAssumed()
		}
		return false
	})
	if ok {
		aa.frees[call] = frees
	}
	return ok
}

// freeCheck verifies the allocation is freed exactly once, in a block
// dominated by the allocation, with the allocation as the sole pointer
// reaching the free.
func (aa *AAHeapToStack) freeCheck(a *Attributor, call *ir.Call) bool {
	var frees []*ir.Call
	for _, u := range call.Uses() {
		ucs, ok := ir.AsCallSite(u.User)
		if !ok || !a.Cache.TLI.IsFreeCall(ucs) {
			continue
		}
		fc, isCall := u.User.(*ir.Call)
		if !isCall {
			return false
		}
		frees = append(frees, fc)
	}
	if len(frees) != 1 {
		return false
	}
	dt := a.Cache.DomTree(aa.fn)
	if !dt.DominatesInstr(call, frees[0]) {
		return false
	}
	aa.frees[call] = map[*ir.Call]bool{frees[0]: true}
	return true
}

// Manifest implements AbstractAttribute: safe allocations become entry
// block allocas and their frees disappear.
func (aa *AAHeapToStack) Manifest(a *Attributor) ChangeStatus {
	if len(aa.safe) == 0 {
		return Unchanged
	}
	entry := aa.fn.EntryBlock()
	changed := Unchanged
	// Collect the calls first: the inserts below shift the entry block,
	// and a walk over it would meet the same call again.
	var calls []*ir.Call
	aa.fn.Instructions(func(in ir.Instruction) bool {
		if call, ok := in.(*ir.Call); ok && aa.safe[call] {
			calls = append(calls, call)
		}
		return true
	})
	for _, call := range calls {
		cs, _ := ir.AsCallSite(call)
		size, _ := a.Cache.TLI.AllocSize(cs)
		var align uint64
		if a.Cache.TLI.IsAlignedAllocLikeCall(cs) {
			if c, isC := cs.Base.Arg(0).(*ir.ConstInt); isC {
				align = uint64(c.V)
			}
		}
		buf := ir.NewAlloca(call.Name()+".stack", &ir.ArrayType{Len: size, Elem: ir.I8}, align)
		head := ir.NewGEP(call.Name()+".ptr", buf.Allocated, buf,
			ir.NewConstInt(ir.I64, 0), ir.NewConstInt(ir.I64, 0))
		if len(entry.Instrs) == 0 {
			entry.Append(buf)
			entry.Append(head)
		} else {
			entry.InsertBefore(buf, entry.Instrs[0])
			entry.InsertAfter(head, buf)
		}
		a.rewriter.ChangeValueAfterManifest(call, head)
		a.rewriter.DeleteInstructionAfterManifest(call)
		for free := range aa.frees[call] {
			a.rewriter.DeleteInstructionAfterManifest(free)
		}
		changed = Changed
	}
	return changed
}

// AsString implements AbstractAttribute.
func (aa *AAHeapToStack) AsString() string {
	return aa.describe(fmt.Sprintf("heap-to-stack(safe=%d, bad=%d)", len(aa.safe), len(aa.bad)))
}

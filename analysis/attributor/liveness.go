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

	"golang.org/x/tools/container/intsets"

	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindIsDead, func(pos Position) AbstractAttribute {
		if pos.Kind() == PosFunction {
			return &AAIsDeadFunction{aaMeta: aaMeta{pos: pos, kind: KindIsDead}}
		}
		return &AAIsDeadValue{aaMeta: aaMeta{pos: pos, kind: KindIsDead}, BooleanState: NewBooleanState()}
	})
}

// DeadFunctionAA returns the liveness record of a function position.
func (a *Attributor) DeadFunctionAA(pos Position, dep DepClass) *AAIsDeadFunction {
	return getOrCreate[*AAIsDeadFunction](a, KindIsDead, pos, dep)
}

// DeadValueAA returns the liveness record of a value position.
func (a *Attributor) DeadValueAA(pos Position, dep DepClass) *AAIsDeadValue {
	return getOrCreate[*AAIsDeadValue](a, KindIsDead, pos, dep)
}

// AAIsDeadFunction tracks which blocks of a function are assumed dead. It
// starts with only the entry alive and discovers live successors from an
// explore queue; calls assumed no-return end exploration, constant branch
// conditions prune edges.
type AAIsDeadFunction struct {
	aaMeta
	fn *ir.Function

	liveBlocks intsets.Sparse
	blockIdx   map[*ir.BasicBlock]int

	// toExplore holds instructions to explore from: the first instruction
	// of each newly live block, and former dead ends whose no-return
	// assumption failed; deadEnds maps a call to the fact that execution
	// is assumed to stop right after it.
	toExplore []ir.Instruction
	deadEnds  map[ir.Instruction]bool

	fixed bool
}

// IsValidState implements AbstractState; liveness information is never
// invalid, at worst everything is alive.
func (aa *AAIsDeadFunction) IsValidState() bool { return true }

// IsAtFixpoint implements AbstractState.
func (aa *AAIsDeadFunction) IsAtFixpoint() bool { return aa.fixed }

// IndicateOptimisticFixpoint implements AbstractState.
func (aa *AAIsDeadFunction) IndicateOptimisticFixpoint() ChangeStatus {
	aa.fixed = true
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState: every block
// becomes alive.
func (aa *AAIsDeadFunction) IndicatePessimisticFixpoint() ChangeStatus {
	changed := Unchanged
	for _, b := range aa.fn.Blocks {
		if aa.markLive(b) {
			changed = Changed
		}
	}
	aa.deadEnds = map[ir.Instruction]bool{}
	aa.fixed = true
	return changed
}

// State implements AbstractAttribute.
func (aa *AAIsDeadFunction) State() AbstractState { return aa }

// Initialize implements AbstractAttribute.
func (aa *AAIsDeadFunction) Initialize(a *Attributor) {
	aa.fn = aa.pos.AnchorScope()
	aa.blockIdx = map[*ir.BasicBlock]int{}
	aa.deadEnds = map[ir.Instruction]bool{}
	for i, b := range aa.fn.Blocks {
		aa.blockIdx[b] = i
	}
	if aa.fn.IsDeclaration() {
		aa.fixed = true
		return
	}
	aa.markLive(aa.fn.EntryBlock())
}

func (aa *AAIsDeadFunction) markLive(b *ir.BasicBlock) bool {
	idx, ok := aa.blockIdx[b]
	if !ok || aa.liveBlocks.Has(idx) {
		return false
	}
	aa.liveBlocks.Insert(idx)
	if len(b.Instrs) > 0 {
		aa.toExplore = append(aa.toExplore, b.Instrs[0])
	}
	return true
}

// Update implements AbstractAttribute.
func (aa *AAIsDeadFunction) Update(a *Attributor) ChangeStatus {
	changed := Unchanged

	// Re-examine dead ends whose no-return assumption may have failed.
	for in := range aa.deadEnds {
		if !aa.callIsAssumedNoReturn(a, in) {
			delete(aa.deadEnds, in)
			aa.toExplore = append(aa.toExplore, in)
			changed = Changed
		}
	}

	for len(aa.toExplore) > 0 {
		in := aa.toExplore[len(aa.toExplore)-1]
		aa.toExplore = aa.toExplore[:len(aa.toExplore)-1]
		if aa.explore(a, in) {
			changed = Changed
		}
	}
	return changed
}

// explore walks forward from in inside its block and marks discovered
// successors live. It reports whether new blocks became live or a dead end
// was recorded.
func (aa *AAIsDeadFunction) explore(a *Attributor, start ir.Instruction) bool {
	b := start.Parent()
	if b == nil {
		return false
	}
	changed := false
	for _, in := range b.Instrs[b.Index(start):] {
		if cs, ok := ir.AsCallSite(in); ok {
			if aa.callIsAssumedNoReturn(a, in) {
				if !aa.deadEnds[in] {
					aa.deadEnds[in] = true
					changed = true
				}
				return changed
			}
			if iv, ok := in.(*ir.Invoke); ok {
				changed = aa.exploreInvoke(a, iv, cs) || changed
				return changed
			}
		}
		if t, ok := in.(ir.Terminator); ok {
			for _, s := range aa.liveSuccessors(a, t) {
				changed = aa.markLive(s) || changed
			}
			return changed
		}
	}
	return changed
}

func (aa *AAIsDeadFunction) exploreInvoke(a *Attributor, iv *ir.Invoke, cs ir.CallSite) bool {
	changed := aa.markLive(iv.NormalDest)
	nu := a.NoUnwindAA(CallSitePos(cs), OptionalDep)
	if !nu.Bool().IsAssumed() {
		changed = aa.markLive(iv.UnwindDest) || changed
	}
	return changed
}

// liveSuccessors prunes branch edges whose condition settled to a
// constant via value simplification.
func (aa *AAIsDeadFunction) liveSuccessors(a *Attributor, t ir.Terminator) []*ir.BasicBlock {
	switch v := t.(type) {
	case *ir.CondBr:
		if c, ok := aa.constantCondition(a, v.Cond()); ok {
			if c.IsZero() {
				return []*ir.BasicBlock{v.Else}
			}
			return []*ir.BasicBlock{v.Then}
		}
	case *ir.Switch:
		if c, ok := aa.constantCondition(a, v.Cond()); ok {
			for _, cse := range v.Cases {
				if cse.Val.V == c.V {
					return []*ir.BasicBlock{cse.Target}
				}
			}
			return []*ir.BasicBlock{v.Default}
		}
	}
	return t.Successors()
}

func (aa *AAIsDeadFunction) constantCondition(a *Attributor, cond ir.Value) (*ir.ConstInt, bool) {
	if c, ok := cond.(*ir.ConstInt); ok {
		return c, true
	}
	vs := a.ValueSimplifyAA(posForValue(cond, nil), OptionalDep)
	if v, ok := vs.SimplifiedValue(); ok {
		if c, ok := v.(*ir.ConstInt); ok {
			return c, true
		}
	}
	return nil, false
}

func (aa *AAIsDeadFunction) callIsAssumedNoReturn(a *Attributor, in ir.Instruction) bool {
	cs, ok := ir.AsCallSite(in)
	if !ok {
		return false
	}
	nr := a.NoReturnAA(CallSitePos(cs), OptionalDep)
	return nr.Bool().IsAssumed()
}

// IsAssumedDeadBlock reports whether b is assumed unreachable.
func (aa *AAIsDeadFunction) IsAssumedDeadBlock(b *ir.BasicBlock) bool {
	idx, ok := aa.blockIdx[b]
	if !ok {
		return false
	}
	return !aa.liveBlocks.Has(idx)
}

// IsAssumedDeadInstr reports whether in is assumed unreachable: its block
// is dead, or a dead end precedes it in the block.
func (aa *AAIsDeadFunction) IsAssumedDeadInstr(in ir.Instruction) bool {
	b := in.Parent()
	if b == nil {
		return true
	}
	if b.Parent() != aa.fn {
		return false
	}
	if aa.IsAssumedDeadBlock(b) {
		return true
	}
	idx := b.Index(in)
	for _, x := range b.Instrs[:idx] {
		if aa.deadEnds[x] {
			return true
		}
	}
	return false
}

// Manifest implements AbstractAttribute: dead blocks are detached, dead
// ends get an unreachable marker, settled constant branches fold, and
// invokes whose unwind edge died become calls where the personality
// permits.
func (aa *AAIsDeadFunction) Manifest(a *Attributor) ChangeStatus {
	changed := Unchanged
	for _, b := range aa.fn.Blocks {
		if aa.IsAssumedDeadBlock(b) {
			a.rewriter.DeleteBlockAfterManifest(b)
			changed = Changed
		}
	}
	for in := range aa.deadEnds {
		b := in.Parent()
		if b == nil {
			continue
		}
		idx := b.Index(in)
		if idx+1 < len(b.Instrs) {
			if _, ok := b.Instrs[idx+1].(*ir.Unreachable); ok && idx+2 == len(b.Instrs) {
				continue
			}
			a.rewriter.ChangeToUnreachableAfterManifest(b.Instrs[idx+1])
			changed = Changed
		}
	}
	for _, b := range aa.fn.Blocks {
		if aa.IsAssumedDeadBlock(b) {
			continue
		}
		switch t := b.Term().(type) {
		case *ir.CondBr:
			if _, ok := aa.constantCondition(a, t.Cond()); ok {
				a.rewriter.FoldBranchAfterManifest(t)
				changed = Changed
			}
		case *ir.Switch:
			if _, ok := aa.constantCondition(a, t.Cond()); ok {
				a.rewriter.FoldBranchAfterManifest(t)
				changed = Changed
			}
		case *ir.Invoke:
			if aa.IsAssumedDeadBlock(t.UnwindDest) && aa.fn.Personality == nil {
				a.rewriter.InvokeToCallAfterManifest(t)
				changed = Changed
			}
		}
	}
	return changed
}

// AsString implements AbstractAttribute.
func (aa *AAIsDeadFunction) AsString() string {
	live := aa.liveBlocks.Len()
	return aa.describe(fmt.Sprintf("live(%d/%d)", live, len(aa.fn.Blocks)))
}

// AAIsDeadValue assumes a side-effect-free value is dead until a live user
// shows up.
type AAIsDeadValue struct {
	aaMeta
	BooleanState // assumed true = assumed dead
}

// Bool exposes the boolean state.
func (aa *AAIsDeadValue) Bool() *BooleanState { return &aa.BooleanState }

// Initialize implements AbstractAttribute.
func (aa *AAIsDeadValue) Initialize(a *Attributor) {
	v := aa.pos.AssociatedValue()
	in, ok := v.(ir.Instruction)
	if ok && ir.HasSideEffects(in) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	if _, isArg := v.(*ir.Argument); isArg {
		// Dead arguments stay in place; privatization handles removal.
		if len(v.Uses()) > 0 {
			aa.IndicatePessimisticFixpoint()
		}
	}
}

// Update implements AbstractAttribute.
func (aa *AAIsDeadValue) Update(a *Attributor) ChangeStatus {
	v := aa.pos.AssociatedValue()
	for _, u := range v.Uses() {
		if a.IsInstructionAssumedDead(u.User) {
			continue
		}
		// A user that is itself an assumed-dead value keeps us dead.
		if !ir.IsVoid(u.User.Type()) && !ir.HasSideEffects(u.User) {
			dv := a.DeadValueAA(ValuePos(u.User, u.User), OptionalDep)
			if dv.Bool().IsAssumed() {
				continue
			}
		}
		return aa.IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// Manifest implements AbstractAttribute: a known-dead instruction is
// replaced by undef and deleted.
func (aa *AAIsDeadValue) Manifest(a *Attributor) ChangeStatus {
	if !aa.IsAssumed() {
		return Unchanged
	}
	in, ok := aa.pos.AssociatedValue().(ir.Instruction)
	if !ok || in.Parent() == nil {
		return Unchanged
	}
	if len(in.Uses()) > 0 {
		a.rewriter.ChangeValueAfterManifest(in, ir.NewUndef(in.Type()))
	}
	a.rewriter.DeleteInstructionAfterManifest(in)
	return Changed
}

// AsString implements AbstractAttribute.
func (aa *AAIsDeadValue) AsString() string {
	if aa.IsAssumed() {
		return aa.describe("dead")
	}
	return aa.describe("live")
}

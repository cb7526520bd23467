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
	"github.com/fixpoint-tools/deduce/analysis/callgraph"
	"github.com/fixpoint-tools/deduce/ir"
)

// An ArgReplacement describes one argument of a signature rewrite: the old
// argument is replaced by values of Types; CalleeRepair reconstitutes the
// argument inside the new body, ACSRepair produces the replacement
// operands at each call site.
type ArgReplacement struct {
	Arg   *ir.Argument
	Types []ir.Type

	// CalleeRepair runs once with the new function and the new arguments
	// standing in for the old one; it must leave no uses of the old
	// argument behind.
	CalleeRepair func(rw *Rewriter, newFn *ir.Function, oldArg *ir.Argument, newArgs []*ir.Argument)

	// ACSRepair maps the old actual operand to the replacement operands,
	// inserting any needed loads before acs.
	ACSRepair func(rw *Rewriter, acs ACS, oldOperand ir.Value) []ir.Value
}

type useReplacement struct {
	use ir.Use
	val ir.Value
}

type valueReplacement struct {
	old, new ir.Value
}

// Rewriter stages IR edits during manifest and replays them in a fixed
// order once the lattice has settled. Nothing mutates the IR before
// Replay.
type Rewriter struct {
	a *Attributor

	uses          []useReplacement
	values        []valueReplacement
	unreachables  []ir.Instruction
	invokeToCalls []*ir.Invoke
	foldBranches  []ir.Terminator
	deadInstrs    []ir.Instruction
	deadBlocks    []*ir.BasicBlock
	deadFns       []*ir.Function
	sigRewrites   map[*ir.Function][]*ArgReplacement
	wrap          []*ir.Function

	cg callgraph.Updater
}

// NewRewriter returns an empty rewriter bound to a.
func NewRewriter(a *Attributor) *Rewriter {
	return &Rewriter{a: a, sigRewrites: map[*ir.Function][]*ArgReplacement{}, cg: callgraph.NoopUpdater{}}
}

// SetCallGraphUpdater installs the updater notified of structural changes.
func (rw *Rewriter) SetCallGraphUpdater(cg callgraph.Updater) {
	if cg != nil {
		rw.cg = cg
	}
}

// ChangeUseAfterManifest stages replacing the value consumed by u with v.
func (rw *Rewriter) ChangeUseAfterManifest(u ir.Use, v ir.Value) {
	rw.uses = append(rw.uses, useReplacement{use: u, val: v})
}

// ChangeValueAfterManifest stages a replace-all-uses of old with new.
func (rw *Rewriter) ChangeValueAfterManifest(old, new ir.Value) {
	rw.values = append(rw.values, valueReplacement{old: old, new: new})
}

// ChangeToUnreachableAfterManifest stages cutting the block at in: in and
// everything after it are replaced by an unreachable marker.
func (rw *Rewriter) ChangeToUnreachableAfterManifest(in ir.Instruction) {
	rw.unreachables = append(rw.unreachables, in)
}

// InvokeToCallAfterManifest stages rewriting iv to a plain call followed
// by a branch to its normal destination.
func (rw *Rewriter) InvokeToCallAfterManifest(iv *ir.Invoke) {
	rw.invokeToCalls = append(rw.invokeToCalls, iv)
}

// FoldBranchAfterManifest stages folding a terminator with a settled
// constant condition.
func (rw *Rewriter) FoldBranchAfterManifest(t ir.Terminator) {
	rw.foldBranches = append(rw.foldBranches, t)
}

// DeleteInstructionAfterManifest stages erasing in.
func (rw *Rewriter) DeleteInstructionAfterManifest(in ir.Instruction) {
	rw.deadInstrs = append(rw.deadInstrs, in)
}

// DeleteBlockAfterManifest stages detaching b.
func (rw *Rewriter) DeleteBlockAfterManifest(b *ir.BasicBlock) {
	rw.deadBlocks = append(rw.deadBlocks, b)
}

// DeleteFunctionAfterManifest stages removing fn from the module.
func (rw *Rewriter) DeleteFunctionAfterManifest(fn *ir.Function) {
	rw.deadFns = append(rw.deadFns, fn)
}

// RegisterSignatureRewrite stages replacing one argument of fn. Variadic
// functions cannot be rewritten; the registration is refused.
func (rw *Rewriter) RegisterSignatureRewrite(repl *ArgReplacement) bool {
	fn := repl.Arg.Parent
	if fn.Sig.Variadic {
		return false
	}
	rw.sigRewrites[fn] = append(rw.sigRewrites[fn], repl)
	return true
}

// CreateShallowWrapper stages wrapping fn: the original symbol name passes
// to a thin tail-call wrapper around the demoted body. Direct calls keep
// calling the demoted body; other references move to the wrapper.
func (rw *Rewriter) CreateShallowWrapper(fn *ir.Function) {
	rw.wrap = append(rw.wrap, fn)
}

// Replay applies the staged edits. The order is fixed: use and value
// replacements first, then control-flow surgery, then deletions, then
// signature rewrites and function-level changes.
func (rw *Rewriter) Replay() ChangeStatus {
	rw.cg.Initialize(rw.a.Cache.CallGraph)
	changed := Unchanged

	for _, ur := range rw.uses {
		// Substituting undef into a branch condition would leave the
		// target ambiguous; cut the block instead.
		if _, isUndef := ur.val.(*ir.Undef); isUndef {
			if _, isBr := ur.use.User.(*ir.CondBr); isBr {
				rw.unreachables = append(rw.unreachables, ur.use.User)
				changed = Changed
				continue
			}
		}
		ur.use.Set(ur.val)
		changed = Changed
	}
	for _, vr := range rw.values {
		if len(vr.old.Uses()) > 0 {
			ir.ReplaceAllUsesWith(vr.old, vr.new)
			changed = Changed
		}
	}

	for _, in := range rw.unreachables {
		changed = changed.Or(rw.cutAtUnreachable(in))
	}
	for _, iv := range rw.invokeToCalls {
		changed = changed.Or(rw.invokeToCall(iv))
	}
	for _, t := range rw.foldBranches {
		changed = changed.Or(rw.foldBranch(t))
	}

	for _, in := range rw.deadInstrs {
		if in.Parent() == nil {
			continue
		}
		if !ir.IsVoid(in.Type()) && len(in.Uses()) > 0 {
			ir.ReplaceAllUsesWith(in, ir.NewUndef(in.Type()))
		}
		in.Parent().Erase(in)
		changed = Changed
	}
	for _, b := range rw.deadBlocks {
		if b.Parent() == nil {
			continue
		}
		rw.cg.ReanalyzeFunction(b.Parent())
		b.Detach()
		changed = Changed
	}

	for fn, repls := range rw.sigRewrites {
		if fn.Mod == nil {
			continue
		}
		changed = changed.Or(rw.rewriteSignature(fn, repls))
	}
	for _, fn := range rw.wrap {
		if fn.Mod == nil {
			continue
		}
		rw.makeShallowWrapper(fn)
		changed = Changed
	}
	for _, fn := range rw.deadFns {
		if fn.Mod == nil {
			continue
		}
		rw.cg.RemoveFunction(fn)
		fn.Mod.RemoveFunction(fn)
		rw.a.stats.FnDeleted.Inc()
		changed = Changed
	}
	rw.cg.Finalize()
	return changed
}

// cutAtUnreachable truncates in's block from in onward and terminates it
// with an unreachable marker.
func (rw *Rewriter) cutAtUnreachable(in ir.Instruction) ChangeStatus {
	b := in.Parent()
	if b == nil {
		return Unchanged
	}
	idx := b.Index(in)
	if idx < 0 {
		return Unchanged
	}
	if idx == len(b.Instrs)-1 {
		if _, already := in.(*ir.Unreachable); already {
			return Unchanged
		}
	}
	for _, s := range b.Succs() {
		s.RemovePhiIncoming(b)
	}
	b.Truncate(idx)
	b.Append(ir.NewUnreachable())
	rw.cg.ReanalyzeFunction(b.Parent())
	return Changed
}

// invokeToCall rewrites an invoke whose unwind edge died into a plain
// call. Liveness stages it only in functions without a personality; an
// invoke in a function with a personality keeps its form, and its normal
// successor is not split.
func (rw *Rewriter) invokeToCall(iv *ir.Invoke) ChangeStatus {
	b := iv.Parent()
	if b == nil {
		return Unchanged
	}
	call := ir.NewCall(iv.Name(), iv.Callee(), iv.Args()...)
	call.FnAttrs = iv.FnAttrs.Copy()
	call.RetAttrs = iv.RetAttrs.Copy()
	call.ArgAttrs = append([]ir.AttrSet(nil), iv.ArgAttrs...)
	b.InsertBefore(call, iv)
	normal, unwind := iv.NormalDest, iv.UnwindDest
	if len(iv.Uses()) > 0 {
		ir.ReplaceAllUsesWith(iv, call)
	}
	unwind.RemovePhiIncoming(b)
	b.Erase(iv)
	b.Append(ir.NewBr(normal))
	rw.cg.ReplaceCallSite(iv, call)
	return Changed
}

// foldBranch replaces a terminator with a settled constant condition by an
// unconditional branch to the surviving successor.
func (rw *Rewriter) foldBranch(t ir.Terminator) ChangeStatus {
	b := t.Parent()
	if b == nil || b.Term() != t {
		return Unchanged
	}
	var taken *ir.BasicBlock
	switch v := t.(type) {
	case *ir.CondBr:
		c, ok := v.Cond().(*ir.ConstInt)
		if !ok {
			return Unchanged
		}
		if c.IsZero() {
			taken = v.Else
		} else {
			taken = v.Then
		}
	case *ir.Switch:
		c, ok := v.Cond().(*ir.ConstInt)
		if !ok {
			return Unchanged
		}
		taken = v.Default
		for _, cse := range v.Cases {
			if cse.Val.V == c.V {
				taken = cse.Target
				break
			}
		}
	default:
		return Unchanged
	}
	for _, s := range t.Successors() {
		if s != taken {
			s.RemovePhiIncoming(b)
		}
	}
	b.Erase(t)
	b.Append(ir.NewBr(taken))
	rw.cg.ReanalyzeFunction(b.Parent())
	return Changed
}

// rewriteSignature builds a function with the flattened argument list,
// splices the body over, and repairs every call site.
func (rw *Rewriter) rewriteSignature(fn *ir.Function, repls []*ArgReplacement) ChangeStatus {
	byArg := map[*ir.Argument]*ArgReplacement{}
	for _, r := range repls {
		byArg[r.Arg] = r
	}
	var params []ir.Type
	var names []string
	for _, arg := range fn.Args {
		if r, ok := byArg[arg]; ok {
			for i, t := range r.Types {
				params = append(params, t)
				names = append(names, nameForPiece(arg, i))
			}
			continue
		}
		params = append(params, arg.Typ)
		names = append(names, arg.AName)
	}
	m := fn.Mod
	oldName := fn.FName
	fn.FName = m.UniqueName(oldName)
	newFn := m.NewFunction(oldName, &ir.FuncType{Params: params, Ret: fn.Sig.Ret}, names...)
	newFn.Linkage = fn.Linkage
	newFn.Attrs = fn.Attrs.Copy()
	newFn.RetAttrs = fn.RetAttrs.Copy()
	newFn.Personality = fn.Personality
	newFn.Callback = fn.Callback

	// Splice the body.
	newFn.Blocks = fn.Blocks
	fn.Blocks = nil
	for _, b := range newFn.Blocks {
		b.Func = newFn
	}

	// Wire kept arguments through, and let the repair callbacks
	// reconstitute the replaced ones.
	newIdx := 0
	for _, arg := range fn.Args {
		if r, ok := byArg[arg]; ok {
			pieces := newFn.Args[newIdx : newIdx+len(r.Types)]
			newIdx += len(r.Types)
			r.CalleeRepair(rw, newFn, arg, pieces)
			continue
		}
		na := newFn.Args[newIdx]
		na.Attrs = arg.Attrs.Copy()
		newIdx++
		ir.ReplaceAllUsesWith(arg, na)
	}

	// Collect the call sites first; repairing them rewires fn's use list.
	var sites []ACS
	rw.a.CheckForAllCallSites(nil, fn, false, func(acs ACS) bool {
		sites = append(sites, acs)
		return true
	})
	for _, acs := range sites {
		rw.repairCallSite(acs, fn, newFn, byArg)
	}

	rw.cg.ReplaceFunctionWith(fn, newFn)
	m.RemoveFunction(fn)
	return Changed
}

func nameForPiece(arg *ir.Argument, i int) string {
	if arg.AName == "" {
		return ""
	}
	return arg.AName + "." + string(rune('0'+i))
}

func (rw *Rewriter) repairCallSite(acs ACS, oldFn, newFn *ir.Function, byArg map[*ir.Argument]*ArgReplacement) {
	if acs.Callback {
		// Callback brokers receive the function as data; only the callee
		// operand itself can be swapped.
		for _, u := range append([]ir.Use(nil), oldFn.Uses()...) {
			if u.User == acs.CS.Instr {
				u.Set(newFn)
			}
		}
		return
	}
	cb := acs.CS.Base
	var newArgs []ir.Value
	var newAttrs []ir.AttrSet
	for i, arg := range oldFn.Args {
		op := cb.Arg(i)
		if r, ok := byArg[arg]; ok {
			newArgs = append(newArgs, r.ACSRepair(rw, acs, op)...)
			for range r.Types {
				newAttrs = append(newAttrs, ir.AttrSet{})
			}
			continue
		}
		newArgs = append(newArgs, op)
		if i < len(cb.ArgAttrs) {
			newAttrs = append(newAttrs, cb.ArgAttrs[i].Copy())
		} else {
			newAttrs = append(newAttrs, ir.AttrSet{})
		}
	}
	old := acs.CS.Instr
	b := old.Parent()
	var repl ir.Instruction
	switch oc := old.(type) {
	case *ir.Call:
		nc := ir.NewCall(old.Name(), newFn, newArgs...)
		nc.Tail = oc.Tail
		nc.FnAttrs = cb.FnAttrs.Copy()
		nc.RetAttrs = cb.RetAttrs.Copy()
		nc.ArgAttrs = newAttrs
		repl = nc
	case *ir.Invoke:
		ni := ir.NewInvoke(old.Name(), newFn, newArgs, oc.NormalDest, oc.UnwindDest)
		ni.FnAttrs = cb.FnAttrs.Copy()
		ni.RetAttrs = cb.RetAttrs.Copy()
		ni.ArgAttrs = newAttrs
		repl = ni
	default:
		return
	}
	b.InsertBefore(repl, old)
	if len(old.Uses()) > 0 {
		ir.ReplaceAllUsesWith(old, repl)
	}
	b.Erase(old)
	rw.cg.ReplaceCallSite(old, repl)
}

// makeShallowWrapper demotes fn to a private symbol and interposes an
// identically typed wrapper that tail-calls it.
func (rw *Rewriter) makeShallowWrapper(fn *ir.Function) {
	m := fn.Mod
	oldName := fn.FName
	fn.FName = m.UniqueName(oldName)
	fn.Linkage = ir.InternalLinkage

	var names []string
	for _, arg := range fn.Args {
		names = append(names, arg.AName)
	}
	wrapper := m.NewFunction(oldName, &ir.FuncType{Params: fn.Sig.Params, Ret: fn.Sig.Ret, Variadic: fn.Sig.Variadic}, names...)
	wrapper.Linkage = ir.ExternalLinkage
	wrapper.Attrs = fn.Attrs.Copy()
	wrapper.RetAttrs = fn.RetAttrs.Copy()
	for i, arg := range fn.Args {
		wrapper.Args[i].Attrs = arg.Attrs.Copy()
	}

	entry := wrapper.AddBlock("entry")
	var args []ir.Value
	for _, arg := range wrapper.Args {
		args = append(args, arg)
	}
	call := ir.NewCall("", fn, args...)
	call.Tail = true
	entry.Append(call)
	if ir.IsVoid(fn.Sig.Ret) {
		entry.Append(ir.NewRet(nil))
	} else {
		call.SetName("ret")
		entry.Append(ir.NewRet(call))
	}

	// External references move to the wrapper; direct calls stay on the
	// demoted body.
	for _, u := range append([]ir.Use(nil), fn.Uses()...) {
		if u.User == call {
			continue
		}
		if cs, ok := ir.AsCallSite(u.User); ok && u.OpIdx == 0 {
			_ = cs
			continue
		}
		u.Set(wrapper)
	}
	rw.a.stats.WrappersCreated.Inc()
	rw.cg.ReanalyzeFunction(wrapper)
}

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
	"strings"

	"github.com/fixpoint-tools/deduce/analysis/aliasing"
	"github.com/fixpoint-tools/deduce/analysis/callgraph"
	"github.com/fixpoint-tools/deduce/analysis/config"
	"github.com/fixpoint-tools/deduce/analysis/domtree"
	"github.com/fixpoint-tools/deduce/analysis/loopinfo"
	"github.com/fixpoint-tools/deduce/analysis/mustexec"
	"github.com/fixpoint-tools/deduce/internal/graphutil"
	"github.com/fixpoint-tools/deduce/ir"
)

// InformationCache aggregates the pre-existing analyses the deductions
// query. Per-function results are computed lazily and kept for the whole
// run; the IR must not change underneath them until the run finishes.
type InformationCache struct {
	Module *ir.Module
	Layout ir.DataLayout
	TLI    *ir.TargetLibraryInfo

	CallGraph *callgraph.Graph
	Explorer  *mustexec.Explorer

	domTrees map[*ir.Function]*domtree.Tree
	loops    map[*ir.Function]*loopinfo.Info
}

// NewInformationCache builds the cache for m.
func NewInformationCache(m *ir.Module, tli *ir.TargetLibraryInfo) *InformationCache {
	return &InformationCache{
		Module:    m,
		TLI:       tli,
		CallGraph: callgraph.Build(m),
		Explorer:  mustexec.NewExplorer(),
		domTrees:  map[*ir.Function]*domtree.Tree{},
		loops:     map[*ir.Function]*loopinfo.Info{},
	}
}

// DomTree returns fn's dominator tree.
func (ic *InformationCache) DomTree(fn *ir.Function) *domtree.Tree {
	dt, ok := ic.domTrees[fn]
	if !ok {
		dt = domtree.New(fn)
		ic.domTrees[fn] = dt
	}
	return dt
}

// LoopInfo returns fn's loop information.
func (ic *InformationCache) LoopInfo(fn *ir.Function) *loopinfo.Info {
	li, ok := ic.loops[fn]
	if !ok {
		li = loopinfo.Compute(fn, ic.DomTree(fn))
		ic.loops[fn] = li
	}
	return li
}

// Alias answers a basic alias query.
func (ic *InformationCache) Alias(a, b ir.Value) aliasing.Result {
	return aliasing.Alias(a, b)
}

type aaKey struct {
	kind AAKind
	pos  Position
}

type depEdge struct {
	dependent AbstractAttribute
	class     DepClass
}

// Attributor owns the abstract attribute records, their dependency graph,
// the fixpoint loop, and the deferred IR rewriter.
type Attributor struct {
	Cfg   *config.Config
	Log   *config.LogGroup
	Cache *InformationCache

	// Functions admitted to this run; deductions only touch these.
	fns map[*ir.Function]bool

	aaMap map[aaKey]AbstractAttribute
	order []AbstractAttribute // creation order, also destruction order

	// deps maps a record to the records that queried it.
	deps map[AbstractAttribute][]depEdge

	worklist []AbstractAttribute

	// invalid collects records that collapsed since the last cascade.
	invalid []AbstractAttribute

	// updating is the record whose Update is on the stack, if any;
	// lookups during an update record edges back to it.
	updating AbstractAttribute

	rewriter *Rewriter
	stats    *Stats
}

// New returns an attributor over the functions in fns.
func New(cfg *config.Config, log *config.LogGroup, cache *InformationCache, fns []*ir.Function) *Attributor {
	a := &Attributor{
		Cfg:   cfg,
		Log:   log,
		Cache: cache,
		fns:   map[*ir.Function]bool{},
		aaMap: map[aaKey]AbstractAttribute{},
		deps:  map[AbstractAttribute][]depEdge{},
		stats: NewStats(),
	}
	a.rewriter = NewRewriter(a)
	for _, f := range fns {
		a.fns[f] = true
	}
	return a
}

// IsRunOn reports whether fn belongs to this run.
func (a *Attributor) IsRunOn(fn *ir.Function) bool { return a.fns[fn] }

// getOrCreate interns the record of the given family at pos, creating and
// initializing it on first lookup, and records a dependence from the
// record currently updating.
func getOrCreate[T AbstractAttribute](a *Attributor, kind AAKind, pos Position, dep DepClass) T {
	aa := a.GenericAA(kind, pos, dep)
	return aa.(T)
}

// GenericAA is getOrCreate without the typed result.
func (a *Attributor) GenericAA(kind AAKind, pos Position, dep DepClass) AbstractAttribute {
	key := aaKey{kind: kind, pos: pos}
	if aa, ok := a.aaMap[key]; ok {
		a.RecordDependence(a.updating, aa, dep)
		return aa
	}
	aa := newAA(kind, pos)
	a.aaMap[key] = aa
	a.order = append(a.order, aa)
	a.stats.Created.Inc()

	// Queries made while initializing belong to the new record.
	prev := a.updating
	a.updating = aa
	aa.Initialize(a)
	a.updating = prev

	a.enqueue(aa)
	a.RecordDependence(a.updating, aa, dep)
	return aa
}

// Lookup returns the record if it exists and does not create it. No
// dependence is recorded for absent records.
func (a *Attributor) Lookup(kind AAKind, pos Position, dep DepClass) (AbstractAttribute, bool) {
	aa, ok := a.aaMap[aaKey{kind: kind, pos: pos}]
	if ok {
		a.RecordDependence(a.updating, aa, dep)
	}
	return aa, ok
}

// RecordDependence notes that from read to's state. A nil from (no update
// on the stack) records nothing.
func (a *Attributor) RecordDependence(from, to AbstractAttribute, class DepClass) {
	if from == nil || from == to {
		return
	}
	if !to.State().IsAtFixpoint() {
		from.meta().queriedNonFixed = true
	}
	a.deps[to] = append(a.deps[to], depEdge{dependent: from, class: class})
}

func (a *Attributor) enqueue(aa AbstractAttribute) {
	m := aa.meta()
	if m.enqueued {
		return
	}
	m.enqueued = true
	a.worklist = append(a.worklist, aa)
}

func (a *Attributor) enqueueDependents(aa AbstractAttribute) {
	for _, e := range a.deps[aa] {
		a.enqueue(e.dependent)
	}
}

// markInvalid queues aa for the invalidation cascade.
func (a *Attributor) markInvalid(aa AbstractAttribute) {
	if !aa.meta().dead {
		a.invalid = append(a.invalid, aa)
	}
}

// processInvalidations runs the cascade: required dependents of an invalid
// record are forced pessimistic, optional dependents re-run.
func (a *Attributor) processInvalidations() {
	for len(a.invalid) > 0 {
		aa := a.invalid[len(a.invalid)-1]
		a.invalid = a.invalid[:len(a.invalid)-1]
		m := aa.meta()
		if m.dead {
			continue
		}
		m.dead = true
		a.Log.Tracef("invalidated %s", aa.AsString())
		for _, e := range a.deps[aa] {
			dep := e.dependent
			if dep.meta().dead {
				continue
			}
			if e.class == RequiredDep {
				dep.State().IndicatePessimisticFixpoint()
				a.stats.RequiredFixed.Inc()
				if !dep.State().IsValidState() {
					a.markInvalid(dep)
					continue
				}
			}
			a.enqueue(dep)
		}
		delete(a.deps, aa)
	}
}

// Run drives the fixpoint loop, manifests the settled facts, and replays
// the staged IR edits. It reports whether the IR changed.
func (a *Attributor) Run() ChangeStatus {
	verifyPending := a.runFixpoint()
	if len(verifyPending) > 0 && a.Cfg.VerifyMaxIterations {
		names := make([]string, 0, len(verifyPending))
		for _, aa := range verifyPending {
			names = append(names, aa.AsString())
		}
		panic(fmt.Sprintf("attributor: fixpoint not reached after %d iterations, unsettled: %s",
			a.Cfg.MaxIterations, strings.Join(names, ", ")))
	}
	changed := a.manifest()
	changed = changed.Or(a.rewriter.Replay())
	a.Log.Infof("deduction finished: %d records, changed=%v", len(a.order), bool(changed))
	return changed
}

// runFixpoint iterates until quiescence or the cap and returns the records
// that were still pending when the cap hit.
func (a *Attributor) runFixpoint() []AbstractAttribute {
	iterations := 0
	recompute := a.Cfg.DepRecomputeInterval
	for len(a.worklist) > 0 && iterations < a.Cfg.MaxIterations {
		iterations++
		a.processInvalidations()

		if recompute > 0 && iterations%recompute == 0 {
			// Stale edges accumulate as states settle; rebuilding the
			// graph from scratch re-derives only the live dependencies.
			a.deps = map[AbstractAttribute][]depEdge{}
			for _, aa := range a.order {
				if !aa.State().IsAtFixpoint() && !aa.meta().dead {
					a.enqueue(aa)
				}
			}
		}

		cur := a.worklist
		a.worklist = nil
		for _, aa := range cur {
			aa.meta().enqueued = false
		}
		for _, aa := range cur {
			m := aa.meta()
			if m.dead || aa.State().IsAtFixpoint() {
				continue
			}
			// The dead-position probe runs as the record so a liveness
			// change re-enqueues it.
			a.updating = aa
			if a.isPositionDead(aa) {
				a.updating = nil
				continue
			}
			m.queriedNonFixed = false
			status := aa.Update(a)
			a.updating = nil
			a.stats.Updates.Inc()
			a.Log.Tracef("update #%d %s -> %s", iterations, aa.AsString(), status)
			if status == Changed {
				a.enqueueDependents(aa)
				a.enqueue(aa)
			} else if !m.queriedNonFixed {
				// Only settled information was read; the state can never
				// move again.
				aa.State().IndicateOptimisticFixpoint()
			}
			if !aa.State().IsValidState() {
				a.markInvalid(aa)
			}
		}
		a.processInvalidations()
	}

	// Records still awaiting re-update when the cap hit cannot keep their
	// optimistic assumptions.
	pending := a.worklist
	a.worklist = nil
	for _, aa := range pending {
		aa.meta().enqueued = false
	}
	for _, aa := range pending {
		if aa.State().IsAtFixpoint() {
			continue
		}
		a.stats.TimedOut.Inc()
		aa.State().IndicatePessimisticFixpoint()
		if !aa.State().IsValidState() {
			a.markInvalid(aa)
		}
	}
	a.processInvalidations()

	// Everything else settled by exhaustion: freeze at the assumed value.
	for _, aa := range a.order {
		if !aa.meta().dead && !aa.State().IsAtFixpoint() {
			aa.State().IndicateOptimisticFixpoint()
		}
		if aa.State().IsAtFixpoint() && aa.State().IsValidState() {
			a.stats.ValidFixpoints.Inc()
		}
	}
	a.Log.Debugf("fixpoint reached after %d iterations (%d records)", iterations, len(a.order))
	return pending
}

// manifest asks every valid record to stage its IR edits.
func (a *Attributor) manifest() ChangeStatus {
	changed := Unchanged
	for _, aa := range a.order {
		if aa.meta().dead || !aa.State().IsValidState() {
			continue
		}
		if a.isPositionDead(aa) {
			continue
		}
		if aa.Manifest(a) == Changed {
			changed = Changed
			a.stats.Manifested(aa.Kind())
			a.Log.Debugf("manifested %s", aa.AsString())
		}
	}
	return changed
}

// isPositionDead reports whether the record's position sits in code the
// liveness deduction already gave up on. The check is cheap and records an
// optional dependence on the liveness record.
func (a *Attributor) isPositionDead(aa AbstractAttribute) bool {
	pos := aa.Position()
	if aa.Kind() == KindIsDead {
		return false
	}
	ctx := pos.CtxInstruction()
	if ctx == nil {
		return false
	}
	return a.IsInstructionAssumedDead(ctx)
}

// IsInstructionAssumedDead consults the enclosing function's liveness
// record, creating it on demand, and records an optional dependence.
func (a *Attributor) IsInstructionAssumedDead(in ir.Instruction) bool {
	b := in.Parent()
	if b == nil {
		return true
	}
	fn := b.Parent()
	if !a.IsRunOn(fn) {
		return false
	}
	live := a.DeadFunctionAA(FunctionPos(fn), OptionalDep)
	return live.IsAssumedDeadInstr(in)
}

// IsUseAssumedDead reports whether u can be ignored: its user is assumed
// dead, or the value it consumes is.
func (a *Attributor) IsUseAssumedDead(u ir.Use) bool {
	if a.IsInstructionAssumedDead(u.User) {
		return true
	}
	if !ir.IsVoid(u.User.Type()) {
		pos := ValuePos(u.User, u.User)
		if dv, ok := a.Lookup(KindIsDead, pos, OptionalDep); ok {
			if d, ok := dv.(*AAIsDeadValue); ok && d.Bool().IsAssumed() {
				return true
			}
		}
	}
	return false
}

// CheckForAllInstructions applies pred to every live instruction of the
// function behind query's position for which filter returns true. It
// returns true iff pred held everywhere.
func (a *Attributor) CheckForAllInstructions(query AbstractAttribute,
	filter func(ir.Instruction) bool, pred func(ir.Instruction) bool) bool {
	fn := query.Position().AnchorScope()
	if fn == nil || fn.IsDeclaration() {
		return false
	}
	ok := true
	fn.Instructions(func(in ir.Instruction) bool {
		if !filter(in) {
			return true
		}
		if a.IsInstructionAssumedDead(in) {
			return true
		}
		if !pred(in) {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// CheckForAllCallLikeInstructions is CheckForAllInstructions filtered to
// calls and invokes.
func (a *Attributor) CheckForAllCallLikeInstructions(query AbstractAttribute,
	pred func(ir.CallSite) bool) bool {
	return a.CheckForAllInstructions(query, func(in ir.Instruction) bool {
		_, ok := ir.AsCallSite(in)
		return ok
	}, func(in ir.Instruction) bool {
		cs, _ := ir.AsCallSite(in)
		return pred(cs)
	})
}

// CheckForAllReadWriteInstructions applies pred to every live load and
// store of the function.
func (a *Attributor) CheckForAllReadWriteInstructions(query AbstractAttribute,
	pred func(ir.Instruction) bool) bool {
	return a.CheckForAllInstructions(query, func(in ir.Instruction) bool {
		switch in.(type) {
		case *ir.Load, *ir.Store:
			return true
		}
		return false
	}, pred)
}

// An ACS is an abstract call site: a direct call of the function, or a
// call passing the function to a broker that invokes it as a callback.
type ACS struct {
	CS       ir.CallSite
	Callback bool

	// payload maps the callee's parameter index to the call operand
	// supplying it, -1 when unknown.
	payload []int
}

// OperandOf returns the call operand index feeding callee parameter i, or
// -1 when the mapping is unknown.
func (acs ACS) OperandOf(i int) int {
	if !acs.Callback {
		if i < acs.CS.Base.NumArgs() {
			return i
		}
		return -1
	}
	if i < len(acs.payload) {
		return acs.payload[i]
	}
	return -1
}

// CheckForAllCallSites applies pred to every call site of fn, including
// callback invocations through !callback brokers. When requireAll is set
// and some caller cannot be seen (address taken, external linkage), it
// returns false.
func (a *Attributor) CheckForAllCallSites(query AbstractAttribute, fn *ir.Function,
	requireAll bool, pred func(ACS) bool) bool {
	if requireAll && fn.Linkage != ir.InternalLinkage {
		// Unseen callers may exist; per-caller facts cannot be required.
		return false
	}
	for _, u := range fn.Uses() {
		cs, ok := ir.AsCallSite(u.User)
		if !ok {
			if requireAll {
				return false
			}
			continue
		}
		if a.IsInstructionAssumedDead(u.User) {
			continue
		}
		if u.OpIdx == 0 {
			if !pred(ACS{CS: cs}) {
				return false
			}
			continue
		}
		// fn is an operand: a callback invocation if the broker declares
		// one for this operand.
		broker := cs.Base.CalledFunction()
		argNo := cs.Base.ArgOperandNo(u)
		if broker == nil || broker.Callback == nil || broker.Callback.CalleeArgNo != argNo {
			if requireAll {
				return false
			}
			continue
		}
		if !pred(ACS{CS: cs, Callback: true, payload: broker.Callback.PayloadArgs}) {
			return false
		}
	}
	return true
}

// CheckForAllReturnedValues applies pred to every value fn may return,
// resolved through the returned-values deduction.
func (a *Attributor) CheckForAllReturnedValues(query AbstractAttribute,
	fn *ir.Function, pred func(ir.Value) bool) bool {
	rv := a.ReturnedValuesAA(ReturnedPos(fn), RequiredDep)
	if !rv.State().IsValidState() {
		return false
	}
	return rv.ForEachReturnedValue(pred)
}

// CheckForAllUses walks the transitive uses of v through value-propagating
// instructions, skipping assumed-dead uses, and applies pred. It returns
// true iff pred held on every live use.
func (a *Attributor) CheckForAllUses(query AbstractAttribute, v ir.Value,
	pred func(ir.Use) bool) bool {
	seen := map[ir.Use]bool{}
	work := append([]ir.Use(nil), v.Uses()...)
	for len(work) > 0 {
		u := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[u] {
			continue
		}
		seen[u] = true
		if a.IsUseAssumedDead(u) {
			continue
		}
		if !pred(u) {
			return false
		}
		switch user := u.User.(type) {
		case *ir.GetElementPtr, *ir.Phi, *ir.Select:
			work = append(work, user.Uses()...)
		case *ir.Cast:
			if user.Op == ir.CastBitcast {
				work = append(work, user.Uses()...)
			}
		}
	}
	return true
}

// DumpDepGraph renders the dependency graph in DOT form.
func (a *Attributor) DumpDepGraph() ([]byte, error) {
	g := graphutil.NewLabeledDigraph()
	for _, aa := range a.order {
		g.AddNode(aa.AsString())
	}
	for to, edges := range a.deps {
		for _, e := range edges {
			g.AddEdge(e.dependent.AsString(), to.AsString())
		}
	}
	return g.Marshal("deps")
}

// Stats returns the run's counters.
func (a *Attributor) Stats() *Stats { return a.stats }

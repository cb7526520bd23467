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

// The combinators in this file are the reusable update strategies the
// concrete families compose: clamp a state by the same family's state at
// the returned values, at the call-site arguments, at the callee, or by
// the accesses in the must-be-executed context.

// posForValue returns the natural position of a value observed at ctx:
// call results map to call-site-return positions, arguments and functions
// to their own kinds, everything else floats.
func posForValue(v ir.Value, ctx ir.Instruction) Position {
	if in, ok := v.(ir.Instruction); ok {
		if cs, ok := ir.AsCallSite(in); ok {
			return CallSiteReturnedPos(cs)
		}
	}
	return ValuePos(v, ctx)
}

// meetBoolPeer meets aa's boolean state with the same family's state at
// pos through a required edge.
func meetBoolPeer(a *Attributor, aa boolAA, pos Position) ChangeStatus {
	if !pos.IsValid() {
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	peer := a.GenericAA(aa.Kind(), pos, RequiredDep)
	pb, ok := peer.(boolAA)
	if !ok {
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	if pb.Bool().IsKnown() {
		return aa.Bool().SetKnown()
	}
	if !pb.Bool().IsAssumed() {
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// assumedBoolAt reads the assumed bit of aa's family at pos, creating the
// peer with a required edge.
func assumedBoolAt(a *Attributor, aa AbstractAttribute, pos Position) bool {
	if !pos.IsValid() {
		return false
	}
	peer := a.GenericAA(aa.Kind(), pos, RequiredDep)
	pb, ok := peer.(boolAA)
	return ok && pb.Bool().IsAssumed()
}

// callSiteBoolFromCallee is the generic call-site mirror: defer to the
// matching position on the statically known callee.
func callSiteBoolFromCallee(a *Attributor, aa boolAA) ChangeStatus {
	pos := aa.Position()
	callee := pos.Callee()
	if callee == nil || !callee.IsIPOAmendable() {
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	var peerPos Position
	switch pos.Kind() {
	case PosCallSite:
		peerPos = FunctionPos(callee)
	case PosCallSiteReturned:
		peerPos = ReturnedPos(callee)
	case PosCallSiteArgument:
		if pos.ArgNo() >= len(callee.Args) {
			return aa.Bool().IndicatePessimisticFixpoint()
		}
		peerPos = ArgumentPos(callee.Arg(pos.ArgNo()))
	default:
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	return meetBoolPeer(a, aa, peerPos)
}

// boolArgumentFromCallSiteArguments clamps an argument state by the same
// family's state at every actual argument. Unmappable callback operands
// force pessimism.
func boolArgumentFromCallSiteArguments(a *Attributor, aa boolAA) ChangeStatus {
	pos := aa.Position()
	fn := pos.AnchorScope()
	argNo := pos.ArgNo()
	allAssumed := true
	ok := a.CheckForAllCallSites(aa, fn, true, func(acs ACS) bool {
		op := acs.OperandOf(argNo)
		if op < 0 || op >= acs.CS.Base.NumArgs() {
			return false
		}
		if !assumedBoolAt(a, aa, CallSiteArgumentPos(acs.CS, op)) {
			allAssumed = false
		}
		return true
	})
	if !ok || !allAssumed {
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// boolReturnedFromReturnedValues clamps a function-return state by the
// same family's state at every returned value.
func boolReturnedFromReturnedValues(a *Attributor, aa boolAA) ChangeStatus {
	pos := aa.Position()
	fn := pos.AnchorScope()
	allAssumed := true
	ok := a.CheckForAllReturnedValues(aa, fn, func(v ir.Value) bool {
		if !assumedBoolAt(a, aa, posForValue(v, nil)) {
			allAssumed = false
		}
		return true
	})
	if !ok || !allAssumed {
		return aa.Bool().IndicatePessimisticFixpoint()
	}
	return Unchanged
}

// mustExecContext collects the instructions proven to execute whenever
// start does.
func mustExecContext(a *Attributor, start ir.Instruction) map[ir.Instruction]bool {
	ctx := map[ir.Instruction]bool{}
	a.Cache.Explorer.Forward(start, func(in ir.Instruction) bool {
		ctx[in] = true
		return true
	})
	return ctx
}

// contextStart picks the instruction a position's must-be-executed walk
// starts from: the context instruction where one exists, otherwise the
// first instruction of the scope function.
func contextStart(pos Position) ir.Instruction {
	if ctx := pos.CtxInstruction(); ctx != nil {
		return ctx
	}
	fn := pos.AnchorScope()
	if fn == nil || fn.IsDeclaration() {
		return nil
	}
	entry := fn.EntryBlock()
	if len(entry.Instrs) == 0 {
		return nil
	}
	return entry.Instrs[0]
}

// forEachMustExecUse feeds followUse every use of the associated value
// whose user provably executes whenever the position's context does. The
// callback tightens the caller's state and reports whether to continue.
func forEachMustExecUse(a *Attributor, aa AbstractAttribute, followUse func(u ir.Use) bool) {
	pos := aa.Position()
	v := pos.AssociatedValue()
	if v == nil {
		return
	}
	start := contextStart(pos)
	if start == nil {
		return
	}
	ctx := mustExecContext(a, start)
	a.CheckForAllUses(aa, v, func(u ir.Use) bool {
		if !ctx[u.User] {
			return true
		}
		return followUse(u)
	})
}

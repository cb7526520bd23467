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

	fn "github.com/fixpoint-tools/deduce/internal/funcutil"
	"github.com/fixpoint-tools/deduce/ir"
)

func init() {
	registerAA(KindReturnedValues, func(pos Position) AbstractAttribute {
		return &AAReturnedValues{aaMeta: aaMeta{pos: pos, kind: KindReturnedValues}}
	})
}

// ReturnedValuesAA returns the returned-values record of a function.
func (a *Attributor) ReturnedValuesAA(pos Position, dep DepClass) *AAReturnedValues {
	return getOrCreate[*AAReturnedValues](a, KindReturnedValues, pos, dep)
}

// AAReturnedValues maps every value a function may return to the return
// instructions producing it, looking through selects, phis, casts and
// calls of functions whose own returned values resolved.
type AAReturnedValues struct {
	aaMeta

	returned map[ir.Value]map[*ir.Ret]bool

	// unresolved holds returned calls whose callees did not resolve to a
	// unique value; they stay in the map as opaque leaves.
	unresolved map[ir.CallSite]bool

	pessimistic bool
	fixed       bool
}

// IsValidState implements AbstractState.
func (aa *AAReturnedValues) IsValidState() bool { return !aa.pessimistic }

// IsAtFixpoint implements AbstractState.
func (aa *AAReturnedValues) IsAtFixpoint() bool { return aa.fixed }

// IndicateOptimisticFixpoint implements AbstractState.
func (aa *AAReturnedValues) IndicateOptimisticFixpoint() ChangeStatus {
	aa.fixed = true
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState.
func (aa *AAReturnedValues) IndicatePessimisticFixpoint() ChangeStatus {
	aa.fixed = true
	if aa.pessimistic {
		return Unchanged
	}
	aa.pessimistic = true
	return Changed
}

// State implements AbstractAttribute.
func (aa *AAReturnedValues) State() AbstractState { return aa }

// Initialize implements AbstractAttribute.
func (aa *AAReturnedValues) Initialize(a *Attributor) {
	aa.returned = map[ir.Value]map[*ir.Ret]bool{}
	aa.unresolved = map[ir.CallSite]bool{}
	f := aa.pos.AnchorScope()
	if f == nil || f.IsDeclaration() || ir.IsVoid(f.ReturnType()) {
		aa.IndicatePessimisticFixpoint()
		return
	}
	// An argument already annotated `returned` settles the result.
	for _, arg := range f.Args {
		if arg.Attrs.Has(ir.AttrReturned) {
			aa.returned[arg] = map[*ir.Ret]bool{}
			aa.IndicateOptimisticFixpoint()
			return
		}
	}
}

// Update implements AbstractAttribute.
func (aa *AAReturnedValues) Update(a *Attributor) ChangeStatus {
	before := len(aa.returned)
	beforeUnres := len(aa.unresolved)
	f := aa.pos.AnchorScope()

	ok := a.CheckForAllInstructions(aa, func(in ir.Instruction) bool {
		_, isRet := in.(*ir.Ret)
		return isRet
	}, func(in ir.Instruction) bool {
		ret := in.(*ir.Ret)
		if ret.Value() == nil {
			return false
		}
		aa.addLeaves(a, f, ret, ret.Value(), 0)
		return true
	})
	if !ok {
		return aa.IndicatePessimisticFixpoint()
	}
	if len(aa.returned) != before || len(aa.unresolved) != beforeUnres {
		return Changed
	}
	return Unchanged
}

const maxReturnedValueDepth = 8

// addLeaves resolves v to the underlying returned values and records them
// for ret.
func (aa *AAReturnedValues) addLeaves(a *Attributor, f *ir.Function, ret *ir.Ret, v ir.Value, depth int) {
	if depth > maxReturnedValueDepth {
		aa.record(v, ret)
		return
	}
	switch x := v.(type) {
	case *ir.Select:
		aa.addLeaves(a, f, ret, x.True(), depth+1)
		aa.addLeaves(a, f, ret, x.False(), depth+1)
		return
	case *ir.Phi:
		for _, inc := range x.Operands() {
			if inc == x {
				continue
			}
			aa.addLeaves(a, f, ret, inc, depth+1)
		}
		return
	case *ir.Cast:
		if x.Op == ir.CastBitcast {
			aa.addLeaves(a, f, ret, x.X(), depth+1)
			return
		}
	case *ir.Call:
		cs, _ := ir.AsCallSite(x)
		callee := cs.Base.CalledFunction()
		if callee == nil || callee == f {
			aa.unresolved[cs] = true
			aa.record(v, ret)
			return
		}
		rv := a.ReturnedValuesAA(ReturnedPos(callee), RequiredDep)
		if uv := rv.UniqueReturnValue(); uv.IsSome() {
			// Rewrite the callee's result through this call's operands.
			if arg, isArg := uv.Value().(*ir.Argument); isArg && arg.Index < cs.Base.NumArgs() {
				aa.addLeaves(a, f, ret, cs.Base.Arg(arg.Index), depth+1)
				return
			}
			if ir.IsConstant(uv.Value()) {
				aa.record(uv.Value(), ret)
				return
			}
		}
		aa.unresolved[cs] = true
		aa.record(v, ret)
		return
	}
	aa.record(v, ret)
}

func (aa *AAReturnedValues) record(v ir.Value, ret *ir.Ret) {
	m, ok := aa.returned[v]
	if !ok {
		m = map[*ir.Ret]bool{}
		aa.returned[v] = m
	}
	m[ret] = true
}

// ForEachReturnedValue applies pred to every recorded returned value and
// reports whether pred held everywhere.
func (aa *AAReturnedValues) ForEachReturnedValue(pred func(ir.Value) bool) bool {
	for v := range aa.returned {
		if !pred(v) {
			return false
		}
	}
	return true
}

// UniqueReturnValue returns the single returned value when exactly one
// resolved leaf exists and no call stayed unresolved.
func (aa *AAReturnedValues) UniqueReturnValue() fn.Optional[ir.Value] {
	if aa.pessimistic || len(aa.returned) != 1 {
		return fn.None[ir.Value]()
	}
	for v := range aa.returned {
		for cs := range aa.unresolved {
			if ir.Value(cs.Instr) == v {
				return fn.None[ir.Value]()
			}
		}
		return fn.Some(v)
	}
	return fn.None[ir.Value]()
}

// Manifest implements AbstractAttribute: a unique returned argument gains
// the `returned` attribute, a unique constant replaces the results of all
// call sites.
func (aa *AAReturnedValues) Manifest(a *Attributor) ChangeStatus {
	uv := aa.UniqueReturnValue()
	if uv.IsNone() {
		return Unchanged
	}
	changed := Unchanged
	switch v := uv.Value().(type) {
	case *ir.Argument:
		changed = ArgumentPos(v).ManifestAttr(ir.Attribute{Kind: ir.AttrReturned})
	default:
		if !ir.IsConstant(v) {
			return Unchanged
		}
		f := aa.pos.AnchorScope()
		for _, cs := range ir.CallSitesOf(f) {
			if len(cs.Instr.Uses()) > 0 {
				a.rewriter.ChangeValueAfterManifest(cs.Instr, v)
				changed = Changed
			}
		}
	}
	return changed
}

// AsString implements AbstractAttribute.
func (aa *AAReturnedValues) AsString() string {
	if aa.pessimistic {
		return aa.describe("unknown-return")
	}
	return aa.describe(fmt.Sprintf("returns(%d values, %d unresolved)", len(aa.returned), len(aa.unresolved)))
}

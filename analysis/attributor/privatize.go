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
	registerAA(KindPrivatizablePtr, func(pos Position) AbstractAttribute {
		return &AAPrivatizablePtr{aaMeta: aaMeta{pos: pos, kind: KindPrivatizablePtr}, BooleanState: NewBooleanState()}
	})
}

// PrivatizablePtrAA returns the privatizable-pointer record at pos.
func (a *Attributor) PrivatizablePtrAA(pos Position, dep DepClass) *AAPrivatizablePtr {
	return getOrCreate[*AAPrivatizablePtr](a, KindPrivatizablePtr, pos, dep)
}

// AAPrivatizablePtr deduces that a pointer argument can be split into the
// values it points at: byval arguments, and arguments whose every call
// site passes a private single-element stack slot of one common type.
type AAPrivatizablePtr struct {
	aaMeta
	BooleanState

	// privType is the pointee type the argument flattens into.
	privType ir.Type
}

// Bool exposes the boolean state.
func (aa *AAPrivatizablePtr) Bool() *BooleanState { return &aa.BooleanState }

// PrivatizableType returns the flattened type once one is established.
func (aa *AAPrivatizablePtr) PrivatizableType() (ir.Type, bool) {
	if !aa.IsAssumed() || aa.privType == nil {
		return nil, false
	}
	return aa.privType, true
}

// Initialize implements AbstractAttribute.
func (aa *AAPrivatizablePtr) Initialize(a *Attributor) {
	pos := aa.pos
	if pos.Kind() != PosArgument && pos.Kind() != PosCallSiteArgument {
		aa.IndicatePessimisticFixpoint()
		return
	}
	pt, ok := pos.AssociatedType().(*ir.PointerType)
	if !ok {
		aa.IndicatePessimisticFixpoint()
		return
	}
	fn := pos.AnchorScope()
	if pos.Kind() == PosArgument {
		if fn == nil || fn.IsDeclaration() || fn.Linkage != ir.InternalLinkage {
			aa.IndicatePessimisticFixpoint()
			return
		}
		arg := pos.AssociatedValue().(*ir.Argument)
		if attr, has := arg.Attrs.Get(ir.AttrByVal); has {
			t := attr.Typ
			if t == nil {
				t = pt.Elem
			}
			aa.privType = t
		}
	}
}

// typeIsSplittable rejects aggregates the rewrite cannot reconstitute
// faithfully, in particular padded structs.
func (aa *AAPrivatizablePtr) typeIsSplittable(a *Attributor, t ir.Type) bool {
	switch x := t.(type) {
	case *ir.StructType:
		if a.Cache.Layout.HasPadding(x) {
			return false
		}
		for _, f := range x.Fields {
			if !aa.typeIsSplittable(a, f) {
				return false
			}
		}
		return true
	case *ir.ArrayType:
		return x.Len <= 8 && aa.typeIsSplittable(a, x.Elem)
	case *ir.IntType, *ir.PointerType, ir.FloatType:
		return true
	}
	return false
}

// Update implements AbstractAttribute.
func (aa *AAPrivatizablePtr) Update(a *Attributor) ChangeStatus {
	if aa.pos.Kind() == PosCallSiteArgument {
		callee := aa.pos.Callee()
		if callee == nil || aa.pos.ArgNo() >= len(callee.Args) {
			return aa.IndicatePessimisticFixpoint()
		}
		peer := a.PrivatizablePtrAA(ArgumentPos(callee.Arg(aa.pos.ArgNo())), RequiredDep)
		if t, ok := peer.PrivatizableType(); ok {
			aa.privType = t
			return Unchanged
		}
		if !peer.IsAssumed() {
			return aa.IndicatePessimisticFixpoint()
		}
		return Unchanged
	}

	fn := aa.pos.AnchorScope()
	argNo := aa.pos.ArgNo()
	before := aa.privType
	ok := a.CheckForAllCallSites(aa, fn, true, func(acs ACS) bool {
		if acs.Callback {
			// Callback ABIs are fixed by the broker; splitting the
			// argument would break the indirect invocation.
			return false
		}
		op := acs.OperandOf(argNo)
		if op < 0 || op >= acs.CS.Base.NumArgs() {
			return false
		}
		base := aliasing.UnderlyingObject(acs.CS.Base.Arg(op))
		alloca, isAlloca := base.(*ir.Alloca)
		if !isAlloca {
			return false
		}
		if aa.privType == nil {
			aa.privType = alloca.Allocated
			return true
		}
		return ir.TypesEqual(aa.privType, alloca.Allocated)
	})
	if !ok || aa.privType == nil || !aa.typeIsSplittable(a, aa.privType) {
		return aa.IndicatePessimisticFixpoint()
	}
	if before == nil && aa.privType != nil {
		return Changed
	}
	return Unchanged
}

// flatten expands t into the scalar pieces a signature rewrite carries.
func flatten(t ir.Type) []ir.Type {
	switch x := t.(type) {
	case *ir.StructType:
		var out []ir.Type
		for _, f := range x.Fields {
			out = append(out, flatten(f)...)
		}
		return out
	case *ir.ArrayType:
		var out []ir.Type
		for i := int64(0); i < x.Len; i++ {
			out = append(out, flatten(x.Elem)...)
		}
		return out
	default:
		return []ir.Type{t}
	}
}

// pieceAddrs returns, for each flattened piece, a gep producing its
// address relative to base (a pointer to t). The returned instructions
// are appended to the block in order.
func pieceAddrs(base ir.Value, t ir.Type, emit func(in ir.Instruction)) []ir.Value {
	var addrs []ir.Value
	var walk func(ptr ir.Value, t ir.Type)
	walk = func(ptr ir.Value, t ir.Type) {
		switch x := t.(type) {
		case *ir.StructType:
			for i := range x.Fields {
				g := ir.NewGEP("", x, ptr, ir.NewConstInt(ir.I64, 0), ir.NewConstInt(ir.I32, int64(i)))
				emit(g)
				walk(g, x.Fields[i])
			}
		case *ir.ArrayType:
			for i := int64(0); i < x.Len; i++ {
				g := ir.NewGEP("", x, ptr, ir.NewConstInt(ir.I64, 0), ir.NewConstInt(ir.I64, i))
				emit(g)
				walk(g, x.Elem)
			}
		default:
			addrs = append(addrs, ptr)
		}
	}
	walk(base, t)
	return addrs
}

// Manifest implements AbstractAttribute: the argument is scheduled for a
// signature rewrite that passes the pointee's pieces by value.
func (aa *AAPrivatizablePtr) Manifest(a *Attributor) ChangeStatus {
	if aa.pos.Kind() != PosArgument {
		return Unchanged
	}
	t, ok := aa.PrivatizableType()
	if !ok {
		return Unchanged
	}
	arg := aa.pos.AssociatedValue().(*ir.Argument)
	repl := &ArgReplacement{
		Arg:   arg,
		Types: flatten(t),
		CalleeRepair: func(rw *Rewriter, newFn *ir.Function, oldArg *ir.Argument, newArgs []*ir.Argument) {
			entry := newFn.EntryBlock()
			if entry == nil {
				return
			}
			slot := ir.NewAlloca(oldArg.AName+".priv", t, 0)
			var emitted []ir.Instruction
			emit := func(in ir.Instruction) { emitted = append(emitted, in) }
			addrs := pieceAddrs(slot, t, emit)
			insert := []ir.Instruction{slot}
			insert = append(insert, emitted...)
			for i, addr := range addrs {
				insert = append(insert, ir.NewStore(newArgs[i], addr, 0))
			}
			for i := len(insert) - 1; i >= 0; i-- {
				if len(entry.Instrs) == 0 {
					entry.Append(insert[i])
				} else {
					entry.InsertBefore(insert[i], entry.Instrs[0])
				}
			}
			ir.ReplaceAllUsesWith(oldArg, slot)
		},
		ACSRepair: func(rw *Rewriter, acs ACS, oldOperand ir.Value) []ir.Value {
			b := acs.CS.Instr.Parent()
			var emitted []ir.Instruction
			emit := func(in ir.Instruction) { emitted = append(emitted, in) }
			addrs := pieceAddrs(oldOperand, t, emit)
			var loads []ir.Value
			for _, addr := range addrs {
				pt := addr.Type().(*ir.PointerType)
				loads = append(loads, ir.NewLoad("", pt.Elem, addr, 0))
			}
			for _, in := range emitted {
				b.InsertBefore(in, acs.CS.Instr)
			}
			for _, l := range loads {
				b.InsertBefore(l.(ir.Instruction), acs.CS.Instr)
			}
			return loads
		},
	}
	if !a.rewriter.RegisterSignatureRewrite(repl) {
		return Unchanged
	}
	return Changed
}

// AsString implements AbstractAttribute.
func (aa *AAPrivatizablePtr) AsString() string {
	if t, ok := aa.PrivatizableType(); ok {
		return aa.describe("privatizable(" + t.String() + ")")
	}
	if aa.IsAssumed() {
		return aa.describe("maybe-privatizable")
	}
	return aa.describe("not-privatizable")
}

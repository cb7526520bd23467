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

// PosKind tags the variants of a Position.
type PosKind int

const (
	PosInvalid PosKind = iota
	PosFloat
	PosFunction
	PosReturned
	PosCallSite
	PosCallSiteReturned
	PosArgument
	PosCallSiteArgument
)

var posKindNames = [...]string{"invalid", "flt", "fn", "fn_ret", "cs",
	"cs_ret", "arg", "cs_arg"}

func (k PosKind) String() string { return posKindNames[k] }

// A Position names an IR location a fact applies to. Positions are
// value-typed, comparable, and usable as map keys; two positions are equal
// iff they name the same location.
type Position struct {
	kind   PosKind
	anchor ir.Value       // function, call instruction, or floating value
	argNo  int            // argument index for the two argument kinds
	ctx    ir.Instruction // context instruction for floating values
}

// InvalidPos is the invalid position.
var InvalidPos = Position{kind: PosInvalid, argNo: -1}

// FunctionPos names facts about fn itself.
func FunctionPos(fn *ir.Function) Position {
	return Position{kind: PosFunction, anchor: fn, argNo: -1}
}

// ReturnedPos names facts about fn's return value.
func ReturnedPos(fn *ir.Function) Position {
	return Position{kind: PosReturned, anchor: fn, argNo: -1}
}

// ArgumentPos names facts about a formal argument.
func ArgumentPos(arg *ir.Argument) Position {
	return Position{kind: PosArgument, anchor: arg.Parent, argNo: arg.Index}
}

// CallSitePos names facts about one call instruction.
func CallSitePos(cs ir.CallSite) Position {
	return Position{kind: PosCallSite, anchor: cs.Instr, argNo: -1, ctx: cs.Instr}
}

// CallSiteReturnedPos names facts about the value a call produces.
func CallSiteReturnedPos(cs ir.CallSite) Position {
	return Position{kind: PosCallSiteReturned, anchor: cs.Instr, argNo: -1, ctx: cs.Instr}
}

// CallSiteArgumentPos names facts about one actual argument of a call.
func CallSiteArgumentPos(cs ir.CallSite, argNo int) Position {
	return Position{kind: PosCallSiteArgument, anchor: cs.Instr, argNo: argNo, ctx: cs.Instr}
}

// ValuePos names facts about a free-floating value observed at ctx.
func ValuePos(v ir.Value, ctx ir.Instruction) Position {
	switch x := v.(type) {
	case *ir.Function:
		return FunctionPos(x)
	case *ir.Argument:
		return ArgumentPos(x)
	}
	if in, ok := v.(ir.Instruction); ok && ctx == nil {
		ctx = in
	}
	return Position{kind: PosFloat, anchor: v, argNo: -1, ctx: ctx}
}

// Kind returns the variant tag.
func (p Position) Kind() PosKind { return p.kind }

// IsValid reports whether p names a location.
func (p Position) IsValid() bool { return p.kind != PosInvalid }

// AnchorValue returns the value the position hangs off: the function for
// function-scope kinds, the call instruction for call-site kinds, the
// value itself for floats.
func (p Position) AnchorValue() ir.Value { return p.anchor }

// AssociatedValue returns the value a fact at p talks about. For an
// argument position that is the argument, not the anchor function; for a
// call-site argument it is the actual operand.
func (p Position) AssociatedValue() ir.Value {
	switch p.kind {
	case PosArgument:
		return p.anchor.(*ir.Function).Arg(p.argNo)
	case PosCallSiteArgument:
		cs, _ := ir.AsCallSite(p.anchor.(ir.Instruction))
		return cs.Base.Arg(p.argNo)
	default:
		return p.anchor
	}
}

// AssociatedType returns the type of the associated value; for returned
// positions it is the function's return type.
func (p Position) AssociatedType() ir.Type {
	switch p.kind {
	case PosReturned:
		return p.anchor.(*ir.Function).ReturnType()
	case PosCallSiteReturned:
		return p.anchor.(ir.Instruction).Type()
	default:
		return p.AssociatedValue().Type()
	}
}

// AnchorScope returns the function the position lives in: the function
// itself for function-scope kinds, the enclosing function for call-site
// kinds and floats.
func (p Position) AnchorScope() *ir.Function {
	switch p.kind {
	case PosFunction, PosReturned, PosArgument:
		return p.anchor.(*ir.Function)
	case PosCallSite, PosCallSiteReturned, PosCallSiteArgument:
		if b := p.anchor.(ir.Instruction).Parent(); b != nil {
			return b.Parent()
		}
	case PosFloat:
		if in, ok := p.anchor.(ir.Instruction); ok {
			if b := in.Parent(); b != nil {
				return b.Parent()
			}
		}
		if p.ctx != nil {
			if b := p.ctx.Parent(); b != nil {
				return b.Parent()
			}
		}
	}
	return nil
}

// ArgNo returns the argument index, or -1 for non-argument kinds.
func (p Position) ArgNo() int { return p.argNo }

// CtxInstruction returns the context instruction, if any.
func (p Position) CtxInstruction() ir.Instruction { return p.ctx }

// CallSite returns the call this position belongs to, for the three
// call-site kinds.
func (p Position) CallSite() (ir.CallSite, bool) {
	switch p.kind {
	case PosCallSite, PosCallSiteReturned, PosCallSiteArgument:
		return ir.AsCallSite(p.anchor.(ir.Instruction))
	}
	return ir.CallSite{}, false
}

// Callee returns the statically known callee for call-site kinds.
func (p Position) Callee() *ir.Function {
	if cs, ok := p.CallSite(); ok {
		return cs.Base.CalledFunction()
	}
	return nil
}

// SubsumingPositions returns the canonical sequence of positions that
// subsume p, starting with p itself: facts valid at a subsuming position
// also hold at p.
func (p Position) SubsumingPositions() []Position {
	out := []Position{p}
	switch p.kind {
	case PosReturned:
		out = append(out, FunctionPos(p.anchor.(*ir.Function)))
	case PosCallSite:
		if callee := p.Callee(); callee != nil {
			out = append(out, FunctionPos(callee))
		}
	case PosCallSiteReturned:
		if callee := p.Callee(); callee != nil {
			out = append(out, ReturnedPos(callee), FunctionPos(callee))
			// A `returned` argument carries its facts to the call result.
			cs, _ := p.CallSite()
			for _, arg := range callee.Args {
				if arg.Attrs.Has(ir.AttrReturned) && arg.Index < cs.Base.NumArgs() {
					out = append(out, CallSiteArgumentPos(cs, arg.Index), ArgumentPos(arg))
				}
			}
		}
	case PosCallSiteArgument:
		if callee := p.Callee(); callee != nil && p.argNo < len(callee.Args) {
			out = append(out, ArgumentPos(callee.Arg(p.argNo)))
		}
	}
	return out
}

// attrSet returns the IR attribute list this position reads and writes.
func (p Position) attrSet() *ir.AttrSet {
	switch p.kind {
	case PosFunction:
		return &p.anchor.(*ir.Function).Attrs
	case PosReturned:
		return &p.anchor.(*ir.Function).RetAttrs
	case PosArgument:
		return &p.anchor.(*ir.Function).Arg(p.argNo).Attrs
	case PosCallSite, PosCallSiteReturned, PosCallSiteArgument:
		cs, ok := p.CallSite()
		if !ok {
			return nil
		}
		switch p.kind {
		case PosCallSite:
			return &cs.Base.FnAttrs
		case PosCallSiteReturned:
			return &cs.Base.RetAttrs
		default:
			return cs.Base.ArgAttrSet(p.argNo)
		}
	}
	return nil
}

// AttrsAt walks the subsuming positions and collects the IR attributes of
// the given kinds.
func (p Position) AttrsAt(kinds ...ir.AttrKind) []ir.Attribute {
	var out []ir.Attribute
	for _, sp := range p.SubsumingPositions() {
		set := sp.attrSet()
		if set == nil {
			continue
		}
		for _, k := range kinds {
			if a, ok := set.Get(k); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// HasAttr reports whether any subsuming position carries one of the kinds.
func (p Position) HasAttr(kinds ...ir.AttrKind) bool {
	return len(p.AttrsAt(kinds...)) > 0
}

// ManifestAttr writes attr into the IR at p. It returns Changed unless an
// equal or stronger attribute was already present.
func (p Position) ManifestAttr(attr ir.Attribute) ChangeStatus {
	set := p.attrSet()
	if set == nil {
		return Unchanged
	}
	if old, ok := set.Get(attr.Kind); ok {
		switch attr.Kind {
		case ir.AttrAlign, ir.AttrDereferenceable, ir.AttrDereferenceableOrNull:
			if old.Int >= attr.Int {
				return Unchanged
			}
		default:
			return Unchanged
		}
	}
	set.Add(attr)
	return Changed
}

func (p Position) String() string {
	switch p.kind {
	case PosInvalid:
		return "{invalid}"
	case PosFloat:
		return fmt.Sprintf("{flt %s}", p.anchor.Ident())
	case PosFunction, PosReturned:
		return fmt.Sprintf("{%s @%s}", p.kind, p.anchor.Name())
	case PosArgument:
		return fmt.Sprintf("{arg @%s#%d}", p.anchor.Name(), p.argNo)
	default:
		callee := "?"
		if f := p.Callee(); f != nil {
			callee = f.Name()
		}
		if p.kind == PosCallSiteArgument {
			return fmt.Sprintf("{cs_arg @%s#%d}", callee, p.argNo)
		}
		return fmt.Sprintf("{%s @%s}", p.kind, callee)
	}
}

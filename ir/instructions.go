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

package ir

import "fmt"

// An Instruction is a value computed inside a basic block. Instructions of
// void type produce no usable value but still implement Value so positions
// can refer to them uniformly.
type Instruction interface {
	Value

	// Parent returns the containing basic block, or nil if detached.
	Parent() *BasicBlock

	// Operands returns the operand list. The slice is owned by the
	// instruction; use SetOperand to mutate it.
	Operands() []Value

	// SetOperand replaces operand i, keeping use lists coherent.
	SetOperand(i int, v Value)

	base() *instrBase
}

// A Terminator ends a basic block and names its successors.
type Terminator interface {
	Instruction

	// Successors returns the successor blocks in operand order.
	Successors() []*BasicBlock

	// ReplaceSuccessor rewrites every successor edge to old so it targets
	// new instead.
	ReplaceSuccessor(old, new *BasicBlock)
}

// AtomicOrdering describes the memory ordering of a load or store.
type AtomicOrdering int

const (
	NotAtomic AtomicOrdering = iota
	Unordered
	Monotonic
	Acquire
	Release
	SeqCst
)

func (o AtomicOrdering) String() string {
	switch o {
	case Unordered:
		return "unordered"
	case Monotonic:
		return "monotonic"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case SeqCst:
		return "seq_cst"
	}
	return ""
}

type instrBase struct {
	usesT
	name   string
	typ    Type
	parent *BasicBlock
	ops    []Value
	self   Instruction
}

func (b *instrBase) Name() string        { return b.name }
func (b *instrBase) SetName(n string)    { b.name = n }
func (b *instrBase) Type() Type          { return b.typ }
func (b *instrBase) Parent() *BasicBlock { return b.parent }
func (b *instrBase) Operands() []Value   { return b.ops }
func (b *instrBase) base() *instrBase    { return b }

func (b *instrBase) Ident() string {
	if b.name == "" {
		return "%<unnamed>"
	}
	return "%" + b.name
}

func (b *instrBase) SetOperand(i int, v Value) {
	old := b.ops[i]
	if old == v {
		return
	}
	old.removeUse(Use{User: b.self, OpIdx: i})
	b.ops[i] = v
	v.addUse(Use{User: b.self, OpIdx: i})
}

// initInstr wires self-reference and operand use lists. Every concrete
// constructor calls it exactly once.
func initInstr(self Instruction, name string, typ Type, ops ...Value) {
	b := self.base()
	b.self = self
	b.name = name
	b.typ = typ
	b.ops = ops
	for i, op := range ops {
		op.addUse(Use{User: self, OpIdx: i})
	}
}

// dropOperands removes this instruction from the use lists of its operands.
// Called when the instruction is erased.
func dropOperands(in Instruction) {
	b := in.base()
	for i, op := range b.ops {
		op.removeUse(Use{User: in, OpIdx: i})
	}
	b.ops = nil
}

// Alloca allocates stack memory for one value of Allocated.
type Alloca struct {
	instrBase
	Allocated Type
	Align     uint64
}

// NewAlloca returns a stack allocation of elem.
func NewAlloca(name string, elem Type, align uint64) *Alloca {
	a := &Alloca{Allocated: elem, Align: align}
	initInstr(a, name, Ptr(elem))
	return a
}

// Load reads from a pointer operand.
type Load struct {
	instrBase
	Align    uint64
	Volatile bool
	Ordering AtomicOrdering
	Range    *RangeMeta
}

// NewLoad returns a load of elem through ptr.
func NewLoad(name string, elem Type, ptr Value, align uint64) *Load {
	l := &Load{Align: align}
	initInstr(l, name, elem, ptr)
	return l
}

// Pointer returns the address operand.
func (l *Load) Pointer() Value { return l.ops[0] }

// Store writes a value through a pointer operand.
type Store struct {
	instrBase
	Align    uint64
	Volatile bool
	Ordering AtomicOrdering
}

// NewStore returns a store of val through ptr.
func NewStore(val, ptr Value, align uint64) *Store {
	s := &Store{Align: align}
	initInstr(s, "", Void, val, ptr)
	return s
}

// Stored returns the value operand.
func (s *Store) Stored() Value { return s.ops[0] }

// Pointer returns the address operand.
func (s *Store) Pointer() Value { return s.ops[1] }

// GetElementPtr computes an address from a base pointer and indices over
// Elem, the element type the first index strides over.
type GetElementPtr struct {
	instrBase
	Elem Type
}

// NewGEP returns a getelementptr over elem with the given base and indices.
// The result type follows the index chain through arrays and structs.
func NewGEP(name string, elem Type, ptr Value, indices ...Value) *GetElementPtr {
	t := elem
	for _, idx := range indices[1:] {
		switch cur := t.(type) {
		case *ArrayType:
			t = cur.Elem
		case *StructType:
			ci, ok := idx.(*ConstInt)
			if !ok {
				panic("ir: struct GEP index must be constant")
			}
			t = cur.Fields[ci.V]
		default:
			panic(fmt.Sprintf("ir: cannot index into %s", t))
		}
	}
	g := &GetElementPtr{Elem: elem}
	initInstr(g, name, Ptr(t), append([]Value{ptr}, indices...)...)
	return g
}

// Pointer returns the base pointer operand.
func (g *GetElementPtr) Pointer() Value { return g.ops[0] }

// Indices returns the index operands.
func (g *GetElementPtr) Indices() []Value { return g.ops[1:] }

// ConstantOffset returns the byte offset this GEP adds to its base pointer
// if all indices are constants.
func (g *GetElementPtr) ConstantOffset(dl DataLayout) (int64, bool) {
	var off int64
	t := g.Elem
	for i, idx := range g.Indices() {
		ci, ok := idx.(*ConstInt)
		if !ok {
			return 0, false
		}
		if i == 0 {
			off += ci.V * dl.TypeSize(t)
			continue
		}
		switch cur := t.(type) {
		case *ArrayType:
			off += ci.V * dl.TypeSize(cur.Elem)
			t = cur.Elem
		case *StructType:
			off += dl.FieldOffset(cur, int(ci.V))
			t = cur.Fields[ci.V]
		default:
			return 0, false
		}
	}
	return off, true
}

// BinOpKind enumerates two-operand integer operations.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
)

var binOpNames = [...]string{"add", "sub", "mul", "udiv", "sdiv", "urem",
	"srem", "and", "or", "xor", "shl", "lshr", "ashr"}

func (k BinOpKind) String() string { return binOpNames[k] }

// BinOpKindFromName returns the kind named by s, or -1.
func BinOpKindFromName(s string) BinOpKind {
	for i, n := range binOpNames {
		if n == s {
			return BinOpKind(i)
		}
	}
	return -1
}

// BinOp is a two-operand integer operation.
type BinOp struct {
	instrBase
	Op BinOpKind
}

// NewBinOp returns x <op> y.
func NewBinOp(name string, op BinOpKind, x, y Value) *BinOp {
	b := &BinOp{Op: op}
	initInstr(b, name, x.Type(), x, y)
	return b
}

func (b *BinOp) X() Value { return b.ops[0] }
func (b *BinOp) Y() Value { return b.ops[1] }

// ICmpPred enumerates integer comparison predicates.
type ICmpPred int

const (
	PredEQ ICmpPred = iota
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
)

var icmpNames = [...]string{"eq", "ne", "ugt", "uge", "ult", "ule", "sgt",
	"sge", "slt", "sle"}

func (p ICmpPred) String() string { return icmpNames[p] }

// ICmpPredFromName returns the predicate named by s, or -1.
func ICmpPredFromName(s string) ICmpPred {
	for i, n := range icmpNames {
		if n == s {
			return ICmpPred(i)
		}
	}
	return -1
}

// ICmp compares two integers or pointers and produces an i1.
type ICmp struct {
	instrBase
	Pred ICmpPred
}

// NewICmp returns the comparison x <pred> y.
func NewICmp(name string, pred ICmpPred, x, y Value) *ICmp {
	c := &ICmp{Pred: pred}
	initInstr(c, name, I1, x, y)
	return c
}

func (c *ICmp) X() Value { return c.ops[0] }
func (c *ICmp) Y() Value { return c.ops[1] }

// Select chooses between two values based on an i1 condition.
type Select struct {
	instrBase
}

// NewSelect returns cond ? t : f.
func NewSelect(name string, cond, t, f Value) *Select {
	s := &Select{}
	initInstr(s, name, t.Type(), cond, t, f)
	return s
}

func (s *Select) Cond() Value  { return s.ops[0] }
func (s *Select) True() Value  { return s.ops[1] }
func (s *Select) False() Value { return s.ops[2] }

// CastOp enumerates the cast operations.
type CastOp int

const (
	CastBitcast CastOp = iota
	CastZExt
	CastSExt
	CastTrunc
	CastPtrToInt
	CastIntToPtr
)

var castNames = [...]string{"bitcast", "zext", "sext", "trunc", "ptrtoint",
	"inttoptr"}

func (o CastOp) String() string { return castNames[o] }

// CastOpFromName returns the cast op named by s, or -1.
func CastOpFromName(s string) CastOp {
	for i, n := range castNames {
		if n == s {
			return CastOp(i)
		}
	}
	return -1
}

// Cast converts a value to another type.
type Cast struct {
	instrBase
	Op CastOp
}

// NewCast returns op x to typ.
func NewCast(name string, op CastOp, x Value, typ Type) *Cast {
	c := &Cast{Op: op}
	initInstr(c, name, typ, x)
	return c
}

func (c *Cast) X() Value { return c.ops[0] }

// Phi merges values from predecessor blocks. Incoming values are the
// operands; Blocks holds the matching predecessors.
type Phi struct {
	instrBase
	Blocks []*BasicBlock
}

// NewPhi returns an empty phi of the given type; use AddIncoming.
func NewPhi(name string, typ Type) *Phi {
	p := &Phi{}
	initInstr(p, name, typ)
	return p
}

// AddIncoming appends an incoming (value, predecessor) pair.
func (p *Phi) AddIncoming(v Value, b *BasicBlock) {
	p.ops = append(p.ops, v)
	v.addUse(Use{User: p, OpIdx: len(p.ops) - 1})
	p.Blocks = append(p.Blocks, b)
}

// RemoveIncoming drops every incoming pair for predecessor b.
func (p *Phi) RemoveIncoming(b *BasicBlock) {
	for i := 0; i < len(p.Blocks); {
		if p.Blocks[i] != b {
			i++
			continue
		}
		p.ops[i].removeUse(Use{User: p, OpIdx: i})
		// Reindex the trailing uses.
		for j := i + 1; j < len(p.ops); j++ {
			p.ops[j].removeUse(Use{User: p, OpIdx: j})
		}
		p.ops = append(p.ops[:i], p.ops[i+1:]...)
		p.Blocks = append(p.Blocks[:i], p.Blocks[i+1:]...)
		for j := i; j < len(p.ops); j++ {
			p.ops[j].addUse(Use{User: p, OpIdx: j})
		}
	}
}

// RangeMeta is the !range metadata attached to loads and calls: the value
// is known to lie in [Lo, Hi).
type RangeMeta struct {
	Lo, Hi int64
}

// CallBase carries what Call and Invoke share: callee, arguments, call-site
// attribute sets, and the tail marker.
type CallBase struct {
	instrBase
	FnAttrs  AttrSet
	RetAttrs AttrSet
	ArgAttrs []AttrSet
	Tail     bool
	Range    *RangeMeta
}

// Callee returns the called value; a *Function for direct calls.
func (c *CallBase) Callee() Value { return c.ops[0] }

// CalledFunction returns the statically known callee, or nil for indirect
// calls.
func (c *CallBase) CalledFunction() *Function {
	f, _ := c.ops[0].(*Function)
	return f
}

// Args returns the argument operands.
func (c *CallBase) Args() []Value { return c.ops[1:] }

// NumArgs returns the number of call arguments.
func (c *CallBase) NumArgs() int { return len(c.ops) - 1 }

// Arg returns the i-th argument operand.
func (c *CallBase) Arg(i int) Value { return c.ops[i+1] }

// SetArg replaces the i-th argument operand.
func (c *CallBase) SetArg(i int, v Value) { c.SetOperand(i+1, v) }

// ArgAttrSet returns the attribute set of argument i, growing the list on
// demand.
func (c *CallBase) ArgAttrSet(i int) *AttrSet {
	for len(c.ArgAttrs) <= i {
		c.ArgAttrs = append(c.ArgAttrs, AttrSet{})
	}
	return &c.ArgAttrs[i]
}

// ArgOperandNo returns the argument index of use u within this call, or -1
// if the use is the callee operand.
func (c *CallBase) ArgOperandNo(u Use) int { return u.OpIdx - 1 }

// Call invokes a function and continues in the same block.
type Call struct {
	CallBase
}

// NewCall returns a call of callee with args. The result type is taken from
// the callee's function type.
func NewCall(name string, callee Value, args ...Value) *Call {
	c := &Call{}
	initInstr(c, name, calleeRetType(callee), append([]Value{callee}, args...)...)
	c.ArgAttrs = make([]AttrSet, len(args))
	return c
}

// Invoke invokes a function and transfers either to the normal successor or,
// on unwind, to the unwind successor.
type Invoke struct {
	CallBase
	NormalDest *BasicBlock
	UnwindDest *BasicBlock
}

// NewInvoke returns an invoke of callee with args and the two successors.
func NewInvoke(name string, callee Value, args []Value, normal, unwind *BasicBlock) *Invoke {
	iv := &Invoke{NormalDest: normal, UnwindDest: unwind}
	initInstr(iv, name, calleeRetType(callee), append([]Value{callee}, args...)...)
	iv.ArgAttrs = make([]AttrSet, len(args))
	return iv
}

func (iv *Invoke) Successors() []*BasicBlock {
	return []*BasicBlock{iv.NormalDest, iv.UnwindDest}
}

func (iv *Invoke) ReplaceSuccessor(old, new *BasicBlock) {
	if iv.NormalDest == old {
		iv.NormalDest = new
	}
	if iv.UnwindDest == old {
		iv.UnwindDest = new
	}
}

func calleeRetType(callee Value) Type {
	if pt, ok := callee.Type().(*PointerType); ok {
		if ft, ok := pt.Elem.(*FuncType); ok {
			return ft.Ret
		}
	}
	panic("ir: callee is not a function pointer")
}

// Ret returns from the enclosing function, optionally with a value.
type Ret struct {
	instrBase
}

// NewRet returns a return instruction; v may be nil for void returns.
func NewRet(v Value) *Ret {
	r := &Ret{}
	if v == nil {
		initInstr(r, "", Void)
	} else {
		initInstr(r, "", Void, v)
	}
	return r
}

// Value returns the returned value, or nil for void returns.
func (r *Ret) Value() Value {
	if len(r.ops) == 0 {
		return nil
	}
	return r.ops[0]
}

func (r *Ret) Successors() []*BasicBlock          { return nil }
func (r *Ret) ReplaceSuccessor(_, _ *BasicBlock) {}

// Br is an unconditional branch.
type Br struct {
	instrBase
	Target *BasicBlock
}

// NewBr returns an unconditional branch to target.
func NewBr(target *BasicBlock) *Br {
	b := &Br{Target: target}
	initInstr(b, "", Void)
	return b
}

func (b *Br) Successors() []*BasicBlock { return []*BasicBlock{b.Target} }

func (b *Br) ReplaceSuccessor(old, new *BasicBlock) {
	if b.Target == old {
		b.Target = new
	}
}

// CondBr branches on an i1 condition.
type CondBr struct {
	instrBase
	Then *BasicBlock
	Else *BasicBlock
}

// NewCondBr returns a conditional branch.
func NewCondBr(cond Value, then, els *BasicBlock) *CondBr {
	b := &CondBr{Then: then, Else: els}
	initInstr(b, "", Void, cond)
	return b
}

// Cond returns the branch condition.
func (b *CondBr) Cond() Value { return b.ops[0] }

func (b *CondBr) Successors() []*BasicBlock { return []*BasicBlock{b.Then, b.Else} }

func (b *CondBr) ReplaceSuccessor(old, new *BasicBlock) {
	if b.Then == old {
		b.Then = new
	}
	if b.Else == old {
		b.Else = new
	}
}

// SwitchCase is one case of a switch terminator.
type SwitchCase struct {
	Val    *ConstInt
	Target *BasicBlock
}

// Switch branches on an integer over a case table.
type Switch struct {
	instrBase
	Default *BasicBlock
	Cases   []SwitchCase
}

// NewSwitch returns a switch on cond with the given default block.
func NewSwitch(cond Value, dflt *BasicBlock, cases ...SwitchCase) *Switch {
	s := &Switch{Default: dflt, Cases: cases}
	initInstr(s, "", Void, cond)
	return s
}

// Cond returns the switched value.
func (s *Switch) Cond() Value { return s.ops[0] }

func (s *Switch) Successors() []*BasicBlock {
	out := []*BasicBlock{s.Default}
	for _, c := range s.Cases {
		out = append(out, c.Target)
	}
	return out
}

func (s *Switch) ReplaceSuccessor(old, new *BasicBlock) {
	if s.Default == old {
		s.Default = new
	}
	for i := range s.Cases {
		if s.Cases[i].Target == old {
			s.Cases[i].Target = new
		}
	}
}

// Unreachable marks a point that control flow never reaches.
type Unreachable struct {
	instrBase
}

// NewUnreachable returns an unreachable terminator.
func NewUnreachable() *Unreachable {
	u := &Unreachable{}
	initInstr(u, "", Void)
	return u
}

func (u *Unreachable) Successors() []*BasicBlock          { return nil }
func (u *Unreachable) ReplaceSuccessor(_, _ *BasicBlock) {}

// MayThrow reports whether executing in can raise an exception. Only calls
// and invokes throw in this IR; every call and invoke is reported, whatever
// its callee or attributes.
func MayThrow(in Instruction) bool {
	switch in.(type) {
	case *Call, *Invoke:
		return true
	}
	return false
}

// HasSideEffects reports whether in writes memory, transfers control, or
// otherwise cannot be removed even if its value is unused.
func HasSideEffects(in Instruction) bool {
	switch v := in.(type) {
	case *Store, *Call, *Invoke, *Ret, *Br, *CondBr, *Switch, *Unreachable:
		return true
	case *Load:
		return v.Volatile || v.Ordering != NotAtomic
	}
	return false
}

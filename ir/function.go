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

// Linkage describes the visibility of a function or global.
type Linkage int

const (
	ExternalLinkage Linkage = iota
	InternalLinkage
)

// A Function is a named body of blocks, or a declaration if it has none.
// Functions are values of pointer-to-function type so they can appear as
// call operands.
type Function struct {
	usesT
	FName       string
	Sig         *FuncType
	Args        []*Argument
	Blocks      []*BasicBlock
	Attrs       AttrSet
	RetAttrs    AttrSet
	Linkage     Linkage
	Personality Value
	Callback    *CallbackMeta
	Mod         *Module

	nextID int
}

// CallbackMeta is the !callback metadata: calls to this function invoke the
// function passed as argument CalleeArgNo, forwarding the listed payload
// argument indices (-1 marks an unknown payload).
type CallbackMeta struct {
	CalleeArgNo int
	PayloadArgs []int
}

func (f *Function) Name() string  { return f.FName }
func (f *Function) Type() Type    { return Ptr(f.Sig) }
func (f *Function) Ident() string { return "@" + f.FName }

// IsDeclaration reports whether f has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// ReturnType returns the type of the function's return value.
func (f *Function) ReturnType() Type { return f.Sig.Ret }

// EntryBlock returns the entry block, or nil for declarations.
func (f *Function) EntryBlock() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Arg returns the i-th formal argument.
func (f *Function) Arg(i int) *Argument { return f.Args[i] }

// AddBlock appends a new empty block with the given label, uniquing the
// name within the function.
func (f *Function) AddBlock(name string) *BasicBlock {
	if name == "" {
		name = "bb"
	}
	base := name
	for f.BlockNamed(name) != nil {
		f.nextID++
		name = fmt.Sprintf("%s.%d", base, f.nextID)
	}
	b := &BasicBlock{BName: name, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// BlockNamed returns the block labeled name, or nil.
func (f *Function) BlockNamed(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.BName == name {
			return b
		}
	}
	return nil
}

// Instructions calls visit for every instruction in block order. Returning
// false stops the walk.
func (f *Function) Instructions(visit func(Instruction) bool) {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if !visit(in) {
				return
			}
		}
	}
}

// Returns collects the return instructions of f.
func (f *Function) Returns() []*Ret {
	var rets []*Ret
	f.Instructions(func(in Instruction) bool {
		if r, ok := in.(*Ret); ok {
			rets = append(rets, r)
		}
		return true
	})
	return rets
}

// HasAddressTaken reports whether f is referenced anywhere other than as
// the direct callee of a call or invoke. Such functions may be called
// through pointers the analysis cannot see.
func (f *Function) HasAddressTaken() bool {
	for _, u := range f.Uses() {
		cb := callBaseOf(u.User)
		if cb == nil || u.OpIdx != 0 {
			return true
		}
	}
	return false
}

// IsIPOAmendable reports whether interprocedural deductions about f's
// internals may be attached to it: it needs an exact definition that no
// unseen caller can override.
func (f *Function) IsIPOAmendable() bool {
	return !f.IsDeclaration() && (f.Linkage == InternalLinkage || !f.HasAddressTaken())
}

// callBaseOf returns the CallBase of in when it is a call or invoke.
func callBaseOf(in Instruction) *CallBase {
	switch c := in.(type) {
	case *Call:
		return &c.CallBase
	case *Invoke:
		return &c.CallBase
	}
	return nil
}

// CallSite is the uniform view of a call or invoke instruction.
type CallSite struct {
	Instr Instruction
	Base  *CallBase
}

// AsCallSite views in as a call site, if it is one.
func AsCallSite(in Instruction) (CallSite, bool) {
	if cb := callBaseOf(in); cb != nil {
		return CallSite{Instr: in, Base: cb}, true
	}
	return CallSite{}, false
}

// CallSitesOf returns the direct call sites of f across the module.
func CallSitesOf(f *Function) []CallSite {
	var out []CallSite
	for _, u := range f.Uses() {
		if cs, ok := AsCallSite(u.User); ok && u.OpIdx == 0 {
			out = append(out, cs)
		}
	}
	return out
}

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

// A Use records that an instruction uses a value as its OpIdx-th operand.
type Use struct {
	User  Instruction
	OpIdx int
}

// Get returns the used value.
func (u Use) Get() Value { return u.User.Operands()[u.OpIdx] }

// Set replaces the used value, keeping use lists coherent.
func (u Use) Set(v Value) { u.User.SetOperand(u.OpIdx, v) }

// A Value is anything that can appear as an instruction operand: constants,
// globals, functions, arguments, and value-producing instructions.
type Value interface {
	// Name returns the value's name without sigil, e.g. "x" for %x.
	Name() string

	// Type returns the value's type.
	Type() Type

	// Uses returns the current uses of this value. The returned slice is
	// owned by the value; callers that mutate the IR while iterating should
	// copy it first.
	Uses() []Use

	// Ident returns the reference form of this value as it appears as an
	// operand, e.g. "%x", "@f", "42", "null".
	Ident() string

	addUse(u Use)
	removeUse(u Use)
}

// usesT is the embeddable use-list implementation shared by all values.
type usesT struct {
	uses []Use
}

func (v *usesT) Uses() []Use { return v.uses }

func (v *usesT) addUse(u Use) { v.uses = append(v.uses, u) }

func (v *usesT) removeUse(u Use) {
	for i, x := range v.uses {
		if x.User == u.User && x.OpIdx == u.OpIdx {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// NumUses returns the number of uses of v.
func NumUses(v Value) int { return len(v.Uses()) }

// ReplaceAllUsesWith rewrites every use of old to point at new. Values of
// both operands must have compatible types; the caller is responsible for
// that invariant.
func ReplaceAllUsesWith(old, new Value) {
	if old == new {
		return
	}
	uses := append([]Use(nil), old.Uses()...)
	for _, u := range uses {
		u.User.SetOperand(u.OpIdx, new)
	}
}

// ConstInt is an integer constant.
type ConstInt struct {
	usesT
	Typ *IntType
	V   int64
}

// NewConstInt returns the integer constant of the given type and value.
func NewConstInt(t *IntType, v int64) *ConstInt { return &ConstInt{Typ: t, V: v} }

// True and False return the i1 constants.
func True() *ConstInt  { return NewConstInt(I1, 1) }
func False() *ConstInt { return NewConstInt(I1, 0) }

func (c *ConstInt) Name() string  { return "" }
func (c *ConstInt) Type() Type    { return c.Typ }
func (c *ConstInt) Ident() string { return fmt.Sprintf("%d", c.V) }

// IsZero reports whether the constant is zero.
func (c *ConstInt) IsZero() bool { return c.V == 0 }

// ConstNull is the null pointer constant of a given pointer type.
type ConstNull struct {
	usesT
	Typ *PointerType
}

// NewConstNull returns the null constant of pointer type t.
func NewConstNull(t *PointerType) *ConstNull { return &ConstNull{Typ: t} }

func (c *ConstNull) Name() string  { return "" }
func (c *ConstNull) Type() Type    { return c.Typ }
func (c *ConstNull) Ident() string { return "null" }

// Undef is the undefined value of some type. The rewriter substitutes dead
// values with Undef before deleting their producers.
type Undef struct {
	usesT
	Typ Type
}

// NewUndef returns an undef value of type t.
func NewUndef(t Type) *Undef { return &Undef{Typ: t} }

func (c *Undef) Name() string  { return "" }
func (c *Undef) Type() Type    { return c.Typ }
func (c *Undef) Ident() string { return "undef" }

// IsConstant reports whether v is a constant (integer, null or undef).
func IsConstant(v Value) bool {
	switch v.(type) {
	case *ConstInt, *ConstNull, *Undef:
		return true
	}
	return false
}

// IsNullPointer reports whether v is the literal null pointer.
func IsNullPointer(v Value) bool {
	_, ok := v.(*ConstNull)
	return ok
}

// A Global is a module-level variable. Its value type is Elem; as an
// operand it has pointer type.
type Global struct {
	usesT
	GName    string
	Elem     Type
	Internal bool
	Const    bool
}

func (g *Global) Name() string  { return g.GName }
func (g *Global) Type() Type    { return Ptr(g.Elem) }
func (g *Global) Ident() string { return "@" + g.GName }

// An Argument is a formal parameter of a function.
type Argument struct {
	usesT
	AName  string
	Typ    Type
	Parent *Function
	Index  int
	Attrs  AttrSet
}

func (a *Argument) Name() string  { return a.AName }
func (a *Argument) Type() Type    { return a.Typ }
func (a *Argument) Ident() string { return "%" + a.AName }

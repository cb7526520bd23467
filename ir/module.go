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

// A Module is an ordered collection of functions and globals sharing one
// data layout.
type Module struct {
	Funcs   []*Function
	Globals []*Global
	Layout  DataLayout

	nextName int
}

// NewModule returns an empty module.
func NewModule() *Module { return &Module{} }

// NewFunction creates a function with the given name and signature and adds
// it to the module. Argument names default to arg0, arg1, ...
func (m *Module) NewFunction(name string, sig *FuncType, argNames ...string) *Function {
	f := &Function{FName: name, Sig: sig, Mod: m}
	for i, pt := range sig.Params {
		an := fmt.Sprintf("arg%d", i)
		if i < len(argNames) && argNames[i] != "" {
			an = argNames[i]
		}
		f.Args = append(f.Args, &Argument{AName: an, Typ: pt, Parent: f, Index: i})
	}
	m.Funcs = append(m.Funcs, f)
	return f
}

// NewGlobal creates a global of element type elem and adds it to the module.
func (m *Module) NewGlobal(name string, elem Type, internal bool) *Global {
	g := &Global{GName: name, Elem: elem, Internal: internal}
	m.Globals = append(m.Globals, g)
	return g
}

// FuncNamed returns the function named name, or nil.
func (m *Module) FuncNamed(name string) *Function {
	for _, f := range m.Funcs {
		if f.FName == name {
			return f
		}
	}
	return nil
}

// GlobalNamed returns the global named name, or nil.
func (m *Module) GlobalNamed(name string) *Global {
	for _, g := range m.Globals {
		if g.GName == name {
			return g
		}
	}
	return nil
}

// RemoveFunction unlinks f from the module. The function body is torn down
// first so no dangling uses survive.
func (m *Module) RemoveFunction(f *Function) {
	for i := len(f.Blocks) - 1; i >= 0; i-- {
		f.Blocks[i].Truncate(0)
	}
	f.Blocks = nil
	if len(f.Uses()) > 0 {
		ReplaceAllUsesWith(f, NewUndef(f.Type()))
	}
	for i, x := range m.Funcs {
		if x == f {
			m.Funcs = append(m.Funcs[:i], m.Funcs[i+1:]...)
			break
		}
	}
	f.Mod = nil
}

// UniqueName returns a module-unique symbol name derived from base.
func (m *Module) UniqueName(base string) string {
	for {
		m.nextName++
		name := fmt.Sprintf("%s.%d", base, m.nextName)
		if m.FuncNamed(name) == nil && m.GlobalNamed(name) == nil {
			return name
		}
	}
}

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

import (
	"fmt"
	"strings"
)

// Print renders the module in the textual format the parser accepts.
// Printing then reparsing then printing again yields identical text, which
// the idempotence tests rely on.
func Print(m *Module) string {
	var sb strings.Builder
	for _, g := range m.Globals {
		link := ""
		if g.Internal {
			link = "internal "
		}
		kw := "global"
		if g.Const {
			kw = "constant"
		}
		fmt.Fprintf(&sb, "@%s = %s%s %s\n", g.GName, link, kw, g.Elem)
	}
	if len(m.Globals) > 0 {
		sb.WriteString("\n")
	}
	for i, f := range m.Funcs {
		if i > 0 {
			sb.WriteString("\n")
		}
		printFunction(&sb, f)
	}
	return sb.String()
}

func printFunction(sb *strings.Builder, f *Function) {
	kw := "define "
	if f.IsDeclaration() {
		kw = "declare "
	}
	sb.WriteString(kw)
	if f.Linkage == InternalLinkage {
		sb.WriteString("internal ")
	}
	if s := f.RetAttrs.String(); s != "" {
		sb.WriteString(s + " ")
	}
	fmt.Fprintf(sb, "%s @%s(", f.Sig.Ret, f.FName)
	for i, a := range f.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Typ.String())
		if s := a.Attrs.String(); s != "" {
			sb.WriteString(" " + s)
		}
		fmt.Fprintf(sb, " %%%s", a.AName)
	}
	if f.Sig.Variadic {
		if len(f.Args) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteString(")")
	if s := f.Attrs.String(); s != "" {
		sb.WriteString(" " + s)
	}
	if f.Personality != nil {
		fmt.Fprintf(sb, " personality %s", f.Personality.Ident())
	}
	if cb := f.Callback; cb != nil {
		args := make([]string, 0, len(cb.PayloadArgs)+1)
		args = append(args, fmt.Sprintf("%d", cb.CalleeArgNo))
		for _, p := range cb.PayloadArgs {
			args = append(args, fmt.Sprintf("%d", p))
		}
		fmt.Fprintf(sb, " !callback(%s)", strings.Join(args, ", "))
	}
	if f.IsDeclaration() {
		sb.WriteString("\n")
		return
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks {
		fmt.Fprintf(sb, "%s:\n", b.BName)
		for _, in := range b.Instrs {
			sb.WriteString("  " + instrString(in) + "\n")
		}
	}
	sb.WriteString("}\n")
}

func typedOperand(v Value) string {
	return v.Type().String() + " " + v.Ident()
}

func instrString(in Instruction) string {
	lhs := ""
	if !IsVoid(in.Type()) {
		lhs = in.Ident() + " = "
	}
	switch v := in.(type) {
	case *Alloca:
		s := fmt.Sprintf("%salloca %s", lhs, v.Allocated)
		if v.Align != 0 {
			s += fmt.Sprintf(", align %d", v.Align)
		}
		return s
	case *Load:
		s := lhs + "load "
		if v.Volatile {
			s += "volatile "
		}
		if v.Ordering != NotAtomic {
			s += "atomic " + v.Ordering.String() + " "
		}
		s += fmt.Sprintf("%s, %s", v.Type(), typedOperand(v.Pointer()))
		if v.Align != 0 {
			s += fmt.Sprintf(", align %d", v.Align)
		}
		if v.Range != nil {
			s += fmt.Sprintf(", !range(%d, %d)", v.Range.Lo, v.Range.Hi)
		}
		return s
	case *Store:
		s := "store "
		if v.Volatile {
			s += "volatile "
		}
		if v.Ordering != NotAtomic {
			s += "atomic " + v.Ordering.String() + " "
		}
		s += fmt.Sprintf("%s, %s", typedOperand(v.Stored()), typedOperand(v.Pointer()))
		if v.Align != 0 {
			s += fmt.Sprintf(", align %d", v.Align)
		}
		return s
	case *GetElementPtr:
		parts := []string{v.Elem.String(), typedOperand(v.Pointer())}
		for _, idx := range v.Indices() {
			parts = append(parts, typedOperand(idx))
		}
		return lhs + "getelementptr " + strings.Join(parts, ", ")
	case *BinOp:
		return fmt.Sprintf("%s%s %s, %s", lhs, v.Op, typedOperand(v.X()), v.Y().Ident())
	case *ICmp:
		return fmt.Sprintf("%sicmp %s %s, %s", lhs, v.Pred, typedOperand(v.X()), v.Y().Ident())
	case *Select:
		return fmt.Sprintf("%sselect %s, %s, %s", lhs,
			typedOperand(v.Cond()), typedOperand(v.True()), typedOperand(v.False()))
	case *Cast:
		return fmt.Sprintf("%s%s %s to %s", lhs, v.Op, typedOperand(v.X()), v.Type())
	case *Phi:
		inc := make([]string, len(v.Blocks))
		for i, b := range v.Blocks {
			inc[i] = fmt.Sprintf("[ %s, %%%s ]", v.Operands()[i].Ident(), b.BName)
		}
		return fmt.Sprintf("%sphi %s %s", lhs, v.Type(), strings.Join(inc, ", "))
	case *Call:
		s := lhs
		if v.Tail {
			s += "tail "
		}
		s += "call " + callSuffix(&v.CallBase)
		if v.Range != nil {
			s += fmt.Sprintf(", !range(%d, %d)", v.Range.Lo, v.Range.Hi)
		}
		return s
	case *Invoke:
		return fmt.Sprintf("%sinvoke %s to label %%%s unwind label %%%s",
			lhs, callSuffix(&v.CallBase), v.NormalDest.BName, v.UnwindDest.BName)
	case *Ret:
		if v.Value() == nil {
			return "ret void"
		}
		return "ret " + typedOperand(v.Value())
	case *Br:
		return fmt.Sprintf("br label %%%s", v.Target.BName)
	case *CondBr:
		return fmt.Sprintf("br %s, label %%%s, label %%%s",
			typedOperand(v.Cond()), v.Then.BName, v.Else.BName)
	case *Switch:
		cases := make([]string, len(v.Cases))
		for i, c := range v.Cases {
			cases[i] = fmt.Sprintf("%s, label %%%s", typedOperand(c.Val), c.Target.BName)
		}
		return fmt.Sprintf("switch %s, label %%%s [ %s ]",
			typedOperand(v.Cond()), v.Default.BName, strings.Join(cases, "  "))
	case *Unreachable:
		return "unreachable"
	}
	return lhs + "<unknown>"
}

func callSuffix(cb *CallBase) string {
	retTy := cb.Type()
	args := make([]string, cb.NumArgs())
	for i := range args {
		a := cb.Arg(i)
		s := a.Type().String()
		if i < len(cb.ArgAttrs) {
			if as := cb.ArgAttrs[i].String(); as != "" {
				s += " " + as
			}
		}
		args[i] = s + " " + a.Ident()
	}
	s := fmt.Sprintf("%s %s(%s)", retTy, cb.Callee().Ident(), strings.Join(args, ", "))
	if fs := cb.FnAttrs.String(); fs != "" {
		s += " " + fs
	}
	return s
}

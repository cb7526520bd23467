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
	"strconv"
	"strings"
	"unicode"
)

// Parse reads a module in the textual IR format. The format is a close
// dialect of LLVM assembly covering the constructs this package models.
func Parse(src string) (*Module, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, m: NewModule()}
	if err := p.parseModule(); err != nil {
		return nil, err
	}
	return p.m, nil
}

// MustParse is Parse for tests and examples with known-good input.
func MustParse(src string) *Module {
	m, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return m
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokLocal  // %name
	tokGlobal // @name
	tokMeta   // !name
	tokInt
	tokPunct // single rune: ( ) [ ] { } , = * :
	tokEllipsis
)

type token struct {
	kind tokKind
	text string
	line int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '%' || c == '@' || c == '!':
			j := i + 1
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			kind := tokLocal
			if c == '@' {
				kind = tokGlobal
			} else if c == '!' {
				kind = tokMeta
			}
			toks = append(toks, token{kind, src[i+1 : j], line})
			i = j
		case c == '-' || unicode.IsDigit(rune(c)):
			j := i + 1
			for j < len(src) && unicode.IsDigit(rune(src[j])) {
				j++
			}
			toks = append(toks, token{tokInt, src[i:j], line})
			i = j
		case strings.HasPrefix(src[i:], "..."):
			toks = append(toks, token{tokEllipsis, "...", line})
			i += 3
		case isWordByte(c):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], line})
			i = j
		case strings.ContainsRune("()[]{},=*:", rune(c)):
			toks = append(toks, token{tokPunct, string(c), line})
			i++
		default:
			return nil, fmt.Errorf("line %d: unexpected character %q", line, c)
		}
	}
	toks = append(toks, token{tokEOF, "", line})
	return toks, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// placeholder stands in for a forward-referenced local value until its
// definition is parsed.
type placeholder struct {
	usesT
	name string
	typ  Type
}

func (p *placeholder) Name() string  { return p.name }
func (p *placeholder) Type() Type    { return p.typ }
func (p *placeholder) Ident() string { return "%" + p.name }

type parser struct {
	toks []token
	pos  int
	m    *Module

	// Per-function parse state.
	fn      *Function
	values  map[string]Value
	forward map[string]*placeholder
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.cur().line, fmt.Sprintf(format, args...))
}

func (p *parser) accept(kind tokKind, text string) bool {
	if p.cur().kind == kind && (text == "" || p.cur().text == text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokKind, text string) (token, error) {
	if p.cur().kind == kind && (text == "" || p.cur().text == text) {
		return p.next(), nil
	}
	want := text
	if want == "" {
		want = fmt.Sprintf("token kind %d", kind)
	}
	return token{}, p.errf("expected %q, found %q", want, p.cur().text)
}

func (p *parser) parseModule() error {
	// First pass: headers and globals, so operands resolve in any order.
	// Body token positions are recorded and parsed in a second pass.
	type pending struct {
		f   *Function
		pos int
	}
	var bodies []pending
	for p.cur().kind != tokEOF {
		switch {
		case p.cur().kind == tokIdent && (p.cur().text == "define" || p.cur().text == "declare"):
			if err := p.parseFunctionHeader(); err != nil {
				return err
			}
			f := p.m.Funcs[len(p.m.Funcs)-1]
			if p.cur().kind == tokPunct && p.cur().text == "{" {
				bodies = append(bodies, pending{f: f, pos: p.pos})
				if err := p.skipBody(); err != nil {
					return err
				}
			}
		case p.cur().kind == tokGlobal:
			if err := p.parseGlobal(); err != nil {
				return err
			}
		default:
			return p.errf("expected top-level definition, found %q", p.cur().text)
		}
	}
	for _, b := range bodies {
		p.pos = b.pos
		if err := p.parseBody(b.f); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseGlobal() error {
	name := p.next().text
	if _, err := p.expect(tokPunct, "="); err != nil {
		return err
	}
	internal := p.accept(tokIdent, "internal")
	isConst := false
	if p.accept(tokIdent, "constant") {
		isConst = true
	} else if _, err := p.expect(tokIdent, "global"); err != nil {
		return err
	}
	t, err := p.parseType()
	if err != nil {
		return err
	}
	g := p.m.NewGlobal(name, t, internal)
	g.Const = isConst
	return nil
}

func (p *parser) parseFunctionHeader() error {
	p.next() // define / declare
	linkage := ExternalLinkage
	if p.accept(tokIdent, "internal") {
		linkage = InternalLinkage
	}
	retAttrs, err := p.parseAttrList()
	if err != nil {
		return err
	}
	retTy, err := p.parseType()
	if err != nil {
		return err
	}
	nameTok, err := p.expect(tokGlobal, "")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	var params []Type
	var argNames []string
	var argAttrs []AttrSet
	variadic := false
	for !p.accept(tokPunct, ")") {
		if len(params) > 0 {
			if _, err := p.expect(tokPunct, ","); err != nil {
				return err
			}
		}
		if p.accept(tokEllipsis, "") {
			variadic = true
			if _, err := p.expect(tokPunct, ")"); err != nil {
				return err
			}
			break
		}
		pt, err := p.parseType()
		if err != nil {
			return err
		}
		attrs, err := p.parseAttrList()
		if err != nil {
			return err
		}
		name := ""
		if p.cur().kind == tokLocal {
			name = p.next().text
		}
		params = append(params, pt)
		argNames = append(argNames, name)
		argAttrs = append(argAttrs, attrs)
	}
	f := p.m.NewFunction(nameTok.text, &FuncType{Params: params, Ret: retTy, Variadic: variadic}, argNames...)
	f.Linkage = linkage
	f.RetAttrs = retAttrs
	for i := range argAttrs {
		f.Args[i].Attrs = argAttrs[i]
	}
	fnAttrs, err := p.parseAttrList()
	if err != nil {
		return err
	}
	f.Attrs = fnAttrs
	if p.accept(tokIdent, "personality") {
		pers, err := p.expect(tokGlobal, "")
		if err != nil {
			return err
		}
		f.Personality = &Global{GName: pers.text, Elem: I8}
	}
	if p.cur().kind == tokMeta && p.cur().text == "callback" {
		p.next()
		if _, err := p.expect(tokPunct, "("); err != nil {
			return err
		}
		cb := &CallbackMeta{}
		first := true
		for !p.accept(tokPunct, ")") {
			if !first {
				if _, err := p.expect(tokPunct, ","); err != nil {
					return err
				}
			}
			n, err := p.parseInt()
			if err != nil {
				return err
			}
			if first {
				cb.CalleeArgNo = int(n)
			} else {
				cb.PayloadArgs = append(cb.PayloadArgs, int(n))
			}
			first = false
		}
		f.Callback = cb
	}
	return nil
}

func (p *parser) skipBody() error {
	if p.cur().kind != tokPunct || p.cur().text != "{" {
		return nil // declaration
	}
	depth := 0
	for {
		t := p.next()
		if t.kind == tokEOF {
			return p.errf("unterminated function body")
		}
		if t.kind == tokPunct && t.text == "{" {
			depth++
		}
		if t.kind == tokPunct && t.text == "}" {
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

func (p *parser) parseBody(f *Function) error {
	p.fn = f
	p.values = map[string]Value{}
	p.forward = map[string]*placeholder{}
	for _, a := range f.Args {
		p.values[a.AName] = a
	}
	if _, err := p.expect(tokPunct, "{"); err != nil {
		return err
	}
	// Pre-scan labels so branches can resolve blocks in any order.
	save := p.pos
	depth := 1
	for depth > 0 {
		t := p.next()
		if t.kind == tokEOF {
			return p.errf("unterminated function body")
		}
		if t.kind == tokPunct {
			switch t.text {
			case "{":
				depth++
			case "}":
				depth--
			case ":":
				if depth == 1 && p.toks[p.pos-2].kind == tokIdent {
					f.AddBlock(p.toks[p.pos-2].text)
				}
			}
		}
	}
	p.pos = save
	var cur *BasicBlock
	for {
		t := p.cur()
		if t.kind == tokPunct && t.text == "}" {
			p.next()
			break
		}
		if t.kind == tokIdent && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == ":" {
			cur = f.BlockNamed(t.text)
			p.pos += 2
			continue
		}
		if cur == nil {
			return p.errf("instruction outside a block")
		}
		if err := p.parseInstruction(cur); err != nil {
			return err
		}
	}
	for name, ph := range p.forward {
		v, ok := p.values[name]
		if !ok {
			return fmt.Errorf("function @%s: undefined value %%%s", f.FName, name)
		}
		ReplaceAllUsesWith(ph, v)
	}
	return nil
}

func (p *parser) parseInstruction(b *BasicBlock) error {
	name := ""
	if p.cur().kind == tokLocal {
		name = p.next().text
		if _, err := p.expect(tokPunct, "="); err != nil {
			return err
		}
	}
	op := p.cur().text
	in, err := p.parseOp(b, name, op)
	if err != nil {
		return err
	}
	if name != "" {
		p.values[name] = in
	}
	b.Append(in)
	return nil
}

//gocyclo:ignore
func (p *parser) parseOp(b *BasicBlock, name, op string) (Instruction, error) {
	switch op {
	case "alloca":
		p.next()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		align := uint64(0)
		if p.accept(tokPunct, ",") {
			if _, err := p.expect(tokIdent, "align"); err != nil {
				return nil, err
			}
			n, err := p.parseInt()
			if err != nil {
				return nil, err
			}
			align = uint64(n)
		}
		return NewAlloca(name, t, align), nil
	case "load":
		p.next()
		volatile := p.accept(tokIdent, "volatile")
		ordering := NotAtomic
		if p.accept(tokIdent, "atomic") {
			ordering = p.parseOrdering()
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		ptr, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		l := NewLoad(name, elem, ptr, 0)
		l.Volatile = volatile
		l.Ordering = ordering
		if err := p.parseAccessSuffix(&l.Align, &l.Range); err != nil {
			return nil, err
		}
		return l, nil
	case "store":
		p.next()
		volatile := p.accept(tokIdent, "volatile")
		ordering := NotAtomic
		if p.accept(tokIdent, "atomic") {
			ordering = p.parseOrdering()
		}
		val, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		ptr, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		s := NewStore(val, ptr, 0)
		s.Volatile = volatile
		s.Ordering = ordering
		if err := p.parseAccessSuffix(&s.Align, nil); err != nil {
			return nil, err
		}
		return s, nil
	case "getelementptr":
		p.next()
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		ptr, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		var indices []Value
		for p.accept(tokPunct, ",") {
			idx, err := p.parseTypedValue()
			if err != nil {
				return nil, err
			}
			indices = append(indices, idx)
		}
		return NewGEP(name, elem, ptr, indices...), nil
	case "add", "sub", "mul", "udiv", "sdiv", "urem", "srem",
		"and", "or", "xor", "shl", "lshr", "ashr":
		p.next()
		bop := BinOpKindFromName(op)
		x, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		y, err := p.parseValue(x.Type())
		if err != nil {
			return nil, err
		}
		return NewBinOp(name, bop, x, y), nil
	case "icmp":
		p.next()
		pred := ICmpPredFromName(p.next().text)
		if pred < 0 {
			return nil, p.errf("unknown icmp predicate")
		}
		x, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		y, err := p.parseValue(x.Type())
		if err != nil {
			return nil, err
		}
		return NewICmp(name, pred, x, y), nil
	case "select":
		p.next()
		cond, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		tv, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		fv, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		return NewSelect(name, cond, tv, fv), nil
	case "phi":
		p.next()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		phi := NewPhi(name, t)
		first := true
		for first || p.accept(tokPunct, ",") {
			first = false
			if _, err := p.expect(tokPunct, "["); err != nil {
				return nil, err
			}
			v, err := p.parseValue(t)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokPunct, ","); err != nil {
				return nil, err
			}
			lbl, err := p.expect(tokLocal, "")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokPunct, "]"); err != nil {
				return nil, err
			}
			blk := p.fn.BlockNamed(lbl.text)
			if blk == nil {
				return nil, p.errf("unknown block %%%s", lbl.text)
			}
			phi.AddIncoming(v, blk)
		}
		return phi, nil
	case "bitcast", "zext", "sext", "trunc", "ptrtoint", "inttoptr":
		p.next()
		cop := CastOpFromName(op)
		x, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokIdent, "to"); err != nil {
			return nil, err
		}
		to, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return NewCast(name, cop, x, to), nil
	case "tail", "call":
		tail := false
		if op == "tail" {
			tail = true
			p.next()
			if _, err := p.expect(tokIdent, "call"); err != nil {
				return nil, err
			}
		} else {
			p.next()
		}
		in, err := p.parseCallBody(name, false)
		if err != nil {
			return nil, err
		}
		c := in.(*Call)
		c.Tail = tail
		if p.cur().kind == tokPunct && p.cur().text == "," {
			p.next()
			r, err := p.parseRangeMeta()
			if err != nil {
				return nil, err
			}
			c.Range = r
		}
		return c, nil
	case "invoke":
		p.next()
		in, err := p.parseCallBody(name, true)
		if err != nil {
			return nil, err
		}
		iv := in.(*Invoke)
		if _, err := p.expect(tokIdent, "to"); err != nil {
			return nil, err
		}
		normal, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokIdent, "unwind"); err != nil {
			return nil, err
		}
		unwind, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		iv.NormalDest = normal
		iv.UnwindDest = unwind
		return iv, nil
	case "ret":
		p.next()
		if p.accept(tokIdent, "void") {
			return NewRet(nil), nil
		}
		v, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		return NewRet(v), nil
	case "br":
		p.next()
		if p.cur().kind == tokIdent && p.cur().text == "label" {
			t, err := p.parseLabel()
			if err != nil {
				return nil, err
			}
			return NewBr(t), nil
		}
		cond, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		then, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		els, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		return NewCondBr(cond, then, els), nil
	case "switch":
		p.next()
		cond, err := p.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
		dflt, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, "["); err != nil {
			return nil, err
		}
		var cases []SwitchCase
		for !p.accept(tokPunct, "]") {
			cv, err := p.parseTypedValue()
			if err != nil {
				return nil, err
			}
			ci, ok := cv.(*ConstInt)
			if !ok {
				return nil, p.errf("switch case must be an integer constant")
			}
			if _, err := p.expect(tokPunct, ","); err != nil {
				return nil, err
			}
			tgt, err := p.parseLabel()
			if err != nil {
				return nil, err
			}
			cases = append(cases, SwitchCase{Val: ci, Target: tgt})
		}
		return NewSwitch(cond, dflt, cases...), nil
	case "unreachable":
		p.next()
		return NewUnreachable(), nil
	}
	return nil, p.errf("unknown instruction %q", op)
}

// parseCallBody parses `<retty> <callee>(<args>) <fnattrs>` and builds a
// call, or an invoke with unset destinations when invoke is true.
func (p *parser) parseCallBody(name string, invoke bool) (Instruction, error) {
	if _, err := p.parseType(); err != nil { // return type, implied by callee
		return nil, err
	}
	var callee Value
	switch p.cur().kind {
	case tokGlobal:
		g := p.next().text
		callee = p.m.FuncNamed(g)
		if callee == nil {
			return nil, p.errf("unknown function @%s", g)
		}
	case tokLocal:
		var err error
		callee, err = p.localValue(p.next().text, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, p.errf("expected callee")
	}
	if _, err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	var args []Value
	var argAttrs []AttrSet
	for !p.accept(tokPunct, ")") {
		if len(args) > 0 {
			if _, err := p.expect(tokPunct, ","); err != nil {
				return nil, err
			}
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		attrs, err := p.parseAttrList()
		if err != nil {
			return nil, err
		}
		v, err := p.parseValue(t)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		argAttrs = append(argAttrs, attrs)
	}
	var in Instruction
	var cb *CallBase
	if invoke {
		iv := NewInvoke(name, callee, args, nil, nil)
		in = iv
		cb = &iv.CallBase
	} else {
		c := NewCall(name, callee, args...)
		in = c
		cb = &c.CallBase
	}
	cb.ArgAttrs = argAttrs
	fnAttrs, err := p.parseAttrList()
	if err != nil {
		return nil, err
	}
	cb.FnAttrs = fnAttrs
	return in, nil
}

func (p *parser) parseLabel() (*BasicBlock, error) {
	if _, err := p.expect(tokIdent, "label"); err != nil {
		return nil, err
	}
	t, err := p.expect(tokLocal, "")
	if err != nil {
		return nil, err
	}
	b := p.fn.BlockNamed(t.text)
	if b == nil {
		return nil, p.errf("unknown block %%%s", t.text)
	}
	return b, nil
}

func (p *parser) parseOrdering() AtomicOrdering {
	switch p.cur().text {
	case "unordered", "monotonic", "acquire", "release", "seq_cst":
		t := p.next().text
		for o := Unordered; o <= SeqCst; o++ {
			if o.String() == t {
				return o
			}
		}
	}
	return Monotonic
}

// parseAccessSuffix parses the `, align N` and `, !range(lo, hi)` suffixes
// of loads and stores.
func (p *parser) parseAccessSuffix(align *uint64, rng **RangeMeta) error {
	for p.accept(tokPunct, ",") {
		switch {
		case p.accept(tokIdent, "align"):
			n, err := p.parseInt()
			if err != nil {
				return err
			}
			*align = uint64(n)
		case p.cur().kind == tokMeta && p.cur().text == "range":
			r, err := p.parseRangeMeta()
			if err != nil {
				return err
			}
			if rng != nil {
				*rng = r
			}
		default:
			return p.errf("unexpected instruction suffix %q", p.cur().text)
		}
	}
	return nil
}

func (p *parser) parseRangeMeta() (*RangeMeta, error) {
	if _, err := p.expect(tokMeta, "range"); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	lo, err := p.parseInt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokPunct, ","); err != nil {
		return nil, err
	}
	hi, err := p.parseInt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokPunct, ")"); err != nil {
		return nil, err
	}
	return &RangeMeta{Lo: lo, Hi: hi}, nil
}

func (p *parser) parseInt() (int64, error) {
	t, err := p.expect(tokInt, "")
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(t.text, 10, 64)
}

// parseAttrList parses zero or more attributes.
func (p *parser) parseAttrList() (AttrSet, error) {
	var set AttrSet
	for p.cur().kind == tokIdent {
		k := AttrKindFromName(p.cur().text)
		if k == AttrNone {
			break
		}
		p.next()
		switch k {
		case AttrAlign, AttrDereferenceable, AttrDereferenceableOrNull:
			if _, err := p.expect(tokPunct, "("); err != nil {
				return set, err
			}
			n, err := p.parseInt()
			if err != nil {
				return set, err
			}
			if _, err := p.expect(tokPunct, ")"); err != nil {
				return set, err
			}
			set.AddInt(k, uint64(n))
		case AttrByVal:
			a := Attribute{Kind: k}
			if p.accept(tokPunct, "(") {
				t, err := p.parseType()
				if err != nil {
					return set, err
				}
				if _, err := p.expect(tokPunct, ")"); err != nil {
					return set, err
				}
				a.Typ = t
			}
			set.Add(a)
		default:
			set.AddKind(k)
		}
	}
	return set, nil
}

// parseTypedValue parses `<type> [attrs] <value>`.
func (p *parser) parseTypedValue() (Value, error) {
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.parseAttrList(); err != nil { // tolerated, ignored here
		return nil, err
	}
	return p.parseValue(t)
}

// parseValue parses a value reference whose type is already known.
func (p *parser) parseValue(t Type) (Value, error) {
	switch tok := p.cur(); tok.kind {
	case tokLocal:
		p.next()
		return p.localValue(tok.text, t)
	case tokGlobal:
		p.next()
		if f := p.m.FuncNamed(tok.text); f != nil {
			return f, nil
		}
		if g := p.m.GlobalNamed(tok.text); g != nil {
			return g, nil
		}
		return nil, p.errf("unknown global @%s", tok.text)
	case tokInt:
		p.next()
		it, ok := t.(*IntType)
		if !ok {
			return nil, p.errf("integer literal of non-integer type %s", t)
		}
		v, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, p.errf("bad integer literal %q", tok.text)
		}
		return NewConstInt(it, v), nil
	case tokIdent:
		switch tok.text {
		case "null":
			p.next()
			pt, ok := t.(*PointerType)
			if !ok {
				return nil, p.errf("null of non-pointer type %s", t)
			}
			return NewConstNull(pt), nil
		case "undef":
			p.next()
			return NewUndef(t), nil
		case "true":
			p.next()
			return True(), nil
		case "false":
			p.next()
			return False(), nil
		}
	}
	return nil, p.errf("expected value, found %q", p.cur().text)
}

func (p *parser) localValue(name string, t Type) (Value, error) {
	if v, ok := p.values[name]; ok {
		return v, nil
	}
	if ph, ok := p.forward[name]; ok {
		return ph, nil
	}
	ph := &placeholder{name: name, typ: t}
	if t == nil {
		ph.typ = Ptr(&FuncType{Ret: Void})
	}
	p.forward[name] = ph
	return ph, nil
}

// parseType parses a type, including function and pointer suffixes.
func (p *parser) parseType() (Type, error) {
	var t Type
	switch tok := p.cur(); {
	case tok.kind == tokIdent && tok.text == "void":
		p.next()
		t = Void
	case tok.kind == tokIdent && tok.text == "double":
		p.next()
		t = Double
	case tok.kind == tokIdent && len(tok.text) > 1 && tok.text[0] == 'i' && isDigits(tok.text[1:]):
		p.next()
		bits, _ := strconv.Atoi(tok.text[1:])
		t = Int(bits)
	case tok.kind == tokPunct && tok.text == "[":
		p.next()
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokIdent, "x"); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokPunct, "]"); err != nil {
			return nil, err
		}
		t = &ArrayType{Len: n, Elem: elem}
	case tok.kind == tokPunct && tok.text == "{":
		p.next()
		st := &StructType{}
		for !p.accept(tokPunct, "}") {
			if p.cur().kind == tokEOF {
				return nil, p.errf("unterminated struct type")
			}
			if len(st.Fields) > 0 {
				if _, err := p.expect(tokPunct, ","); err != nil {
					return nil, err
				}
			}
			f, err := p.parseType()
			if err != nil {
				return nil, err
			}
			st.Fields = append(st.Fields, f)
		}
		t = st
	default:
		return nil, p.errf("expected type, found %q", tok.text)
	}
	// Function type suffix: `<ret> (params)`.
	if p.cur().kind == tokPunct && p.cur().text == "(" && p.looksLikeFuncType() {
		p.next()
		ft := &FuncType{Ret: t}
		for !p.accept(tokPunct, ")") {
			if len(ft.Params) > 0 {
				if _, err := p.expect(tokPunct, ","); err != nil {
					return nil, err
				}
			}
			if p.accept(tokEllipsis, "") {
				ft.Variadic = true
				continue
			}
			pt, err := p.parseType()
			if err != nil {
				return nil, err
			}
			ft.Params = append(ft.Params, pt)
		}
		t = ft
	}
	for p.accept(tokPunct, "*") {
		t = Ptr(t)
	}
	return t, nil
}

// looksLikeFuncType distinguishes a function-type parameter list from a
// call's argument list: a parameter list contains only types.
func (p *parser) looksLikeFuncType() bool {
	i := p.pos + 1
	if p.toks[i].kind == tokPunct && p.toks[i].text == ")" {
		// `()` only denotes a function type when a `*` or `)` follows.
		return p.toks[i+1].kind == tokPunct && (p.toks[i+1].text == "*" || p.toks[i+1].text == ")")
	}
	t := p.toks[i]
	if t.kind == tokIdent && (t.text == "void" || t.text == "double" ||
		(len(t.text) > 1 && t.text[0] == 'i' && isDigits(t.text[1:]))) {
		return true
	}
	if t.kind == tokPunct && (t.text == "[" || t.text == "{") {
		return true
	}
	return t.kind == tokEllipsis
}

func isDigits(s string) bool {
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return len(s) > 0
}

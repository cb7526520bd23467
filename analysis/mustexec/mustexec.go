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

// Package mustexec explores the must-be-executed context of an
// instruction: the program points that provably execute whenever the
// instruction does. Deductions such as non-null and dereferenceable use it
// to read facts off accesses that cannot be skipped.
package mustexec

import (
	"github.com/fixpoint-tools/deduce/ir"
)

// exploreBudget bounds a context walk; contexts longer than this are cut
// off, which is sound (the context only shrinks).
const exploreBudget = 512

// Explorer iterates forward along must-execute edges. Explorers are
// stateless and safe to share.
type Explorer struct{}

// NewExplorer returns an explorer.
func NewExplorer() *Explorer { return &Explorer{} }

// Forward visits the instructions that must execute once start has,
// beginning with start itself, in execution order. Returning false stops
// the walk.
func (e *Explorer) Forward(start ir.Instruction, visit func(ir.Instruction) bool) {
	b := start.Parent()
	if b == nil {
		return
	}
	budget := exploreBudget
	idx := b.Index(start)
	for {
		for _, in := range b.Instrs[idx:] {
			if budget == 0 || !visit(in) {
				return
			}
			budget--
			if !transfersExecution(in) {
				return
			}
		}
		// Follow an unconditional edge only when the successor cannot be
		// entered any other way, so execution of b implies execution of
		// the successor prefix.
		br, ok := b.Term().(*ir.Br)
		if !ok {
			return
		}
		next := br.Target
		preds := next.Preds()
		if len(preds) != 1 || preds[0] != b {
			return
		}
		b = next
		idx = 0
	}
}

// Covers reports whether target must execute whenever start does.
func (e *Explorer) Covers(start, target ir.Instruction) bool {
	found := false
	e.Forward(start, func(in ir.Instruction) bool {
		if in == target {
			found = true
			return false
		}
		return true
	})
	return found
}

// transfersExecution reports whether execution always continues past in
// to a single next point: the instruction neither diverges, unwinds, ends
// the function, nor chooses among several successors. An unconditional
// branch transfers to its target. Calls transfer only when the IR already
// guarantees return and no unwinding.
func transfersExecution(in ir.Instruction) bool {
	switch v := in.(type) {
	case *ir.Ret, *ir.Unreachable, *ir.CondBr, *ir.Switch, *ir.Invoke:
		return false
	case *ir.Call:
		callee := v.CalledFunction()
		if callee == nil {
			return false
		}
		return callee.Attrs.Has(ir.AttrWillReturn) && callee.Attrs.Has(ir.AttrNoUnwind)
	}
	return true
}

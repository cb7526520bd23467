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

// Package loopinfo discovers the natural loops of a function and bounds
// their trip counts where a simple induction pattern is recognized. The
// will-return deduction relies on it: a function whose every cycle has a
// known finite trip count terminates unless a callee diverges.
package loopinfo

import (
	"github.com/fixpoint-tools/deduce/analysis/domtree"
	"github.com/fixpoint-tools/deduce/ir"
)

// A Loop is a natural loop: a back edge Latch -> Header plus the blocks
// that reach the latch without passing through the header.
type Loop struct {
	Header *ir.BasicBlock
	Latch  *ir.BasicBlock
	Blocks map[*ir.BasicBlock]bool

	// MaxTripCount is an upper bound on iterations, 0 when unknown.
	MaxTripCount int64
}

// Info summarizes the cycles of one function.
type Info struct {
	Loops []*Loop

	// Irreducible is set when a cycle without a dominating header exists;
	// such control flow has no natural loop decomposition and no trip
	// bound.
	Irreducible bool
}

// Compute returns the loop information for fn using its dominator tree.
func Compute(fn *ir.Function, dt *domtree.Tree) *Info {
	info := &Info{}
	for _, b := range fn.Blocks {
		if !dt.Reachable(b) {
			continue
		}
		for _, s := range b.Succs() {
			if !dt.Reachable(s) {
				continue
			}
			if dt.Dominates(s, b) {
				l := &Loop{Header: s, Latch: b, Blocks: map[*ir.BasicBlock]bool{s: true}}
				collectLoopBody(l, b)
				l.MaxTripCount = boundTripCount(l)
				info.Loops = append(info.Loops, l)
			} else if inCycleWithout(s, b, dt) {
				info.Irreducible = true
			}
		}
	}
	return info
}

// collectLoopBody walks backwards from the latch to the header.
func collectLoopBody(l *Loop, latch *ir.BasicBlock) {
	work := []*ir.BasicBlock{latch}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if l.Blocks[b] {
			continue
		}
		l.Blocks[b] = true
		work = append(work, b.Preds()...)
	}
}

// inCycleWithout reports whether the edge b -> s, where s does not
// dominate b, closes a cycle with no dominating header: s reaches b again
// along a path on which no block other than s dominates s. This is the
// irreducible case.
func inCycleWithout(s, b *ir.BasicBlock, dt *domtree.Tree) bool {
	// A path through a dominator of s stays inside the natural loop that
	// dominator heads (for example the header -> body edge of a loop).
	seen := map[*ir.BasicBlock]bool{}
	work := []*ir.BasicBlock{s}
	for len(work) > 0 {
		x := work[len(work)-1]
		work = work[:len(work)-1]
		if x != s && dt.Dominates(x, s) {
			continue
		}
		if x == b {
			return true
		}
		if seen[x] {
			continue
		}
		seen[x] = true
		work = append(work, x.Succs()...)
	}
	return false
}

// HasUnboundedCycle reports whether fn contains a cycle with no known trip
// bound, including irreducible control flow.
func (info *Info) HasUnboundedCycle() bool {
	if info.Irreducible {
		return true
	}
	for _, l := range info.Loops {
		if l.MaxTripCount == 0 {
			return true
		}
	}
	return false
}

// boundTripCount recognizes the canonical counted loop
//
//	header:  %i = phi [ c0, preheader ], [ %next, latch ]
//	         %c = icmp <lt/gt> %i, cN
//	         br %c, body, exit   (or the negated arrangement)
//	latch:   %next = add %i, step
//
// and returns an iteration bound, or 0.
func boundTripCount(l *Loop) int64 {
	for _, in := range l.Header.Instrs {
		phi, ok := in.(*ir.Phi)
		if !ok {
			break
		}
		if n := boundTripCountOn(l, phi); n > 0 {
			return n
		}
	}
	return 0
}

// boundTripCountOn tries to see phi as the induction variable.
func boundTripCountOn(l *Loop, phi *ir.Phi) int64 {
	var start *ir.ConstInt
	var step *ir.BinOp
	for i, in := range phi.Blocks {
		v := phi.Operands()[i]
		if !l.Blocks[in] {
			start, _ = v.(*ir.ConstInt)
		} else if b, ok := v.(*ir.BinOp); ok {
			step = b
		}
	}
	if start == nil || step == nil {
		return 0
	}
	inc, ok := stepIncrement(step, phi)
	if !ok || inc == 0 {
		return 0
	}
	cond := exitCompare(l)
	if cond == nil || cond.X() != phi {
		return 0
	}
	limit, ok := cond.Y().(*ir.ConstInt)
	if !ok {
		return 0
	}
	switch cond.Pred {
	case ir.PredULT, ir.PredSLT, ir.PredULE, ir.PredSLE:
		if inc > 0 && limit.V >= start.V {
			return (limit.V-start.V)/inc + 1
		}
	case ir.PredUGT, ir.PredSGT, ir.PredUGE, ir.PredSGE:
		if inc < 0 && start.V >= limit.V {
			return (start.V-limit.V)/(-inc) + 1
		}
	}
	return 0
}

func stepIncrement(step *ir.BinOp, phi *ir.Phi) (int64, bool) {
	if step.X() != phi {
		return 0, false
	}
	c, ok := step.Y().(*ir.ConstInt)
	if !ok {
		return 0, false
	}
	switch step.Op {
	case ir.OpAdd:
		return c.V, true
	case ir.OpSub:
		return -c.V, true
	}
	return 0, false
}

// exitCompare returns the comparison controlling a conditional branch that
// leaves the loop, when there is exactly one.
func exitCompare(l *Loop) *ir.ICmp {
	var cmp *ir.ICmp
	for b := range l.Blocks {
		br, ok := b.Term().(*ir.CondBr)
		if !ok {
			continue
		}
		exits := !l.Blocks[br.Then] || !l.Blocks[br.Else]
		if !exits {
			continue
		}
		c, ok := br.Cond().(*ir.ICmp)
		if !ok {
			return nil
		}
		if cmp != nil {
			return nil
		}
		cmp = c
	}
	return cmp
}

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

// Package domtree computes dominator trees over the IR's control-flow
// graphs using the iterative dataflow algorithm of Cooper, Harvey and
// Kennedy ("A Simple, Fast Dominance Algorithm").
package domtree

import (
	"github.com/fixpoint-tools/deduce/ir"
)

// Tree is the dominator tree of one function. Blocks unreachable from the
// entry have no tree node.
type Tree struct {
	fn    *ir.Function
	rpo   []*ir.BasicBlock
	index map[*ir.BasicBlock]int // position in rpo
	idom  []int                  // rpo index of immediate dominator
	// Pre/post numbers of the dominator tree for O(1) dominance queries.
	pre, post []int
}

// New computes the dominator tree of fn.
func New(fn *ir.Function) *Tree {
	t := &Tree{fn: fn, index: map[*ir.BasicBlock]int{}}
	entry := fn.EntryBlock()
	if entry == nil {
		return t
	}
	// Reverse postorder of the reachable blocks.
	seen := map[*ir.BasicBlock]bool{}
	var post []*ir.BasicBlock
	var dfs func(b *ir.BasicBlock)
	dfs = func(b *ir.BasicBlock) {
		seen[b] = true
		for _, s := range b.Succs() {
			if !seen[s] {
				dfs(s)
			}
		}
		post = append(post, b)
	}
	dfs(entry)
	for i := len(post) - 1; i >= 0; i-- {
		t.index[post[i]] = len(t.rpo)
		t.rpo = append(t.rpo, post[i])
	}

	n := len(t.rpo)
	t.idom = make([]int, n)
	for i := range t.idom {
		t.idom[i] = -1
	}
	t.idom[0] = 0
	changed := true
	for changed {
		changed = false
		for i := 1; i < n; i++ {
			b := t.rpo[i]
			newIdom := -1
			for _, p := range b.Preds() {
				pi, ok := t.index[p]
				if !ok || t.idom[pi] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = pi
				} else {
					newIdom = t.intersect(pi, newIdom)
				}
			}
			if newIdom != -1 && t.idom[i] != newIdom {
				t.idom[i] = newIdom
				changed = true
			}
		}
	}
	t.number()
	return t
}

func (t *Tree) intersect(a, b int) int {
	for a != b {
		for a > b {
			a = t.idom[a]
		}
		for b > a {
			b = t.idom[b]
		}
	}
	return a
}

// number assigns pre/post order numbers over the dominator tree.
func (t *Tree) number() {
	n := len(t.rpo)
	children := make([][]int, n)
	for i := 1; i < n; i++ {
		if t.idom[i] >= 0 {
			children[t.idom[i]] = append(children[t.idom[i]], i)
		}
	}
	t.pre = make([]int, n)
	t.post = make([]int, n)
	clock := 0
	var walk func(i int)
	walk = func(i int) {
		t.pre[i] = clock
		clock++
		for _, c := range children[i] {
			walk(c)
		}
		t.post[i] = clock
		clock++
	}
	if n > 0 {
		walk(0)
	}
}

// Reachable reports whether b is reachable from the entry.
func (t *Tree) Reachable(b *ir.BasicBlock) bool {
	_, ok := t.index[b]
	return ok
}

// Idom returns the immediate dominator of b, or nil for the entry and
// unreachable blocks.
func (t *Tree) Idom(b *ir.BasicBlock) *ir.BasicBlock {
	i, ok := t.index[b]
	if !ok || i == 0 {
		return nil
	}
	return t.rpo[t.idom[i]]
}

// Dominates reports whether a dominates b. Every block dominates itself.
// Unreachable blocks dominate nothing and are dominated by everything
// reachable, conservatively reported as false.
func (t *Tree) Dominates(a, b *ir.BasicBlock) bool {
	ia, oka := t.index[a]
	ib, okb := t.index[b]
	if !oka || !okb {
		return false
	}
	return t.pre[ia] <= t.pre[ib] && t.post[ib] <= t.post[ia]
}

// DominatesInstr reports whether instruction a dominates instruction b:
// a's block strictly dominates b's, or both share a block and a comes
// first.
func (t *Tree) DominatesInstr(a, b ir.Instruction) bool {
	ba, bb := a.Parent(), b.Parent()
	if ba == nil || bb == nil {
		return false
	}
	if ba == bb {
		return ba.Index(a) <= bb.Index(b)
	}
	return t.Dominates(ba, bb)
}

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

// A BasicBlock is a straight-line sequence of instructions ending in a
// terminator.
type BasicBlock struct {
	BName  string
	Func   *Function
	Instrs []Instruction
}

// Name returns the block label.
func (b *BasicBlock) Name() string { return b.BName }

// Parent returns the enclosing function.
func (b *BasicBlock) Parent() *Function { return b.Func }

// Term returns the block terminator, or nil if the block is not yet
// terminated.
func (b *BasicBlock) Term() Terminator {
	if len(b.Instrs) == 0 {
		return nil
	}
	t, _ := b.Instrs[len(b.Instrs)-1].(Terminator)
	return t
}

// Succs returns the successor blocks.
func (b *BasicBlock) Succs() []*BasicBlock {
	if t := b.Term(); t != nil {
		return t.Successors()
	}
	return nil
}

// Preds returns the predecessor blocks, in function block order.
func (b *BasicBlock) Preds() []*BasicBlock {
	var preds []*BasicBlock
	for _, other := range b.Func.Blocks {
		for _, s := range other.Succs() {
			if s == b {
				preds = append(preds, other)
				break
			}
		}
	}
	return preds
}

// IsEntry reports whether b is the function entry block.
func (b *BasicBlock) IsEntry() bool {
	return len(b.Func.Blocks) > 0 && b.Func.Blocks[0] == b
}

// Append adds in at the end of the block.
func (b *BasicBlock) Append(in Instruction) {
	in.base().parent = b
	b.Instrs = append(b.Instrs, in)
}

// InsertBefore places in immediately before pos, which must be in this
// block.
func (b *BasicBlock) InsertBefore(in Instruction, pos Instruction) {
	for i, x := range b.Instrs {
		if x == pos {
			in.base().parent = b
			b.Instrs = append(b.Instrs[:i], append([]Instruction{in}, b.Instrs[i:]...)...)
			return
		}
	}
	panic("ir: InsertBefore position not in block")
}

// InsertAfter places in immediately after pos, which must be in this block.
func (b *BasicBlock) InsertAfter(in Instruction, pos Instruction) {
	for i, x := range b.Instrs {
		if x == pos {
			in.base().parent = b
			rest := append([]Instruction{in}, b.Instrs[i+1:]...)
			b.Instrs = append(b.Instrs[:i+1], rest...)
			return
		}
	}
	panic("ir: InsertAfter position not in block")
}

// Index returns the position of in within the block, or -1.
func (b *BasicBlock) Index(in Instruction) int {
	for i, x := range b.Instrs {
		if x == in {
			return i
		}
	}
	return -1
}

// Erase removes in from the block and drops its operand uses. The caller
// must have replaced all uses of in beforehand.
func (b *BasicBlock) Erase(in Instruction) {
	i := b.Index(in)
	if i < 0 {
		return
	}
	dropOperands(in)
	in.base().parent = nil
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
}

// Truncate erases every instruction from index i on, in reverse order.
func (b *BasicBlock) Truncate(i int) {
	for j := len(b.Instrs) - 1; j >= i; j-- {
		in := b.Instrs[j]
		if !IsVoid(in.Type()) && NumUses(in) > 0 {
			ReplaceAllUsesWith(in, NewUndef(in.Type()))
		}
		dropOperands(in)
		in.base().parent = nil
	}
	b.Instrs = b.Instrs[:i]
}

// SplitAfter cuts the block after pos. Instructions after pos move into a
// new block that becomes the target of an unconditional branch replacing
// them; the new block inherits the original terminator.
func (b *BasicBlock) SplitAfter(pos Instruction, name string) *BasicBlock {
	i := b.Index(pos)
	if i < 0 {
		panic("ir: SplitAfter position not in block")
	}
	nb := b.Func.AddBlock(name)
	for _, in := range b.Instrs[i+1:] {
		in.base().parent = nb
		nb.Instrs = append(nb.Instrs, in)
	}
	b.Instrs = b.Instrs[:i+1]
	// Phis in the successors of the moved terminator now come from nb.
	for _, s := range nb.Succs() {
		for _, in := range s.Instrs {
			phi, ok := in.(*Phi)
			if !ok {
				break
			}
			for j, pb := range phi.Blocks {
				if pb == b {
					phi.Blocks[j] = nb
				}
			}
		}
	}
	b.Append(NewBr(nb))
	return nb
}

// Detach removes b from its function: phi operands flowing from b are
// removed from every successor, all instructions are erased, and the block
// is unlinked. Values still used outside the block are replaced by undef.
func (b *BasicBlock) Detach() {
	for _, s := range b.Succs() {
		s.RemovePhiIncoming(b)
	}
	b.Truncate(0)
	blocks := b.Func.Blocks
	for i, x := range blocks {
		if x == b {
			b.Func.Blocks = append(blocks[:i], blocks[i+1:]...)
			break
		}
	}
	b.Func = nil
}

// RemovePhiIncoming drops pred's incoming entries from every phi of b. Phis
// left with a single incoming value are folded.
func (b *BasicBlock) RemovePhiIncoming(pred *BasicBlock) {
	for i := 0; i < len(b.Instrs); {
		phi, ok := b.Instrs[i].(*Phi)
		if !ok {
			return
		}
		phi.RemoveIncoming(pred)
		if len(phi.Blocks) == 1 {
			ReplaceAllUsesWith(phi, phi.Operands()[0])
			b.Erase(phi)
			continue
		}
		i++
	}
}

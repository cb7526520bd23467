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

// Package attributor implements the interprocedural fixpoint engine that
// deduces facts about functions, arguments, return values and call sites,
// and writes the settled facts back into the IR.
//
// Every deduction is an abstract attribute: a lattice state attached to a
// position. States carry a known component that only grows and an assumed
// component that only shrinks; the engine iterates updates until every
// state reaches a fixpoint, then manifests the known facts.
package attributor

// ChangeStatus reports whether an update moved a state.
type ChangeStatus bool

const (
	// Changed signals the state moved and dependents must re-run.
	Changed ChangeStatus = true

	// Unchanged signals a no-op update.
	Unchanged ChangeStatus = false
)

// Or combines two statuses.
func (c ChangeStatus) Or(o ChangeStatus) ChangeStatus { return c || o }

func (c ChangeStatus) String() string {
	if c == Changed {
		return "changed"
	}
	return "unchanged"
}

// An AbstractState is the lattice component of an abstract attribute.
type AbstractState interface {
	// IsValidState reports whether the state still carries optimistic
	// information. An invalid state has collapsed to the pessimistic
	// bottom.
	IsValidState() bool

	// IsAtFixpoint reports whether no further update can move the state.
	IsAtFixpoint() bool

	// IndicateOptimisticFixpoint freezes the state at its current assumed
	// value.
	IndicateOptimisticFixpoint() ChangeStatus

	// IndicatePessimisticFixpoint collapses the state to its worst value.
	IndicatePessimisticFixpoint() ChangeStatus
}

// BooleanState is the two-point lattice: known starts false and may be
// raised, assumed starts true and may only be lowered.
type BooleanState struct {
	Known   bool
	Assumed bool
}

// NewBooleanState returns the optimistic initial state.
func NewBooleanState() BooleanState { return BooleanState{Assumed: true} }

// IsValidState implements AbstractState.
func (s *BooleanState) IsValidState() bool { return s.Assumed }

// IsAtFixpoint implements AbstractState.
func (s *BooleanState) IsAtFixpoint() bool { return s.Known == s.Assumed }

// IndicateOptimisticFixpoint implements AbstractState.
func (s *BooleanState) IndicateOptimisticFixpoint() ChangeStatus {
	s.Known = s.Assumed
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState.
func (s *BooleanState) IndicatePessimisticFixpoint() ChangeStatus {
	if !s.Assumed {
		return Unchanged
	}
	s.Assumed = s.Known
	if s.Assumed {
		// Known was already true; the fixpoint is optimistic after all.
		return Unchanged
	}
	return Changed
}

// IsAssumed returns the assumed component.
func (s *BooleanState) IsAssumed() bool { return s.Assumed }

// IsKnown returns the known component.
func (s *BooleanState) IsKnown() bool { return s.Known }

// SetKnown raises known to true (and assumed with it).
func (s *BooleanState) SetKnown() ChangeStatus {
	if s.Known {
		return Unchanged
	}
	s.Known = true
	s.Assumed = true
	return Changed
}

// IntersectAssumed lowers assumed by conjunction with b.
func (s *BooleanState) IntersectAssumed(b bool) ChangeStatus {
	if s.Assumed && !b && !s.Known {
		s.Assumed = false
		return Changed
	}
	return Unchanged
}

// State implements the attribute interface by exposing the embedded state.
func (s *BooleanState) State() AbstractState { return s }

// BitIntegerState tracks a subset of a fixed bit mask. Known bits only
// appear, assumed bits only disappear; known is always a subset of
// assumed.
type BitIntegerState struct {
	Best    uint32
	Known   uint32
	Assumed uint32
}

// NewBitIntegerState returns the optimistic state over mask best.
func NewBitIntegerState(best uint32) BitIntegerState {
	return BitIntegerState{Best: best, Assumed: best}
}

// IsValidState implements AbstractState: the state is useful while any
// assumed bit survives.
func (s *BitIntegerState) IsValidState() bool { return s.Assumed != 0 }

// IsAtFixpoint implements AbstractState.
func (s *BitIntegerState) IsAtFixpoint() bool { return s.Known == s.Assumed }

// IndicateOptimisticFixpoint implements AbstractState.
func (s *BitIntegerState) IndicateOptimisticFixpoint() ChangeStatus {
	s.Known = s.Assumed
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState.
func (s *BitIntegerState) IndicatePessimisticFixpoint() ChangeStatus {
	if s.Assumed == s.Known {
		return Unchanged
	}
	s.Assumed = s.Known
	return Changed
}

// IsAssumed reports whether all bits remain assumed.
func (s *BitIntegerState) IsAssumed(bits uint32) bool { return s.Assumed&bits == bits }

// IsKnown reports whether all bits are known.
func (s *BitIntegerState) IsKnown(bits uint32) bool { return s.Known&bits == bits }

// AddKnownBits raises known (and assumed) by bits.
func (s *BitIntegerState) AddKnownBits(bits uint32) ChangeStatus {
	if s.Known&bits == bits {
		return Unchanged
	}
	s.Known |= bits
	s.Assumed |= bits
	return Changed
}

// RemoveAssumedBits lowers assumed by clearing bits not already known.
func (s *BitIntegerState) RemoveAssumedBits(bits uint32) ChangeStatus {
	clear := bits &^ s.Known
	if s.Assumed&clear == 0 {
		return Unchanged
	}
	s.Assumed &^= clear
	return Changed
}

// IntersectAssumedBits meets assumed with bits.
func (s *BitIntegerState) IntersectAssumedBits(bits uint32) ChangeStatus {
	return s.RemoveAssumedBits(s.Best &^ bits)
}

// State implements the attribute interface by exposing the embedded state.
func (s *BitIntegerState) State() AbstractState { return s }

// IncIntegerState tracks a monotone byte or alignment count: known grows
// from 0, assumed shrinks from best, known <= assumed throughout.
type IncIntegerState struct {
	BestVal uint64
	Known   uint64
	Assumed uint64
}

// NewIncIntegerState returns the optimistic state with upper bound best.
func NewIncIntegerState(best uint64) IncIntegerState {
	return IncIntegerState{BestVal: best, Assumed: best}
}

// IsValidState implements AbstractState.
func (s *IncIntegerState) IsValidState() bool { return s.Assumed > 0 }

// IsAtFixpoint implements AbstractState.
func (s *IncIntegerState) IsAtFixpoint() bool { return s.Known == s.Assumed }

// IndicateOptimisticFixpoint implements AbstractState.
func (s *IncIntegerState) IndicateOptimisticFixpoint() ChangeStatus {
	s.Known = s.Assumed
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState.
func (s *IncIntegerState) IndicatePessimisticFixpoint() ChangeStatus {
	if s.Assumed == s.Known {
		return Unchanged
	}
	s.Assumed = s.Known
	return Changed
}

// TakeKnownMaximum raises known to at least v.
func (s *IncIntegerState) TakeKnownMaximum(v uint64) ChangeStatus {
	if v <= s.Known {
		return Unchanged
	}
	s.Known = v
	if s.Assumed < v {
		s.Assumed = v
	}
	return Changed
}

// TakeAssumedMinimum lowers assumed to at most v, never below known.
func (s *IncIntegerState) TakeAssumedMinimum(v uint64) ChangeStatus {
	if v >= s.Assumed {
		return Unchanged
	}
	s.Assumed = v
	if s.Assumed < s.Known {
		s.Assumed = s.Known
	}
	return Changed
}

// State implements the attribute interface by exposing the embedded state.
func (s *IncIntegerState) State() AbstractState { return s }

// IntegerRangeState tracks a constant range: assumed starts empty and
// unions upward, known starts full and never moves in this implementation;
// validity requires assumed strictly below full.
type IntegerRangeState struct {
	Bits    int
	Known   ConstantRange
	Assumed ConstantRange
	fixed   bool
}

// NewIntegerRangeState returns the state for a value of the given width.
func NewIntegerRangeState(bits int) IntegerRangeState {
	return IntegerRangeState{
		Bits:    bits,
		Known:   FullRange(bits),
		Assumed: EmptyRange(bits),
	}
}

// IsValidState implements AbstractState.
func (s *IntegerRangeState) IsValidState() bool { return !s.Assumed.IsFull() }

// IsAtFixpoint implements AbstractState.
func (s *IntegerRangeState) IsAtFixpoint() bool { return s.fixed || s.Assumed.Equal(s.Known) }

// IndicateOptimisticFixpoint implements AbstractState.
func (s *IntegerRangeState) IndicateOptimisticFixpoint() ChangeStatus {
	s.Known = s.Assumed
	s.fixed = true
	return Unchanged
}

// IndicatePessimisticFixpoint implements AbstractState.
func (s *IntegerRangeState) IndicatePessimisticFixpoint() ChangeStatus {
	changed := Unchanged
	if !s.Assumed.Equal(s.Known) {
		changed = Changed
	}
	s.Assumed = s.Known
	s.fixed = true
	return changed
}

// UnionAssumed widens assumed with r.
func (s *IntegerRangeState) UnionAssumed(r ConstantRange) ChangeStatus {
	u := s.Assumed.Union(r)
	if u.Equal(s.Assumed) {
		return Unchanged
	}
	s.Assumed = u
	return Changed
}

// State implements the attribute interface by exposing the embedded state.
func (s *IntegerRangeState) State() AbstractState { return s }

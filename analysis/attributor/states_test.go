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

package attributor

import (
	"testing"
)

func TestBooleanStateMonotone(t *testing.T) {
	s := NewBooleanState()
	if !s.IsAssumed() || s.IsKnown() {
		t.Fatalf("fresh state should assume but not know")
	}
	if s.IsAtFixpoint() {
		t.Fatalf("fresh state is not at fixpoint")
	}
	if got := s.IntersectAssumed(true); got != Unchanged {
		t.Errorf("intersect with true should not change")
	}
	if got := s.IntersectAssumed(false); got != Changed {
		t.Errorf("intersect with false should change")
	}
	if s.IsValidState() {
		t.Errorf("collapsed boolean state should be invalid")
	}
	if !s.IsAtFixpoint() {
		t.Errorf("collapsed boolean state is final")
	}
	// A known fact survives a pessimistic fixpoint.
	s2 := NewBooleanState()
	s2.SetKnown()
	if s2.IndicatePessimisticFixpoint() != Unchanged {
		t.Errorf("pessimistic fixpoint after known=true should be a no-op")
	}
	if !s2.IsAssumed() {
		t.Errorf("known facts survive pessimization")
	}
}

func TestBitIntegerStateMonotone(t *testing.T) {
	s := NewBitIntegerState(0b111)
	if !s.IsAssumed(0b111) {
		t.Fatalf("fresh state assumes everything")
	}
	s.AddKnownBits(0b001)
	if s.RemoveAssumedBits(0b001) != Unchanged {
		t.Errorf("known bits cannot be removed from assumed")
	}
	if s.RemoveAssumedBits(0b100) != Changed {
		t.Errorf("removing an assumed bit should change")
	}
	if s.IsAssumed(0b100) {
		t.Errorf("bit 100 should be gone")
	}
	if !s.IsAssumed(0b001) || !s.IsKnown(0b001) {
		t.Errorf("known bit should survive")
	}
	s.IndicatePessimisticFixpoint()
	if s.Assumed != s.Known {
		t.Errorf("pessimistic fixpoint collapses assumed to known")
	}
}

func TestIncIntegerStateMonotone(t *testing.T) {
	s := NewIncIntegerState(1 << 20)
	s.TakeKnownMaximum(16)
	if s.Known != 16 {
		t.Fatalf("known should be 16, got %d", s.Known)
	}
	s.TakeAssumedMinimum(64)
	if s.Assumed != 64 {
		t.Fatalf("assumed should be 64, got %d", s.Assumed)
	}
	// Assumed never drops below known.
	s.TakeAssumedMinimum(4)
	if s.Assumed != 16 {
		t.Errorf("assumed clamped at known, got %d", s.Assumed)
	}
	// Known never exceeds the old known when given less.
	if s.TakeKnownMaximum(8) != Unchanged {
		t.Errorf("lower known is a no-op")
	}
}

func TestConstantRangeOps(t *testing.T) {
	a := MakeRange(32, 0, 6)  // [0, 5]
	b := MakeRange(32, 10, 11) // {10}
	if got := a.Union(MakeRange(32, 3, 8)); got.Lo != 0 || got.Hi != 8 {
		t.Errorf("union wrong: %v", got)
	}
	if got := a.Add(b); got.Lo != 10 || got.Hi != 16 {
		t.Errorf("add wrong: %v", got)
	}
	if got := a.Sub(b); got.Lo != -10 || got.Hi != -4 {
		t.Errorf("sub wrong: %v", got)
	}
	if v, ok := SingleRange(32, 7).SingleElement(); !ok || v != 7 {
		t.Errorf("single element wrong: %d %v", v, ok)
	}
	if !FullRange(8).Contains(-128) || EmptyRange(8).Contains(0) {
		t.Errorf("full/empty containment wrong")
	}

	region := ICmpRegion("ult", a, b)
	if v, ok := region.SingleElement(); !ok || v != 1 {
		t.Errorf("ult [0,5] {10} should always be true, got %v", region)
	}
	region = ICmpRegion("ugt", a, b)
	if v, ok := region.SingleElement(); !ok || v != 0 {
		t.Errorf("ugt [0,5] {10} should always be false, got %v", region)
	}
	region = ICmpRegion("ult", a, MakeRange(32, 3, 4))
	if _, ok := region.SingleElement(); ok {
		t.Errorf("ult [0,5] {3} is not settled, got %v", region)
	}
}

func TestIntegerRangeState(t *testing.T) {
	s := NewIntegerRangeState(32)
	if !s.IsValidState() {
		t.Fatalf("empty assumed range is a valid state")
	}
	if s.UnionAssumed(SingleRange(32, 3)) != Changed {
		t.Errorf("first union should change")
	}
	if s.UnionAssumed(SingleRange(32, 3)) != Unchanged {
		t.Errorf("same union should not change")
	}
	s.UnionAssumed(FullRange(32))
	if s.IsValidState() {
		t.Errorf("full assumed range is invalid")
	}
}

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
	"fmt"
	"math"
)

// A ConstantRange is a half-open interval [Lo, Hi) of signed values of a
// fixed bit width. Empty and full ranges are explicit; arithmetic that
// could overflow the width widens to full, which is always sound.
type ConstantRange struct {
	Bits  int
	Lo    int64
	Hi    int64
	empty bool
	full  bool
}

// EmptyRange returns the empty range of the given width.
func EmptyRange(bits int) ConstantRange { return ConstantRange{Bits: bits, empty: true} }

// FullRange returns the full range of the given width.
func FullRange(bits int) ConstantRange { return ConstantRange{Bits: bits, full: true} }

// MakeRange returns [lo, hi); an inverted pair yields the empty range.
func MakeRange(bits int, lo, hi int64) ConstantRange {
	if lo >= hi {
		return EmptyRange(bits)
	}
	min, max := typeBounds(bits)
	if lo <= min && hi > max {
		return FullRange(bits)
	}
	return ConstantRange{Bits: bits, Lo: lo, Hi: hi}
}

// SingleRange returns the range holding exactly v.
func SingleRange(bits int, v int64) ConstantRange { return MakeRange(bits, v, v+1) }

func typeBounds(bits int) (int64, int64) {
	if bits >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	if bits == 1 {
		// i1 is the 0/1 condition domain.
		return 0, 1
	}
	return -(int64(1) << (bits - 1)), int64(1)<<(bits-1) - 1
}

// IsEmpty reports whether the range holds no value.
func (r ConstantRange) IsEmpty() bool { return r.empty }

// IsFull reports whether the range holds every value of its width.
func (r ConstantRange) IsFull() bool { return r.full }

// Equal compares two ranges.
func (r ConstantRange) Equal(o ConstantRange) bool {
	if r.empty || o.empty {
		return r.empty == o.empty
	}
	if r.full || o.full {
		return r.full == o.full
	}
	return r.Lo == o.Lo && r.Hi == o.Hi
}

// Contains reports whether v lies in the range.
func (r ConstantRange) Contains(v int64) bool {
	if r.empty {
		return false
	}
	if r.full {
		return true
	}
	return r.Lo <= v && v < r.Hi
}

// ContainsRange reports whether o is a subset of r.
func (r ConstantRange) ContainsRange(o ConstantRange) bool {
	if o.empty || r.full {
		return true
	}
	if r.empty || o.full {
		return false
	}
	return r.Lo <= o.Lo && o.Hi <= r.Hi
}

// SingleElement returns the unique value of the range, if there is one.
func (r ConstantRange) SingleElement() (int64, bool) {
	if !r.empty && !r.full && r.Lo+1 == r.Hi {
		return r.Lo, true
	}
	return 0, false
}

// Union returns the smallest interval covering both ranges.
func (r ConstantRange) Union(o ConstantRange) ConstantRange {
	if r.empty {
		return o
	}
	if o.empty {
		return r
	}
	if r.full || o.full {
		return FullRange(r.Bits)
	}
	lo, hi := r.Lo, r.Hi
	if o.Lo < lo {
		lo = o.Lo
	}
	if o.Hi > hi {
		hi = o.Hi
	}
	return MakeRange(r.Bits, lo, hi)
}

// Intersect returns the overlap of both ranges.
func (r ConstantRange) Intersect(o ConstantRange) ConstantRange {
	if r.empty || o.full {
		return r
	}
	if o.empty || r.full {
		return o
	}
	lo, hi := r.Lo, r.Hi
	if o.Lo > lo {
		lo = o.Lo
	}
	if o.Hi < hi {
		hi = o.Hi
	}
	return MakeRange(r.Bits, lo, hi)
}

func (r ConstantRange) bounds() (int64, int64, bool) {
	if r.empty {
		return 0, 0, false
	}
	if r.full {
		lo, hi := typeBounds(r.Bits)
		return lo, hi, true
	}
	return r.Lo, r.Hi - 1, true
}

// widen builds a range from inclusive bounds, widening to full on overflow
// of the width.
func widen(bits int, lo, hi int64, ok bool) ConstantRange {
	if !ok {
		return FullRange(bits)
	}
	min, max := typeBounds(bits)
	if lo < min || hi > max {
		return FullRange(bits)
	}
	return MakeRange(bits, lo, hi+1)
}

func addOv(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

func mulOv(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

// Add returns the range of x+y for x in r, y in o.
func (r ConstantRange) Add(o ConstantRange) ConstantRange {
	rl, rh, okr := r.bounds()
	ol, oh, oko := o.bounds()
	if !okr || !oko {
		return EmptyRange(r.Bits)
	}
	lo, ok1 := addOv(rl, ol)
	hi, ok2 := addOv(rh, oh)
	return widen(r.Bits, lo, hi, ok1 && ok2)
}

// Sub returns the range of x-y for x in r, y in o.
func (r ConstantRange) Sub(o ConstantRange) ConstantRange {
	rl, rh, okr := r.bounds()
	ol, oh, oko := o.bounds()
	if !okr || !oko {
		return EmptyRange(r.Bits)
	}
	lo, ok1 := addOv(rl, -oh)
	hi, ok2 := addOv(rh, -ol)
	return widen(r.Bits, lo, hi, ok1 && ok2)
}

// Mul returns the range of x*y for x in r, y in o.
func (r ConstantRange) Mul(o ConstantRange) ConstantRange {
	rl, rh, okr := r.bounds()
	ol, oh, oko := o.bounds()
	if !okr || !oko {
		return EmptyRange(r.Bits)
	}
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, a := range []int64{rl, rh} {
		for _, b := range []int64{ol, oh} {
			p, ok := mulOv(a, b)
			if !ok {
				return FullRange(r.Bits)
			}
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
	}
	return widen(r.Bits, lo, hi, true)
}

// BinOp evaluates the range of x <op> y.
func (r ConstantRange) BinOp(op string, o ConstantRange) ConstantRange {
	switch op {
	case "add":
		return r.Add(o)
	case "sub":
		return r.Sub(o)
	case "mul":
		return r.Mul(o)
	case "and":
		// x & y is bounded by the smaller non-negative operand.
		if rl, rh, ok := r.bounds(); ok && rl >= 0 {
			if _, oh, ok2 := o.bounds(); ok2 && oh >= 0 {
				hi := rh
				if oh < hi {
					hi = oh
				}
				return widen(r.Bits, 0, hi, true)
			}
			return widen(r.Bits, 0, rh, true)
		}
		return FullRange(r.Bits)
	default:
		return FullRange(r.Bits)
	}
}

// Truncate converts the range to a narrower width.
func (r ConstantRange) Truncate(bits int) ConstantRange {
	if r.empty {
		return EmptyRange(bits)
	}
	min, max := typeBounds(bits)
	if r.full || r.Lo < min || r.Hi-1 > max {
		return FullRange(bits)
	}
	return MakeRange(bits, r.Lo, r.Hi)
}

// Extend converts the range to a wider width; the value set is unchanged.
func (r ConstantRange) Extend(bits int) ConstantRange {
	if r.empty {
		return EmptyRange(bits)
	}
	if r.full {
		lo, hi := typeBounds(r.Bits)
		return MakeRange(bits, lo, hi+1)
	}
	return MakeRange(bits, r.Lo, r.Hi)
}

// ICmpRegion returns the range of the i1 produced by comparing r <pred> o:
// {0}, {1}, or {0,1} when both outcomes remain possible.
func ICmpRegion(pred string, r, o ConstantRange) ConstantRange {
	rl, rh, okr := r.bounds()
	ol, oh, oko := o.bounds()
	if !okr || !oko {
		return EmptyRange(1)
	}
	alwaysTrue, alwaysFalse := false, false
	switch pred {
	case "ult", "slt":
		alwaysTrue = rh < ol
		alwaysFalse = rl >= oh
	case "ule", "sle":
		alwaysTrue = rh <= ol
		alwaysFalse = rl > oh
	case "ugt", "sgt":
		alwaysTrue = rl > oh
		alwaysFalse = rh <= ol
	case "uge", "sge":
		alwaysTrue = rl >= oh
		alwaysFalse = rh < ol
	case "eq":
		if a, ok := r.SingleElement(); ok {
			if b, ok2 := o.SingleElement(); ok2 {
				alwaysTrue = a == b
			}
		}
		alwaysFalse = rh < ol || rl > oh
	case "ne":
		if a, ok := r.SingleElement(); ok {
			if b, ok2 := o.SingleElement(); ok2 {
				alwaysFalse = a == b
			}
		}
		alwaysTrue = rh < ol || rl > oh
	default:
		return FullRange(1)
	}
	switch {
	case alwaysTrue:
		return SingleRange(1, 1)
	case alwaysFalse:
		return SingleRange(1, 0)
	default:
		return FullRange(1)
	}
}

func (r ConstantRange) String() string {
	if r.empty {
		return "empty"
	}
	if r.full {
		return "full"
	}
	return fmt.Sprintf("[%d, %d)", r.Lo, r.Hi)
}

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

// Package aliasing answers conservative alias and capture queries over the
// IR. Results are sound but deliberately shallow; the deduction engine
// sharpens them interprocedurally.
package aliasing

import (
	"github.com/fixpoint-tools/deduce/ir"
)

// Result is the outcome of an alias query.
type Result int

const (
	MayAlias Result = iota
	NoAlias
	MustAlias
)

func (r Result) String() string {
	switch r {
	case NoAlias:
		return "noalias"
	case MustAlias:
		return "mustalias"
	}
	return "mayalias"
}

const maxStripDepth = 16

// UnderlyingObject strips pointer adjustments (geps and bitcasts) from v
// and returns the base object. Other casts are not looked through.
func UnderlyingObject(v ir.Value) ir.Value {
	for i := 0; i < maxStripDepth; i++ {
		switch x := v.(type) {
		case *ir.GetElementPtr:
			v = x.Pointer()
		case *ir.Cast:
			if x.Op == ir.CastBitcast {
				v = x.X()
				continue
			}
			return v
		default:
			return v
		}
	}
	return v
}

// IsIdentifiedObject reports whether v names storage with a known distinct
// identity: a stack allocation, a global, or a call-site result already
// attributed noalias.
func IsIdentifiedObject(v ir.Value) bool {
	switch x := v.(type) {
	case *ir.Alloca, *ir.Global:
		return true
	case *ir.Call:
		return x.RetAttrs.Has(ir.AttrNoAlias)
	}
	return false
}

// Alias performs a basic query on two pointers.
func Alias(a, b ir.Value) Result {
	if a == b {
		return MustAlias
	}
	ua, ub := UnderlyingObject(a), UnderlyingObject(b)
	if ua == ub {
		return MayAlias
	}
	if ir.IsNullPointer(ua) || ir.IsNullPointer(ub) {
		return NoAlias
	}
	if IsIdentifiedObject(ua) && IsIdentifiedObject(ub) {
		return NoAlias
	}
	// An identified object cannot alias an argument that never escaped,
	// but proving the escape is the engine's job, not ours.
	return MayAlias
}

// A CaptureTracker observes a use walk over a pointer: ShouldExplore
// decides whether the walk descends through a propagating user, and
// CapturedBy is told of each capturing use and may end the walk.
type CaptureTracker interface {
	// ShouldExplore reports whether the walk should look through the
	// value produced at u's user (geps, casts, phis, selects).
	ShouldExplore(u ir.Use) bool

	// CapturedBy records that use u captures the pointer. Returning true
	// aborts the remaining walk.
	CapturedBy(u ir.Use) bool
}

// PointerMayBeCaptured walks the transitive uses of v and reports captures
// to the tracker. The walk follows value-propagating instructions and
// treats stores of the pointer itself, pointer-to-integer casts, returns
// and unknown call operands as captures; the tracker can veto or refine
// individual uses.
func PointerMayBeCaptured(v ir.Value, tracker CaptureTracker) {
	seen := map[ir.Use]bool{}
	work := append([]ir.Use(nil), v.Uses()...)
	for len(work) > 0 {
		u := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[u] {
			continue
		}
		seen[u] = true
		switch user := u.User.(type) {
		case *ir.Load:
			// Reading through the pointer does not capture it.
		case *ir.Store:
			if user.Stored() == u.Get() {
				if tracker.CapturedBy(u) {
					return
				}
			}
		case *ir.GetElementPtr, *ir.Select, *ir.Phi:
			if tracker.ShouldExplore(u) {
				work = append(work, user.Uses()...)
			}
		case *ir.Cast:
			if user.Op == ir.CastPtrToInt {
				if tracker.CapturedBy(u) {
					return
				}
				continue
			}
			if tracker.ShouldExplore(u) {
				work = append(work, user.Uses()...)
			}
		case *ir.ICmp:
			// Comparing leaks at most one bit; against null it leaks
			// nothing the engine cares about.
			other := user.X()
			if other == u.Get() {
				other = user.Y()
			}
			if !ir.IsNullPointer(other) {
				if tracker.CapturedBy(u) {
					return
				}
			}
		case *ir.Ret:
			if tracker.CapturedBy(u) {
				return
			}
		default:
			if tracker.CapturedBy(u) {
				return
			}
		}
	}
}

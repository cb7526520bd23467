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

// TargetLibraryInfo identifies well-known library routines by name. The
// zero value recognizes the standard allocator entry points.
type TargetLibraryInfo struct {
	// Disabled lists routine names the target does not provide.
	Disabled map[string]bool
}

func (tli *TargetLibraryInfo) has(name string) bool {
	return tli == nil || !tli.Disabled[name]
}

// IsMallocLikeCall reports whether cs calls a malloc-compatible allocator:
// one size argument, returns a fresh pointer.
func (tli *TargetLibraryInfo) IsMallocLikeCall(cs CallSite) bool {
	f := cs.Base.CalledFunction()
	return f != nil && f.FName == "malloc" && tli.has("malloc") && cs.Base.NumArgs() == 1
}

// IsCallocLikeCall reports whether cs calls calloc: two size arguments,
// returns zeroed memory.
func (tli *TargetLibraryInfo) IsCallocLikeCall(cs CallSite) bool {
	f := cs.Base.CalledFunction()
	return f != nil && f.FName == "calloc" && tli.has("calloc") && cs.Base.NumArgs() == 2
}

// IsAlignedAllocLikeCall reports whether cs calls aligned_alloc: alignment
// and size arguments.
func (tli *TargetLibraryInfo) IsAlignedAllocLikeCall(cs CallSite) bool {
	f := cs.Base.CalledFunction()
	return f != nil && f.FName == "aligned_alloc" && tli.has("aligned_alloc") && cs.Base.NumArgs() == 2
}

// IsAllocLikeCall reports whether cs calls any recognized allocator.
func (tli *TargetLibraryInfo) IsAllocLikeCall(cs CallSite) bool {
	return tli.IsMallocLikeCall(cs) || tli.IsCallocLikeCall(cs) || tli.IsAlignedAllocLikeCall(cs)
}

// IsFreeCall reports whether cs calls free on its sole argument.
func (tli *TargetLibraryInfo) IsFreeCall(cs CallSite) bool {
	f := cs.Base.CalledFunction()
	return f != nil && f.FName == "free" && tli.has("free") && cs.Base.NumArgs() == 1
}

// AllocSize returns the constant byte count allocated by a recognized
// allocator call, if the size operands are constants.
func (tli *TargetLibraryInfo) AllocSize(cs CallSite) (int64, bool) {
	switch {
	case tli.IsMallocLikeCall(cs):
		if c, ok := cs.Base.Arg(0).(*ConstInt); ok {
			return c.V, true
		}
	case tli.IsCallocLikeCall(cs):
		n, okN := cs.Base.Arg(0).(*ConstInt)
		sz, okS := cs.Base.Arg(1).(*ConstInt)
		if okN && okS {
			return n.V * sz.V, true
		}
	case tli.IsAlignedAllocLikeCall(cs):
		if c, ok := cs.Base.Arg(1).(*ConstInt); ok {
			return c.V, true
		}
	}
	return 0, false
}

// NullPointerIsDefined reports whether address zero is a valid memory
// location inside f. When it is, dereferences of null prove nothing.
func NullPointerIsDefined(f *Function) bool {
	return f != nil && f.Attrs.Has(AttrNullPointerIsValid)
}

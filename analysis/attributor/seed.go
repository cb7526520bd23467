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
	"github.com/fixpoint-tools/deduce/ir"
)

// SeedFunction creates the default records for fn: the function-wide
// deductions, the return deductions when a value is returned, per-argument
// deductions, and per-call-site mirrors for every call in the body.
func (a *Attributor) SeedFunction(fn *ir.Function) {
	fnPos := FunctionPos(fn)

	a.DeadFunctionAA(fnPos, OptionalDep)
	a.WillReturnAA(fnPos, OptionalDep)
	a.UndefinedBehaviorAA(fnPos, OptionalDep)
	a.NoUnwindAA(fnPos, OptionalDep)
	a.NoSyncAA(fnPos, OptionalDep)
	a.NoFreeAA(fnPos, OptionalDep)
	a.NoReturnAA(fnPos, OptionalDep)
	a.NoRecurseAA(fnPos, OptionalDep)
	a.MemoryBehaviorAA(fnPos, OptionalDep)
	a.MemoryLocationAA(fnPos, OptionalDep)
	a.HeapToStackAA(fnPos, OptionalDep)

	if !ir.IsVoid(fn.ReturnType()) {
		retPos := ReturnedPos(fn)
		a.ReturnedValuesAA(retPos, OptionalDep)
		a.ValueSimplifyAA(retPos, OptionalDep)
		if ir.IsPointer(fn.ReturnType()) {
			a.AlignAA(retPos, OptionalDep)
			a.NonNullAA(retPos, OptionalDep)
			a.NoAliasAA(retPos, OptionalDep)
			a.DereferenceableAA(retPos, OptionalDep)
		} else {
			a.ValueRangeAA(retPos, OptionalDep)
		}
	}

	for _, arg := range fn.Args {
		argPos := ArgumentPos(arg)
		a.ValueSimplifyAA(argPos, OptionalDep)
		a.DeadValueAA(argPos, OptionalDep)
		if ir.IsPointer(arg.Typ) {
			a.NonNullAA(argPos, OptionalDep)
			a.NoAliasAA(argPos, OptionalDep)
			a.DereferenceableAA(argPos, OptionalDep)
			a.AlignAA(argPos, OptionalDep)
			a.NoCaptureAA(argPos, OptionalDep)
			a.MemoryBehaviorAA(argPos, OptionalDep)
			a.NoFreeAA(argPos, OptionalDep)
			a.PrivatizablePtrAA(argPos, OptionalDep)
		} else {
			a.ValueRangeAA(argPos, OptionalDep)
		}
	}

	fn.Instructions(func(in ir.Instruction) bool {
		cs, ok := ir.AsCallSite(in)
		if !ok {
			return true
		}
		a.seedCallSite(cs)
		return true
	})
}

// seedCallSite creates the per-call-site mirrors of the function and
// argument deductions.
func (a *Attributor) seedCallSite(cs ir.CallSite) {
	csPos := CallSitePos(cs)
	a.NoUnwindAA(csPos, OptionalDep)
	a.NoReturnAA(csPos, OptionalDep)
	a.NoFreeAA(csPos, OptionalDep)
	a.WillReturnAA(csPos, OptionalDep)

	if !ir.IsVoid(cs.Instr.Type()) {
		retPos := CallSiteReturnedPos(cs)
		a.ValueSimplifyAA(retPos, OptionalDep)
		if ir.IsPointer(cs.Instr.Type()) {
			a.NonNullAA(retPos, OptionalDep)
			a.NoAliasAA(retPos, OptionalDep)
			a.DereferenceableAA(retPos, OptionalDep)
			a.AlignAA(retPos, OptionalDep)
		} else {
			a.ValueRangeAA(retPos, OptionalDep)
		}
	}

	for i := 0; i < cs.Base.NumArgs(); i++ {
		if !ir.IsPointer(cs.Base.Arg(i).Type()) {
			continue
		}
		argPos := CallSiteArgumentPos(cs, i)
		a.NonNullAA(argPos, OptionalDep)
		a.NoCaptureAA(argPos, OptionalDep)
		a.NoFreeAA(argPos, OptionalDep)
		a.DereferenceableAA(argPos, OptionalDep)
		a.AlignAA(argPos, OptionalDep)
		a.MemoryBehaviorAA(argPos, OptionalDep)
	}
}

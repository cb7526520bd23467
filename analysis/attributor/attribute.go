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

import "fmt"

// AAKind identifies one analysis family.
type AAKind int

const (
	KindNoUnwind AAKind = iota
	KindNoSync
	KindNoFree
	KindNoRecurse
	KindWillReturn
	KindNoReturn
	KindReturnedValues
	KindNoAlias
	KindNonNull
	KindDereferenceable
	KindAlign
	KindNoCapture
	KindValueSimplify
	KindHeapToStack
	KindPrivatizablePtr
	KindMemoryBehavior
	KindMemoryLocation
	KindValueRange
	KindIsDead
	KindUndefinedBehavior
	KindReachability

	numAAKinds
)

var aaKindNames = [...]string{"nounwind", "nosync", "nofree", "norecurse",
	"willreturn", "noreturn", "returnedvalues", "noalias", "nonnull",
	"dereferenceable", "align", "nocapture", "valuesimplify", "heaptostack",
	"privatizableptr", "memorybehavior", "memorylocation", "valuerange",
	"isdead", "undefinedbehavior", "reachability"}

func (k AAKind) String() string { return aaKindNames[k] }

// DepClass classifies a dependency edge between two abstract attributes.
type DepClass int

const (
	// OptionalDep re-enqueues the dependent when the dependee changes.
	OptionalDep DepClass = iota

	// RequiredDep additionally forces the dependent into an invalid state
	// when the dependee becomes invalid.
	RequiredDep
)

// An AbstractAttribute is one analysis record: a lattice state at a
// position, with hooks the engine drives.
type AbstractAttribute interface {
	// Position returns the location the record describes.
	Position() Position

	// Kind returns the analysis family.
	Kind() AAKind

	// State returns the lattice component.
	State() AbstractState

	// Initialize seeds the state from the IR before the first update. It
	// may indicate a fixpoint immediately.
	Initialize(a *Attributor)

	// Update re-derives the assumed state from the current states of
	// other records. It must move the state monotonically and report
	// whether it moved at all.
	Update(a *Attributor) ChangeStatus

	// Manifest stages IR edits reflecting the known state. Called only on
	// valid states after the fixpoint settled.
	Manifest(a *Attributor) ChangeStatus

	// AsString renders the state for diagnostics.
	AsString() string

	meta() *aaMeta
}

// aaMeta is the bookkeeping every record embeds.
type aaMeta struct {
	pos  Position
	kind AAKind

	// queriedNonFixed is reset before each update; a lookup of a non-fixed
	// peer sets it. When it stays clear the state only read settled
	// information and can be frozen at once.
	queriedNonFixed bool

	// enqueued marks worklist membership to keep the list deduplicated.
	enqueued bool

	// dead marks records the invalidation cascade already processed.
	dead bool
}

func (m *aaMeta) Position() Position { return m.pos }
func (m *aaMeta) Kind() AAKind       { return m.kind }
func (m *aaMeta) meta() *aaMeta      { return m }

func (m *aaMeta) describe(stateStr string) string {
	return fmt.Sprintf("%s@%s: %s", m.kind, m.pos, stateStr)
}

// aaFactory builds the specialization of one family at one position.
type aaFactory func(Position) AbstractAttribute

// factories is the registry the typed accessors and the generic lookup
// share; families register themselves at package initialization.
var factories [numAAKinds]aaFactory

func registerAA(kind AAKind, f aaFactory) { factories[kind] = f }

func newAA(kind AAKind, pos Position) AbstractAttribute {
	f := factories[kind]
	if f == nil {
		panic(fmt.Sprintf("attributor: no factory for %s", kind))
	}
	return f(pos)
}

// boolAA is implemented by every family whose state is boolean; the
// generic combinators use it to meet peer states without knowing the
// concrete type.
type boolAA interface {
	AbstractAttribute
	Bool() *BooleanState
}

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

import (
	"fmt"
	"sort"
	"strings"
)

// AttrKind enumerates the IR-level attributes the engine reads and writes.
type AttrKind int

const (
	AttrNone AttrKind = iota
	AttrNoUnwind
	AttrNoSync
	AttrNoFree
	AttrNoRecurse
	AttrWillReturn
	AttrNoReturn
	AttrReadNone
	AttrReadOnly
	AttrWriteOnly
	AttrNoAlias
	AttrNonNull
	AttrNoCapture
	AttrReturned
	AttrNoUndef
	AttrAlign                 // integer payload: alignment in bytes
	AttrDereferenceable       // integer payload: bytes
	AttrDereferenceableOrNull // integer payload: bytes
	AttrByVal                 // type payload
	AttrNullPointerIsValid
)

var attrNames = map[AttrKind]string{
	AttrNoUnwind:              "nounwind",
	AttrNoSync:                "nosync",
	AttrNoFree:                "nofree",
	AttrNoRecurse:             "norecurse",
	AttrWillReturn:            "willreturn",
	AttrNoReturn:              "noreturn",
	AttrReadNone:              "readnone",
	AttrReadOnly:              "readonly",
	AttrWriteOnly:             "writeonly",
	AttrNoAlias:               "noalias",
	AttrNonNull:               "nonnull",
	AttrNoCapture:             "nocapture",
	AttrReturned:              "returned",
	AttrNoUndef:               "noundef",
	AttrAlign:                 "align",
	AttrDereferenceable:       "dereferenceable",
	AttrDereferenceableOrNull: "dereferenceable_or_null",
	AttrByVal:                 "byval",
	AttrNullPointerIsValid:    "null_pointer_is_valid",
}

func (k AttrKind) String() string { return attrNames[k] }

// AttrKindFromName returns the kind named by s, or AttrNone.
func AttrKindFromName(s string) AttrKind {
	for k, n := range attrNames {
		if n == s {
			return k
		}
	}
	return AttrNone
}

// An Attribute is a single IR attribute, possibly carrying an integer or
// type payload.
type Attribute struct {
	Kind AttrKind
	Int  uint64
	Typ  Type
}

func (a Attribute) String() string {
	switch a.Kind {
	case AttrAlign, AttrDereferenceable, AttrDereferenceableOrNull:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Int)
	case AttrByVal:
		if a.Typ != nil {
			return fmt.Sprintf("byval(%s)", a.Typ)
		}
		return "byval"
	default:
		return a.Kind.String()
	}
}

// An AttrSet is a small set of attributes keyed by kind.
type AttrSet struct {
	attrs map[AttrKind]Attribute
}

// Has reports whether the set contains an attribute of kind k.
func (s *AttrSet) Has(k AttrKind) bool {
	_, ok := s.attrs[k]
	return ok
}

// Get returns the attribute of kind k, if present.
func (s *AttrSet) Get(k AttrKind) (Attribute, bool) {
	a, ok := s.attrs[k]
	return a, ok
}

// Add inserts attr, replacing any attribute of the same kind. For integer
// payloads the larger value wins, so re-manifesting never weakens a fact.
func (s *AttrSet) Add(attr Attribute) {
	if s.attrs == nil {
		s.attrs = map[AttrKind]Attribute{}
	}
	if old, ok := s.attrs[attr.Kind]; ok {
		switch attr.Kind {
		case AttrAlign, AttrDereferenceable, AttrDereferenceableOrNull:
			if old.Int >= attr.Int {
				return
			}
		}
	}
	s.attrs[attr.Kind] = attr
}

// AddKind inserts a payload-free attribute of kind k.
func (s *AttrSet) AddKind(k AttrKind) { s.Add(Attribute{Kind: k}) }

// AddInt inserts an attribute of kind k with integer payload n.
func (s *AttrSet) AddInt(k AttrKind, n uint64) { s.Add(Attribute{Kind: k, Int: n}) }

// Remove deletes the attribute of kind k if present.
func (s *AttrSet) Remove(k AttrKind) { delete(s.attrs, k) }

// All returns the attributes in a deterministic order.
func (s *AttrSet) All() []Attribute {
	out := make([]Attribute, 0, len(s.attrs))
	for _, a := range s.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Copy returns an independent copy of the set.
func (s *AttrSet) Copy() AttrSet {
	c := AttrSet{}
	for _, a := range s.All() {
		c.Add(a)
	}
	return c
}

func (s *AttrSet) String() string {
	parts := make([]string, 0, len(s.attrs))
	for _, a := range s.All() {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

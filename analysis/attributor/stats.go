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
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Stats counts what a deduction run did. Each Stats owns its own metrics
// set, so the counters of one run start at zero and are not shared with
// other runs.
type Stats struct {
	set *metrics.Set

	// Created counts abstract attribute records constructed.
	Created *metrics.Counter

	// Updates counts update invocations.
	Updates *metrics.Counter

	// ValidFixpoints counts records that settled in a valid state.
	ValidFixpoints *metrics.Counter

	// TimedOut counts records pessimized by the iteration cap.
	TimedOut *metrics.Counter

	// RequiredFixed counts records pessimized through a required edge.
	RequiredFixed *metrics.Counter

	// FnDeleted counts functions removed from the module.
	FnDeleted *metrics.Counter

	// WrappersCreated counts shallow wrappers created.
	WrappersCreated *metrics.Counter

	manifested map[AAKind]*metrics.Counter
}

// NewStats returns an empty counter group.
func NewStats() *Stats {
	s := &Stats{set: metrics.NewSet(), manifested: map[AAKind]*metrics.Counter{}}
	s.Created = s.set.NewCounter(`deduce_records_created_total`)
	s.Updates = s.set.NewCounter(`deduce_updates_total`)
	s.ValidFixpoints = s.set.NewCounter(`deduce_valid_fixpoints_total`)
	s.TimedOut = s.set.NewCounter(`deduce_records_timed_out_total`)
	s.RequiredFixed = s.set.NewCounter(`deduce_records_required_fixed_total`)
	s.FnDeleted = s.set.NewCounter(`deduce_functions_deleted_total`)
	s.WrappersCreated = s.set.NewCounter(`deduce_wrappers_created_total`)
	return s
}

// Manifested bumps the per-family manifest counter.
func (s *Stats) Manifested(kind AAKind) {
	c, ok := s.manifested[kind]
	if !ok {
		c = s.set.NewCounter(fmt.Sprintf(`deduce_manifested_total{attr=%q}`, kind))
		s.manifested[kind] = c
	}
	c.Inc()
}

// ManifestedCount returns how many facts of one family manifested.
func (s *Stats) ManifestedCount(kind AAKind) uint64 {
	if c, ok := s.manifested[kind]; ok {
		return c.Get()
	}
	return 0
}

// WritePrometheus dumps the counters in Prometheus exposition format.
func (s *Stats) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}

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

package loopinfo_test

import (
	"testing"

	"github.com/fixpoint-tools/deduce/analysis/domtree"
	"github.com/fixpoint-tools/deduce/analysis/loopinfo"
	"github.com/fixpoint-tools/deduce/ir"
)

func computeFor(t *testing.T, src, name string) *loopinfo.Info {
	t.Helper()
	m := ir.MustParse(src)
	f := m.FuncNamed(name)
	return loopinfo.Compute(f, domtree.New(f))
}

func TestCountedLoop(t *testing.T) {
	info := computeFor(t, `
define i32 @sum(i32 %n) {
entry:
  br label %head
head:
  %i = phi i32 [ 0, %entry ], [ %next, %body ]
  %c = icmp slt i32 %i, 10
  br i1 %c, label %body, label %exit
body:
  %next = add i32 %i, 1
  br label %head
exit:
  ret i32 %i
}
`, "sum")
	if len(info.Loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(info.Loops))
	}
	l := info.Loops[0]
	if l.MaxTripCount != 11 {
		t.Errorf("expected trip bound 11, got %d", l.MaxTripCount)
	}
	if info.HasUnboundedCycle() {
		t.Errorf("counted loop is bounded")
	}
	if !l.Blocks[l.Header] || !l.Blocks[l.Latch] {
		t.Errorf("loop body incomplete")
	}
}

func TestUnboundedLoop(t *testing.T) {
	info := computeFor(t, `
define void @spin(i32 %n) {
entry:
  br label %head
head:
  %i = phi i32 [ 0, %entry ], [ %next, %head ]
  %next = add i32 %i, 1
  %c = icmp slt i32 %i, %n
  br i1 %c, label %head, label %exit
exit:
  ret void
}
`, "spin")
	// The bound %n is not a constant, so the loop has no known trip count.
	if !info.HasUnboundedCycle() {
		t.Errorf("variable-bound loop must count as unbounded")
	}
}

func TestNoLoops(t *testing.T) {
	info := computeFor(t, `
define void @straight() {
entry:
  ret void
}
`, "straight")
	if len(info.Loops) != 0 || info.HasUnboundedCycle() {
		t.Errorf("straight-line code has no cycles")
	}
}

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

// Package graphutil adapts the analyzer's graphs to existing graph
// libraries: yourbasic/graph for strongly connected components and gonum
// for DOT rendering.
package graphutil

import (
	"github.com/yourbasic/graph"
)

// IntGraph is an adjacency-set digraph over nodes 0..order-1. It implements
// graph.Iterator so yourbasic algorithms run on it directly.
type IntGraph struct {
	order int
	Edges []map[int]bool
}

// NewIntGraph returns an empty digraph of the given order.
func NewIntGraph(order int) *IntGraph {
	return &IntGraph{order: order, Edges: make([]map[int]bool, order)}
}

// AddEdge inserts the directed edge v -> w.
func (g *IntGraph) AddEdge(v, w int) {
	if g.Edges[v] == nil {
		g.Edges[v] = map[int]bool{}
	}
	g.Edges[v][w] = true
}

// Order implements graph.Iterator.
func (g *IntGraph) Order() int { return g.order }

// Visit implements graph.Iterator.
func (g *IntGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	for w := range g.Edges[v] {
		if do(w, 1) {
			return true
		}
	}
	return false
}

// StrongComponents returns the strongly connected components of g, each a
// slice of node indices.
func (g *IntGraph) StrongComponents() [][]int {
	return graph.StrongComponents(g)
}

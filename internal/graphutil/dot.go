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

package graphutil

import (
	"fmt"

	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// dotNode is a gonum node with a fixed DOT identifier.
type dotNode struct {
	simple.Node
	label string
}

// DOTID implements dot.Node so node labels survive marshaling.
func (n dotNode) DOTID() string { return fmt.Sprintf("%q", n.label) }

// LabeledDigraph accumulates a labeled digraph and renders it as DOT. Node
// identity is the label string.
type LabeledDigraph struct {
	g     *simple.DirectedGraph
	nodes map[string]dotNode
}

// NewLabeledDigraph returns an empty digraph.
func NewLabeledDigraph() *LabeledDigraph {
	return &LabeledDigraph{g: simple.NewDirectedGraph(), nodes: map[string]dotNode{}}
}

func (d *LabeledDigraph) node(label string) dotNode {
	if n, ok := d.nodes[label]; ok {
		return n
	}
	n := dotNode{Node: simple.Node(int64(len(d.nodes))), label: label}
	d.nodes[label] = n
	d.g.AddNode(n)
	return n
}

// AddEdge inserts the directed edge from -> to, creating nodes on demand.
func (d *LabeledDigraph) AddEdge(from, to string) {
	f, t := d.node(from), d.node(to)
	if f.ID() == t.ID() {
		return
	}
	d.g.SetEdge(d.g.NewEdge(f, t))
}

// AddNode ensures a node with the given label exists.
func (d *LabeledDigraph) AddNode(label string) { d.node(label) }

// Marshal renders the digraph in DOT syntax.
func (d *LabeledDigraph) Marshal(name string) ([]byte, error) {
	return dot.Marshal(d.g, name, "", "  ")
}

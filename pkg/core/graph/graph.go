// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph defines the computation graph executed by the backends: a DAG of Node, each performing
// one operation of a closed set (OpType) over the outputs of its input nodes, and holding references to
// the model parameters (params.Parameter) it uses.
//
// A Graph is built with the op functions of this package (Linear, ReLU, Softmax, BatchNorm1D,
// CrossEntropyLoss, ...) starting from its sources, created with Graph.Input. The sinks are set with
// Graph.SetOutputs, and then Graph.Compile computes the topological execution order. After that the
// graph is frozen.
//
// Graph building functions panic (with exceptions.Panicf) on misuse, since these are programming errors.
// Compile returns an error if the graph cannot be executed.
//
// Example:
//
//	g := graph.New("mlp")
//	x, labels := g.Input("x"), g.Input("labels")
//	logits := graph.Linear(x, w, b)
//	loss := graph.CrossEntropyLoss(graph.Softmax(logits), labels)
//	g.SetOutputs(loss)
//	err := g.Compile()
package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/exceptions"
)

// Graph of operations, from a list of inputs (sources) to a list of outputs (sinks).
//
// It is not safe for concurrent building.
type Graph struct {
	name string

	// nodes include all nodes created in the Graph, indexed by NodeId.
	nodes []*Node

	inputs, outputs []*Node

	// order is the topological order of the nodes needed to compute the outputs.
	// Only set after Compile.
	order    []*Node
	compiled bool
}

// New creates an empty Graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// assertBuilding panics if the graph has already been compiled.
func (g *Graph) assertBuilding() {
	if g.compiled {
		exceptions.Panicf("graph %q is already compiled, it can no longer be changed", g.name)
	}
}

// registerNode adds a new node to the graph, it assigns its NodeId.
func (g *Graph) registerNode(node *Node) *Node {
	g.assertBuilding()
	node.graph = g
	node.id = NodeId(len(g.nodes))
	node.position = -1
	g.nodes = append(g.nodes, node)
	return node
}

// Input creates a new source node, for which a tensor will be bound by the caller for every execution.
// Inputs are bound in the order they are created.
func (g *Graph) Input(name string) *Node {
	node := g.registerNode(&Node{opType: OpTypeInput, name: name})
	g.inputs = append(g.inputs, node)
	return node
}

// Inputs returns the source nodes, in the order they were created.
func (g *Graph) Inputs() []*Node { return g.inputs }

// SetOutputs sets the sink nodes of the graph: the values returned by a forward pass, and where the
// gradients are fed for a backward pass. The same node can be given more than once.
func (g *Graph) SetOutputs(outputs ...*Node) {
	g.assertBuilding()
	if len(outputs) == 0 {
		exceptions.Panicf("graph %q: SetOutputs requires at least one output", g.name)
	}
	for ii, node := range outputs {
		if node == nil {
			exceptions.Panicf("graph %q: output #%d is nil", g.name, ii)
		}
	}
	g.outputs = outputs
}

// Outputs returns the sink nodes set with SetOutputs.
func (g *Graph) Outputs() []*Node { return g.outputs }

// Nodes returns all nodes created in the graph, indexed by their NodeId.
// This includes nodes not used to compute the outputs.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumNodes returns the number of nodes created in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// IsCompiled returns whether Compile was already successfully called.
func (g *Graph) IsCompiled() bool { return g.compiled }

// Order returns the topological order of execution computed by Compile: every node comes after its inputs.
// It panics if the graph is not compiled.
func (g *Graph) Order() []*Node {
	if !g.compiled {
		exceptions.Panicf("graph %q is not compiled yet", g.name)
	}
	return g.order
}

// Parameters returns the parameters used by the nodes of the graph, without repetitions, in the order they
// were first referenced. If the graph is compiled, only parameters of nodes in the execution order are included.
func (g *Graph) Parameters() params.Parameters {
	nodes := g.nodes
	if g.compiled {
		nodes = g.order
	}
	seen := make(map[*params.Parameter]bool)
	var parameters params.Parameters
	for _, node := range nodes {
		for _, p := range node.params {
			if !seen[p] {
				seen[p] = true
				parameters = append(parameters, p)
			}
		}
	}
	return parameters
}

// String prints a description of the graph, one node per line.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q: %d nodes, %d inputs, %d outputs", g.name, len(g.nodes), len(g.inputs), len(g.outputs))
	if g.compiled {
		_, _ = fmt.Fprintf(&sb, ", %d ops in execution order", len(g.order))
	}
	sb.WriteString("\n")
	for _, node := range g.nodes {
		_, _ = fmt.Fprintf(&sb, "\t%s\n", node)
	}
	return sb.String()
}

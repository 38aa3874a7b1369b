// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/exceptions"
)

// NodeId is the index of a Node in Graph.Nodes, assigned in creation order.
type NodeId int

// Node represents the result of one operation in the graph. It can be used as input to further operations.
type Node struct {
	graph  *Graph
	id     NodeId
	opType OpType
	name   string
	inputs []*Node

	// params used by the operation. E.g.: weights and bias for OpTypeLinear.
	params params.Parameters

	// data holds op specific attributes, e.g. *BatchNormAttributes.
	data any

	// position in the graph's execution order, or -1 if not part of it (or not compiled yet).
	position int
}

// Graph the node belongs to.
func (n *Node) Graph() *Graph { return n.graph }

// Id of the node, its index in Graph.Nodes.
func (n *Node) Id() NodeId { return n.id }

// Type of the operation.
func (n *Node) Type() OpType { return n.opType }

// Name of an input node, empty for other nodes.
func (n *Node) Name() string { return n.name }

// Inputs of the node.
func (n *Node) Inputs() []*Node { return n.inputs }

// Parameters used by the node, in the order documented by each op.
func (n *Node) Parameters() params.Parameters { return n.params }

// Position returns the node's index in the execution order (Graph.Order), or -1 if the graph is not compiled
// or the node doesn't contribute to any output.
func (n *Node) Position() int { return n.position }

// BatchNorm returns the attributes of an OpTypeBatchNorm1D node. It panics for other node types.
func (n *Node) BatchNorm() *BatchNormAttributes {
	attrs, ok := n.data.(*BatchNormAttributes)
	if !ok {
		exceptions.Panicf("node %s is not a BatchNorm1D node", n)
	}
	return attrs
}

// ReplaceInput replaces the input at the given index with another node.
//
// It can be used to rewire a graph before compilation. Notice that this can introduce cycles, which are
// reported by Graph.Compile.
func (n *Node) ReplaceInput(index int, newInput *Node) {
	n.graph.assertBuilding()
	if index < 0 || index >= len(n.inputs) {
		exceptions.Panicf("node %s has %d inputs, can't replace input #%d", n, len(n.inputs), index)
	}
	if newInput == nil {
		exceptions.Panicf("node %s: can't replace input #%d with nil", n, index)
	}
	n.inputs[index] = newInput
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "#%d %s", n.id, n.opType)
	if n.name != "" {
		_, _ = fmt.Fprintf(&sb, "(%q)", n.name)
	}
	if len(n.inputs) > 0 {
		ids := make([]string, len(n.inputs))
		for ii, input := range n.inputs {
			ids[ii] = fmt.Sprintf("#%d", input.id)
		}
		_, _ = fmt.Fprintf(&sb, "(%s)", strings.Join(ids, ", "))
	}
	if len(n.params) > 0 {
		names := make([]string, len(n.params))
		for ii, p := range n.params {
			names[ii] = p.Name
		}
		_, _ = fmt.Fprintf(&sb, " params=[%s]", strings.Join(names, ", "))
	}
	if attrs, ok := n.data.(*BatchNormAttributes); ok {
		_, _ = fmt.Fprintf(&sb, " epsilon=%g alpha=%g", attrs.Epsilon, attrs.Alpha)
	}
	return sb.String()
}

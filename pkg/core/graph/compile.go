// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Compile computes the topological order of execution of the nodes that contribute to the outputs,
// and freezes the graph: no more nodes can be added after that.
//
// All inputs are included in the order, even if not used by any output, so they can always be bound.
//
// It returns an error if no outputs were set, if a node from another graph is referenced, or if there
// is a cycle. Calling Compile on a compiled graph is a no-op.
func (g *Graph) Compile() error {
	if g.compiled {
		return nil
	}
	if len(g.outputs) == 0 {
		return errors.Errorf("graph %q has no outputs, use SetOutputs before Compile", g.name)
	}

	// Collect nodes that reach the outputs.
	used := make([]bool, len(g.nodes))
	stack := make([]*Node, 0, len(g.nodes))
	visit := func(node *Node) error {
		if node.graph != g {
			return errors.Errorf("graph %q references node %s from another graph", g.name, node)
		}
		if !used[node.id] {
			used[node.id] = true
			stack = append(stack, node)
		}
		return nil
	}
	for _, node := range g.outputs {
		if err := visit(node); err != nil {
			return errors.WithMessage(err, "in outputs")
		}
	}
	for _, node := range g.inputs {
		_ = visit(node)
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, input := range node.inputs {
			if err := visit(input); err != nil {
				return errors.WithMessagef(err, "in inputs of node %s", node)
			}
		}
	}

	// Kahn's algorithm: the count of pending inputs of each node and the list of its dependents.
	pending := make([]int, len(g.nodes))
	dependents := make([][]*Node, len(g.nodes))
	numUsed := 0
	for _, node := range g.nodes {
		if !used[node.id] {
			continue
		}
		numUsed++
		pending[node.id] = len(node.inputs)
		for _, input := range node.inputs {
			dependents[input.id] = append(dependents[input.id], node)
		}
	}
	order := make([]*Node, 0, numUsed)
	for _, node := range g.nodes {
		if used[node.id] && pending[node.id] == 0 {
			order = append(order, node)
		}
	}
	for next := 0; next < len(order); next++ {
		for _, dependent := range dependents[order[next].id] {
			pending[dependent.id]--
			if pending[dependent.id] == 0 {
				order = append(order, dependent)
			}
		}
	}
	if len(order) != numUsed {
		var cycle []string
		for _, node := range g.nodes {
			if used[node.id] && pending[node.id] > 0 {
				cycle = append(cycle, node.String())
			}
		}
		return errors.Errorf("graph %q has a cycle involving the nodes: %s", g.name, strings.Join(cycle, "; "))
	}

	for position, node := range order {
		node.position = position
	}
	g.order = order
	g.compiled = true
	if klog.V(1).Enabled() {
		klog.Infof("graph %q compiled: %d nodes in execution order (%d created), %d parameters",
			g.name, len(order), len(g.nodes), len(g.Parameters()))
	}
	return nil
}

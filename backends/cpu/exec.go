// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// executionContext holds the state of one forward/backward cycle.
type executionContext struct {
	// training mode of the forward pass.
	training bool

	// caches hold per-node values computed in the forward pass needed by the backward pass,
	// indexed by position in the execution order. E.g.: *kernels.BatchNormCache.
	caches []any
}

// forwardExecutor computes the output of the node, given its inputs (contiguous tensors), and returns it.
// The output should be stored in the node's activation slot (see CPUBackend.memSlot).
type forwardExecutor func(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor

// backwardExecutor computes the gradients of the node given the gradient of its output gradOut: it accumulates
// the gradients of its parameters and of its inputs (see CPUBackend.accumulateInputGrad).
type backwardExecutor func(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor, gradOut *tensors.Tensor)

var (
	// forwardExecutors and backwardExecutors should be populated during initialization (`init` functions)
	// for the ops implemented. For the ops not implemented, leave it as nil, and it will panic.
	forwardExecutors  [graph.OpTypeLast]forwardExecutor
	backwardExecutors [graph.OpTypeLast]backwardExecutor
)

// Forward implements backends.Backend.
//
// The inputs must match in number and order the graph inputs, and the outputs the graph outputs:
// the results are copied to them, so they must have the expected number of elements.
// Any mismatch panics, and leaves the backend without an execution context: a following Backward
// panics until a Forward completes.
func (b *CPUBackend) Forward(inputs, outputs []*tensors.Tensor) {
	g := b.graph
	b.ctx = nil
	if len(inputs) != len(g.Inputs()) {
		exceptions.Panicf("cpu backend %q: Forward expected %d inputs, got %d", g.Name(), len(g.Inputs()), len(inputs))
	}
	if len(outputs) != len(g.Outputs()) {
		exceptions.Panicf("cpu backend %q: Forward expected %d outputs, got %d", g.Name(), len(g.Outputs()), len(outputs))
	}
	// Kernels read the caches through b.ctx, it is only kept if the forward pass completes.
	b.ctx = &executionContext{
		training: b.training,
		caches:   make([]any, len(b.ops)),
	}
	completed := false
	defer func() {
		if !completed {
			b.ctx = nil
		}
	}()
	b.bindInputs(inputs)

	klog.V(2).Infof("cpu backend %q: forward pass (training=%v)", g.Name(), b.training)
	for position, node := range b.ops {
		if node.Type() == graph.OpTypeInput {
			continue
		}
		executor := forwardExecutors[node.Type()]
		if executor == nil {
			exceptions.Panicf("cpu backend: forward of op type %s not implemented (node %s)", node.Type(), node)
		}
		b.mem[position] = executor(b, node, b.inputsOf(node))
	}

	for ii, outputNode := range g.Outputs() {
		result := b.mem[outputNode.Position()]
		output := outputs[ii]
		if output == nil {
			exceptions.Panicf("cpu backend %q: output tensor #%d is nil", g.Name(), ii)
		}
		if output.Size() != result.Size() {
			exceptions.Panicf("cpu backend %q: output tensor #%d has shape %s, but node %s computed shape %s",
				g.Name(), ii, output.Shape(), outputNode, result.Shape())
		}
		output.CopyFrom(result)
	}
	completed = true
}

// bindInputs sets the activations of the input nodes to the given tensors. Non-contiguous tensors are
// copied to a staging slot, so kernels can use their flat values.
func (b *CPUBackend) bindInputs(inputs []*tensors.Tensor) {
	for ii, inputNode := range b.graph.Inputs() {
		input := inputs[ii]
		if input == nil {
			exceptions.Panicf("cpu backend %q: input tensor #%d (%q) is nil", b.graph.Name(), ii, inputNode.Name())
		}
		position := inputNode.Position()
		if input.IsContiguous() {
			b.mem[position] = input
			continue
		}
		staging := b.reuseOrAllocate(b.staging, "staging", inputNode, input.Shape().Dimensions)
		staging.CopyFrom(input)
		b.mem[position] = staging
	}
}

// inputsOf returns the activations of the inputs of node. The returned slice is reused by the next call.
func (b *CPUBackend) inputsOf(node *graph.Node) []*tensors.Tensor {
	inputs := b.opInputs[:len(node.Inputs())]
	for ii, input := range node.Inputs() {
		inputs[ii] = b.mem[input.Position()]
	}
	return inputs
}

// Backward implements backends.Backend.
//
// outputGrads must match in number and order the graph outputs, and inputGrads the graph inputs.
// The gradients of the parameters are accumulated into their Grad tensors, and the gradients with
// respect to the graph inputs are copied into the non-nil inputGrads.
//
// It panics if not preceded by a Forward call: each Forward can be followed by at most one Backward.
func (b *CPUBackend) Backward(outputGrads, inputGrads []*tensors.Tensor) {
	g := b.graph
	if b.ctx == nil {
		exceptions.Panicf("cpu backend %q: Backward called without a preceding Forward", g.Name())
	}
	// The execution context is only valid for one backward pass.
	defer func() { b.ctx = nil }()
	if len(outputGrads) != len(g.Outputs()) {
		exceptions.Panicf("cpu backend %q: Backward expected %d output gradients, got %d",
			g.Name(), len(g.Outputs()), len(outputGrads))
	}
	if len(inputGrads) != len(g.Inputs()) {
		exceptions.Panicf("cpu backend %q: Backward expected %d input gradients, got %d",
			g.Name(), len(g.Inputs()), len(inputGrads))
	}

	b.resetGradients()
	for ii, outputNode := range g.Outputs() {
		outputGrad := outputGrads[ii]
		if outputGrad == nil {
			exceptions.Panicf("cpu backend %q: output gradient #%d is nil", g.Name(), ii)
		}
		grad := b.grads[outputNode.Position()]
		if outputGrad.Size() != grad.Size() {
			exceptions.Panicf("cpu backend %q: output gradient #%d has shape %s, but node %s has shape %s",
				g.Name(), ii, outputGrad.Shape(), outputNode, grad.Shape())
		}
		flat := grad.Flat()
		for jj, v := range outputGrad.Contiguous().Flat() {
			flat[jj] += v
		}
	}

	klog.V(2).Infof("cpu backend %q: backward pass", g.Name())
	for position := len(b.ops) - 1; position >= 0; position-- {
		node := b.ops[position]
		if node.Type() == graph.OpTypeInput {
			continue
		}
		executor := backwardExecutors[node.Type()]
		if executor == nil {
			exceptions.Panicf("cpu backend: backward of op type %s not implemented (node %s)", node.Type(), node)
		}
		executor(b, node, b.inputsOf(node), b.grads[position])
	}

	for ii, inputNode := range g.Inputs() {
		inputGrad := inputGrads[ii]
		if inputGrad == nil {
			continue
		}
		grad := b.grads[inputNode.Position()]
		if inputGrad.Size() != grad.Size() {
			exceptions.Panicf("cpu backend %q: input gradient tensor #%d (%q) has shape %s, but input has shape %s",
				g.Name(), ii, inputNode.Name(), inputGrad.Shape(), grad.Shape())
		}
		inputGrad.CopyFrom(grad)
	}
}

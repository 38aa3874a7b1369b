// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"slices"

	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// reuseOrAllocate returns pool[position] if it has the given dimensions, or replaces it with a newly allocated
// (zeroed) tensor.
func (b *CPUBackend) reuseOrAllocate(pool []*tensors.Tensor, poolName string, node *graph.Node, dimensions []int) *tensors.Tensor {
	position := node.Position()
	t := pool[position]
	if t != nil && t.Owned() && slices.Equal(t.Shape().Dimensions, dimensions) {
		return t
	}
	t = tensors.Zeros(dimensions...)
	klog.V(1).Infof("cpu backend %q: allocated %s slot for node %s: %s", b.graph.Name(), poolName, node, t.Shape())
	pool[position] = t
	return t
}

// memSlot returns the tensor where to store the output of node.
func (b *CPUBackend) memSlot(node *graph.Node, dimensions ...int) *tensors.Tensor {
	return b.reuseOrAllocate(b.mem, "activation", node, dimensions)
}

// auxSlot returns an extra tensor that can be used by node to store intermediary results.
func (b *CPUBackend) auxSlot(node *graph.Node, dimensions ...int) *tensors.Tensor {
	return b.reuseOrAllocate(b.aux, "auxiliary", node, dimensions)
}

// scratchBuffer returns a buffer of size n, overwritten by each call.
func (b *CPUBackend) scratchBuffer(n int) []float32 {
	if cap(b.scratch) < n {
		b.scratch = make([]float32, n)
	}
	return b.scratch[:n]
}

// resetGradients makes sure there is a zeroed gradient slot for every node, with the same dimensions as its
// activation.
func (b *CPUBackend) resetGradients() {
	for position, node := range b.ops {
		activation := b.mem[position]
		grad := b.reuseOrAllocate(b.grads, "gradient", node, activation.Shape().Dimensions)
		grad.Zero()
	}
}

// accumulateInputGrad adds delta into the gradient of the input #inputIdx of node.
// Nodes used by more than one op (fan-out) receive the sum of the gradients of all their consumers.
func (b *CPUBackend) accumulateInputGrad(node *graph.Node, inputIdx int, delta []float32) {
	grad := b.grads[node.Inputs()[inputIdx].Position()].Flat()
	for ii, d := range delta {
		grad[ii] += d
	}
}

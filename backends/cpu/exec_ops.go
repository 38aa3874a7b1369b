// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/deepworks/backends/cpu/kernels"
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
)

func init() {
	forwardExecutors[graph.OpTypeLinear] = execLinear
	backwardExecutors[graph.OpTypeLinear] = execLinearBackward
	forwardExecutors[graph.OpTypeReLU] = execReLU
	backwardExecutors[graph.OpTypeReLU] = execReLUBackward
	forwardExecutors[graph.OpTypeSoftmax] = execSoftmax
	backwardExecutors[graph.OpTypeSoftmax] = execSoftmaxBackward
	forwardExecutors[graph.OpTypeBatchNorm1D] = execBatchNorm1D
	backwardExecutors[graph.OpTypeBatchNorm1D] = execBatchNorm1DBackward
	forwardExecutors[graph.OpTypeCrossEntropyLoss] = execCrossEntropyLoss
	backwardExecutors[graph.OpTypeCrossEntropyLoss] = execCrossEntropyLossBackward
	forwardExecutors[graph.OpTypeSoftmaxCrossEntropyLoss] = execSoftmaxCrossEntropyLoss
	backwardExecutors[graph.OpTypeSoftmaxCrossEntropyLoss] = execSoftmaxCrossEntropyLossBackward
}

// matrixDims returns the dimensions of a rank-2 input, or panics.
func matrixDims(node *graph.Node, x *tensors.Tensor) (rows, cols int) {
	if x.Rank() != 2 {
		exceptions.Panicf("cpu backend: node %s requires a rank-2 input, got shape %s", node, x.Shape())
	}
	return x.Dim(0), x.Dim(1)
}

// linearDims returns the dimensions of a linear node, checking that its input matches the weights.
func linearDims(node *graph.Node, x *tensors.Tensor) (batch, inFeatures, outFeatures int) {
	batch, inFeatures = matrixDims(node, x)
	w := node.Parameters()[0].Data
	if w.Dim(1) != inFeatures {
		exceptions.Panicf("cpu backend: node %s input shape %s is incompatible with weights shape %s",
			node, x.Shape(), w.Shape())
	}
	outFeatures = w.Dim(0)
	return
}

func execLinear(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor {
	x := inputs[0]
	batch, inFeatures, outFeatures := linearDims(node, x)
	parameters := node.Parameters()
	var bias []float32
	if len(parameters) > 1 {
		bias = parameters[1].Data.Flat()
	}
	output := b.memSlot(node, batch, outFeatures)
	kernels.LinearForward(x.Flat(), parameters[0].Data.Flat(), bias, output.Flat(), batch, inFeatures, outFeatures)
	return output
}

func execLinearBackward(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor, gradOut *tensors.Tensor) {
	x := inputs[0]
	batch, inFeatures, outFeatures := linearDims(node, x)
	parameters := node.Parameters()
	w := parameters[0]
	gradIn := b.scratchBuffer(batch * inFeatures)
	kernels.LinearBackward(x.Flat(), w.Data.Flat(), gradOut.Flat(), w.Grad.Flat(), gradIn, batch, inFeatures, outFeatures)
	if len(parameters) > 1 {
		kernels.LinearBiasBackward(gradOut.Flat(), parameters[1].Grad.Flat(), batch, outFeatures)
	}
	b.accumulateInputGrad(node, 0, gradIn)
}

func execReLU(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor {
	x := inputs[0]
	output := b.memSlot(node, x.Shape().Dimensions...)
	kernels.ReLUForward(x.Flat(), output.Flat())
	return output
}

func execReLUBackward(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor, gradOut *tensors.Tensor) {
	x := inputs[0]
	gradIn := b.scratchBuffer(x.Size())
	kernels.ReLUBackward(x.Flat(), gradOut.Flat(), gradIn)
	b.accumulateInputGrad(node, 0, gradIn)
}

func execSoftmax(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor {
	x := inputs[0]
	batch, features := matrixDims(node, x)
	output := b.memSlot(node, batch, features)
	kernels.SoftmaxForward(x.Flat(), output.Flat(), batch, features)
	return output
}

func execSoftmaxBackward(b *CPUBackend, node *graph.Node, _ []*tensors.Tensor, gradOut *tensors.Tensor) {
	output := b.mem[node.Position()]
	batch, features := matrixDims(node, output)
	gradIn := b.scratchBuffer(batch * features)
	kernels.SoftmaxBackward(gradOut.Flat(), output.Flat(), gradIn, batch, features)
	b.accumulateInputGrad(node, 0, gradIn)
}

// batchNormState returns a kernels.BatchNormState that refers to the running statistics parameters of node.
func batchNormState(node *graph.Node, features int) *kernels.BatchNormState {
	parameters := node.Parameters()
	attrs := node.BatchNorm()
	state := &kernels.BatchNormState{
		RunningMean: parameters[2].Data.Flat(),
		RunningVar:  parameters[3].Data.Flat(),
		Epsilon:     attrs.Epsilon,
		Alpha:       attrs.Alpha,
	}
	state.Validate()
	if state.NumFeatures() != features {
		exceptions.Panicf("cpu backend: node %s has %d features, but its input has %d",
			node, state.NumFeatures(), features)
	}
	return state
}

func execBatchNorm1D(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor {
	x := inputs[0]
	rows, cols := matrixDims(node, x)
	state := batchNormState(node, cols)
	parameters := node.Parameters()
	gamma, beta := parameters[0].Data.Flat(), parameters[1].Data.Flat()
	output := b.memSlot(node, rows, cols)
	if b.ctx.training {
		b.ctx.caches[node.Position()] = kernels.BatchNormForwardTraining(state, x.Flat(), gamma, beta, output.Flat(), rows, cols)
	} else {
		kernels.BatchNormForwardInference(state, x.Flat(), gamma, beta, output.Flat(), rows, cols)
	}
	return output
}

func execBatchNorm1DBackward(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor, gradOut *tensors.Tensor) {
	cache, ok := b.ctx.caches[node.Position()].(*kernels.BatchNormCache)
	if !ok {
		exceptions.Panicf("cpu backend: backward of node %s requires a forward pass in training mode", node)
	}
	rows, cols := matrixDims(node, inputs[0])
	parameters := node.Parameters()
	gamma, beta := parameters[0], parameters[1]
	gradIn := b.scratchBuffer(rows * cols)
	kernels.BatchNormBackward(cache, gradOut.Flat(), gamma.Data.Flat(), gradIn, gamma.Grad.Flat(), beta.Grad.Flat(), rows, cols)
	b.accumulateInputGrad(node, 0, gradIn)
}

// lossDims returns the dimensions of the loss inputs, checking there is one label per example.
func lossDims(node *graph.Node, x, labels *tensors.Tensor) (batch, classes int) {
	batch, classes = matrixDims(node, x)
	if labels.Size() != batch {
		exceptions.Panicf("cpu backend: node %s got %d labels for a batch of size %d (input shape %s)",
			node, labels.Size(), batch, x.Shape())
	}
	return
}

func execCrossEntropyLoss(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor {
	probs, labels := inputs[0], inputs[1]
	batch, classes := lossDims(node, probs, labels)
	output := b.memSlot(node)
	output.Flat()[0] = kernels.CrossEntropyLossForward(probs.Flat(), labels.Flat(), batch, classes)
	return output
}

// The labels get no gradient.
func execCrossEntropyLossBackward(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor, gradOut *tensors.Tensor) {
	probs, labels := inputs[0], inputs[1]
	batch, classes := lossDims(node, probs, labels)
	gradIn := b.scratchBuffer(batch * classes)
	kernels.CrossEntropyLossBackward(probs.Flat(), labels.Flat(), gradOut.Flat()[0], gradIn, batch, classes)
	b.accumulateInputGrad(node, 0, gradIn)
}

func execSoftmaxCrossEntropyLoss(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor) *tensors.Tensor {
	logits, labels := inputs[0], inputs[1]
	batch, classes := lossDims(node, logits, labels)
	probs := b.auxSlot(node, batch, classes)
	output := b.memSlot(node)
	output.Flat()[0] = kernels.SoftmaxCrossEntropyForward(logits.Flat(), labels.Flat(), probs.Flat(), batch, classes)
	b.ctx.caches[node.Position()] = probs
	return output
}

func execSoftmaxCrossEntropyLossBackward(b *CPUBackend, node *graph.Node, inputs []*tensors.Tensor, gradOut *tensors.Tensor) {
	logits, labels := inputs[0], inputs[1]
	batch, classes := lossDims(node, logits, labels)
	probs := b.ctx.caches[node.Position()].(*tensors.Tensor)
	gradIn := b.scratchBuffer(batch * classes)
	kernels.SoftmaxCrossEntropyBackward(probs.Flat(), labels.Flat(), gradOut.Flat()[0], gradIn, batch, classes)
	b.accumulateInputGrad(node, 0, gradIn)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/exceptions"
)

// BatchNormAttributes are the hyperparameters of an OpTypeBatchNorm1D node.
type BatchNormAttributes struct {
	// Epsilon is added to the variance before taking the square root. It must be > 0.
	Epsilon float32

	// Alpha is the weight of the previous value when updating the running statistics,
	// running = running·Alpha + batchStat·(1−Alpha). It must be in [0, 1).
	Alpha float32
}

// validateBuildingGraphFromInputs checks that all inputs are valid and from the same graph, which must still
// be in building phase. It returns the Graph.
func validateBuildingGraphFromInputs(opType OpType, inputs ...*Node) *Graph {
	var g *Graph
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("%s: input #%d is nil", opType, ii)
		}
		if g == nil {
			g = input.graph
		} else if input.graph != g {
			exceptions.Panicf("%s: input #%d is from graph %q, but input #0 is from graph %q",
				opType, ii, input.graph.name, g.name)
		}
	}
	g.assertBuilding()
	return g
}

// validateParameter panics if p is nil or its data doesn't have the given rank.
func validateParameter(opType OpType, role string, p *params.Parameter, rank int) {
	if p == nil {
		exceptions.Panicf("%s: %s parameter is nil", opType, role)
	}
	if p.Data.Rank() != rank {
		exceptions.Panicf("%s: %s parameter %q must have rank %d, got shape %s", opType, role, p.Name, rank, p.Data.Shape())
	}
}

func newOpNode(opType OpType, parameters params.Parameters, inputs ...*Node) *Node {
	g := validateBuildingGraphFromInputs(opType, inputs...)
	return g.registerNode(&Node{
		opType: opType,
		inputs: inputs,
		params: parameters,
	})
}

// Linear computes the affine transformation x·wᵀ + b.
//
// x must be shaped [batch, inFeatures] at execution time, w must be shaped [outFeatures, inFeatures] and
// b, if not nil, [outFeatures]. The output is shaped [batch, outFeatures].
func Linear(x *Node, w, b *params.Parameter) *Node {
	validateParameter(OpTypeLinear, "weights", w, 2)
	parameters := params.Parameters{w}
	if b != nil {
		validateParameter(OpTypeLinear, "bias", b, 1)
		if b.Data.Dim(0) != w.Data.Dim(0) {
			exceptions.Panicf("Linear: bias %q shape %s doesn't match weights %q shape %s",
				b.Name, b.Data.Shape(), w.Name, w.Data.Shape())
		}
		parameters = append(parameters, b)
	}
	return newOpNode(OpTypeLinear, parameters, x)
}

// ReLU returns max(0, x) elementwise.
func ReLU(x *Node) *Node {
	return newOpNode(OpTypeReLU, nil, x)
}

// Softmax returns the softmax of each row of x, shaped [batch, features].
func Softmax(x *Node) *Node {
	return newOpNode(OpTypeSoftmax, nil, x)
}

// BatchNorm1D normalizes x, shaped [batch, features], across the batch.
//
// gamma (scale) and beta (offset) are usually trainable, while runningMean and runningVar hold the
// statistics used in inference mode and should not be trainable: they are updated by the forward pass
// in training mode. All 4 must be shaped [features].
//
// See also package layers/batchnorm, which creates the parameters.
func BatchNorm1D(x *Node, gamma, beta, runningMean, runningVar *params.Parameter, epsilon, alpha float32) *Node {
	parameters := params.Parameters{gamma, beta, runningMean, runningVar}
	for ii, role := range []string{"gamma", "beta", "running mean", "running variance"} {
		validateParameter(OpTypeBatchNorm1D, role, parameters[ii], 1)
		if parameters[ii].Data.Size() != gamma.Data.Size() {
			exceptions.Panicf("BatchNorm1D: %s parameter %q shape %s doesn't match gamma shape %s",
				role, parameters[ii].Name, parameters[ii].Data.Shape(), gamma.Data.Shape())
		}
	}
	if !(epsilon > 0) {
		exceptions.Panicf("BatchNorm1D: epsilon must be > 0, got %g", epsilon)
	}
	if alpha < 0 || alpha >= 1 {
		exceptions.Panicf("BatchNorm1D: alpha must be in [0, 1), got %g", alpha)
	}
	node := newOpNode(OpTypeBatchNorm1D, parameters, x)
	node.data = &BatchNormAttributes{Epsilon: epsilon, Alpha: alpha}
	return node
}

// CrossEntropyLoss returns the scalar mean negative log-likelihood of the labels given probabilities.
//
// probs must be shaped [batch, classes] and be already normalized (e.g. the output of Softmax).
// labels, shaped [batch], hold the class index of each example stored as float32.
// No gradient is propagated to the labels.
func CrossEntropyLoss(probs, labels *Node) *Node {
	return newOpNode(OpTypeCrossEntropyLoss, nil, probs, labels)
}

// SoftmaxCrossEntropyLoss is equivalent to CrossEntropyLoss(Softmax(logits), labels), but its gradient with
// respect to logits is computed directly as (softmax(logits) − onehot(labels))/batch.
func SoftmaxCrossEntropyLoss(logits, labels *Node) *Node {
	return newOpNode(OpTypeSoftmaxCrossEntropyLoss, nil, logits, labels)
}

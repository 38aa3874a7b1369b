// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
)

// labelIndex truncates a label stored as float to its class index, checking its range.
func labelIndex(label float32, sample, classes int) int {
	class := int(label)
	if class < 0 || class >= classes {
		exceptions.Panicf("label %g for sample %d is out of range for %d classes", label, sample, classes)
	}
	return class
}

// CrossEntropyLossForward returns −(1/batch)·Σ_i log(probs[i, labels[i]]).
//
// probs ([batch, classes]) must be already softmax-normalized, with strictly positive values at the
// labels' columns: a zero probability yields +Inf. labels ([batch]) holds class indices stored as
// float32, truncated to int. It panics if a label is out of range.
func CrossEntropyLossForward(probs, labels []float32, batch, classes int) float32 {
	var loss float32
	for i := range batch {
		class := labelIndex(labels[i], i, classes)
		loss -= math32.Log(probs[i*classes+class])
	}
	return loss / float32(batch)
}

// CrossEntropyLossBackward zeroes gradIn ([batch, classes]) and sets, for each sample,
// gradIn[i, labels[i]] = −scale/(probs[i, labels[i]]·batch).
//
// scale is the upstream gradient of the loss, 1 when the loss is the final output.
func CrossEntropyLossBackward(probs, labels []float32, scale float32, gradIn []float32, batch, classes int) {
	clear(gradIn[:batch*classes])
	n := float32(batch)
	for i := range batch {
		idx := i*classes + labelIndex(labels[i], i, classes)
		gradIn[idx] -= scale / (probs[idx] * n)
	}
}

// SoftmaxCrossEntropyForward computes the softmax of logits ([batch, classes]) into probs, and returns
// the cross-entropy loss of probs with respect to labels. It is equivalent to SoftmaxForward followed by
// CrossEntropyLossForward.
func SoftmaxCrossEntropyForward(logits, labels, probs []float32, batch, classes int) float32 {
	SoftmaxForward(logits, probs, batch, classes)
	return CrossEntropyLossForward(probs, labels, batch, classes)
}

// SoftmaxCrossEntropyBackward sets gradIn = scale·(probs − onehot(labels))/batch, the gradient with respect
// to the logits, where probs is the softmax computed by SoftmaxCrossEntropyForward.
//
// It is mathematically equal to chaining CrossEntropyLossBackward and SoftmaxBackward, but it doesn't
// divide by the probabilities.
func SoftmaxCrossEntropyBackward(probs, labels []float32, scale float32, gradIn []float32, batch, classes int) {
	n := float32(batch)
	for i := range batch {
		class := labelIndex(labels[i], i, classes)
		row := probs[i*classes : (i+1)*classes]
		gRow := gradIn[i*classes : (i+1)*classes]
		for j, p := range row {
			if j == class {
				p -= 1
			}
			gRow[j] = scale * p / n
		}
	}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizer implements the parameter update rules applied after each backward pass.
//
// Optimizers never zero the gradients: that is the responsibility of the training loop, usually
// right before the next backward pass (see params.Parameters.ZeroGrad).
package optimizer

import (
	"maps"
	"slices"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Interface implemented by optimizers.
//
// The set of optimizers is closed: implementations live in this package.
type Interface interface {
	// Step updates the data of every trainable parameter using its accumulated gradient.
	Step(parameters params.Parameters)

	// LearningRate currently in use.
	LearningRate() float32

	// SetLearningRate changes the learning rate for the following steps.
	SetLearningRate(lr float32)

	isOptimizer()
}

// KnownOptimizers maps optimizer names to their constructors, given the learning rate.
var KnownOptimizers = map[string]func(lr float32) Interface{
	"sgd": func(lr float32) Interface { return NewSGD(lr) },
}

// ByName returns the optimizer with the given name (see KnownOptimizers).
func ByName(name string, lr float32) (Interface, error) {
	ctor, found := KnownOptimizers[name]
	if !found {
		names := slices.Sorted(maps.Keys(KnownOptimizers))
		return nil, errors.Errorf("unknown optimizer %q, valid values are %q", name, names)
	}
	return ctor(lr), nil
}

// Step applies one plain gradient descent update, data[i] -= lr·grad[i], to every trainable parameter.
// Non-trainable parameters (frozen layers, running statistics) are skipped.
func Step(parameters params.Parameters, lr float32) {
	for _, p := range parameters {
		if !p.Trainable {
			continue
		}
		StepTensor(p.Data, p.Grad, lr)
	}
}

// StepTensor applies w -= lr·dw for a single pair of contiguous tensors of the same size.
func StepTensor(w, dw *tensors.Tensor, lr float32) {
	if w.Size() != dw.Size() {
		exceptions.Panicf("optimizer.StepTensor: weights %s and gradient %s have different sizes", w.Shape(), dw.Shape())
	}
	grad := dw.Flat()
	data := w.Flat()
	for i, g := range grad {
		data[i] -= lr * g
	}
}

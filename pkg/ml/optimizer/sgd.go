// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/exceptions"
)

// SGD is the stochastic gradient descent optimizer, with a fixed (but adjustable) learning rate.
type SGD struct {
	learningRate float32
}

var _ Interface = (*SGD)(nil)

// NewSGD creates a stochastic gradient descent optimizer. The learning rate must be > 0.
func NewSGD(lr float32) *SGD {
	sgd := &SGD{}
	sgd.SetLearningRate(lr)
	return sgd
}

// LearningRate implements optimizer.Interface.
func (sgd *SGD) LearningRate() float32 { return sgd.learningRate }

// SetLearningRate implements optimizer.Interface. It panics if lr <= 0.
func (sgd *SGD) SetLearningRate(lr float32) {
	if !(lr > 0) {
		exceptions.Panicf("SGD learning rate must be > 0, got %g", lr)
	}
	sgd.learningRate = lr
}

// Step implements optimizer.Interface.
func (sgd *SGD) Step(parameters params.Parameters) {
	Step(parameters, sgd.learningRate)
}

func (sgd *SGD) isOptimizer() {}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer provides the functions used to create the initial values of parameters.
//
// Random initializers sample from gonum's stat/distuv distributions, driven by a math/rand/v2 source:
// use NewSource with a fixed seed for reproducible models.
package initializer

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer returns a new owned tensor with the given shape, to be used as the initial value of a parameter.
type Initializer func(shape shapes.Shape) *tensors.Tensor

var (
	// Zero initializes parameters with zero.
	Zero Initializer = func(shape shapes.Shape) *tensors.Tensor {
		return tensors.FromShape(shape)
	}

	// One initializes parameters with one.
	One Initializer = func(shape shapes.Shape) *tensors.Tensor {
		return tensors.FromScalarAndDimensions(1, shape.Dimensions...)
	}
)

// NewSource returns a deterministic random source for the given seed.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// sample fills a new tensor with the given shape with values drawn from rander.
func sample(shape shapes.Shape, rander distuv.Rander) *tensors.Tensor {
	t := tensors.FromShape(shape)
	flat := t.Flat()
	for ii := range flat {
		flat[ii] = float32(rander.Rand())
	}
	return t
}

// Constant returns an initializer that fills the parameter with value.
func Constant(value float32) Initializer {
	return func(shape shapes.Shape) *tensors.Tensor {
		return tensors.FromScalarAndDimensions(value, shape.Dimensions...)
	}
}

// Normal returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func Normal(src rand.Source, stddev float64) Initializer {
	return func(shape shapes.Shape) *tensors.Tensor {
		return sample(shape, distuv.Normal{Mu: 0, Sigma: stddev, Src: src})
	}
}

// Uniform returns an initializer that generates random uniform values from [min, max).
func Uniform(src rand.Source, minValue, maxValue float64) Initializer {
	return func(shape shapes.Shape) *tensors.Tensor {
		return sample(shape, distuv.Uniform{Min: minValue, Max: maxValue, Src: src})
	}
}

// computeFanInFanOut of a parameter expected to be the weights of a linear layer, shaped
// `[outFeatures, inFeatures]`.
func computeFanInFanOut(shape shapes.Shape) (fanIn, fanOut int) {
	switch shape.Rank() {
	case 0: // Scalar.
		fanIn = 1
		fanOut = fanIn
	case 1: // 1D shape, like a bias term in a linear layer.
		fanIn = 0
		fanOut = fanIn
	default:
		fanOut = shape.Dimensions[0]
		fanIn = shape.Size() / fanOut
	}
	return
}

// GlorotUniform returns a Glorot uniform initializer, also called Xavier uniform initializer.
//
// It draws samples from a uniform distribution within `[-limit, limit]`, where
// `limit = sqrt(6 / (fan_in + fan_out))` (`fan_in` is the number of input units in
// the weight tensor and fan_out is the number of output units).
//
// It initializes biases (anything with rank <= 1) to zeros.
func GlorotUniform(src rand.Source) Initializer {
	return func(shape shapes.Shape) *tensors.Tensor {
		if shape.Rank() <= 1 {
			// Zero-bias.
			return Zero(shape)
		}
		fanIn, fanOut := computeFanInFanOut(shape)
		scale := max(1.0, float64(fanIn+fanOut))
		limit := math.Sqrt(6.0 / scale)
		return sample(shape, distuv.Uniform{Min: -limit, Max: limit, Src: src})
	}
}

// He returns the initializer that tries to preserve the variance of 1, calculated for the ReLU activation functions.
//
// It initializes biases (anything with rank <= 1) to zeros.
//
// [1] https://arxiv.org/pdf/1502.01852
func He(src rand.Source) Initializer {
	return func(shape shapes.Shape) *tensors.Tensor {
		if shape.Rank() <= 1 {
			// Zero-bias.
			return Zero(shape)
		}
		fanIn, _ := computeFanInFanOut(shape)
		scale := max(1.0, float64(fanIn))
		return sample(shape, distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / scale), Src: src})
	}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layers holds common layers used to build models: they create their parameters in a
// context.Context and return the graph nodes that apply them.
package layers

import (
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/gomlx/deepworks/pkg/ml/initializer"
	. "github.com/gomlx/exceptions"
)

// Dense adds a fully connected layer to x, shaped `[batch, inputFeatures]`, returning a node shaped
// `[batch, outputFeatures]`.
//
// It creates the variables "weights" (shaped `[outputFeatures, inputFeatures]`, with the context initializer)
// and, if useBias is true, "biases" (initialized with zeros) in the current scope of ctx.
func Dense(ctx *context.Context, x *graph.Node, inputFeatures, outputFeatures int, useBias bool) *graph.Node {
	if inputFeatures <= 0 || outputFeatures <= 0 {
		Panicf("layers.Dense: inputFeatures (%d) and outputFeatures (%d) must be > 0", inputFeatures, outputFeatures)
	}
	weights := ctx.VariableWithShape("weights", shapes.Float32(outputFeatures, inputFeatures))
	if !useBias {
		return graph.Linear(x, weights, nil)
	}
	biases := ctx.WithInitializer(initializer.Zero).VariableWithShape("biases", shapes.Float32(outputFeatures))
	return graph.Linear(x, weights, biases)
}

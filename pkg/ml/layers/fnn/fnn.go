// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fnn implements a generic FNN (Feedforward Neural Network) with various configurations.
//
// It also provides support for various hyperparameter configuration -- so the defaults can be given by
// the context parameters.
//
// E.g: A FNN for a multi-class classification model with numClasses classes, taking numFeatures inputs.
//
//	logits := fnn.New(ctx.In("model"), x, numFeatures, numClasses).
//		NumHiddenLayers(2, 32).
//		Normalization("batch").
//		Done()
//	loss := graph.SoftmaxCrossEntropyLoss(logits, labels)
package fnn

import (
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/gomlx/deepworks/pkg/ml/layers"
	. "github.com/gomlx/exceptions"
)

const (
	// ParamNumHiddenLayers is the hyperparameter that defines the default number of hidden layers.
	// The default is 0 (int), so no hidden layers.
	ParamNumHiddenLayers = "fnn_num_hidden_layers"

	// ParamNumHiddenNodes is the hyperparameter that defines the default number of hidden nodes per hidden layer.
	// The default is 10 (int).
	ParamNumHiddenNodes = "fnn_num_hidden_nodes"

	// ParamNormalization is the name of the normalization to use in between layers.
	// It is only applied if there are hidden layers.
	// See layers.KnownNormalizers: "batch" and "none" are the valid values.
	//
	// Defaults to the parameter "normalization" (layers.ParamNormalization) and if that is not set, to "none".
	ParamNormalization = "fnn_normalization"

	// ParamActivation is the name of the activation used in between layers: "relu" (the default) or "none".
	ParamActivation = "activation"
)

// Config is created with New and can be configured with its methods, or simply setting the corresponding
// hyperparameters in the context.
type Config struct {
	ctx                             *context.Context
	input                           *graph.Node
	inputFeatures, numOutputs       int
	numHiddenLayers, numHiddenNodes int
	activation                      string
	normalization                   string
	useBias                         bool
}

// New creates a configuration for a FNN (Feedforward Neural Network).
// This can be further configured through various methods and when finished,
// call Done to actually add the FNN computation graph and get the output.
//
// The input is expected to have shape `[batch, inputFeatures]`, the output will have
// shape `[batch, numOutputs]`.
//
// Configuration options have defaults, but can also be configured through hyperparameters
// set in the context. See corresponding configuration methods for details.
func New(ctx *context.Context, input *graph.Node, inputFeatures, numOutputs int) *Config {
	if inputFeatures <= 0 || numOutputs <= 0 {
		Panicf("fnn: inputFeatures (%d) and numOutputs (%d) must be > 0", inputFeatures, numOutputs)
	}
	c := &Config{
		ctx:             ctx,
		input:           input,
		inputFeatures:   inputFeatures,
		numOutputs:      numOutputs,
		numHiddenLayers: context.GetParamOr(ctx, ParamNumHiddenLayers, 0),
		numHiddenNodes:  context.GetParamOr(ctx, ParamNumHiddenNodes, 10),
		activation:      context.GetParamOr(ctx, ParamActivation, "relu"),
		normalization:   context.GetParamOr(ctx, ParamNormalization, ""),
		useBias:         true,
	}
	if c.normalization == "" {
		c.normalization = context.GetParamOr(ctx, layers.ParamNormalization, "none")
	}
	return c
}

// NumHiddenLayers configure the number of hidden layers between the input and the output.
// Each layer will have numHiddenNodes nodes.
//
// The default is 0 (no hidden layers), but it will be overridden if the hyperparameter
// ParamNumHiddenLayers is set in the context (ctx).
// The value for numHiddenNodes can also be configured with the hyperparameter ParamNumHiddenNodes.
func (c *Config) NumHiddenLayers(numLayers, numHiddenNodes int) *Config {
	if numLayers < 0 || (numLayers > 0 && numHiddenNodes < 1) {
		Panicf("fnn: numHiddenLayers (%d) must be greater or equal to 0 and numHiddenNodes (%d) must be greater or equal to 1",
			numLayers, numHiddenNodes)
	}
	c.numHiddenLayers = numLayers
	c.numHiddenNodes = numHiddenNodes
	return c
}

// UseBias configures whether to add a bias term to each node.
// Almost always you want this to be true, and that is the default.
func (c *Config) UseBias(useBias bool) *Config {
	c.useBias = useBias
	return c
}

// Activation sets the activation for the FNN, in between each layer: "relu" or "none".
// The input and output layers don't get an activation layer.
//
// The default is "relu", but it can be overridden by setting the hyperparameter ParamActivation in the context.
func (c *Config) Activation(activation string) *Config {
	if activation != "relu" && activation != "none" {
		Panicf("fnn: unknown activation %q, valid values are \"relu\" or \"none\"", activation)
	}
	c.activation = activation
	return c
}

// Normalization sets the normalization type to use in between layers.
// The input and output layers don't get a normalization layer.
//
// The default is "none", but it can be overridden by setting the hyperparameter ParamNormalization (="fnn_normalization")
// in the context.
func (c *Config) Normalization(normalization string) *Config {
	_, found := layers.KnownNormalizers[normalization]
	if normalization != "" && !found {
		Panicf("fnn: unknown normalization %q given: valid values are %q or \"\"",
			normalization, layers.KnownNormalizerNames())
	}
	c.normalization = normalization
	return c
}

// Done takes the configuration and apply the FNN as configured.
func (c *Config) Done() *graph.Node {
	ctx := c.ctx
	x := c.input
	features := c.inputFeatures
	for ii := range c.numHiddenLayers + 1 {
		outputFeatures := c.numHiddenNodes
		var layerCtx *context.Context
		if ii < c.numHiddenLayers {
			layerCtx = ctx.Inf("fnn_hidden_layer_%d", ii)
		} else {
			layerCtx = ctx.In("fnn_output_layer")
			outputFeatures = c.numOutputs
		}

		// In between-layers: they don't apply to the input (ii == 0)
		if ii > 0 {
			if c.activation == "relu" {
				x = graph.ReLU(x)
			}
			x = layers.MustNormalizeByName(layerCtx, c.normalization, x, features)
		}
		x = layers.Dense(layerCtx, x, features, outputFeatures, c.useBias)
		features = outputFeatures
	}
	return x
}

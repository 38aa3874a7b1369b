// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package batchnorm implements a batch normalization layer, and associated tools.
// It's a very common normalization technique that greatly facilitates training of deeper models.
//
// See details and examples in New.
//
// Based on paper "Batch Normalization: Accelerating Deep Network Training by Reducing
// Internal Covariate Shift" (Sergey Ioffe, Christian Szegedy), https://arxiv.org/abs/1502.03167.
package batchnorm

import (
	"strings"

	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/gomlx/deepworks/pkg/ml/initializer"
	. "github.com/gomlx/exceptions"
)

// Config for a batch normalization layer.
// Create it with New, set the desired parameters, and when all is set, call Done.
type Config struct {
	ctx               *context.Context
	x                 *graph.Node
	numFeatures       int
	momentum, epsilon float64
	center, scale     bool
	newScope          bool
	trainable         bool
}

const (
	// BatchNormalizationScopeName is used as sub-scope for all batch normalization variables.
	BatchNormalizationScopeName = "batch_normalization"

	// ParamMomentum is the context hyperparameter with the default momentum (float64).
	// If not set, it defaults to DefaultMomentum.
	ParamMomentum = "batch_normalization_momentum"

	// ParamEpsilon is the context hyperparameter with the default epsilon (float64).
	// If not set, it defaults to DefaultEpsilon.
	ParamEpsilon = "batch_normalization_epsilon"

	DefaultMomentum = 0.9
	DefaultEpsilon  = 1e-5
)

// New creates a builder of a batch normalization layer on the input x, shaped `[batch, numFeatures]`.
// It includes a scaling and offset factor, and normalization over the batch entries: each feature is
// normalized independently.
// It maintains a moving average mean and variance of the inputs which is later used during inference.
//
// To ease setting its parameters, it returns a Config object for configuration. Once it is
// set up call `Config.Done` and it will return the normalized x. E.g.:
//
//	x = batchnorm.New(ctx, x, 64).Momentum(0.99).Done()
//
// Batch normalization behaves differently during training and inference (see backends.Backend.SetTraining):
// during training it normalizes over the batch (so it likely won't work well for very small batch sizes),
// and in inference, it normalizes using the collected moving average of the mean and variance.
func New(ctx *context.Context, x *graph.Node, numFeatures int) *Config {
	if numFeatures <= 0 {
		Panicf("batchnorm.New: numFeatures must be > 0, got %d", numFeatures)
	}
	return &Config{
		ctx:         ctx,
		x:           x,
		numFeatures: numFeatures,
		momentum:    context.GetParamOr(ctx, ParamMomentum, DefaultMomentum),
		epsilon:     context.GetParamOr(ctx, ParamEpsilon, DefaultEpsilon),
		center:      true,
		scale:       true,
		newScope:    true,
		trainable:   true,
	}
}

// Momentum sets the moment of the moving averages collected for the mean and variance of the values:
// `running = running·momentum + batch·(1-momentum)`. It must be in [0, 1).
//
// The default is 0.9 (PyTorch's equivalent momentum of 0.1), or the value of ParamMomentum in the context.
func (builder *Config) Momentum(value float64) *Config {
	builder.momentum = value
	return builder
}

// Epsilon is a small float added to variance to avoid dividing by zero. It must be > 0.
// It defaults to 1e-5, or the value of ParamEpsilon in the context.
func (builder *Config) Epsilon(value float64) *Config {
	builder.epsilon = value
	return builder
}

// Center defines whether the batch normalization tries to center the input by adding a learned offset.
// Default to true.
//
// This is also called the β (beta) parameter, and referred to as a "learnable offset".
func (builder *Config) Center(value bool) *Config {
	builder.center = value
	return builder
}

// Scale defines whether the batch normalization tries to scale the input by adding a learned scale. Default to true.
//
// This is also called the γ (gamma) parameter.
func (builder *Config) Scale(value bool) *Config {
	builder.scale = value
	return builder
}

// CurrentScope configures New not to create a new sub-scope named BatchNormalizationScopeName for its variables.
// This allows more control on scope names, but it breaks things that rely on batch normalization variables to be under
// BatchNormalizationScopeName (e.g.: ResetAverages).
func (builder *Config) CurrentScope() *Config {
	builder.newScope = false
	return builder
}

// Trainable defines whether the scale and offset of the batch normalization are trainable.
// If set to `false` they are frozen. The running averages are still updated in training mode.
// The default is `true`.
func (builder *Config) Trainable(trainable bool) *Config {
	builder.trainable = trainable
	return builder
}

// Done creates the variables and returns the BatchNorm1D node normalizing the input.
//
// Variables created: "scale" (γ, initialized to 1), "offset" (β, initialized to 0) and the non-trainable
// running statistics "mean" (initialized to 0) and "variance" (initialized to 1).
func (builder *Config) Done() *graph.Node {
	ctx := builder.ctx
	if builder.newScope {
		ctx = ctx.In(BatchNormalizationScopeName)
	}
	varShape := shapes.Float32(builder.numFeatures)
	scale := ctx.WithInitializer(initializer.One).VariableWithShape("scale", varShape)
	scale.Trainable = builder.trainable && builder.scale
	offset := ctx.WithInitializer(initializer.Zero).VariableWithShape("offset", varShape)
	offset.Trainable = builder.trainable && builder.center
	mean := ctx.WithInitializer(initializer.Zero).VariableWithShape("mean", varShape)
	mean.Trainable = false
	variance := ctx.WithInitializer(initializer.One).VariableWithShape("variance", varShape)
	variance.Trainable = false
	return graph.BatchNorm1D(builder.x, scale, offset, mean, variance, float32(builder.epsilon), float32(builder.momentum))
}

// ResetAverages resets the running mean and variance of all batch normalization layers created under
// the BatchNormalizationScopeName scope: mean to 0 and variance to 1.
//
// It returns the number of layers reset.
func ResetAverages(ctx *context.Context) (count int) {
	suffix := context.ScopeSeparator + BatchNormalizationScopeName
	for _, v := range ctx.Parameters() {
		scope, name := context.SplitScope(v.Name)
		if !strings.HasSuffix(scope, suffix) {
			continue
		}
		switch name {
		case "mean":
			v.Data.Fill(0)
			count++
		case "variance":
			v.Data.Fill(1)
		}
	}
	return
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"maps"
	"slices"

	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/gomlx/deepworks/pkg/ml/layers/batchnorm"
	. "github.com/gomlx/exceptions"
)

// Normalizer applies a normalization to input, shaped `[batch, numFeatures]`.
type Normalizer func(ctx *context.Context, input *graph.Node, numFeatures int) *graph.Node

var (
	// KnownNormalizers is a map of normalizer string to a function that applies them
	// with the default values.
	//
	// It includes "none", which is a no-op.
	//
	// Notice that some normalizers use variables, and they need to be unique
	// in their scope (`Context.In(scope)`).
	KnownNormalizers = map[string]Normalizer{
		"batch": func(ctx *context.Context, input *graph.Node, numFeatures int) *graph.Node {
			return batchnorm.New(ctx, input, numFeatures).Done()
		},
		"none": func(_ *context.Context, input *graph.Node, _ int) *graph.Node {
			return input
		},
	}

	// ParamNormalization context hyperparameter defines the type of normalization to use
	// between layers of a neural network. Valid values are the keys of KnownNormalizers.
	//
	// The default is "none".
	ParamNormalization = "normalization"
)

// KnownNormalizerNames returns the sorted names of KnownNormalizers.
func KnownNormalizerNames() []string {
	return slices.Sorted(maps.Keys(KnownNormalizers))
}

// MustNormalizeByName applies the requested normalization using default parameters. If
// an invalid normalization is given, it panics with an error. "" is the same as "none".
func MustNormalizeByName(ctx *context.Context, normalization string, input *graph.Node, numFeatures int) *graph.Node {
	if normalization == "" {
		normalization = "none"
	}
	normFn, found := KnownNormalizers[normalization]
	if !found {
		Panicf("unsupported normalization %q given, valid values are %q", normalization, KnownNormalizerNames())
	}
	return normFn(ctx, input, numFeatures)
}

// NormalizeFromContext applies a normalization (or none) according to the hyperparameter
// ParamNormalization configured in the context.
func NormalizeFromContext(ctx *context.Context, input *graph.Node, numFeatures int) *graph.Node {
	return MustNormalizeByName(ctx, context.GetParamOr(ctx, ParamNormalization, "none"), input, numFeatures)
}

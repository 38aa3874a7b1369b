// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"testing"

	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/initializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopes(t *testing.T) {
	ctx := New()
	require.Equal(t, RootScope, ctx.Scope())
	ctx2 := ctx.In("a").Inf("layer_%d", 1)
	require.Equal(t, "/a/layer_1", ctx2.Scope())
	require.Equal(t, RootScope, ctx.Scope(), "In must not change the original reference")
	require.Equal(t, "/b", ctx2.InAbsPath("/b").Scope())
	require.Panics(t, func() { ctx.In("") })
	require.Panics(t, func() { ctx.In("a/b") })
	require.Panics(t, func() { ctx.InAbsPath("a") })

	require.Equal(t, "/a/x", JoinScope("/a", "x"))
	require.Equal(t, "/x", JoinScope("/", "x"))
	require.Equal(t, "x", JoinScope("", "x"))
	scope, name := SplitScope("/a/b/x")
	require.Equal(t, "/a/b", scope)
	require.Equal(t, "x", name)
	scope, name = SplitScope("/x")
	require.Equal(t, RootScope, scope)
	require.Equal(t, "x", name)
	scope, name = SplitScope("x")
	require.Equal(t, "", scope)
	require.Equal(t, "x", name)
}

func TestParams(t *testing.T) {
	ctx := New()
	ctx.SetParam("learning_rate", 0.1)
	ctx.SetParam("num_layers", 2)
	ctx.In("fnn").SetParams(map[string]any{"num_layers": 3})

	assert.Equal(t, 0.1, GetParamOr(ctx.In("fnn"), "learning_rate", 0.0))
	assert.Equal(t, 3, GetParamOr(ctx.In("fnn").In("hidden"), "num_layers", 0))
	assert.Equal(t, 2, GetParamOr(ctx.In("other"), "num_layers", 0))
	assert.Equal(t, "relu", GetParamOr(ctx, "activation", "relu"))

	// Conversions.
	assert.Equal(t, float32(0.1), GetParamOr(ctx, "learning_rate", float32(0)))
	assert.Equal(t, 2.0, MustGetParam[float64](ctx, "num_layers"))
	assert.Panics(t, func() { MustGetParam[float64](ctx, "unknown") })
	ctx.SetParam("name", "blobs")
	assert.Panics(t, func() { MustGetParam[float64](ctx, "name") })

	var keys []string
	ctx.EnumerateParams(func(scope, key string, value any) {
		keys = append(keys, JoinScope(scope, key))
	})
	assert.Equal(t, []string{"/learning_rate", "/name", "/num_layers", "/fnn/num_layers"}, keys)
}

func TestVariables(t *testing.T) {
	ctx := New()
	w := ctx.In("dense").VariableWithShape("weights", shapes.Float32(3, 2))
	require.Equal(t, "/dense/weights", w.Name)
	require.True(t, w.Trainable)
	require.Equal(t, []int{3, 2}, w.Data.Shape().Dimensions)
	require.Equal(t, []int{3, 2}, w.Grad.Shape().Dimensions)

	// GlorotUniform by default: limit is sqrt(6/5).
	for _, v := range w.Data.Flat() {
		require.InDelta(t, 0, v, 1.0955)
	}
	b := ctx.In("dense").WithInitializer(initializer.One).VariableWithShape("bias", shapes.Float32(3))
	require.Equal(t, []float32{1, 1, 1}, b.Data.Flat())

	// Checked: no silent duplicates, and reuse requires existing variables.
	require.Panics(t, func() { ctx.In("dense").VariableWithShape("weights", shapes.Float32(3, 2)) })
	require.Same(t, w, ctx.In("dense").Reuse().VariableWithShape("weights", shapes.Float32(3, 2)))
	require.Panics(t, func() { ctx.In("dense").Reuse().VariableWithShape("weights", shapes.Float32(2, 2)) })
	require.Panics(t, func() { ctx.Reuse().VariableWithShape("missing", shapes.Float32(2)) })
	require.Same(t, w, ctx.In("dense").Checked(false).VariableWithShape("weights", shapes.Float32(3, 2)))

	value := tensors.FromValue([]float32{0, 1})
	mean := ctx.In("bn").VariableWithValue("mean", value)
	mean.Trainable = false
	value.Set(7, 0)
	require.Equal(t, []float32{0, 1}, mean.Data.Flat(), "VariableWithValue must copy the tensor")
	require.Same(t, mean, ctx.In("bn").GetVariable("mean"))
	require.Nil(t, ctx.GetVariable("mean"))

	require.Equal(t, 3, ctx.NumVariables())
	require.Equal(t, 6+3+2, ctx.NumParameters())
	require.Equal(t, uintptr(4*11), ctx.Memory())
	require.Len(t, ctx.Parameters().Trainable(), 2)
}

func TestSeed(t *testing.T) {
	newValues := func(seed int) []float32 {
		ctx := New()
		ctx.SetParam(ParamInitialSeed, seed)
		return ctx.VariableWithShape("w", shapes.Float32(4, 4)).Data.Flat()
	}
	require.Equal(t, newValues(7), newValues(7))
	require.NotEqual(t, newValues(7), newValues(8))
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package batchnorm

import (
	"testing"

	"github.com/gomlx/deepworks/backends/cpu"
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.New()
	g := graph.New("batchnorm")
	x := g.Input("x")
	node := New(ctx, x, 3).Done()
	require.Equal(t, graph.OpTypeBatchNorm1D, node.Type())
	assert.InDelta(t, DefaultEpsilon, node.BatchNorm().Epsilon, 1e-9)
	assert.InDelta(t, DefaultMomentum, node.BatchNorm().Alpha, 1e-6)

	ps := ctx.Parameters()
	require.Len(t, ps, 4)
	names := []string{"scale", "offset", "mean", "variance"}
	trainable := []bool{true, true, false, false}
	initial := []float32{1, 0, 0, 1}
	for ii, p := range ps {
		assert.Equal(t, "/batch_normalization/"+names[ii], p.Name)
		assert.Equal(t, trainable[ii], p.Trainable, "trainable %s", p.Name)
		assert.Equal(t, []float32{initial[ii], initial[ii], initial[ii]}, p.Data.Flat(), "initial value of %s", p.Name)
	}

	// Options and hyperparameters.
	ctx = context.New()
	ctx.SetParam(ParamMomentum, 0.5)
	node = New(ctx.In("a"), x, 3).Scale(false).Epsilon(1e-3).CurrentScope().Done()
	assert.InDelta(t, 1e-3, node.BatchNorm().Epsilon, 1e-9)
	assert.InDelta(t, 0.5, node.BatchNorm().Alpha, 1e-9)
	require.NotNil(t, ctx.In("a").GetVariable("scale"))
	assert.False(t, ctx.In("a").GetVariable("scale").Trainable)
	assert.True(t, ctx.In("a").GetVariable("offset").Trainable)

	node = New(ctx.In("b"), x, 3).Center(false).Trainable(false).Done()
	for _, p := range node.Parameters() {
		assert.False(t, p.Trainable, "%s should be frozen", p.Name)
	}

	require.Panics(t, func() { New(ctx.In("c"), x, 0) })
	require.Panics(t, func() { New(ctx.In("d"), x, 3).Momentum(1).Done() })
}

func TestResetAverages(t *testing.T) {
	ctx := context.New()
	g := graph.New("batchnorm")
	g.SetOutputs(New(ctx.In("layer"), g.Input("x"), 2).Momentum(0).Done())
	backend, err := cpu.New(g)
	require.NoError(t, err)
	backend.Forward([]*tensors.Tensor{tensors.FromValue([][]float32{{1, 10}, {3, 30}})},
		[]*tensors.Tensor{tensors.Zeros(2, 2)})

	mean := ctx.In("layer").In(BatchNormalizationScopeName).GetVariable("mean")
	variance := ctx.In("layer").In(BatchNormalizationScopeName).GetVariable("variance")
	require.Equal(t, []float32{2, 20}, mean.Data.Flat())
	require.Equal(t, []float32{1, 100}, variance.Data.Flat())

	require.Equal(t, 1, ResetAverages(ctx))
	require.Equal(t, []float32{0, 0}, mean.Data.Flat())
	require.Equal(t, []float32{1, 1}, variance.Data.Flat())
}

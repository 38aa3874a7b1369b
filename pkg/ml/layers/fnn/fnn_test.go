// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fnn

import (
	"testing"

	"github.com/gomlx/deepworks/backends/cpu"
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/gomlx/deepworks/pkg/ml/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variableNames(ctx *context.Context) []string {
	var names []string
	for _, p := range ctx.Parameters() {
		names = append(names, p.Name)
	}
	return names
}

func TestVanilla(t *testing.T) {
	ctx := context.New()
	g := graph.New("fnn")
	logits := New(ctx.In("model"), g.Input("x"), 2, 3).Done()
	require.Equal(t, graph.OpTypeLinear, logits.Type())
	require.Equal(t, []string{"/model/fnn_output_layer/weights", "/model/fnn_output_layer/biases"}, variableNames(ctx))
}

func TestHiddenLayers(t *testing.T) {
	ctx := context.New()
	ctx.SetParam(layers.ParamNormalization, "batch")
	g := graph.New("fnn")
	x, labels := g.Input("x"), g.Input("labels")
	logits := New(ctx.In("model"), x, 2, 3).NumHiddenLayers(2, 8).Done()
	g.SetOutputs(graph.SoftmaxCrossEntropyLoss(logits, labels), logits)

	require.Equal(t, []string{
		"/model/fnn_hidden_layer_0/weights", "/model/fnn_hidden_layer_0/biases",
		"/model/fnn_hidden_layer_1/batch_normalization/scale", "/model/fnn_hidden_layer_1/batch_normalization/offset",
		"/model/fnn_hidden_layer_1/batch_normalization/mean", "/model/fnn_hidden_layer_1/batch_normalization/variance",
		"/model/fnn_hidden_layer_1/weights", "/model/fnn_hidden_layer_1/biases",
		"/model/fnn_output_layer/batch_normalization/scale", "/model/fnn_output_layer/batch_normalization/offset",
		"/model/fnn_output_layer/batch_normalization/mean", "/model/fnn_output_layer/batch_normalization/variance",
		"/model/fnn_output_layer/weights", "/model/fnn_output_layer/biases",
	}, variableNames(ctx))
	assert.Equal(t, 2*8+8+4*8+8*8+8+4*8+8*3+3, ctx.NumParameters())
	assert.Len(t, ctx.Parameters().Trainable(), 10)

	backend, err := cpu.New(g)
	require.NoError(t, err)
	loss, output := tensors.Zeros(), tensors.Zeros(4, 3)
	backend.Forward([]*tensors.Tensor{
		tensors.FromValue([][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}),
		tensors.FromValue([]float32{0, 1, 2, 0}),
	}, []*tensors.Tensor{loss, output})
	require.Greater(t, loss.Value().(float32), float32(0))
}

func TestConfig(t *testing.T) {
	ctx := context.New()
	ctx.SetParam(ParamNumHiddenLayers, 1)
	ctx.SetParam(ParamNumHiddenNodes, 5)
	ctx.SetParam(ParamActivation, "none")
	g := graph.New("fnn")
	logits := New(ctx, g.Input("x"), 4, 2).UseBias(false).Done()
	// No activation and no normalization: two chained linear layers.
	require.Equal(t, graph.OpTypeLinear, logits.Type())
	require.Equal(t, graph.OpTypeLinear, logits.Inputs()[0].Type())
	require.Equal(t, 4*5+5*2, ctx.NumParameters())

	require.Panics(t, func() { New(ctx, g.Input("y"), 4, 2).Normalization("layer") })
	require.Panics(t, func() { New(ctx, g.Input("y"), 4, 2).Activation("swish") })
	require.Panics(t, func() { New(ctx, g.Input("y"), 4, 2).NumHiddenLayers(1, 0) })
	require.Panics(t, func() { New(ctx, g.Input("y"), 0, 2) })
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearParams(name string, in, out int) (w, b *params.Parameter) {
	w = params.New(name+"/weights", tensors.Zeros(out, in), true)
	b = params.New(name+"/bias", tensors.Zeros(out), true)
	return
}

func batchNormParams(features int) (gamma, beta, mean, variance *params.Parameter) {
	gamma = params.New("bn/gamma", tensors.FromScalarAndDimensions(1, features), true)
	beta = params.New("bn/beta", tensors.Zeros(features), true)
	mean = params.New("bn/running_mean", tensors.Zeros(features), false)
	variance = params.New("bn/running_var", tensors.FromScalarAndDimensions(1, features), false)
	return
}

func TestOpType(t *testing.T) {
	require.Equal(t, "BatchNorm1D", OpTypeBatchNorm1D.String())
	require.Equal(t, "SoftmaxCrossEntropyLoss", OpTypeSoftmaxCrossEntropyLoss.String())
	opType, err := OpTypeString("relu")
	require.NoError(t, err)
	require.Equal(t, OpTypeReLU, opType)
	require.Len(t, OpTypeValues(), int(OpTypeLast)+1)
}

func TestCompile(t *testing.T) {
	g := New("mlp")
	x, labels := g.Input("x"), g.Input("labels")
	w0, b0 := linearParams("dense0", 4, 8)
	gamma, beta, mean, variance := batchNormParams(8)
	w1, b1 := linearParams("dense1", 8, 3)

	h := Linear(x, w0, b0)
	h = BatchNorm1D(h, gamma, beta, mean, variance, 1e-5, 0.9)
	h = ReLU(h)
	logits := Linear(h, w1, nil)
	probs := Softmax(logits)
	loss := CrossEntropyLoss(probs, labels)
	unused := ReLU(x)
	g.SetOutputs(loss)
	require.NoError(t, g.Compile())
	require.True(t, g.IsCompiled())

	order := g.Order()
	require.Len(t, order, 8, "all nodes but the unused one")
	require.Equal(t, -1, unused.Position())
	for position, node := range order {
		require.Equal(t, position, node.Position())
		for _, input := range node.Inputs() {
			require.Less(t, input.Position(), position, "node %s must come after its input %s", node, input)
		}
	}
	require.Equal(t, loss, order[len(order)-1])

	ps := g.Parameters()
	require.Len(t, ps, 7)
	require.Equal(t, "dense0/weights", ps[0].Name)
	require.Equal(t, "dense1/weights", ps[6].Name)
	require.Len(t, ps.Trainable(), 5)
	require.Equal(t, float32(0.9), order[3].BatchNorm().Alpha)
	require.Contains(t, g.String(), "BatchNorm1D(#2) params=[bn/gamma, bn/beta, bn/running_mean, bn/running_var] epsilon=1e-05 alpha=0.9")

	// Frozen after compilation.
	require.NoError(t, g.Compile())
	require.Panics(t, func() { ReLU(x) })
	require.Panics(t, func() { g.Input("other") })
	require.Panics(t, func() { g.SetOutputs(probs) })
}

func TestCompileErrors(t *testing.T) {
	g := New("empty")
	g.Input("x")
	require.ErrorContains(t, g.Compile(), "no outputs")

	// Cycle introduced by rewiring.
	g = New("cycle")
	x := g.Input("x")
	a := ReLU(x)
	b := Softmax(a)
	a.ReplaceInput(0, b)
	g.SetOutputs(b)
	err := g.Compile()
	require.ErrorContains(t, err, "cycle")
	require.False(t, g.IsCompiled())
	require.Panics(t, func() { g.Order() })

	// Nodes from another graph.
	other := New("other")
	y := ReLU(other.Input("y"))
	g = New("foreign")
	g.SetOutputs(y)
	require.ErrorContains(t, g.Compile(), "another graph")

	g = New("foreign_input")
	z := ReLU(g.Input("z"))
	z.ReplaceInput(0, other.Input("w"))
	g.SetOutputs(z)
	require.ErrorContains(t, g.Compile(), "another graph")
}

func TestBuildingErrors(t *testing.T) {
	g0, g1 := New("g0"), New("g1")
	x0, x1 := g0.Input("x"), g1.Input("x")
	require.Panics(t, func() { CrossEntropyLoss(x0, x1) })
	require.Panics(t, func() { ReLU(nil) })
	require.Panics(t, func() { g0.SetOutputs() })

	w, b := linearParams("dense", 4, 3)
	_, wrongBias := linearParams("other", 4, 5)
	require.Panics(t, func() { Linear(x0, w, wrongBias) })
	require.Panics(t, func() { Linear(x0, b, nil) }, "weights must be rank-2")
	require.NotPanics(t, func() { Linear(x0, w, b) })

	gamma, beta, mean, variance := batchNormParams(3)
	assert.Panics(t, func() { BatchNorm1D(x0, gamma, beta, mean, variance, 0, 0.9) })
	assert.Panics(t, func() { BatchNorm1D(x0, gamma, beta, mean, variance, 1e-5, 1) })
	assert.Panics(t, func() { BatchNorm1D(x0, gamma, wrongBias, mean, variance, 1e-5, 0.5) }, "beta with wrong size")
	assert.Panics(t, func() { ReLU(x0).BatchNorm() })
}

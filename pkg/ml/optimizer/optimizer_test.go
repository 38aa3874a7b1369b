// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"testing"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/stretchr/testify/require"
)

func TestStep(t *testing.T) {
	p := params.New("w", tensors.FromValue([]float32{1, 2}), true)
	p.AccumulateGrad([]float32{0.5, 1})
	Step(params.Parameters{p}, 0.1)
	require.InDeltaSlice(t, []float32{0.95, 1.9}, p.Data.Flat(), 1e-6)
	require.Equal(t, []float32{0.5, 1}, p.Grad.Flat(), "Step must not zero the gradients")

	// Without zeroing, the same (stale) gradient is applied again: zeroing is the caller's job.
	Step(params.Parameters{p}, 0.1)
	require.InDeltaSlice(t, []float32{0.9, 1.8}, p.Data.Flat(), 1e-6)
	p.ZeroGrad()
	Step(params.Parameters{p}, 0.1)
	require.InDeltaSlice(t, []float32{0.9, 1.8}, p.Data.Flat(), 1e-6)
}

func TestStepSkipsFrozen(t *testing.T) {
	frozen := params.New("running_mean", tensors.FromValue([]float32{3, 4}), false)
	frozen.AccumulateGrad([]float32{1, 1})
	Step(params.Parameters{frozen}, 1)
	require.Equal(t, []float32{3, 4}, frozen.Data.Flat())
}

func TestStepTensor(t *testing.T) {
	w := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	dw := tensors.FromValue([][]float32{{1, 0}, {0, 1}})
	StepTensor(w, dw, 0.5)
	require.Equal(t, [][]float32{{0.5, 2}, {3, 3.5}}, w.Value())
	require.Panics(t, func() { StepTensor(w, tensors.Zeros(3), 0.5) })
}

func TestSGD(t *testing.T) {
	sgd := NewSGD(0.1)
	require.Equal(t, float32(0.1), sgd.LearningRate())
	sgd.SetLearningRate(0.01)
	require.Equal(t, float32(0.01), sgd.LearningRate())
	require.Panics(t, func() { sgd.SetLearningRate(0) })
	require.Panics(t, func() { NewSGD(-1) })

	p := params.New("b", tensors.FromValue([]float32{1}), true)
	p.AccumulateGrad([]float32{10})
	sgd.Step(params.Parameters{p})
	require.InDelta(t, 0.9, p.Data.Flat()[0], 1e-6)

	opt, err := ByName("sgd", 0.2)
	require.NoError(t, err)
	require.Equal(t, float32(0.2), opt.LearningRate())
	_, err = ByName("adam", 0.2)
	require.ErrorContains(t, err, "unknown optimizer")
}

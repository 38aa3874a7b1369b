// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"testing"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

func TestParameter(t *testing.T) {
	p := New("w", tensors.FromValue([]float32{1, 2}), true)
	require.Equal(t, []float32{0, 0}, p.Grad.Flat())

	p.AccumulateGrad([]float32{0.5, 1})
	p.AccumulateGrad([]float32{0.5, 1})
	require.Equal(t, []float32{1, 2}, p.Grad.Flat(), "gradients must accumulate, not overwrite")
	require.Panics(t, func() { p.AccumulateGrad([]float32{1}) })

	p.ZeroGrad()
	require.Equal(t, []float32{0, 0}, p.Grad.Flat())
	require.Equal(t, `"w": (Float32)[2]`, p.String())

	require.Panics(t, func() { New("t", tensors.Zeros(2, 3).Transposed(), true) })
}

func TestParameters(t *testing.T) {
	ps := Parameters{
		New("w", tensors.Zeros(3, 2), true),
		New("running_mean", tensors.Zeros(3), false),
	}
	require.Equal(t, 9, ps.NumElements())
	trainable := ps.Trainable()
	require.Len(t, trainable, 1)
	require.Equal(t, "w", trainable[0].Name)
	nonTrainable := ps.NonTrainable()
	require.Len(t, nonTrainable, 1)
	require.Equal(t, "running_mean", nonTrainable[0].Name)

	ps[0].AccumulateGrad([]float32{1, 1, 1, 1, 1, 1})
	ps.ZeroGrad()
	require.Equal(t, make([]float32, 6), ps[0].Grad.Flat())
	require.Contains(t, ps.String(), "9 values in 2 parameters")
}

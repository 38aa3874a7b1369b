// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValue(t *testing.T) {
	tensor := FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	require.True(t, tensor.Shape().Equal(shapes.Float32(2, 3)))
	require.True(t, tensor.Owned())
	require.True(t, tensor.IsContiguous())
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Flat())
	require.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, tensor.Value())
	require.Equal(t, float32(6), tensor.At(1, 2))

	scalar := FromValue(float32(7))
	require.True(t, scalar.IsScalar())
	require.Equal(t, float32(7), scalar.Value())

	require.Panics(t, func() { _ = FromAnyValue([][]float32{{1, 2}, {3}}) })
	require.Panics(t, func() { _ = FromAnyValue([]float64{1, 2}) })
}

func TestFromFlatDataAndDimensions(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	tensor := FromFlatDataAndDimensions(data, 2, 2)
	require.False(t, tensor.Owned())
	tensor.Set(10, 0, 1)
	require.Equal(t, float32(10), data[1], "borrowed tensors must write through to the caller's buffer")
	require.Panics(t, func() { _ = FromFlatDataAndDimensions(data, 3, 2) })
}

func TestViews(t *testing.T) {
	tensor := FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	transposed := tensor.Transposed()
	require.False(t, transposed.IsContiguous())
	require.Panics(t, func() { _ = transposed.Flat() })
	require.Equal(t, [][]float32{{1, 4}, {2, 5}, {3, 6}}, transposed.Value())

	contiguous := transposed.Contiguous()
	require.True(t, contiguous.IsContiguous())
	require.True(t, contiguous.Owned())
	require.Equal(t, []float32{1, 4, 2, 5, 3, 6}, contiguous.Flat())

	// Second row as a view.
	row := tensor.View([]int{3}, []int{1}, 3)
	require.True(t, row.IsContiguous())
	require.Equal(t, []float32{4, 5, 6}, row.Flat())
	row.Fill(0)
	require.Equal(t, [][]float32{{1, 2, 3}, {0, 0, 0}}, tensor.Value())

	require.Panics(t, func() { _ = tensor.View([]int{4}, []int{1}, 3) })
}

func TestCopyFromAndClone(t *testing.T) {
	src := FromValue([][]float32{{1, 2}, {3, 4}})
	dst := Zeros(2, 2)
	dst.CopyFrom(src.Transposed())
	require.Equal(t, [][]float32{{1, 3}, {2, 4}}, dst.Value())

	clone := src.Clone()
	clone.Zero()
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, src.Value())
	require.Panics(t, func() { Zeros(3).CopyFrom(src) })
}

func TestEqualAndInDelta(t *testing.T) {
	a := FromValue([]float32{1, 2, 3})
	b := FromValue([]float32{1, 2, 3.0001})
	assert.False(t, a.Equal(b))
	assert.True(t, a.InDelta(b, 1e-3))
	assert.True(t, a.Equal(a.Clone()))
	assert.False(t, a.Equal(Zeros(3, 1)))
}

func TestReshape(t *testing.T) {
	tensor := FromValue([]float32{1, 2, 3, 4, 5, 6})
	reshaped := tensor.Reshape(3, 2)
	require.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, reshaped.Value())
	require.Panics(t, func() { _ = tensor.Reshape(4, 2) })
}

func TestSummary(t *testing.T) {
	tensor := FromValue([][]float32{{1, 2}, {3, 4}})
	require.Equal(t, "[2][2]float32 {{1, 2},\n {3, 4}}", tensor.String())
	require.Equal(t, "float32(0.5)", FromValue(float32(0.5)).String())
	long := Zeros(10)
	require.Equal(t, "[10]float32 {0, 0, 0, ..., 0, 0, 0}", long.String())
}

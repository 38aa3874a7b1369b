// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"slices"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Float32()
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 4, int(shape0.Memory()))

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))
	require.Equal(t, "(Float32)[4 3 2]", shape1.String())

	require.Panics(t, func() { _ = Float32(3, 0) })
	require.Panics(t, func() { _ = Make(dtypes.Float64, 3) })
}

func TestDim(t *testing.T) {
	shape := Float32(4, 3, 2)
	require.Equal(t, 4, shape.Dim(0))
	require.Equal(t, 3, shape.Dim(1))
	require.Equal(t, 2, shape.Dim(2))
	require.Equal(t, 4, shape.Dim(-3))
	require.Equal(t, 2, shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })
}

func TestEqualAndClone(t *testing.T) {
	shape := Float32(2, 3)
	clone := shape.Clone()
	require.True(t, shape.Equal(clone))
	clone.Dimensions[0] = 5
	require.False(t, shape.Equal(clone))
	require.Equal(t, 2, shape.Dim(0))
}

func TestShape_Strides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Float32(2, 3, 4).Strides())
	require.Equal(t, []int{1}, Float32(5).Strides())
	require.Equal(t, []int{2, 2, 1}, Float32(3, 1, 2).Strides())
	require.Empty(t, Float32().Strides())
}

func TestShape_Iter(t *testing.T) {
	shape := Float32(3, 2)
	collect := make([][]int, 0, shape.Size())
	var counter int
	for flatIdx, indices := range shape.Iter() {
		collect = append(collect, slices.Clone(indices))
		require.Equal(t, counter, flatIdx)
		counter++
	}
	want := [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}
	require.Equal(t, want, collect)

	// Scalar yields exactly once.
	counter = 0
	for range Float32().Iter() {
		counter++
	}
	require.Equal(t, 1, counter)
}

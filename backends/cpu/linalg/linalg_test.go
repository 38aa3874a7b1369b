// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package linalg

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(rng *rand.Rand, rows, cols int) []float32 {
	data := make([]float32, rows*cols)
	for ii := range data {
		data[ii] = rng.Float32()*2 - 1
	}
	return data
}

// toDense converts a float32 row-major matrix to a gonum float64 matrix.
func toDense(data []float32, rows, cols int) *mat.Dense {
	data64 := make([]float64, len(data))
	for ii, v := range data {
		data64[ii] = float64(v)
	}
	return mat.NewDense(rows, cols, data64)
}

func TestMatMul(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6} // 2x3
	b := []float32{7, 8, 9, 10, 11, 12} // 3x2
	c := []float32{-1, -1, -1, -1}   // Must be overwritten.
	MatMul(a, b, c, 2, 3, 2)
	require.Equal(t, []float32{58, 64, 139, 154}, c)

	MatMulAdd(a, b, c, 2, 3, 2)
	require.Equal(t, []float32{116, 128, 278, 308}, c)

	// Compare against gonum on random matrices.
	rng := rand.New(rand.NewPCG(42, 0))
	for _, dims := range [][3]int{{1, 1, 1}, {3, 5, 7}, {16, 9, 4}, {8, 32, 1}} {
		m, n, l := dims[0], dims[1], dims[2]
		a, b := randomMatrix(rng, m, n), randomMatrix(rng, n, l)
		c := make([]float32, m*l)
		MatMul(a, b, c, m, n, l)

		var want mat.Dense
		want.Mul(toDense(a, m, n), toDense(b, n, l))
		for i := range m {
			for j := range l {
				assert.InDeltaf(t, want.At(i, j), float64(c[i*l+j]), 1e-4, "dims=%v, C[%d, %d]", dims, i, j)
			}
		}
	}
}

func TestTranspose(t *testing.T) {
	in := []float32{1, 2, 3, 4, 5, 6} // 2x3
	got := Transpose(in, 2, 3)
	require.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got)
	got[0] = 100
	require.Equal(t, float32(1), in[0], "Transpose must not alias its input")

	rng := rand.New(rand.NewPCG(7, 0))
	a := randomMatrix(rng, 5, 4)
	want := toDense(a, 5, 4).T()
	at := Transpose(a, 5, 4)
	for i := range 4 {
		for j := range 5 {
			require.Equal(t, want.At(i, j), float64(at[i*5+j]))
		}
	}
}

func TestTransposeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 0))
	m, n, l := 6, 5, 3
	a, b := randomMatrix(rng, m, n), randomMatrix(rng, n, l)
	want := make([]float32, m*l)
	MatMul(a, b, want, m, n, l)

	roundTrip := Transpose(Transpose(a, m, n), n, m)
	got := make([]float32, m*l)
	MatMul(roundTrip, b, got, m, n, l)
	require.Equal(t, want, got, "MatMul(Transpose(Transpose(A)), B) must be exactly MatMul(A, B)")
}

func TestTensors(t *testing.T) {
	a := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	b := tensors.FromValue([][]float32{{1, 0}, {0, 1}, {1, 1}})
	c := MatMulTensors(a, b)
	require.Equal(t, [][]float32{{4, 5}, {10, 11}}, c.Value())

	// Transposed view input gets materialized.
	c = MatMulTensors(a.Transposed(), a)
	require.Equal(t, [][]float32{{17, 22, 27}, {22, 29, 36}, {27, 36, 45}}, c.Value())

	at := TransposeTensor(a)
	require.True(t, at.IsContiguous())
	require.Equal(t, [][]float32{{1, 4}, {2, 5}, {3, 6}}, at.Value())

	require.Panics(t, func() { MatMulTensors(a, a) })
	require.Panics(t, func() { MatMulTensors(tensors.Zeros(3), b) })
	require.Panics(t, func() { TransposeTensor(tensors.Zeros(2, 2, 2)) })
}

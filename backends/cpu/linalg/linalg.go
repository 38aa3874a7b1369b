// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package linalg implements the dense float32 linear algebra primitives used by the CPU kernels:
// matrix multiplication and transposition over row-major flat buffers.
//
// The raw functions take flat buffers plus explicit dimensions and perform no validation beyond
// what slicing would catch: calling them with inconsistent dimensions is a contract violation.
// The *Tensors variants validate shapes and panic with a descriptive message.
package linalg

import (
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
)

// MatMul computes c = a·b, where a is m×n, b is n×l and c is m×l, all row-major.
//
// c is overwritten and must not alias a or b.
func MatMul(a, b, c []float32, m, n, l int) {
	clear(c[:m*l])
	MatMulAdd(a, b, c, m, n, l)
}

// MatMulAdd computes c += a·b, where a is m×n, b is n×l and c is m×l, all row-major.
//
// It is used to accumulate gradients in place.
func MatMulAdd(a, b, c []float32, m, n, l int) {
	// i-k-j loop order: the inner loop runs over contiguous rows of b and c.
	for i := range m {
		cRow := c[i*l : (i+1)*l]
		for k := range n {
			aik := a[i*n+k]
			bRow := b[k*l : (k+1)*l]
			for j, bkj := range bRow {
				cRow[j] += aik * bkj
			}
		}
	}
}

// Transpose returns a newly allocated buffer with the transposition of the rows×cols matrix in.
//
// It always materializes the result, it never returns a view.
func Transpose(in []float32, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	TransposeTo(in, out, rows, cols)
	return out
}

// TransposeTo writes the transposition of the rows×cols matrix in to out (cols×rows).
func TransposeTo(in, out []float32, rows, cols int) {
	for i := range rows {
		row := in[i*cols : (i+1)*cols]
		for j, v := range row {
			out[j*rows+i] = v
		}
	}
}

// MatMulTensors returns a new tensor with a·b. Both must be rank-2, with a's columns matching b's rows.
//
// Strided (e.g. transposed) inputs are materialized first.
func MatMulTensors(a, b *tensors.Tensor) *tensors.Tensor {
	if a.Rank() != 2 || b.Rank() != 2 {
		exceptions.Panicf("MatMulTensors requires rank-2 tensors, got %s and %s", a.Shape(), b.Shape())
	}
	m, n := a.Dim(0), a.Dim(1)
	if b.Dim(0) != n {
		exceptions.Panicf("MatMulTensors: incompatible dimensions %s · %s", a.Shape(), b.Shape())
	}
	l := b.Dim(1)
	c := tensors.Zeros(m, l)
	MatMul(a.Contiguous().Flat(), b.Contiguous().Flat(), c.Flat(), m, n, l)
	return c
}

// TransposeTensor returns a new materialized (contiguous) tensor with the transposition of a rank-2 tensor.
func TransposeTensor(a *tensors.Tensor) *tensors.Tensor {
	if a.Rank() != 2 {
		exceptions.Panicf("TransposeTensor requires a rank-2 tensor, got %s", a.Shape())
	}
	rows, cols := a.Dim(0), a.Dim(1)
	out := tensors.Zeros(cols, rows)
	TransposeTo(a.Contiguous().Flat(), out.Flat(), rows, cols)
	return out
}

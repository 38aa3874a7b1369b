// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import "github.com/chewxy/math32"

// SoftmaxForward computes the row-wise softmax of x ([batch, features]) into out.
//
// The row maximum is subtracted before exponentiation, so out is strictly positive for finite inputs.
func SoftmaxForward(x, out []float32, batch, features int) {
	for i := range batch {
		row := x[i*features : (i+1)*features]
		outRow := out[i*features : (i+1)*features]
		rowMax := math32.Inf(-1)
		for _, v := range row {
			rowMax = max(rowMax, v)
		}
		var sum float32
		for j, v := range row {
			e := math32.Exp(v - rowMax)
			outRow[j] = e
			sum += e
		}
		for j := range outRow {
			outRow[j] /= sum
		}
	}
}

// SoftmaxBackward computes gradIn[i,j] = out[i,j]·(gradOut[i,j] − Σ_k gradOut[i,k]·out[i,k]),
// where out is the output of SoftmaxForward.
func SoftmaxBackward(gradOut, out, gradIn []float32, batch, features int) {
	for i := range batch {
		g := gradOut[i*features : (i+1)*features]
		p := out[i*features : (i+1)*features]
		var dot float32
		for j := range p {
			dot += g[j] * p[j]
		}
		gIn := gradIn[i*features : (i+1)*features]
		for j := range p {
			gIn[j] = p[j] * (g[j] - dot)
		}
	}
}

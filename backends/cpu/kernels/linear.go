// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import "github.com/gomlx/deepworks/backends/cpu/linalg"

// LinearForward computes out = x·wᵀ (+ b), where:
//
//   - x is [batch, inFeatures];
//   - w is [outFeatures, inFeatures];
//   - b is [outFeatures], or nil for a linear layer without bias;
//   - out is [batch, outFeatures], and it is overwritten.
func LinearForward(x, w, b, out []float32, batch, inFeatures, outFeatures int) {
	wT := linalg.Transpose(w, outFeatures, inFeatures)
	linalg.MatMul(x, wT, out, batch, inFeatures, outFeatures)
	if b != nil {
		LinearAddBias(b, out, batch, outFeatures)
	}
}

// LinearAddBias adds the bias b (shaped [outFeatures]) to every row of out ([batch, outFeatures]).
func LinearAddBias(b, out []float32, batch, outFeatures int) {
	for sample := range batch {
		row := out[sample*outFeatures : (sample+1)*outFeatures]
		for i, bias := range b[:outFeatures] {
			row[i] += bias
		}
	}
}

// LinearBackward computes the gradients of LinearForward given gradOut ([batch, outFeatures]):
//
//   - dW += gradOutᵀ·x, shaped [outFeatures, inFeatures];
//   - gradIn = gradOut·w, shaped [batch, inFeatures]. It can be nil if the input gradient is not needed.
//
// The bias gradient is computed separately by LinearBiasBackward.
func LinearBackward(x, w, gradOut, dW, gradIn []float32, batch, inFeatures, outFeatures int) {
	gradOutT := linalg.Transpose(gradOut, batch, outFeatures)
	linalg.MatMulAdd(gradOutT, x, dW, outFeatures, batch, inFeatures)
	if gradIn != nil {
		linalg.MatMul(gradOut, w, gradIn, batch, outFeatures, inFeatures)
	}
}

// LinearBiasBackward accumulates into db the sum of gradOut ([batch, outFeatures]) over the batch.
func LinearBiasBackward(gradOut, db []float32, batch, outFeatures int) {
	for j := range outFeatures {
		var sum float32
		for i := range batch {
			sum += gradOut[i*outFeatures+j]
		}
		db[j] += sum
	}
}

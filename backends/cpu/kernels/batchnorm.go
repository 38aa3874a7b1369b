// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
)

const (
	// DefaultBatchNormEpsilon is added to the variance before taking the square root.
	DefaultBatchNormEpsilon = 1e-5

	// DefaultBatchNormAlpha is the weight of the previous running statistics when updating them.
	DefaultBatchNormAlpha = 0.9
)

// BatchNormState holds the running statistics of a BatchNorm1D layer, one value per feature,
// along with its hyperparameters.
//
// RunningMean and RunningVar are only updated by BatchNormForwardTraining.
type BatchNormState struct {
	RunningMean, RunningVar []float32

	// Epsilon must be > 0.
	Epsilon float32

	// Alpha is the smoothing of the running statistics: running = running·Alpha + batchStat·(1−Alpha).
	// It must be in [0, 1).
	Alpha float32
}

// NewBatchNormState returns the state for numFeatures features, with running mean 0 and running variance 1.
func NewBatchNormState(numFeatures int, epsilon, alpha float32) *BatchNormState {
	s := &BatchNormState{
		RunningMean: make([]float32, numFeatures),
		RunningVar:  make([]float32, numFeatures),
		Epsilon:     epsilon,
		Alpha:       alpha,
	}
	for i := range s.RunningVar {
		s.RunningVar[i] = 1
	}
	s.Validate()
	return s
}

// Validate panics if the hyperparameters are out of range.
func (s *BatchNormState) Validate() {
	if !(s.Epsilon > 0) {
		exceptions.Panicf("BatchNorm1D epsilon must be > 0, got %g", s.Epsilon)
	}
	if s.Alpha < 0 || s.Alpha >= 1 {
		exceptions.Panicf("BatchNorm1D alpha must be in [0, 1), got %g", s.Alpha)
	}
	if len(s.RunningMean) != len(s.RunningVar) {
		exceptions.Panicf("BatchNorm1D running mean (%d) and variance (%d) sizes differ", len(s.RunningMean), len(s.RunningVar))
	}
}

// NumFeatures returns the number of normalized features.
func (s *BatchNormState) NumFeatures() int { return len(s.RunningMean) }

// BatchNormCache holds the intermediate values of a training forward pass needed by BatchNormBackward.
type BatchNormCache struct {
	// Centered is the input minus the batch mean, shaped [rows, cols].
	Centered []float32

	// Std is sqrt(batchVariance + epsilon), shaped [cols].
	Std []float32
}

// BatchNormForwardTraining normalizes input ([rows, cols]) with the batch statistics and writes
// output = normalized·gamma + beta. It updates the running statistics in state, and returns the
// cache needed by the backward pass.
//
// The batch variance is biased (divided by rows).
func BatchNormForwardTraining(state *BatchNormState, input, gamma, beta, output []float32, rows, cols int) *BatchNormCache {
	n := float32(rows)
	mean := make([]float32, cols)
	for i := range rows {
		for j := range cols {
			mean[j] += input[i*cols+j] / n
		}
	}

	cache := &BatchNormCache{
		Centered: make([]float32, rows*cols),
		Std:      make([]float32, cols),
	}
	variance := make([]float32, cols)
	for i := range rows {
		for j := range cols {
			c := input[i*cols+j] - mean[j]
			cache.Centered[i*cols+j] = c
			variance[j] += c * c / n
		}
	}
	for j := range cols {
		cache.Std[j] = math32.Sqrt(variance[j] + state.Epsilon)
	}

	alpha := state.Alpha
	for j := range cols {
		state.RunningMean[j] = state.RunningMean[j]*alpha + mean[j]*(1-alpha)
		state.RunningVar[j] = state.RunningVar[j]*alpha + variance[j]*(1-alpha)
	}

	for i := range rows {
		for j := range cols {
			output[i*cols+j] = cache.Centered[i*cols+j]/cache.Std[j]*gamma[j] + beta[j]
		}
	}
	return cache
}

// BatchNormForwardInference normalizes input ([rows, cols]) with the running statistics.
// Nothing in state is changed, and each row is transformed independently of the others.
func BatchNormForwardInference(state *BatchNormState, input, gamma, beta, output []float32, rows, cols int) {
	std := make([]float32, cols)
	for j := range cols {
		std[j] = math32.Sqrt(state.RunningVar[j] + state.Epsilon)
	}
	for i := range rows {
		for j := range cols {
			output[i*cols+j] = (input[i*cols+j]-state.RunningMean[j])/std[j]*gamma[j] + beta[j]
		}
	}
}

// BatchNormBackward computes gradIn from the cache of the training forward pass and gradOut,
// and accumulates the gradients of gamma and beta.
//
// It follows the chain rule through the normalization step by step (no closed form):
//
//	betaGrad       += Σ_rows gradOut
//	gammaGrad      += Σ_rows centered/std · gradOut
//	gradNorm        = gradOut · gamma
//	gradStd         = −Σ_rows gradNorm · centered / std²
//	gradVar         = gradStd / (2·std)
//	gradCentered    = gradNorm/std + centered · gradVar · 2/rows
//	gradMean        = Σ_rows gradCentered
//	gradIn          = gradCentered − gradMean/rows
func BatchNormBackward(cache *BatchNormCache, gradOut, gamma, gradIn, gammaGrad, betaGrad []float32, rows, cols int) {
	centered, std := cache.Centered, cache.Std
	for i := range rows {
		for j := range cols {
			idx := i*cols + j
			betaGrad[j] += gradOut[idx]
			gammaGrad[j] += centered[idx] / std[j] * gradOut[idx]
		}
	}

	gradNorm := make([]float32, rows*cols)
	gradStd := make([]float32, cols)
	for i := range rows {
		for j := range cols {
			idx := i*cols + j
			gradNorm[idx] = gradOut[idx] * gamma[j]
			gradStd[j] -= gradNorm[idx] * centered[idx] / (std[j] * std[j])
		}
	}

	gradVar := make([]float32, cols)
	for j := range cols {
		gradVar[j] = gradStd[j] / (2 * std[j])
	}

	n := float32(rows)
	gradMean := make([]float32, cols)
	for i := range rows {
		for j := range cols {
			idx := i*cols + j
			gradCentered := gradNorm[idx]/std[j] + centered[idx]*gradVar[j]*2/n
			gradIn[idx] = gradCentered
			gradMean[j] += gradCentered
		}
	}
	for i := range rows {
		for j := range cols {
			gradIn[i*cols+j] -= gradMean[j] / n
		}
	}
}

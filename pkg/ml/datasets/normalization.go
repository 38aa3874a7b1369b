// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/train"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Normalization calculates the normalization parameters `mean` and `stddev` per feature (last axis) of the
// `inputsIndex`-th input, over all the examples of the given dataset. The dataset is reset before and after.
//
// These values can later be used for normalization with Normalize.
//
// Notice for any feature that happens to be constant, the `stddev` will be 0. Use ReplaceZerosByOnes
// to avoid the numeric issues.
func Normalization(ds train.Dataset, inputsIndex int) (mean, stddev []float32, err error) {
	ds.Reset()
	defer ds.Reset()
	var sum, sum2, row []float64
	count := 0
	for batchNum := 0; ; batchNum++ {
		inputs, _, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			return nil, nil, errors.WithMessagef(yieldErr, "while reading batch #%d of the dataset", batchNum)
		}
		if inputsIndex >= len(inputs) {
			return nil, nil, errors.Errorf("asked for inputsIndex=%d, but inputs has only %d elements",
				inputsIndex, len(inputs))
		}
		batch := inputs[inputsIndex].Contiguous()
		if batch.Rank() == 0 {
			return nil, nil, errors.Errorf("dataset input %d is a scalar, it has no features axis", inputsIndex)
		}
		numFeatures := batch.Dim(-1)
		if sum == nil {
			sum, sum2, row = make([]float64, numFeatures), make([]float64, numFeatures), make([]float64, numFeatures)
		} else if len(sum) != numFeatures {
			return nil, nil, errors.Errorf("batch #%d of input %d has %d features, previous batches had %d",
				batchNum, inputsIndex, numFeatures, len(sum))
		}
		flat := batch.Flat()
		for start := 0; start < len(flat); start += numFeatures {
			for ii, v := range flat[start : start+numFeatures] {
				row[ii] = float64(v)
			}
			floats.Add(sum, row)
			floats.Mul(row, row)
			floats.Add(sum2, row)
			count++
		}
	}
	if count == 0 {
		return nil, nil, errors.Errorf("dataset %q is empty", ds.Name())
	}
	mean = make([]float32, len(sum))
	stddev = make([]float32, len(sum))
	for ii := range sum {
		m := sum[ii] / float64(count)
		variance := max(0, sum2[ii]/float64(count)-m*m)
		mean[ii] = float32(m)
		stddev[ii] = float32(math.Sqrt(variance))
	}
	return mean, stddev, nil
}

// ReplaceZerosByOnes replaces any zero value of x by one, in place. Useful for the stddev of constant features.
func ReplaceZerosByOnes(x []float32) []float32 {
	for ii, v := range x {
		if v == 0 {
			x[ii] = 1
		}
	}
	return x
}

// Normalize x (with features in its last axis) in place: x = (x - mean) / stddev.
// x must be contiguous.
func Normalize(x *tensors.Tensor, mean, stddev []float32) error {
	numFeatures := x.Dim(-1)
	if len(mean) != numFeatures || len(stddev) != numFeatures {
		return errors.Errorf("Normalize(%s): got %d means and %d stddevs, wanted %d", x.Shape(), len(mean),
			len(stddev), numFeatures)
	}
	flat := x.Flat()
	for ii := range flat {
		feature := ii % numFeatures
		flat[ii] = (flat[ii] - mean[feature]) / stddev[feature]
	}
	return nil
}

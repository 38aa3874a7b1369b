// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"math/rand/v2"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/stat/distuv"
)

// BlobsConfig configures the generation of a synthetic classification problem: isotropic gaussian
// blobs, one per class. Create it with Blobs, configure it with the methods, and call Done.
type BlobsConfig struct {
	numClasses, numFeatures, numExamples int
	centerBox, stddev                    float64
	src                                  rand.Source
}

// Blobs creates the configuration of a synthetic dataset with numExamples, split evenly (round-robin) among
// numClasses gaussian blobs in numFeatures dimensions.
//
// Defaults: centers drawn uniformly from [-10, 10) on each feature, and a standard deviation of 1.
func Blobs(numClasses, numFeatures, numExamples int, src rand.Source) *BlobsConfig {
	if numClasses <= 0 || numFeatures <= 0 || numExamples <= 0 {
		exceptions.Panicf("datasets.Blobs(numClasses=%d, numFeatures=%d, numExamples=%d): all values must be > 0",
			numClasses, numFeatures, numExamples)
	}
	return &BlobsConfig{
		numClasses:  numClasses,
		numFeatures: numFeatures,
		numExamples: numExamples,
		centerBox:   10,
		stddev:      1,
		src:         src,
	}
}

// CenterBox sets the range [-box, box) from which the centers of the blobs are drawn.
func (c *BlobsConfig) CenterBox(box float64) *BlobsConfig {
	c.centerBox = box
	return c
}

// StdDev sets the standard deviation of the blobs.
func (c *BlobsConfig) StdDev(stddev float64) *BlobsConfig {
	c.stddev = stddev
	return c
}

// Done generates the examples: inputs shaped [numExamples, numFeatures] and labels shaped [numExamples],
// with the class index stored as float32.
func (c *BlobsConfig) Done() (inputs, labels *tensors.Tensor) {
	centerDist := distuv.Uniform{Min: -c.centerBox, Max: c.centerBox, Src: c.src}
	centers := make([]float64, c.numClasses*c.numFeatures)
	for ii := range centers {
		centers[ii] = centerDist.Rand()
	}

	noise := distuv.Normal{Mu: 0, Sigma: c.stddev, Src: c.src}
	inputs = tensors.Zeros(c.numExamples, c.numFeatures)
	labels = tensors.Zeros(c.numExamples)
	x, y := inputs.Flat(), labels.Flat()
	for example := range c.numExamples {
		class := example % c.numClasses
		y[example] = float32(class)
		center := centers[class*c.numFeatures : (class+1)*c.numFeatures]
		row := x[example*c.numFeatures : (example+1)*c.numFeatures]
		for feature := range row {
			row[feature] = float32(center[feature] + noise.Rand())
		}
	}
	return
}

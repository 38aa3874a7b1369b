// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets is a collection of utility datasets (train.Dataset): `InMemory` batching and shuffling,
// `Take`, and a synthetic `Blobs` classification problem.
//
// It also includes normalization tools.
package datasets

import (
	"fmt"
	"io"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/train"
)

// takeDataset implements a `train.Dataset` that only yields `take` batches.
type takeDataset struct {
	ds          train.Dataset
	count, take int
}

// Take returns a wrapper to `ds`, a `train.Dataset` that only yields `n` batches.
func Take(ds train.Dataset, n int) train.Dataset {
	return &takeDataset{
		ds:   ds,
		take: n,
	}
}

// Name implements train.Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements train.Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements train.Dataset.
func (ds *takeDataset) Yield() (inputs, labels []*tensors.Tensor, err error) {
	if ds.count >= ds.take {
		err = io.EOF
		return
	}
	ds.count++
	return ds.ds.Yield()
}

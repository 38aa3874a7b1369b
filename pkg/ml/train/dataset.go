// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"github.com/gomlx/deepworks/pkg/core/tensors"
)

// Dataset for a train.Trainer provides the data, one batch at a time. Each batch consists of a slice of
// *tensors.Tensor for `inputs` and for `labels`.
//
// Inputs and labels are bound, in this order, to the inputs of the graph being trained: so the graph must
// declare (graph.Graph.Input) its model inputs first and its labels last.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one "batch" (or whatever is the unit for a training step) or an error.
	//
	// The yielded tensors are only read by the trainer during the step they are used in, after which they can
	// be reused by the dataset.
	//
	// If the error is `io.EOF` the training/evaluation terminates normally, as it indicates end of data
	// for finite datasets -- maybe the end of the epoch.
	//
	// If using Loop.RunSteps for training having an infinite dataset stream is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	Yield() (inputs, labels []*tensors.Tensor, err error)
}

// HasShortName allows datasets to provide a shorter name, used when displaying metrics.
type HasShortName interface {
	ShortName() string
}

// ShortName of the dataset: the ShortName method if it implements HasShortName, or else the
// first 3 letters of its name.
func ShortName(ds Dataset) string {
	if sn, ok := ds.(HasShortName); ok {
		return sn.ShortName()
	}
	name := ds.Name()
	if len(name) > 3 {
		return name[:3]
	}
	return name
}

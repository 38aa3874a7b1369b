// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InMemoryDataset represents a Dataset that is completely held in memory: each of its tensors
// has the examples in its leading axis.
//
// It supports batching, shuffling (with and without replacement) and can be duplicated (only one copy
// of the underlying data is used).
type InMemoryDataset struct {
	// name of the dataset.
	name      string
	shortName string

	// inputsAndLabelsData contains the full dataset for each of the inputs and labels.
	inputsAndLabelsData []*tensors.Tensor

	// numInputsTensors indicate how many in inputsAndLabelsData are inputs, the remainder are labels.
	numInputsTensors int

	// numExamples indicates the total number of examples.
	numExamples int

	// muSampling serializes the sampling information, all the member variables below.
	muSampling sync.Mutex

	// batchSize to yield.
	batchSize int

	// dropIncompleteBatch, when there are not enough remaining examples in the epoch.
	dropIncompleteBatch bool

	// next record to be sampled. If shuffle is given, this is an index in shuffle. If randomWithReplacement,
	// this is a count only.
	//
	// If it is set to -1, it means the dataset has been exhausted already.
	next int

	// randomWithReplacement indicates that one should simply take a random entry every time.
	randomWithReplacement bool

	// shuffle holds the current shuffle if Shuffle was selected.
	shuffle []int

	// infinite sets whether to loop indefinitely.
	infinite bool

	// rng used when random sampling, allows for deterministic random datasets.
	rng *rand.Rand

	// takeN is the maximum number of batches to take, before forcing an end of epoch.
	// If <= 0, take as many as available (or continuously if InMemoryDataset.infinite=true)
	takeN, taken int
}

// InMemoryFromData creates an InMemoryDataset from the given inputs and labels tensors: each one has the examples
// in its leading axis, which must have the same dimension for all of them. The tensors are copied, so they are
// not changed by the dataset.
//
// Returns a `InMemoryDataset`, that is initially not shuffled and yields batches of 1 example.
// You can configure how you want to use it with the other configuration methods.
func InMemoryFromData(name string, inputs, labels []*tensors.Tensor) (mds *InMemoryDataset, err error) {
	if len(inputs) == 0 {
		return nil, errors.Errorf("InMemoryFromData(%q): at least one input tensor is required", name)
	}
	mds = &InMemoryDataset{
		numInputsTensors: len(inputs),
		batchSize:        1,
		rng:              rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	mds.SetName(name)
	for ii, t := range append(append([]*tensors.Tensor{}, inputs...), labels...) {
		if t == nil || t.Rank() == 0 {
			return nil, errors.Errorf("InMemoryFromData(%q): tensor #%d must have a leading examples axis", name, ii)
		}
		if ii == 0 {
			mds.numExamples = t.Dim(0)
		} else if t.Dim(0) != mds.numExamples {
			return nil, errors.Errorf("InMemoryFromData(%q): tensor #%d has %d examples (shape %s), but tensor #0 has %d",
				name, ii, t.Dim(0), t.Shape(), mds.numExamples)
		}
		mds.inputsAndLabelsData = append(mds.inputsAndLabelsData, t.Clone())
	}
	return mds, nil
}

// NumExamples cached.
func (mds *InMemoryDataset) NumExamples() int {
	return mds.numExamples
}

// Memory returns an approximation of the memory being used.
func (mds *InMemoryDataset) Memory() (mem uintptr) {
	for _, data := range mds.inputsAndLabelsData {
		mem += data.Memory()
	}
	return
}

// Copy returns a copy of the dataset. It uses the same underlying data -- so very little memory is used.
//
// The sampling configuration is also copied, and the copy is reset.
func (mds *InMemoryDataset) Copy() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	clone := &InMemoryDataset{
		name:                  mds.name,
		shortName:             mds.shortName,
		inputsAndLabelsData:   mds.inputsAndLabelsData,
		numInputsTensors:      mds.numInputsTensors,
		numExamples:           mds.numExamples,
		batchSize:             mds.batchSize,
		dropIncompleteBatch:   mds.dropIncompleteBatch,
		randomWithReplacement: mds.randomWithReplacement,
		infinite:              mds.infinite,
		rng:                   rand.New(rand.NewPCG(mds.rng.Uint64(), mds.rng.Uint64())),
		takeN:                 mds.takeN,
	}
	if mds.shuffle != nil {
		clone.shuffleLocked()
	}
	return clone
}

// Name implements `train.Dataset`
func (mds *InMemoryDataset) Name() string {
	return mds.name
}

// ShortName implements `train.HasShortName`
func (mds *InMemoryDataset) ShortName() string {
	return mds.shortName
}

// SetName sets the name of the dataset and optionally its ShortName, and returns the updated dataset.
func (mds *InMemoryDataset) SetName(name string, shortName ...string) *InMemoryDataset {
	mds.name = name
	if len(shortName) > 0 {
		mds.shortName = shortName[0]
	} else {
		mds.shortName = name[:min(3, len(name))]
	}
	return mds
}

// Reset implements `train.Dataset`
func (mds *InMemoryDataset) Reset() {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.resetLocked()
}

func (mds *InMemoryDataset) resetLocked() {
	mds.next = 0
	mds.taken = 0
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
}

// indicesNextYield retrieve the indices for the next Yield call.
func (mds *InMemoryDataset) indicesNextYield() (indices []int) {
	if mds.next == -1 {
		return // dataset already exhausted.
	}
	n := mds.batchSize
	indices = make([]int, 0, n)
	for mds.next < mds.numExamples && len(indices) < n {
		if len(mds.shuffle) > 0 {
			indices = append(indices, mds.shuffle[mds.next])
		} else if mds.randomWithReplacement {
			indices = append(indices, mds.rng.IntN(mds.numExamples))
		} else {
			indices = append(indices, mds.next)
		}
		mds.next++
	}
	if len(indices) < n && mds.dropIncompleteBatch {
		// Drop the incomplete batch.
		indices = nil
	}
	if mds.next >= mds.numExamples {
		mds.next = -1
	}
	if len(indices) > 0 {
		mds.taken++
		if mds.takeN > 0 && mds.taken >= mds.takeN {
			mds.next = -1
		}
	}
	return
}

// gather copies the examples at indices of data into a new tensor, with the leading axis of dimension len(indices).
func gather(data *tensors.Tensor, indices []int) *tensors.Tensor {
	dims := data.Shape().Clone().Dimensions
	rowSize := data.Size() / dims[0]
	dims[0] = len(indices)
	batch := tensors.Zeros(dims...)
	src, dst := data.Flat(), batch.Flat()
	for ii, idx := range indices {
		copy(dst[ii*rowSize:(ii+1)*rowSize], src[idx*rowSize:(idx+1)*rowSize])
	}
	return batch
}

// Yield implements `train.Dataset`.
//
// Returns next batch's inputs and labels. New tensors are returned at each call.
func (mds *InMemoryDataset) Yield() (inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	mds.muSampling.Lock()
	indices := mds.indicesNextYield()
	if len(indices) == 0 && mds.infinite {
		// If looping infinitely, automatically Reset and pull new indices.
		mds.resetLocked()
		indices = mds.indicesNextYield()
		if len(indices) == 0 {
			klog.Errorf("InMemoryDataset %q configured for infinite loop, but Reset failed to generate new examples!?",
				mds.name)
		}
	}
	mds.muSampling.Unlock()
	if len(indices) == 0 {
		err = io.EOF
		return
	}

	inputsAndLabels := make([]*tensors.Tensor, len(mds.inputsAndLabelsData))
	for ii, data := range mds.inputsAndLabelsData {
		inputsAndLabels[ii] = gather(data, indices)
	}
	inputs = inputsAndLabels[:mds.numInputsTensors]
	if mds.numInputsTensors < len(inputsAndLabels) {
		labels = inputsAndLabels[mds.numInputsTensors:]
	}
	return
}

// RandomWithReplacement configures the InMemoryDataset to return random elements with replacement.
// If this is configured, Shuffle is canceled.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) RandomWithReplacement() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomWithReplacement = true
	mds.shuffle = nil
	return mds
}

// Shuffle configures the InMemoryDataset to shuffle the order of the data. It returns random elements
// without replacement. If this is configured, RandomWithReplacement is canceled.
//
// At each call to Reset() it is reshuffled. It happens automatically if dataset is configured to be Infinite.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Shuffle() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomWithReplacement = false
	mds.shuffleLocked()
	return mds
}

// shuffleLocked shuffles dataset yield order. It assumed muSampling is locked.
func (mds *InMemoryDataset) shuffleLocked() {
	if mds.shuffle == nil {
		mds.shuffle = make([]int, mds.numExamples)
	}
	for ii := range mds.shuffle {
		mds.shuffle[ii] = ii
	}
	mds.rng.Shuffle(len(mds.shuffle), func(i, j int) {
		mds.shuffle[i], mds.shuffle[j] = mds.shuffle[j], mds.shuffle[i]
	})
}

// BatchSize configures the InMemoryDataset to return batches of the given size. dropIncompleteBatch is set to true,
// it will simply drop examples if there are not enough to fill a batch -- this can only happen on the last
// batch of an epoch. Otherwise, it will return a partially filled batch.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) BatchSize(n int, dropIncompleteBatch bool) *InMemoryDataset {
	if n <= 0 {
		exceptions.Panicf("InMemoryDataset.BatchSize(%d): batch size must be > 0", n)
	}
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.batchSize = n
	mds.dropIncompleteBatch = dropIncompleteBatch
	return mds
}

// WithRand sets the random number generator (RNG) for shuffling or random sampling. This allows for repeatable
// deterministic random sampling, if one wants. The default is to use an RNG initialized with the current
// nanosecond time.
//
// If dataset is configured with Shuffle, this re-shuffles the dataset immediately.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) WithRand(rng *rand.Rand) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.rng = rng
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
	return mds
}

// Infinite sets whether the dataset should loop indefinitely. The default is `infinite = false`, which
// causes the dataset to going through the data only once before returning io.EOF.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.infinite = infinite
	return mds
}

// TakeN configures dataset to only take N batches before returning io.EOF.
// If set to 0 or -1, it takes as many as there is data.
// If configured, it automatically disables InMemoryDataset.Infinite
func (mds *InMemoryDataset) TakeN(n int) *InMemoryDataset {
	if n > 0 {
		mds.Infinite(false)
	}
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.takeN = n
	return mds
}

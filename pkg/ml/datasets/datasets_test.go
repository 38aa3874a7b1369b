// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/initializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDataset(t *testing.T) *InMemoryDataset {
	x := tensors.FromValue([][]float32{{0, 0}, {1, 10}, {2, 20}, {3, 30}, {4, 40}})
	y := tensors.FromValue([]float32{0, 1, 2, 3, 4})
	mds, err := InMemoryFromData("test", []*tensors.Tensor{x}, []*tensors.Tensor{y})
	require.NoError(t, err)
	return mds
}

// readLabels reads the dataset until io.EOF, and returns the labels yielded.
func readLabels(t *testing.T, ds *InMemoryDataset) (batches [][]float32) {
	for {
		inputs, labels, err := ds.Yield()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		flat := slices.Clone(labels[0].Flat())
		// Inputs must follow their labels.
		for ii, label := range flat {
			require.Equal(t, 10*label, inputs[0].At(ii, 1))
		}
		batches = append(batches, flat)
	}
}

func TestInMemory(t *testing.T) {
	mds := newTestDataset(t)
	assert.Equal(t, 5, mds.NumExamples())
	assert.Equal(t, "tes", mds.ShortName())
	assert.Equal(t, uintptr(4*(10+5)), mds.Memory())

	mds.BatchSize(2, false)
	require.Equal(t, [][]float32{{0, 1}, {2, 3}, {4}}, readLabels(t, mds))
	// Exhausted until Reset.
	require.Empty(t, readLabels(t, mds))
	mds.Reset()
	mds.BatchSize(2, true)
	require.Equal(t, [][]float32{{0, 1}, {2, 3}}, readLabels(t, mds))

	mds.Reset()
	mds.TakeN(1)
	require.Equal(t, [][]float32{{0, 1}}, readLabels(t, mds))

	_, err := InMemoryFromData("bad", []*tensors.Tensor{tensors.Zeros(3, 2)}, []*tensors.Tensor{tensors.Zeros(2)})
	require.Error(t, err)
	_, err = InMemoryFromData("empty", nil, nil)
	require.Error(t, err)
}

func TestInMemoryShuffle(t *testing.T) {
	mds := newTestDataset(t).BatchSize(5, false).WithRand(rand.New(initializer.NewSource(7))).Shuffle()
	batches := readLabels(t, mds)
	require.Len(t, batches, 1)
	got := slices.Clone(batches[0])
	slices.Sort(got)
	require.Equal(t, []float32{0, 1, 2, 3, 4}, got)

	// Copy shares the data and is independent.
	clone := mds.Copy()
	assert.Len(t, readLabels(t, clone), 1)
}

func TestInMemoryInfinite(t *testing.T) {
	mds := newTestDataset(t).BatchSize(3, true).Infinite(true)
	for range 5 {
		_, labels, err := mds.Yield()
		require.NoError(t, err)
		require.Equal(t, []float32{0, 1, 2}, labels[0].Flat())
	}
	ds := Take(mds, 2)
	assert.Equal(t, "test [Take 2]", ds.Name())
	count := 0
	for {
		if _, _, err := ds.Yield(); err == io.EOF {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}

func TestBlobs(t *testing.T) {
	inputs, labels := Blobs(3, 2, 90, initializer.NewSource(1)).CenterBox(5).StdDev(0.1).Done()
	require.Equal(t, []int{90, 2}, inputs.Shape().Dimensions)
	require.Equal(t, []int{90}, labels.Shape().Dimensions)
	assert.Equal(t, []float32{0, 1, 2, 0}, labels.Flat()[:4])

	// Examples of the same class stay close to each other.
	for example := 3; example < 90; example++ {
		class := example % 3
		for feature := range 2 {
			assert.InDelta(t, inputs.At(class, feature), inputs.At(example, feature), 1.5)
		}
	}
	require.Panics(t, func() { Blobs(0, 2, 10, initializer.NewSource(1)) })
}

func TestNormalization(t *testing.T) {
	mds := newTestDataset(t).BatchSize(2, false)
	mean, stddev, err := Normalization(mds, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 20}, mean, 1e-5)
	assert.InDeltaSlice(t, []float32{1.4142135, 14.142135}, stddev, 1e-4)

	x := tensors.FromValue([][]float32{{2, 20}, {4, 40}})
	require.NoError(t, Normalize(x, mean, stddev))
	assert.InDeltaSlice(t, []float32{0, 0, 1.4142135, 1.4142135}, x.Flat(), 1e-4)
	require.Error(t, Normalize(x, mean[:1], stddev))

	assert.Equal(t, []float32{1, 2, 1}, ReplaceZerosByOnes([]float32{0, 2, 0}))
	_, _, err = Normalization(mds, 1)
	require.Error(t, err)
}

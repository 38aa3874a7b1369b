// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/deepworks/backends/cpu"
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/context"
	"github.com/gomlx/deepworks/pkg/ml/layers"
	"github.com/gomlx/deepworks/pkg/ml/optimizer"
	"github.com/gomlx/deepworks/pkg/ml/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullBatchDataset struct {
	inputs, labels []*tensors.Tensor
	done           bool
}

func (ds *fullBatchDataset) Name() string { return "points" }
func (ds *fullBatchDataset) Reset()       { ds.done = false }
func (ds *fullBatchDataset) Yield() (inputs, labels []*tensors.Tensor, err error) {
	if ds.done {
		return nil, nil, io.EOF
	}
	ds.done = true
	return ds.inputs, ds.labels, nil
}

func newTestLoop(t *testing.T) (*train.Loop, *fullBatchDataset) {
	ctx := context.New()
	g := graph.New("classifier")
	x, labels := g.Input("x"), g.Input("labels")
	g.SetOutputs(graph.SoftmaxCrossEntropyLoss(layers.Dense(ctx, x, 2, 2, true), labels))
	backend, err := cpu.New(g)
	require.NoError(t, err)
	ds := &fullBatchDataset{
		inputs: []*tensors.Tensor{tensors.FromValue([][]float32{{1, 0}, {0, 1}})},
		labels: []*tensors.Tensor{tensors.FromValue([]float32{0, 1})},
	}
	return train.NewLoop(train.NewTrainer(backend, optimizer.NewSGD(0.1))), ds
}

func TestPoints(t *testing.T) {
	points := NewPoints([]Point{
		{MetricName: "b", MetricType: "loss", Step: 2, Value: 0.5},
		{MetricName: "a", MetricType: "accuracy", Step: 1, Value: 0.7},
		{MetricName: "b", MetricType: "loss", Step: 1, Value: 1.0},
	})
	assert.Equal(t, []string{"a", "b"}, points.MetricsNames())
	assert.Equal(t, []string{"accuracy", "loss"}, points.MetricTypes())
	extracted := points.Extract()
	require.Len(t, extracted, 3)
	assert.Equal(t, 1.0, extracted[0].Step)
	assert.Equal(t, 2.0, extracted[2].Step)

	points.Filter(func(p Point) bool { return p.MetricName == "b" })
	assert.Len(t, points.Extract(), 2)
	points.Map(func(p *Point) { p.Value *= 2 })
	assert.Equal(t, 1.0, points[2][0].Value)
	assert.Contains(t, points.String(), "Step")
}

func TestCollector(t *testing.T) {
	loop, ds := newTestLoop(t)
	dir := filepath.Join(t.TempDir(), "run")
	evalDS := &fullBatchDataset{inputs: ds.inputs, labels: ds.labels}
	collector := New().WithDatasets(evalDS).WithOutputDir(dir).ScheduleEveryNSteps(loop, 2)
	_, err := loop.RunEpochs(ds, 6)
	require.NoError(t, err)
	require.NoError(t, collector.Close())

	// Collected at steps 2, 4 and 6: train loss and eval loss.
	assert.Equal(t, 3, collector.NumSamples())
	assert.Equal(t, []string{"Mean Loss on points", "Train: Moving Average Loss"}, collector.Points().MetricsNames())
	assert.Len(t, collector.Points(), 3)

	saved, err := LoadPointsFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, collector.Points().Extract(), NewPoints(saved).Extract())

	// Reloading from the same directory keeps the previous points, and non-finite points are dropped.
	reloaded := New().WithOutputDir(dir)
	reloaded.AddPoint(Point{MetricName: "x", MetricType: "loss", Step: 7, Value: math.NaN()})
	require.NoError(t, reloaded.Close())
	assert.Len(t, reloaded.Points().Extract(), 6)

	pngPath := filepath.Join(dir, "metrics.png")
	require.NoError(t, reloaded.SavePNG(pngPath))
	contents, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(contents, []byte("\x89PNG")))

	require.Error(t, New().SavePNG(filepath.Join(dir, "empty.png")))
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"math"
	"os"
	"path/filepath"

	"github.com/gomlx/deepworks/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CollectorName is the name of the hooks registered by the Collector.
const CollectorName = "deepworks.plots.Collector"

// Collector collects plot points during training, optionally saving them to a file, and
// renders them with [Collector.SavePNG].
//
// A typical use:
//
//	collector := plots.New().
//		WithDatasets(trainEvalDS, testEvalDS).
//		WithOutputDir(dir).
//		ScheduleExponential(loop, 50, 1.2)
//	... run the loop ...
//	err := collector.SavePNG(filepath.Join(dir, "metrics.png"))
type Collector struct {
	// EvalDatasets evaluated at each collection step.
	EvalDatasets []train.Dataset

	points Points

	// Number of complete samples (steps where all metrics were finite) collected.
	numSamples int

	// lastStepCollected that metrics was collected.
	lastStepCollected int

	customMetricFn CustomMetricFn

	scheduledOnEnd bool

	fileWriter    chan<- Point
	errFileWriter <-chan error
}

// New creates a new Collector, that can be attached to a train.Loop with one of the Schedule* methods.
func New() *Collector {
	return &Collector{
		points:            make(Points),
		lastStepCollected: -1,
	}
}

// WithDatasets configures the datasets to evaluate at each collecting step (see `Schedule*` methods).
func (c *Collector) WithDatasets(datasets ...train.Dataset) *Collector {
	c.EvalDatasets = datasets
	return c
}

// WithCustomMetricFn registers the given function to run at every step it collects metrics.
// Only one function can be registered. Set to nil to reset.
func (c *Collector) WithCustomMetricFn(fn CustomMetricFn) *Collector {
	c.customMetricFn = fn
	return c
}

// WithOutputDir loads any points previously saved in dir (see [TrainingPlotFileName]) and
// appends new points to the same file asynchronously, not to slow down training.
//
// If dir is empty, it's a no-op.
func (c *Collector) WithOutputDir(dir string) *Collector {
	if dir == "" {
		return c
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		klog.Errorf("plots.Collector failed to create output directory %q: %+v", dir, err)
		return c
	}
	// Ignore errors while loading: maybe nothing was written yet.
	if previous, err := LoadPointsFromDir(dir); err == nil {
		c.AddPoints(previous)
	}
	c.fileWriter, c.errFileWriter = CreatePointsWriter(filepath.Join(dir, TrainingPlotFileName))
	return c
}

// ScheduleExponential collection of plot points, starting at `startStep` and with an increasing step factor
// of `stepFactor`. Typical values where could be 100 and 1.1.
func (c *Collector) ScheduleExponential(loop *train.Loop, startStep int, stepFactor float64) *Collector {
	train.ExponentialCallback(loop, startStep, stepFactor, true, CollectorName, 0, c.addMetrics)
	c.attachOnEnd(loop)
	return c
}

// ScheduleNTimes collections of plot points.
func (c *Collector) ScheduleNTimes(loop *train.Loop, numPoints int) *Collector {
	train.NTimesDuringLoop(loop, numPoints, CollectorName, 0, c.addMetrics)
	c.attachOnEnd(loop)
	return c
}

// ScheduleEveryNSteps to collect metrics.
func (c *Collector) ScheduleEveryNSteps(loop *train.Loop, n int) *Collector {
	train.EveryNSteps(loop, n, CollectorName, 0, c.addMetrics)
	c.attachOnEnd(loop)
	return c
}

func (c *Collector) addMetrics(loop *train.Loop, metrics []float64) error {
	// Only add metrics once per step: multiple calls here can happen if collection was scheduled more than
	// one way.
	if c.lastStepCollected >= loop.LoopStep {
		return nil
	}
	c.lastStepCollected = loop.LoopStep
	if c.customMetricFn != nil {
		err := c.customMetricFn(c, float64(loop.Trainer.GlobalStep()))
		if err != nil {
			return errors.WithMessagef(err, "plots.Collector CustomMetricFn returned an error at step %d", loop.LoopStep)
		}
	}
	return AddTrainAndEvalMetrics(c, loop, metrics, c.EvalDatasets)
}

// attachOnEnd closes the points writer when training finishes.
func (c *Collector) attachOnEnd(loop *train.Loop) {
	if c.scheduledOnEnd {
		return
	}
	c.scheduledOnEnd = true
	loop.OnEnd(CollectorName, 120, func(_ *train.Loop, _ []float64) error {
		return c.Close()
	})
}

// Close stops writing points to the output file, if one was configured, and returns any error that
// happened while writing. It's safe to call it more than once.
func (c *Collector) Close() error {
	if c.fileWriter == nil {
		return nil
	}
	close(c.fileWriter)
	c.fileWriter = nil
	return <-c.errFileWriter
}

// AddPoint implements [Plotter]. Points with non-finite values are ignored.
func (c *Collector) AddPoint(pt Point) {
	if math.IsNaN(pt.Value) || math.IsInf(pt.Value, 0) || math.IsNaN(pt.Step) || math.IsInf(pt.Step, 0) {
		return
	}
	if c.fileWriter != nil {
		c.fileWriter <- pt
	}
	c.points[pt.Step] = append(c.points[pt.Step], pt)
}

// AddPoints adds previously collected points, without writing them to the output file.
func (c *Collector) AddPoints(points []Point) {
	writer := c.fileWriter
	c.fileWriter = nil
	defer func() { c.fileWriter = writer }()
	for _, pt := range points {
		c.AddPoint(pt)
	}
}

// DynamicSampleDone implements [Plotter].
func (c *Collector) DynamicSampleDone(incomplete bool) {
	if !incomplete {
		c.numSamples++
	}
}

// NumSamples returns the number of complete samples collected so far.
func (c *Collector) NumSamples() int { return c.numSamples }

// Points collected so far. It's not a copy, it shouldn't be modified while training.
func (c *Collector) Points() Points { return c.points }

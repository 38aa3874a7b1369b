// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds the metrics tracked during training and evaluation.
//
// Metrics are accumulated in Go, one batch at a time: the engine only computes the loss (and,
// optionally, the predictions), and the metrics aggregate those values over batches.
package metrics

import (
	"fmt"
	"math"

	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
)

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Moving Average Loss" and "Batch Loss" would both have the same "loss" metric type, and can
	// be displayed on the same plot, sharing the Y-axis.
	MetricType() string

	// Update the metric with the value measured on a batch, with the given weight (usually the batch size).
	Update(value, weight float64)

	// Value returns the current value of the metric. It is NaN if there were no updates since the last Reset.
	Value() float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new evaluation.
	Reset()
}

const (
	// LossMetricType is the type of loss metrics.
	// Used to aggregate metrics of the same type in the same plot.
	LossMetricType = "loss"

	// AccuracyMetricType is the type of accuracy metrics.
	AccuracyMetricType = "accuracy"
)

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric holds the descriptive part of a metric.
type baseMetric struct {
	name, shortName, metricType string
	pPrintFn                    PrettyPrintFn // if nil will display default.
}

func (m *baseMetric) Name() string       { return m.name }
func (m *baseMetric) ShortName() string  { return m.shortName }
func (m *baseMetric) MetricType() string { return m.metricType }

// PrettyPrint implements metrics.Interface.
func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn != nil {
		return m.pPrintFn(value)
	}
	return fmt.Sprintf("%.3g", value)
}

// LastValueMetric only keeps the value of the last batch. E.g.: the batch loss.
type LastValueMetric struct {
	baseMetric
	value float64
}

// NewLastValueMetric creates a metric that reports the last value given.
func NewLastValueMetric(name, shortName, metricType string, prettyPrintFn PrettyPrintFn) *LastValueMetric {
	return &LastValueMetric{
		baseMetric: baseMetric{name: name, shortName: shortName, metricType: metricType, pPrintFn: prettyPrintFn},
		value:      math.NaN(),
	}
}

// Update implements metrics.Interface. The weight is ignored.
func (m *LastValueMetric) Update(value, _ float64) { m.value = value }

// Value implements metrics.Interface.
func (m *LastValueMetric) Value() float64 { return m.value }

// Reset implements metrics.Interface.
func (m *LastValueMetric) Reset() { m.value = math.NaN() }

// MeanMetric keeps the weighted mean of the values given.
type MeanMetric struct {
	baseMetric
	total, weight float64
}

// NewMeanMetric creates a metric that keeps the mean of the values, weighted by the weight given at each update.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMeanMetric(name, shortName, metricType string, prettyPrintFn PrettyPrintFn) *MeanMetric {
	return &MeanMetric{
		baseMetric: baseMetric{name: name, shortName: shortName, metricType: metricType, pPrintFn: prettyPrintFn},
	}
}

// Update implements metrics.Interface.
func (m *MeanMetric) Update(value, weight float64) {
	if weight <= 0 {
		exceptions.Panicf("metric %q: update weight must be > 0, got %g", m.name, weight)
	}
	m.total += value * weight
	m.weight += weight
}

// Value implements metrics.Interface.
func (m *MeanMetric) Value() float64 {
	if m.weight == 0 {
		return math.NaN()
	}
	return m.total / m.weight
}

// Reset implements metrics.Interface.
func (m *MeanMetric) Reset() {
	m.total = 0
	m.weight = 0
}

// MovingAverageMetric implements an exponential moving average of the values.
//
// It starts as a plain average, until there are enough terms for each new value to weigh
// less than newExampleWeight, and from then on it becomes an exponential moving average.
type MovingAverageMetric struct {
	baseMetric
	newExampleWeight float64
	mean, count      float64
}

// NewExponentialMovingAverageMetric creates a moving average metric: new values are taken with the given
// weight (newExampleWeight), and the current average decays by 1-newExampleWeight.
//
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
func NewExponentialMovingAverageMetric(name, shortName, metricType string, prettyPrintFn PrettyPrintFn,
	newExampleWeight float64) *MovingAverageMetric {
	if newExampleWeight <= 0 || newExampleWeight > 1 {
		exceptions.Panicf("NewExponentialMovingAverageMetric(%q): newExampleWeight must be in (0, 1], got %g",
			name, newExampleWeight)
	}
	return &MovingAverageMetric{
		baseMetric:       baseMetric{name: name, shortName: shortName, metricType: metricType, pPrintFn: prettyPrintFn},
		newExampleWeight: newExampleWeight,
	}
}

// Update implements metrics.Interface. The weight is ignored: each update counts as one term.
func (m *MovingAverageMetric) Update(value, _ float64) {
	m.count++
	weight := max(m.newExampleWeight, 1/m.count)
	m.mean = m.mean*(1-weight) + value*weight
}

// Value implements metrics.Interface.
func (m *MovingAverageMetric) Value() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.mean
}

// Reset implements metrics.Interface.
func (m *MovingAverageMetric) Reset() {
	m.mean = 0
	m.count = 0
}

// AccuracyPPrint prints an accuracy value as a percentage.
func AccuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", 100*value)
}

// NewMeanAccuracy returns a MeanMetric for accuracy values.
func NewMeanAccuracy(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, AccuracyMetricType, AccuracyPPrint)
}

// SparseCategoricalAccuracy returns the fraction of rows of predictions (shaped [batchSize, numClasses],
// logits or probabilities) whose largest value is at the position of the class given by labels
// (shaped [batchSize], with integer values stored as float32).
//
// Ties are resolved in favor of the lowest class index.
func SparseCategoricalAccuracy(predictions, labels *tensors.Tensor) float64 {
	if predictions.Rank() != 2 || labels.Size() != predictions.Dim(0) {
		exceptions.Panicf("SparseCategoricalAccuracy: predictions must be shaped [batchSize, numClasses] "+
			"and labels [batchSize], got predictions %s and labels %s", predictions.Shape(), labels.Shape())
	}
	batchSize, numClasses := predictions.Dim(0), predictions.Dim(1)
	probs := predictions.Contiguous().Flat()
	classes := labels.Contiguous().Flat()
	var correct int
	for row := range batchSize {
		values := probs[row*numClasses : (row+1)*numClasses]
		best := 0
		for class, v := range values {
			if v > values[best] {
				best = class
			}
		}
		if best == int(classes[row]) {
			correct++
		}
	}
	return float64(correct) / float64(batchSize)
}

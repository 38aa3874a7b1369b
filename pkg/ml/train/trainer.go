// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds tools to help run a training loop: a Trainer that executes a training step over
// a backends.Backend (forward, backward and optimizer step), a Loop with hooks, and the Dataset interface
// that feeds them.
package train

import (
	"io"
	"math"

	"github.com/gomlx/deepworks/backends"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/optimizer"
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/deepworks/pkg/ml/train/metrics"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Trainer executes training and evaluation steps of a model whose graph has a single output: the scalar loss.
//
// Each TrainStep zeroes the gradients of the parameters, runs the forward pass in training mode, backpropagates
// an upstream gradient of 1 from the loss and asks the optimizer to update the trainable parameters.
//
// Optionally, a predictor backend (see WithPredictor) can be given: it executes a graph sharing the same
// parameters, taking only the model inputs and outputting the predictions (logits or probabilities),
// used to measure the accuracy during evaluation.
//
// A Trainer is not safe for concurrent use.
type Trainer struct {
	backend    backends.Backend
	optimizer  optimizer.Interface
	parameters params.Parameters
	globalStep int

	predictor  backends.Backend
	numClasses int

	trainMetrics, evalMetrics []metrics.Interface

	// nonTrainable parameters are updated by the forward pass in training mode (e.g. running statistics),
	// snapshots holds their values before the step, restored if it fails.
	nonTrainable params.Parameters
	snapshots    []*tensors.Tensor

	// Reused across steps.
	bindings, outputs, lossGrads, inputGrads []*tensors.Tensor
	loss                                     *tensors.Tensor
}

// NewTrainer creates a Trainer for the model executed by backend, updated with the given optimizer.
//
// The graph of the backend must have exactly one output, the scalar loss.
// It panics (with exceptions.Panicf) otherwise.
func NewTrainer(backend backends.Backend, opt optimizer.Interface) *Trainer {
	g := backend.Graph()
	if len(g.Outputs()) != 1 {
		exceptions.Panicf("train.NewTrainer(): graph %q must have exactly one output (the loss), it has %d",
			g.Name(), len(g.Outputs()))
	}
	if opt == nil {
		exceptions.Panicf("train.NewTrainer(): optimizer for graph %q is nil", g.Name())
	}
	r := &Trainer{
		backend:    backend,
		optimizer:  opt,
		parameters: g.Parameters(),
		loss:       tensors.Zeros(),
		inputGrads: make([]*tensors.Tensor, len(g.Inputs())),
		trainMetrics: []metrics.Interface{
			metrics.NewLastValueMetric("Batch Loss", "batch", metrics.LossMetricType, nil),
			metrics.NewExponentialMovingAverageMetric("Moving Average Loss", "~loss", metrics.LossMetricType, nil, 0.01),
		},
		evalMetrics: []metrics.Interface{
			metrics.NewMeanMetric("Mean Loss", "#loss", metrics.LossMetricType, nil),
		},
	}
	r.outputs = []*tensors.Tensor{r.loss}
	r.nonTrainable = r.parameters.NonTrainable()
	r.snapshots = make([]*tensors.Tensor, len(r.nonTrainable))
	for ii, p := range r.nonTrainable {
		r.snapshots[ii] = p.Data.Clone()
	}
	r.lossGrads = []*tensors.Tensor{tensors.FromScalarAndDimensions(1)}
	klog.V(1).Infof("trainer for graph %q: %d parameters (%d trainable), optimizer %T",
		g.Name(), len(r.parameters), len(r.parameters.Trainable()), opt)
	return r
}

// WithPredictor sets a backend executing a graph that shares the parameters of the trained model, takes only the
// model inputs and outputs predictions shaped [batchSize, numClasses]. When set, Eval also reports the accuracy.
//
// It returns the Trainer, so calls can be cascaded.
func (r *Trainer) WithPredictor(predictor backends.Backend, numClasses int) *Trainer {
	if len(predictor.Graph().Outputs()) != 1 {
		exceptions.Panicf("Trainer.WithPredictor(): graph %q must have exactly one output (the predictions), it has %d",
			predictor.Graph().Name(), len(predictor.Graph().Outputs()))
	}
	if numClasses <= 0 {
		exceptions.Panicf("Trainer.WithPredictor(): numClasses must be > 0, got %d", numClasses)
	}
	if r.predictor == nil {
		r.evalMetrics = append(r.evalMetrics, metrics.NewMeanAccuracy("Mean Accuracy", "#acc"))
	}
	r.predictor = predictor
	r.predictor.SetTraining(false)
	r.numClasses = numClasses
	return r
}

// Backend executing the model and its loss.
func (r *Trainer) Backend() backends.Backend { return r.backend }

// Optimizer used to update the parameters.
func (r *Trainer) Optimizer() optimizer.Interface { return r.optimizer }

// Parameters of the model: trainable and non-trainable ones.
func (r *Trainer) Parameters() params.Parameters { return r.parameters }

// GlobalStep is the number of training steps (successfully) executed so far.
func (r *Trainer) GlobalStep() int { return r.globalStep }

// TrainMetrics returns the metrics updated by each TrainStep, in the order their values are returned.
func (r *Trainer) TrainMetrics() []metrics.Interface { return r.trainMetrics }

// EvalMetrics returns the metrics computed by Eval, in the order their values are returned.
func (r *Trainer) EvalMetrics() []metrics.Interface { return r.evalMetrics }

// ResetTrainMetrics resets the moving averages of the training metrics. Called at the start of a Loop run.
func (r *Trainer) ResetTrainMetrics() {
	for _, m := range r.trainMetrics {
		m.Reset()
	}
}

// bind the inputs and labels to the inputs of the graph of backend, in this order.
func (r *Trainer) bind(backend backends.Backend, inputs, labels []*tensors.Tensor) error {
	r.bindings = append(append(r.bindings[:0], inputs...), labels...)
	numInputs := len(backend.Graph().Inputs())
	if len(r.bindings) != numInputs {
		return errors.Errorf("graph %q has %d inputs, but got %d inputs and %d labels",
			backend.Graph().Name(), numInputs, len(inputs), len(labels))
	}
	return nil
}

// batchSize is the leading dimension of the first tensor given, or 1 for scalars.
func batchSize(inputs, labels []*tensors.Tensor) int {
	for _, slice := range [][]*tensors.Tensor{inputs, labels} {
		for _, t := range slice {
			if t != nil && t.Rank() > 0 {
				return t.Dim(0)
			}
		}
	}
	return 1
}

// snapshotNonTrainable saves the values of the non-trainable parameters, see restoreNonTrainable.
func (r *Trainer) snapshotNonTrainable() {
	for ii, p := range r.nonTrainable {
		r.snapshots[ii].CopyFrom(p.Data)
	}
}

// restoreNonTrainable reverts the non-trainable parameters to the last snapshot.
func (r *Trainer) restoreNonTrainable() {
	for ii, p := range r.nonTrainable {
		p.Data.CopyFrom(r.snapshots[ii])
	}
}

// checkLoss returns an error if the loss is not finite.
func checkLoss(loss float32) error {
	lossF64 := float64(loss)
	if math.IsNaN(lossF64) {
		return errors.Errorf("batch loss is NaN, training interrupted")
	}
	if math.IsInf(lossF64, 0) {
		return errors.Errorf("batch loss is infinity (%f), training interrupted", loss)
	}
	return nil
}

// TrainStep executes one training step on the batch (inputs and labels), and returns the values of the
// TrainMetrics after the step: metrics[0] is the batch loss.
//
// Panics from the engine (e.g. binding mismatches) are returned as errors. A non-finite loss is also an
// error. On either error no parameter is changed: the non-trainable ones updated by the forward pass
// (e.g. batch normalization running statistics) are restored to their values before the step.
func (r *Trainer) TrainStep(inputs, labels []*tensors.Tensor) (metricValues []float64, err error) {
	if err = r.bind(r.backend, inputs, labels); err != nil {
		return nil, errors.WithMessagef(err, "TrainStep(global step %d)", r.globalStep)
	}
	r.snapshotNonTrainable()
	err = exceptions.TryCatch[error](func() {
		r.parameters.ZeroGrad()
		r.backend.SetTraining(true)
		r.backend.Forward(r.bindings, r.outputs)
		r.backend.Backward(r.lossGrads, r.inputGrads)
	})
	if err != nil {
		r.restoreNonTrainable()
		return nil, errors.WithMessagef(err, "TrainStep(global step %d)", r.globalStep)
	}
	loss := r.loss.At()
	if err = checkLoss(loss); err != nil {
		r.restoreNonTrainable()
		return nil, errors.WithMessagef(err, "TrainStep(global step %d)", r.globalStep)
	}
	err = exceptions.TryCatch[error](func() { r.optimizer.Step(r.parameters) })
	if err != nil {
		return nil, errors.WithMessagef(err, "TrainStep(global step %d): optimizer step", r.globalStep)
	}
	r.globalStep++

	weight := float64(batchSize(inputs, labels))
	metricValues = make([]float64, len(r.trainMetrics))
	for ii, m := range r.trainMetrics {
		m.Update(float64(loss), weight)
		metricValues[ii] = m.Value()
	}
	return metricValues, nil
}

// EvalStep computes the loss of the model on the batch in inference mode, without touching the gradients
// or the parameters. The training mode of the backend is restored afterward.
func (r *Trainer) EvalStep(inputs, labels []*tensors.Tensor) (loss float32, err error) {
	if err = r.bind(r.backend, inputs, labels); err != nil {
		return 0, errors.WithMessage(err, "EvalStep")
	}
	training := r.backend.Training()
	defer r.backend.SetTraining(training)
	err = exceptions.TryCatch[error](func() {
		r.backend.SetTraining(false)
		r.backend.Forward(r.bindings, r.outputs)
	})
	if err != nil {
		return 0, errors.WithMessage(err, "EvalStep")
	}
	return r.loss.At(), nil
}

// Predict executes the predictor (see WithPredictor) on the inputs and returns the predictions,
// shaped [batchSize, numClasses].
func (r *Trainer) Predict(inputs []*tensors.Tensor) (predictions *tensors.Tensor, err error) {
	if r.predictor == nil {
		return nil, errors.New("Trainer.Predict(): no predictor configured, see Trainer.WithPredictor")
	}
	if err = r.bind(r.predictor, inputs, nil); err != nil {
		return nil, errors.WithMessage(err, "Trainer.Predict()")
	}
	predictions = tensors.Zeros(batchSize(inputs, nil), r.numClasses)
	err = exceptions.TryCatch[error](func() {
		r.predictor.Forward(r.bindings, []*tensors.Tensor{predictions})
	})
	if err != nil {
		return nil, errors.WithMessage(err, "Trainer.Predict()")
	}
	return predictions, nil
}

// Eval resets the dataset and runs the model over all of it in inference mode. It returns the values
// of the EvalMetrics: the mean loss weighted by batch size, and the accuracy if a predictor was configured.
func (r *Trainer) Eval(ds Dataset) (metricValues []float64, err error) {
	ds.Reset()
	defer ds.Reset()
	for _, m := range r.evalMetrics {
		m.Reset()
	}
	count := 0
	for {
		inputs, labels, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			return nil, errors.WithMessagef(yieldErr, "Trainer.Eval(%q): failed reading batch #%d", ds.Name(), count)
		}
		loss, err := r.EvalStep(inputs, labels)
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): batch #%d", ds.Name(), count)
		}
		weight := float64(batchSize(inputs, labels))
		r.evalMetrics[0].Update(float64(loss), weight)
		if r.predictor != nil {
			predictions, err := r.Predict(inputs)
			if err != nil {
				return nil, errors.WithMessagef(err, "Trainer.Eval(%q): batch #%d", ds.Name(), count)
			}
			if len(labels) == 0 {
				return nil, errors.Errorf("Trainer.Eval(%q): dataset yielded no labels to measure accuracy", ds.Name())
			}
			var accuracy float64
			err = exceptions.TryCatch[error](func() { accuracy = metrics.SparseCategoricalAccuracy(predictions, labels[0]) })
			if err != nil {
				return nil, errors.WithMessagef(err, "Trainer.Eval(%q): batch #%d", ds.Name(), count)
			}
			r.evalMetrics[1].Update(accuracy, weight)
		}
		count++
	}
	if count == 0 {
		return nil, errors.Errorf("Trainer.Eval(%q): dataset is empty", ds.Name())
	}
	metricValues = make([]float64, len(r.evalMetrics))
	for ii, m := range r.evalMetrics {
		metricValues[ii] = m.Value()
	}
	return metricValues, nil
}

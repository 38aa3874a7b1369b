// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gomlx/deepworks/backends"
	"github.com/gomlx/deepworks/backends/cpu/kernels"
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/optimizer"
	"github.com/gomlx/deepworks/pkg/ml/params"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scalar returns a new scalar tensor.
func scalar(v float32) *tensors.Tensor {
	return tensors.FromValue(v)
}

func mustNew(t *testing.T, g *graph.Graph) *CPUBackend {
	b, err := New(g)
	require.NoError(t, err)
	return b
}

func TestDispatchTablesComplete(t *testing.T) {
	for opType := graph.OpTypeInput + 1; opType < graph.OpTypeLast; opType++ {
		assert.NotNilf(t, forwardExecutors[opType], "forward executor for %s", opType)
		assert.NotNilf(t, backwardExecutors[opType], "backward executor for %s", opType)
	}
}

func TestNotImplemented(t *testing.T) {
	g := graph.New("relu")
	g.SetOutputs(graph.ReLU(g.Input("x")))
	b := mustNew(t, g)

	saved := forwardExecutors[graph.OpTypeReLU]
	forwardExecutors[graph.OpTypeReLU] = nil
	defer func() { forwardExecutors[graph.OpTypeReLU] = saved }()
	err := exceptions.TryCatch[error](func() {
		b.Forward([]*tensors.Tensor{tensors.Zeros(2)}, []*tensors.Tensor{tensors.Zeros(2)})
	})
	require.ErrorContains(t, err, "forward of op type ReLU not implemented")
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	g := graph.New("loss")
	logits, labels := g.Input("logits"), g.Input("labels")
	g.SetOutputs(graph.CrossEntropyLoss(graph.Softmax(logits), labels))
	b := mustNew(t, g)

	logitsT := tensors.FromValue([][]float32{{2, 1, 0}, {0, 1, 2}})
	labelsT := tensors.FromValue([]float32{0, 2})
	loss := scalar(0)
	b.Forward([]*tensors.Tensor{logitsT, labelsT}, []*tensors.Tensor{loss})
	lossValue := loss.Value().(float32)
	require.False(t, math32.IsInf(lossValue, 0) || math32.IsNaN(lossValue))
	require.Greater(t, lossValue, float32(0))

	gradLogits := tensors.Zeros(2, 3)
	gradLabels := tensors.Zeros(2)
	b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{gradLogits, gradLabels})
	require.Equal(t, []float32{0, 0}, gradLabels.Flat(), "labels get no gradient")

	// Same gradient as the fused op.
	fused := graph.New("fused")
	fused.SetOutputs(graph.SoftmaxCrossEntropyLoss(fused.Input("logits"), fused.Input("labels")))
	fb := mustNew(t, fused)
	fusedLoss := scalar(0)
	fb.Forward([]*tensors.Tensor{logitsT, labelsT}, []*tensors.Tensor{fusedLoss})
	require.InDelta(t, lossValue, fusedLoss.Value(), 1e-6)
	fusedGrad := tensors.Zeros(2, 3)
	fb.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{fusedGrad, nil})
	require.True(t, gradLogits.InDelta(fusedGrad, 1e-6), "chained %s != fused %s", gradLogits, fusedGrad)
	for i := range 2 {
		var sum float32
		for j := range 3 {
			sum += fusedGrad.At(i, j)
		}
		require.InDelta(t, 0, sum, 1e-6)
	}

	// Upstream gradient scales the loss gradient.
	b.Forward([]*tensors.Tensor{logitsT, labelsT}, []*tensors.Tensor{loss})
	scaled := tensors.Zeros(2, 3)
	b.Backward([]*tensors.Tensor{scalar(2)}, []*tensors.Tensor{scaled, nil})
	for i := range 2 {
		for j := range 3 {
			require.InDelta(t, 2*gradLogits.At(i, j), scaled.At(i, j), 1e-6)
		}
	}
}

// buildClassifier builds Linear → Softmax → CrossEntropyLoss with a single trainable linear layer.
func buildClassifier(useFused bool) (*graph.Graph, params.Parameters) {
	g := graph.New("classifier")
	x, labels := g.Input("x"), g.Input("labels")
	w := params.New("weights", tensors.FromValue([][]float32{{0.1, -0.2}, {0.3, 0.1}, {-0.1, 0.2}}), true)
	b := params.New("bias", tensors.Zeros(3), true)
	logits := graph.Linear(x, w, b)
	if useFused {
		g.SetOutputs(graph.SoftmaxCrossEntropyLoss(logits, labels))
	} else {
		g.SetOutputs(graph.CrossEntropyLoss(graph.Softmax(logits), labels))
	}
	return g, g.Parameters()
}

func TestTrainingStepDecreasesLoss(t *testing.T) {
	for _, useFused := range []bool{false, true} {
		g, ps := buildClassifier(useFused)
		b := mustNew(t, g)
		inputs := []*tensors.Tensor{
			tensors.FromValue([][]float32{{1, 2}, {-1, 0.5}}),
			tensors.FromValue([]float32{0, 2}),
		}
		loss := scalar(0)
		b.Forward(inputs, []*tensors.Tensor{loss})
		before := loss.Value().(float32)

		ps.ZeroGrad()
		b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil})
		optimizer.Step(ps, 0.1)

		b.Forward(inputs, []*tensors.Tensor{loss})
		after := loss.Value().(float32)
		require.Lessf(t, after, before, "fused=%v: loss should decrease after one SGD step", useFused)
	}
}

func TestGradientsAccumulate(t *testing.T) {
	g, ps := buildClassifier(false)
	b := mustNew(t, g)
	inputs := []*tensors.Tensor{
		tensors.FromValue([][]float32{{1, 2}, {-1, 0.5}}),
		tensors.FromValue([]float32{1, 0}),
	}
	loss := scalar(0)
	b.Forward(inputs, []*tensors.Tensor{loss})
	b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil})
	once := ps[0].Grad.Clone()
	onceBias := ps[1].Grad.Clone()

	b.Forward(inputs, []*tensors.Tensor{loss})
	b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil})
	for i := range 3 {
		for j := range 2 {
			require.InDelta(t, 2*once.At(i, j), ps[0].Grad.At(i, j), 1e-6)
		}
		require.InDelta(t, 2*onceBias.At(i), ps[1].Grad.At(i), 1e-6)
	}
}

func TestFanOut(t *testing.T) {
	// logits is consumed by two losses: its gradient is the sum of both.
	g := graph.New("fan-out")
	logits, labels0, labels1 := g.Input("logits"), g.Input("labels0"), g.Input("labels1")
	g.SetOutputs(graph.SoftmaxCrossEntropyLoss(logits, labels0), graph.SoftmaxCrossEntropyLoss(logits, labels1))
	b := mustNew(t, g)

	logitsT := tensors.FromValue([][]float32{{0.5, -1, 2}, {1, 1, 0}})
	l0, l1 := []float32{0, 2}, []float32{1, 1}
	losses := []*tensors.Tensor{scalar(0), scalar(0)}
	b.Forward([]*tensors.Tensor{logitsT, tensors.FromValue(l0), tensors.FromValue(l1)}, losses)
	grad := tensors.Zeros(2, 3)
	b.Backward([]*tensors.Tensor{scalar(1), scalar(1)}, []*tensors.Tensor{grad, nil, nil})

	probs := make([]float32, 6)
	kernels.SoftmaxForward(logitsT.Flat(), probs, 2, 3)
	want0, want1 := make([]float32, 6), make([]float32, 6)
	kernels.SoftmaxCrossEntropyBackward(probs, l0, 1, want0, 2, 3)
	kernels.SoftmaxCrossEntropyBackward(probs, l1, 1, want1, 2, 3)
	for ii := range want0 {
		require.InDelta(t, want0[ii]+want1[ii], grad.Flat()[ii], 1e-6)
	}
}

func TestBindingContract(t *testing.T) {
	g, _ := buildClassifier(false)
	b := mustNew(t, g)
	x := tensors.FromValue([][]float32{{1, 2}, {-1, 0.5}})
	labels := tensors.FromValue([]float32{0, 2})

	require.Panics(t, func() { b.Forward([]*tensors.Tensor{x}, []*tensors.Tensor{scalar(0)}) }, "missing input")
	require.Panics(t, func() { b.Forward([]*tensors.Tensor{x, labels}, nil) }, "missing output")
	require.Panics(t, func() { b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{tensors.Zeros(2)}) }, "wrong output size")
	require.Panics(t, func() { b.Forward([]*tensors.Tensor{x, nil}, []*tensors.Tensor{scalar(0)}) }, "nil input")
	require.Panics(t, func() {
		b.Forward([]*tensors.Tensor{tensors.Zeros(2, 5), labels}, []*tensors.Tensor{scalar(0)})
	}, "input incompatible with weights")

	b = mustNew(t, g)
	require.Panics(t, func() { b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil}) }, "backward without forward")
	b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{scalar(0)})
	require.Panics(t, func() { b.Backward(nil, []*tensors.Tensor{nil, nil}) }, "missing output gradient")
	// The execution context is cleared after a Backward, even a failed one.
	require.Panics(t, func() { b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil}) })
	b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{scalar(0)})
	require.NotPanics(t, func() { b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil}) })

	// A failed Forward discards the previous execution context: Backward can't mix stale activations
	// with the newly bound inputs.
	b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{scalar(0)})
	require.Panics(t, func() { b.Forward([]*tensors.Tensor{x, nil}, []*tensors.Tensor{scalar(0)}) }, "nil second input")
	require.Panics(t, func() { b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil}) }, "backward after failed forward")
	require.Panics(t, func() { b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{tensors.Zeros(2)}) }, "wrong output size")
	require.Panics(t, func() { b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil}) }, "backward after failed output copy")
	b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{scalar(0)})
	require.NotPanics(t, func() { b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil}) })
}

func TestNonContiguousInput(t *testing.T) {
	g := graph.New("softmax")
	g.SetOutputs(graph.Softmax(g.Input("x")))
	b := mustNew(t, g)

	x := tensors.FromValue([][]float32{{1, 4}, {2, 5}, {3, 6}})
	want := tensors.Zeros(2, 3)
	b.Forward([]*tensors.Tensor{x.Transposed().Clone()}, []*tensors.Tensor{want})
	got := tensors.Zeros(2, 3)
	b.Forward([]*tensors.Tensor{x.Transposed()}, []*tensors.Tensor{got})
	require.True(t, want.Equal(got))

	// Outputs can also be strided views.
	gotT := tensors.Zeros(3, 2)
	b.Forward([]*tensors.Tensor{x.Transposed()}, []*tensors.Tensor{gotT.Transposed()})
	require.True(t, want.Equal(gotT.Transposed().Clone()))
}

func buildBatchNorm(features int) (*graph.Graph, params.Parameters) {
	g := graph.New("batchnorm")
	gamma := params.New("gamma", tensors.FromScalarAndDimensions(2, features), true)
	beta := params.New("beta", tensors.FromScalarAndDimensions(0.5, features), true)
	mean := params.New("running_mean", tensors.Zeros(features), false)
	variance := params.New("running_var", tensors.FromScalarAndDimensions(1, features), false)
	g.SetOutputs(graph.BatchNorm1D(g.Input("x"), gamma, beta, mean, variance, 1e-5, 0.5))
	return g, g.Parameters()
}

func TestBatchNorm(t *testing.T) {
	g, ps := buildBatchNorm(2)
	b := mustNew(t, g)
	x := tensors.FromValue([][]float32{{1, 10}, {3, 30}})
	output := tensors.Zeros(2, 2)

	// Training: normalized with batch statistics, running statistics updated.
	b.Forward([]*tensors.Tensor{x}, []*tensors.Tensor{output})
	require.True(t, output.InDelta(tensors.FromValue([][]float32{{-1.5, -1.5}, {2.5, 2.5}}), 1e-3), "got %s", output)
	require.Equal(t, []float32{1, 10}, ps[2].Data.Flat())
	require.Equal(t, []float32{1, 50.5}, ps[3].Data.Flat())
	gradX := tensors.Zeros(2, 2)
	b.Backward([]*tensors.Tensor{tensors.FromValue([][]float32{{1, 0}, {0, 1}})}, []*tensors.Tensor{gradX})
	require.Equal(t, []float32{1, 1}, ps[1].Grad.Flat(), "beta gradient")

	// Inference: per-row deterministic function, no dependency on the batch.
	b.SetTraining(false)
	batch := tensors.FromValue([][]float32{{7, -3}, {1, 10}, {100, 0}})
	batchOutput := tensors.Zeros(3, 2)
	b.Forward([]*tensors.Tensor{batch}, []*tensors.Tensor{batchOutput})
	single := tensors.Zeros(1, 2)
	b.Forward([]*tensors.Tensor{tensors.FromValue([][]float32{{1, 10}})}, []*tensors.Tensor{single})
	require.Equal(t, batchOutput.Value2D()[1], single.Value2D()[0])
	require.Equal(t, []float32{1, 10}, ps[2].Data.Flat(), "running mean must not change in inference")
	require.Equal(t, []float32{1, 50.5}, ps[3].Data.Flat(), "running variance must not change in inference")

	// No backward after an inference forward: there is no normalization cache.
	require.Panics(t, func() { b.Backward([]*tensors.Tensor{tensors.Zeros(1, 2)}, []*tensors.Tensor{nil}) })

	// Number of features must match the running statistics.
	require.Panics(t, func() {
		b.Forward([]*tensors.Tensor{tensors.Zeros(2, 3)}, []*tensors.Tensor{tensors.Zeros(2, 3)})
	})
}

func TestPoolReuse(t *testing.T) {
	g, _ := buildClassifier(false)
	b := mustNew(t, g)
	x := tensors.FromValue([][]float32{{1, 2}, {-1, 0.5}})
	labels := tensors.FromValue([]float32{0, 2})
	loss := scalar(0)
	b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{loss})
	b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil})
	memory := b.Memory()
	require.Positive(t, memory)
	linearSlot := b.mem[2]

	b.Forward([]*tensors.Tensor{x, labels}, []*tensors.Tensor{loss})
	b.Backward([]*tensors.Tensor{scalar(1)}, []*tensors.Tensor{nil, nil})
	require.Same(t, linearSlot, b.mem[2], "activation slots are reused")
	require.Equal(t, memory, b.Memory())

	// A different batch size reallocates.
	x3 := tensors.FromValue([][]float32{{1, 2}, {-1, 0.5}, {0, 0}})
	b.Forward([]*tensors.Tensor{x3, tensors.FromValue([]float32{0, 1, 2})}, []*tensors.Tensor{loss})
	require.NotSame(t, linearSlot, b.mem[2])
	require.Equal(t, []int{3, 3}, b.mem[2].Shape().Dimensions)
	require.Contains(t, b.String(), `cpu backend for graph "classifier": 5 ops, training mode`)
}

func TestRegistry(t *testing.T) {
	require.Contains(t, backends.List(), BackendName)
	g, _ := buildClassifier(false)

	backend, err := backends.NewWithConfig("cpu", g)
	require.NoError(t, err)
	require.Equal(t, "cpu", backend.Name())
	require.True(t, backend.Training())

	backend, err = backends.NewWithConfig("cpu:inference", g)
	require.NoError(t, err)
	require.False(t, backend.Training())

	_, err = backends.NewWithConfig("cpu:fast", g)
	require.ErrorContains(t, err, `unknown "cpu" backend option "fast"`)
	_, err = backends.NewWithConfig("tpu", g)
	require.ErrorContains(t, err, `can't find backend "tpu"`)

	t.Setenv(backends.DEEPWORKS_BACKEND, "cpu:inference")
	backend, err = backends.New(g)
	require.NoError(t, err)
	require.False(t, backend.Training())

	// Graphs that don't compile are reported as errors.
	_, err = New(graph.New("no outputs"))
	require.ErrorContains(t, err, "no outputs")
}

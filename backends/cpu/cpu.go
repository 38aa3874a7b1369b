// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cpu implements a portable, single-threaded float32 CPU backend that executes a compiled graph.Graph.
//
// The CPUBackend keeps a pool of tensors indexed by the position of each node in the execution order:
// one for the activations (the output of each node) and one for the gradients. Slots are allocated on the
// first execution and reused afterward, as long as the dimensions don't change (e.g. a different batch size).
//
// Operations are dispatched through tables indexed by graph.OpType (see exec.go), with the numeric kernels
// implemented in package kernels.
//
// It registers itself as backend "cpu". Configuration options (after "cpu:") are comma-separated:
//
//   - "inference": start in inference mode, see CPUBackend.SetTraining.
package cpu

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/deepworks/backends"
	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in DEEPWORKS_BACKEND to specify this backend.
const BackendName = "cpu"

// Registers newFromConfig as the constructor for the "cpu" backend.
func init() {
	backends.Register(BackendName, newFromConfig)
}

func newFromConfig(config string, g *graph.Graph) (backends.Backend, error) {
	b, err := New(g)
	if err != nil {
		return nil, err
	}
	for _, option := range strings.Split(config, ",") {
		switch strings.TrimSpace(option) {
		case "":
		case "inference":
			b.SetTraining(false)
		default:
			return nil, errors.Errorf("unknown %q backend option %q in configuration %q", BackendName, option, config)
		}
	}
	return b, nil
}

// CPUBackend executes a graph on the CPU. It implements backends.Backend.
//
// It is not safe for concurrent use: the execution context of a forward pass (e.g. the BatchNorm1D
// normalization cache) is kept until the following Backward.
type CPUBackend struct {
	graph *graph.Graph

	// ops is the execution order of the graph.
	ops []*graph.Node

	// mem holds the output of each node, indexed by position in ops. For input nodes these are
	// the tensors given by the caller (borrowed) or a materialized copy of them in staging.
	mem []*tensors.Tensor

	// grads holds the gradient with respect to the output of each node, indexed by position in ops.
	grads []*tensors.Tensor

	// staging holds contiguous copies of non-contiguous inputs, and aux any extra per-node buffer
	// (e.g.: the probabilities of SoftmaxCrossEntropyLoss). Both indexed by position in ops.
	staging, aux []*tensors.Tensor

	// scratch is reused by the backward executors to compute the gradient of their inputs.
	scratch []float32

	// opInputs is reused to collect the inputs of each op.
	opInputs []*tensors.Tensor

	// ctx is the execution context of the current forward/backward cycle, nil if there is none.
	ctx *executionContext

	training bool
}

// Compile-time check that CPUBackend implements backends.Backend.
var _ backends.Backend = (*CPUBackend)(nil)

// New creates a CPUBackend for the graph. The graph is compiled, if not yet.
//
// The backend starts in training mode.
func New(g *graph.Graph) (*CPUBackend, error) {
	if g == nil {
		return nil, errors.New("cpu.New: graph is nil")
	}
	if err := g.Compile(); err != nil {
		return nil, errors.WithMessagef(err, "cpu.New(%q)", g.Name())
	}
	ops := g.Order()
	maxInputs := 0
	for _, node := range ops {
		maxInputs = max(maxInputs, len(node.Inputs()))
	}
	b := &CPUBackend{
		graph:    g,
		ops:      ops,
		mem:      make([]*tensors.Tensor, len(ops)),
		grads:    make([]*tensors.Tensor, len(ops)),
		staging:  make([]*tensors.Tensor, len(ops)),
		aux:      make([]*tensors.Tensor, len(ops)),
		opInputs: make([]*tensors.Tensor, maxInputs),
		training: true,
	}
	klog.V(1).Infof("cpu backend created for graph %q with %d ops", g.Name(), len(ops))
	return b, nil
}

// Name implements backends.Backend.
func (b *CPUBackend) Name() string { return BackendName }

// Description implements backends.Backend.
func (b *CPUBackend) Description() string {
	return "Single-threaded float32 CPU backend"
}

// Graph implements backends.Backend.
func (b *CPUBackend) Graph() *graph.Graph { return b.graph }

// SetTraining implements backends.Backend.
func (b *CPUBackend) SetTraining(training bool) { b.training = training }

// Training implements backends.Backend.
func (b *CPUBackend) Training() bool { return b.training }

// Memory returns the number of bytes used by the tensors owned by the backend (borrowed inputs are not counted).
func (b *CPUBackend) Memory() uintptr {
	return b.memoryOf(b.mem) + b.memoryOf(b.grads) + b.memoryOf(b.staging) + b.memoryOf(b.aux) +
		uintptr(cap(b.scratch))*4
}

func (b *CPUBackend) memoryOf(pool []*tensors.Tensor) (total uintptr) {
	for _, t := range pool {
		if t != nil && t.Owned() {
			total += t.Memory()
		}
	}
	return
}

// String implements fmt.Stringer.
func (b *CPUBackend) String() string {
	mode := "training"
	if !b.training {
		mode = "inference"
	}
	return fmt.Sprintf("%s backend for graph %q: %d ops, %s mode, activations %s, gradients %s, total %s",
		BackendName, b.graph.Name(), len(b.ops), mode,
		humanize.Bytes(uint64(b.memoryOf(b.mem))), humanize.Bytes(uint64(b.memoryOf(b.grads))),
		humanize.Bytes(uint64(b.Memory())))
}

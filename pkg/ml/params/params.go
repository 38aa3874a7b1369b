// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params defines Parameter, the trainable (or frozen) state of a model: weights, biases,
// normalization scales and running statistics.
//
// A Parameter owns two tensors of the same shape: Data, with the current values, and Grad, where
// backward kernels accumulate gradients. Kernels only ever add into Grad; resetting it is
// an explicit call to ZeroGrad (usually by the training loop, before each backward pass), so
// gradients from multiple backward calls can be accumulated.
package params

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/exceptions"
)

// Parameter holds the values and accumulated gradient of one model variable.
type Parameter struct {
	Name string

	// Data holds the current values, mutated only by the optimizer (or by the layer
	// itself for non-trainable state like running statistics).
	Data *tensors.Tensor

	// Grad has the same shape as Data, and is exclusively owned by the Parameter.
	Grad *tensors.Tensor

	// Trainable indicates whether the optimizer should update Data.
	Trainable bool
}

// New creates a Parameter with the given data and a zero gradient of the same shape.
//
// The data must be contiguous: it is used directly as a kernel buffer.
func New(name string, data *tensors.Tensor, trainable bool) *Parameter {
	if !data.IsContiguous() {
		exceptions.Panicf("params.New(%q): data tensor %s must be contiguous", name, data.Shape())
	}
	return &Parameter{
		Name:      name,
		Data:      data,
		Grad:      tensors.FromShape(data.Shape()),
		Trainable: trainable,
	}
}

// ZeroGrad resets the accumulated gradient to zero.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// AccumulateGrad adds delta into the gradient. delta must have the same number of elements.
func (p *Parameter) AccumulateGrad(delta []float32) {
	grad := p.Grad.Flat()
	if len(delta) != len(grad) {
		exceptions.Panicf("Parameter(%q).AccumulateGrad: got %d values, gradient has %d", p.Name, len(delta), len(grad))
	}
	for ii, d := range delta {
		grad[ii] += d
	}
}

// String implements fmt.Stringer.
func (p *Parameter) String() string {
	var frozen string
	if !p.Trainable {
		frozen = ", frozen"
	}
	return fmt.Sprintf("%q: %s%s", p.Name, p.Data.Shape(), frozen)
}

// Parameters is a collection of parameters, typically all parameters of a model.
type Parameters []*Parameter

// ZeroGrad resets the gradients of all parameters.
func (ps Parameters) ZeroGrad() {
	for _, p := range ps {
		p.ZeroGrad()
	}
}

// Trainable returns only the trainable parameters.
func (ps Parameters) Trainable() Parameters {
	trainable := make(Parameters, 0, len(ps))
	for _, p := range ps {
		if p.Trainable {
			trainable = append(trainable, p)
		}
	}
	return trainable
}

// NonTrainable returns only the non-trainable parameters, e.g. running statistics of a batch normalization.
func (ps Parameters) NonTrainable() Parameters {
	nonTrainable := make(Parameters, 0, len(ps))
	for _, p := range ps {
		if !p.Trainable {
			nonTrainable = append(nonTrainable, p)
		}
	}
	return nonTrainable
}

// NumElements returns the total number of scalar values held by the parameters.
func (ps Parameters) NumElements() (n int) {
	for _, p := range ps {
		n += p.Data.Size()
	}
	return
}

// String lists the parameters, one per line, followed by the total count.
func (ps Parameters) String() string {
	parts := make([]string, 0, len(ps)+1)
	for _, p := range ps {
		parts = append(parts, "\t"+p.String())
	}
	parts = append(parts, fmt.Sprintf("\t%s values in %d parameters", humanize.Comma(int64(ps.NumElements())), len(ps)))
	return strings.Join(parts, "\n")
}

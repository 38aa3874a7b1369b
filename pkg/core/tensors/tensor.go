// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, a representation of a dense multidimensional float32 array.
//
// A Tensor is a flat Go buffer plus a shape and its per-axis strides (in elements, not bytes).
// Tensors created by this package own their buffer and are laid out row-major. A Tensor can also be
// a borrowed view over someone else's memory (FromFlatDataAndDimensions) or a strided view over
// another tensor (View, Transposed): in which case writes go to the original buffer.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates an owned tensor with the given shape, and zero values.
//
//   - Zeros(dimensions ...int): same as FromShape(shapes.Float32(dimensions...)).
//
//   - FromScalarAndDimensions(value float32, dimensions ...int): creates a Tensor with the
//     given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions(data []float32, dimensions ...int): creates a Tensor that borrows
//     the given flat data. Example:
//
//     t := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromValue[S MultiDimensionSlice](value S): copies a scalar or a regular multidimensional slice.
//     Example:
//
//     t := FromValue([][]float32{{1,2}, {3, 5}, {7, 11}})
//
// Kernels only work on contiguous (row-major) buffers: use Contiguous to materialize a view.
package tensors

import (
	"slices"

	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/exceptions"
)

// Tensor is a dense float32 multidimensional array: either owning its buffer or a view over a borrowed one.
//
// It is not safe for concurrent writes.
type Tensor struct {
	shape   shapes.Shape
	strides []int
	offset  int
	flat    []float32

	// owned is true if the tensor allocated flat itself.
	owned bool
}

// FromShape creates a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	return &Tensor{
		shape:   shape.Clone(),
		strides: shape.Strides(),
		flat:    make([]float32, shape.Size()),
		owned:   true,
	}
}

// Zeros creates a Tensor with the given dimensions, filled with zeros.
func Zeros(dimensions ...int) *Tensor {
	return FromShape(shapes.Float32(dimensions...))
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the
// given scalar value replicated everywhere.
func FromScalarAndDimensions(value float32, dimensions ...int) *Tensor {
	t := Zeros(dimensions...)
	t.Fill(value)
	return t
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions that borrows the flat data given.
//
// The data is not copied: changes to the tensor are reflected in data and vice-versa.
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions(data []float32, dimensions ...int) *Tensor {
	shape := shapes.Float32(dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf(
			"FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	return &Tensor{
		shape:   shape,
		strides: shape.Strides(),
		flat:    data,
	}
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Dim returns the dimension of the given axis. See shapes.Shape.Dim.
func (t *Tensor) Dim(axis int) int { return t.shape.Dim(axis) }

// IsScalar returns whether the tensor holds a single scalar value (rank 0).
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Strides in elements for each axis. The returned slice must not be modified.
func (t *Tensor) Strides() []int { return t.strides }

// Owned returns whether the tensor owns its buffer, as opposed to being a view of
// borrowed memory.
func (t *Tensor) Owned() bool { return t.owned }

// Memory returns the number of bytes addressed by the tensor.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// IsContiguous returns whether the tensor is laid out densely in row-major order, in which
// case Flat can be used.
func (t *Tensor) IsContiguous() bool {
	return slices.Equal(t.strides, t.shape.Strides()) || t.shape.Size() == 1
}

// Flat returns the flat contiguous buffer of the tensor, with exactly Size() elements.
//
// It panics if the tensor is not contiguous: see Contiguous.
func (t *Tensor) Flat() []float32 {
	if !t.IsContiguous() {
		exceptions.Panicf("Tensor.Flat(): tensor %s with strides %v is not contiguous, use Contiguous() first",
			t.shape, t.strides)
	}
	return t.flat[t.offset : t.offset+t.shape.Size()]
}

// View returns a tensor sharing the same buffer, with the given dimensions, strides (in elements) and
// element offset.
//
// It panics if the view would address elements out of the buffer.
func (t *Tensor) View(dimensions, strides []int, offset int) *Tensor {
	shape := shapes.Float32(dimensions...)
	if len(strides) != shape.Rank() {
		exceptions.Panicf("Tensor.View(%s): got %d strides, wanted one per axis", shape, len(strides))
	}
	last := t.offset + offset
	for axis, dim := range dimensions {
		if strides[axis] < 0 {
			exceptions.Panicf("Tensor.View(%s): negative strides (%v) not supported", shape, strides)
		}
		last += (dim - 1) * strides[axis]
	}
	if t.offset+offset < 0 || last >= len(t.flat) {
		exceptions.Panicf("Tensor.View(%s, strides=%v, offset=%d): out of bounds of buffer with %d elements",
			shape, strides, offset, len(t.flat))
	}
	return &Tensor{
		shape:   shape,
		strides: slices.Clone(strides),
		offset:  t.offset + offset,
		flat:    t.flat,
	}
}

// Transposed returns a strided view of a rank-2 tensor with the axes swapped.
// No data is copied, so the result is not contiguous (unless it has a trivial axis).
func (t *Tensor) Transposed() *Tensor {
	if t.Rank() != 2 {
		exceptions.Panicf("Tensor.Transposed() requires a rank-2 tensor, got %s", t.shape)
	}
	return t.View([]int{t.shape.Dimensions[1], t.shape.Dimensions[0]},
		[]int{t.strides[1], t.strides[0]}, 0)
}

// flatIndex converts indices to the position in the underlying buffer.
func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != t.Rank() {
		exceptions.Panicf("Tensor %s: got %d indices, wanted %d", t.shape, len(indices), t.Rank())
	}
	idx := t.offset
	for axis, i := range indices {
		if i < 0 || i >= t.shape.Dimensions[axis] {
			exceptions.Panicf("Tensor %s: index %d out of bounds for axis %d", t.shape, i, axis)
		}
		idx += i * t.strides[axis]
	}
	return idx
}

// At returns the value at the given indices, one per axis.
func (t *Tensor) At(indices ...int) float32 {
	return t.flat[t.flatIndex(indices)]
}

// Set the value at the given indices, one per axis.
func (t *Tensor) Set(value float32, indices ...int) {
	t.flat[t.flatIndex(indices)] = value
}

// Fill sets all elements of the tensor to value.
func (t *Tensor) Fill(value float32) {
	if t.IsContiguous() {
		flat := t.Flat()
		for ii := range flat {
			flat[ii] = value
		}
		return
	}
	for _, indices := range t.shape.Iter() {
		t.flat[t.flatIndex(indices)] = value
	}
}

// Zero sets all elements to 0.
func (t *Tensor) Zero() { t.Fill(0) }

// CopyFrom copies the values of src into t. Both must have the same number of elements, but not
// necessarily the same shape: values are copied in row-major order. src may be a strided view.
func (t *Tensor) CopyFrom(src *Tensor) {
	if t.Size() != src.Size() {
		exceptions.Panicf("Tensor.CopyFrom(): destination %s and source %s have different sizes",
			t.shape, src.shape)
	}
	if t.IsContiguous() && src.IsContiguous() {
		copy(t.Flat(), src.Flat())
		return
	}
	values := make([]float32, 0, src.Size())
	for _, indices := range src.shape.Iter() {
		values = append(values, src.flat[src.flatIndex(indices)])
	}
	ii := 0
	for _, indices := range t.shape.Iter() {
		t.flat[t.flatIndex(indices)] = values[ii]
		ii++
	}
}

// Clone returns an owned contiguous copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	clone := FromShape(t.shape)
	clone.CopyFrom(t)
	return clone
}

// Contiguous returns t itself if it is already contiguous, or an owned contiguous copy otherwise.
func (t *Tensor) Contiguous() *Tensor {
	if t.IsContiguous() {
		return t
	}
	return t.Clone()
}

// Reshape returns a view of a contiguous tensor with new dimensions of the same size.
func (t *Tensor) Reshape(dimensions ...int) *Tensor {
	shape := shapes.Float32(dimensions...)
	if shape.Size() != t.Size() {
		exceptions.Panicf("Tensor.Reshape(%v): size %d doesn't match tensor %s", dimensions, shape.Size(), t.shape)
	}
	return &Tensor{
		shape:   shape,
		strides: shape.Strides(),
		flat:    t.Flat()[:shape.Size():shape.Size()],
	}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MultiDimensionSlice lists the Go types a Tensor can be converted to/from.
type MultiDimensionSlice interface {
	float32 | []float32 | [][]float32 | [][][]float32 | [][][][]float32
}

var float32Type = reflect.TypeOf(float32(0))

// FromValue returns an owned tensor constructed from the given multi-dimension slice (or scalar).
// If the rank of the `value` is larger than 1, the shape of all sub-slices must be the same.
//
// It panics if the shape is not regular.
//
// Notice that FromFlatDataAndDimensions is much faster if speed here is a concern.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is a non-generic version of FromValue.
// If value is already a *Tensor, it is returned as is.
//
// It panics with an error if the value type is unsupported or the shape is not regular.
func FromAnyValue(value any) *Tensor {
	if valueT, ok := value.(*Tensor); ok {
		return valueT
	}
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	t := FromShape(shape)
	flatV := reflect.ValueOf(t.flat)
	if shape.IsScalar() {
		flatV.Index(0).Set(reflect.ValueOf(value))
		return t
	}
	copySlicesRecursively(flatV, reflect.ValueOf(value), t.strides)
	return t
}

// Value returns a multidimensional slice (except if the shape is a scalar) containing a copy of the values stored
// in the tensor.
// This is expensive and usually only used for smaller tensors in tests and to print results.
func (t *Tensor) Value() any {
	flat := t.Contiguous().Flat()
	if t.shape.IsScalar() {
		return flat[0]
	}
	flatCopy := make([]float32, len(flat))
	copy(flatCopy, flat)
	return convertDataToSlices(reflect.ValueOf(flatCopy), t.shape.Dimensions...).Interface()
}

// Value1D returns a copy of the values of a rank-1 tensor.
func (t *Tensor) Value1D() []float32 {
	if t.Rank() != 1 {
		exceptions.Panicf("Tensor.Value1D(): tensor has shape %s", t.shape)
	}
	return t.Value().([]float32)
}

// Value2D returns a copy of the values of a rank-2 tensor.
func (t *Tensor) Value2D() [][]float32 {
	if t.Rank() != 2 {
		exceptions.Panicf("Tensor.Value2D(): tensor has shape %s", t.shape)
	}
	return t.Value().([][]float32)
}

// copySlicesRecursively copy values on a multi-dimension slice to a flat data slice
// assuming the strides for each dimension.
func copySlicesRecursively(data reflect.Value, mdSlice reflect.Value, strides []int) {
	if len(strides) == 1 {
		// Last level of slice, just copy over the slice.
		reflect.Copy(data, mdSlice)
		return
	}

	numElements := mdSlice.Len()
	subStrides := strides[1:]
	for ii := 0; ii < numElements; ii++ {
		start := ii * strides[0]
		end := (ii + 1) * strides[0]
		copySlicesRecursively(data.Slice(start, end), mdSlice.Index(ii), subStrides)
	}
}

// convertDataToSlices takes data as a flat slice and creates a multidimensional slice with the given dimensions that
// points to the given data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	strides := shapes.Float32(dimensions...).Strides()
	return createSlicesRecursively(resultT, dataV, dimensions, strides)
}

// createSlicesRecursively recursively creates the slices pointing to the flat data, for each dimension.
func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		// Last level of slice, just copy over the slice (not the data, just the slice).
		return data
	}

	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)
	subResultT := resultT.Elem()
	for ii := 0; ii < numElements; ii++ {
		start := ii * strides[0]
		end := (ii + 1) * strides[0]
		subSlice := createSlicesRecursively(subResultT, data.Slice(start, end), dimensions[1:], strides[1:])
		slice.Index(ii).Set(subSlice)
	}
	return slice
}

func shapeForValue(v any) (shapes.Shape, error) {
	var dims []int
	err := shapeForValueRecursive(&dims, reflect.ValueOf(v), reflect.TypeOf(v))
	if err != nil {
		return shapes.Invalid(), err
	}
	return shapes.Float32(dims...), nil
}

func shapeForValueRecursive(dims *[]int, v reflect.Value, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Slice:
		// Recurse into inner slices.
		t = t.Elem()
		if v.Len() == 0 {
			return errors.Errorf("value with empty slice not valid for Tensor conversion: %T", v.Interface())
		}
		*dims = append(*dims, v.Len())
		prefix := len(*dims)

		// The first element is the reference
		if err := shapeForValueRecursive(dims, v.Index(0), t); err != nil {
			return err
		}
		for ii := 1; ii < v.Len(); ii++ {
			subDims := append([]int(nil), (*dims)[:prefix]...)
			if err := shapeForValueRecursive(&subDims, v.Index(ii), t); err != nil {
				return err
			}
			if !reflect.DeepEqual(subDims, *dims) {
				return fmt.Errorf("sub-slices have irregular shapes, found dimensions %v, and %v", *dims, subDims)
			}
		}

	case reflect.Float32:
		if t != float32Type {
			return errors.Errorf("cannot convert type %s to a float32 tensor", t)
		}

	default:
		return errors.Errorf("cannot convert type %s to a float32 tensor", t)
	}
	return nil
}

// Equal checks whether t and otherTensor have the same shape and values.
// Views are compared by value, irrespective of their strides.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	a, b := t.Contiguous().Flat(), otherTensor.Contiguous().Flat()
	for ii := range a {
		if a[ii] != b[ii] {
			return false
		}
	}
	return true
}

// InDelta checks whether t and otherTensor have the same shape and all values within delta.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	a, b := t.Contiguous().Flat(), otherTensor.Contiguous().Flat()
	for ii := range a {
		diff := float64(a[ii]) - float64(b[ii])
		if diff > delta || diff < -delta {
			return false
		}
	}
	return true
}

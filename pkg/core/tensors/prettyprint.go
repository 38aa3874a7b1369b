// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// TensorStringDefaultPrecision is the number of significant digits used by Tensor.String.
const TensorStringDefaultPrecision = 4

// String converts to string, if not too large. It uses t.Summary(precision=4).
func (t *Tensor) String() string {
	return t.Summary(TensorStringDefaultPrecision)
}

// Summary returns a multi-line summary of the Tensor's content.
// Inspired by numpy output: long rows and columns are elided with "...".
func (t *Tensor) Summary(precision int) string {
	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	values := t.Contiguous().Flat()

	dims := t.shape.Dimensions
	for _, dim := range dims {
		w("[%d]", dim)
	}
	w("float32")
	if !t.owned {
		w(" (view)")
	}
	if t.Size() > 1000 {
		w(" %s", humanize.Bytes(uint64(t.Memory())))
	}
	if len(dims) == 0 {
		w("(%.*g)", precision, values[0])
		return buf.String()
	}

	// Recursive function to print elements
	var printElements func(index, indent int, currentShape []int)
	printElements = func(index, indent int, currentShape []int) {
		if len(currentShape) == 1 {
			w("{")
			n := currentShape[0]
			for i := 0; i < n; i++ {
				if n > 6 && i == 3 {
					w(", ...")
					i = n - 3
				}
				if i > 0 {
					w(", ")
				}
				w("%.*g", precision, values[index+i])
			}
			w("}")
			return
		}

		stride := 1
		for _, dim := range currentShape[1:] {
			stride *= dim
		}
		indentStr := strings.Repeat(" ", indent+1)
		w("{")
		n := currentShape[0]
		for ii := 0; ii < n; ii++ {
			if n > 6 && ii == 3 {
				w(",\n%s...", indentStr)
				ii = n - 3
			}
			if ii > 0 {
				w(",\n%s", indentStr)
			}
			printElements(index+ii*stride, indent+1, currentShape[1:])
		}
		w("}")
	}
	w(" ")
	printElements(0, 0, dims)
	return buf.String()
}

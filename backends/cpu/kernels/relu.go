// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

// ReLUForward computes out = max(0, in) elementwise.
func ReLUForward(in, out []float32) {
	for i, v := range in {
		if v > 0 {
			out[i] = v
		} else {
			out[i] = 0
		}
	}
}

// ReLUBackward sets gradIn = gradOut where the forward input in was positive, and 0 elsewhere.
//
// It takes the pre-activation input, not the ReLU output.
func ReLUBackward(in, gradOut, gradIn []float32) {
	for i, v := range in {
		if v > 0 {
			gradIn[i] = gradOut[i]
		} else {
			gradIn[i] = 0
		}
	}
}

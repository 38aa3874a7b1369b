// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels implements the forward and backward numeric kernels of the CPU backend:
// Linear (affine transform), ReLU, Softmax, BatchNorm1D and CrossEntropyLoss.
//
// Kernels work on raw contiguous row-major float32 buffers with explicit dimensions, so they can
// be called directly on tensor pools without any intermediate allocation. 2D inputs are laid out
// as [batch, features].
//
// Conventions for backward kernels:
//
//   - gradients with respect to parameters (dW, db, gammaGrad, betaGrad) are accumulated (+=) so
//     that multiple backward passes add up, until the owner explicitly zeroes them;
//   - gradients with respect to the kernel input (gradIn) are overwritten, and the caller
//     (the execution engine) accumulates them into the gradient of the producing node.
package kernels

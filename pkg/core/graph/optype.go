// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

// OpType is the closed enum of operations a graph Node can perform.
//
// Backends keep a dispatch table indexed by OpType, so adding a new op type requires adding its
// forward and backward executors to every backend.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota

	// OpTypeInput is a source of the graph: data or labels bound by the caller for each execution.
	OpTypeInput

	OpTypeLinear
	OpTypeReLU
	OpTypeSoftmax
	OpTypeBatchNorm1D
	OpTypeCrossEntropyLoss
	OpTypeSoftmaxCrossEntropyLoss

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

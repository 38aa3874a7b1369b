// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package must provides functions that panic on error, for command-line tools and tests.
package must

import (
	"k8s.io/klog/v2"
)

// M logs and panics if `err` is not nil.
//
// It is used by all other variants (M1, M2), so reassigning M changes the error behavior of all of them.
var M = func(err error) {
	if err != nil {
		klog.Errorf("Must not error: %+v\nPanicking ...\n\n", err)
		panic(err)
	}
}

// M1 checks that there is no error with `M(err)` and then simply returns the value given.
func M1[T any](value T, err error) T {
	M(err)
	return value
}

// M2 checks that there is no error with `M(err)` and then simply returns the values given.
func M2[T1, T2 any](value1 T1, value2 T2, err error) (T1, T2) {
	M(err)
	return value1, value2
}

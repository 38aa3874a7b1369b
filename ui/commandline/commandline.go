// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"
	"os"

	"github.com/gomlx/deepworks/pkg/ml/train"
	"github.com/pkg/errors"
)

// ReportEval reports on the command line the results of evaluating the datasets using trainer.Eval.
func ReportEval(trainer *train.Trainer, datasets ...train.Dataset) error {
	return FprintEval(os.Stdout, trainer, datasets...)
}

// FprintEval is like ReportEval, but writes the results to w.
func FprintEval(w io.Writer, trainer *train.Trainer, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		metricsValues, err := trainer.Eval(ds)
		if err != nil {
			return errors.WithMessagef(err, "while evaluating %q", ds.Name())
		}
		_, _ = fmt.Fprintf(w, "Results on %s:\n", ds.Name())
		for metricIdx, metric := range trainer.EvalMetrics() {
			value := metricsValues[metricIdx]
			_, _ = fmt.Fprintf(w, "\t%s (%s): %s\n", metric.Name(), metric.ShortName(), metric.PrettyPrint(value))
		}
	}
	return nil
}

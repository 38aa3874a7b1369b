// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/deepworks/pkg/ml/train"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// RefreshPeriod is the time between terminal updates.
var RefreshPeriod = time.Second * 3

// progressBar holds a progressbar being displayed.
type progressBar struct {
	loop             *train.Loop
	numSteps         int
	lastStepReported int
	bar              *progressbar.ProgressBar
	suffix           string
	totalAmount      int

	// plain output, when not writing to a terminal: no cursor movements, metrics are
	// appended to the progress bar line.
	plain  bool
	writer io.Writer

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// Write implements io.Writer, and appends the current suffix with metrics to each
// line. It is meant to be used as the default writer for the enclosed progressbar.ProgressBar.
// This ensures that the progress bar and its suffix are written in the same write operation.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	n, err = pBar.writer.Write(data)
	if err != nil {
		return n, err
	}
	_, err = pBar.writer.Write([]byte(pBar.suffix))
	if err != nil {
		return 0, err
	}
	return
}

func (pBar *progressBar) onStart(loop *train.Loop, _ train.Dataset) error {
	pBar.lastStepReported = loop.LoopStep
	pBar.totalAmount = 0
	if loop.EndStep < 0 {
		pBar.numSteps = 1000 // Guess for now.
	} else {
		pBar.numSteps = loop.EndStep - loop.StartStep
	}
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(!pBar.plain),
		progressbar.OptionEnableColorCodes(!pBar.plain),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar),
	)
	return nil
}

// formatSteps formats the current step and the end step (if known).
func formatSteps(loop *train.Loop) string {
	if loop.EndStep < 0 {
		return fmt.Sprintf("%s of ?", humanize.Comma(int64(loop.LoopStep)))
	}
	return fmt.Sprintf("%s of %s", humanize.Comma(int64(loop.LoopStep)), humanize.Comma(int64(loop.EndStep)))
}

func (pBar *progressBar) onStep(loop *train.Loop, metrics []float64) error {
	// Check whether it is finished.
	if pBar.bar.IsFinished() {
		return nil
	}

	// Check whether there is something to update.
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}

	trainMetrics := loop.Trainer.TrainMetrics()
	if pBar.plain {
		// Set a suffix that will be written along with the progressbar in [progressBar.Write].
		parts := make([]string, 0, len(trainMetrics)+1)
		parts = append(parts, fmt.Sprintf(" [step=%d]", loop.LoopStep))
		for metricIdx, metricObj := range trainMetrics {
			parts = append(parts, fmt.Sprintf(" [%s=%s]", metricObj.ShortName(), metricObj.PrettyPrint(metrics[metricIdx])))
		}
		parts = append(parts, "        ")
		pBar.suffix = strings.Join(parts, "")
		_ = pBar.bar.Add(amount) // Triggers print, see [pBar.Write] method.

	} else {
		// Suffix to erase spurious characters from previous prints.
		pBar.suffix = "\033[J"

		// For the command-line instead we create and enqueue an update to be asynchronously printed.
		update := progressBarUpdate{
			amount:  amount,
			metrics: make([]string, 0, len(trainMetrics)+1),
		}
		update.metrics = append(update.metrics, formatSteps(loop))
		for metricIdx, metricObj := range trainMetrics {
			update.metrics = append(update.metrics, metricObj.PrettyPrint(metrics[metricIdx]))
		}
		pBar.updates <- update
	}

	// Add the number of steps run since last time.
	pBar.totalAmount += amount
	pBar.lastStepReported = loop.LoopStep + 1
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ []float64) error {
	if pBar.updates != nil {
		close(pBar.updates)
		pBar.asyncUpdatesDone.Wait()
		// Allows the loop to be run again.
		pBar.startAsyncUpdates()
	}
	if pBar.termenv != nil {
		pBar.termenv.ShowCursor()
	}
	_, _ = fmt.Fprintln(pBar.writer)
	return nil
}

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "deepworks.train.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

type progressBarUpdate struct {
	amount  int
	metrics []string
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// startAsyncUpdates creates the updates channel and the goroutine that draws them.
func (pBar *progressBar) startAsyncUpdates() {
	pBar.isFirstOutput = true
	pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
	pBar.asyncUpdatesDone.Add(1)
	go func() {
		defer pBar.asyncUpdatesDone.Done()
		// Asynchronously draw updates: this is handy if the training is faster than the terminal, in particular
		// if running on cloud, with a relatively slow network connection.
		for update := range pBar.updates {
			// Exhaust the updates in the buffer:
			amount := update.amount
		exhaust:
			for {
				select {
				case newUpdate, ok := <-pBar.updates:
					if !ok {
						break exhaust
					}
					amount += newUpdate.amount
					update = newUpdate
				default:
					break exhaust
				}
			}
			pBar.draw(update, amount)
			time.Sleep(maxUpdateFrequency)
		}
	}()
}

// draw the stats table followed by the progress bar line.
func (pBar *progressBar) draw(update progressBarUpdate, amount int) {
	loop := pBar.loop
	pBar.statsTable.Data(lgtable.NewStringData())
	pBar.statsTable.Row("Global Step", update.metrics[0])
	pBar.statsTable.Row("Median train step duration", FormatDuration(loop.MedianTrainStepDuration()))
	for metricIdx, metricObj := range loop.Trainer.TrainMetrics() {
		pBar.statsTable.Row(metricObj.Name(), update.metrics[1+metricIdx])
	}
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		pBar.statsTable.Row(name, value)
	}

	// For command-line, we clear the previous lines that will be overwritten.
	pBar.termenv.HideCursor()
	if !pBar.isFirstOutput {
		numLinesToBackup := len(update.metrics) + 1 + 2 + 2 + len(pBar.extraMetricFns)
		pBar.termenv.CursorPrevLine(numLinesToBackup)
	}
	pBar.isFirstOutput = false

	// Print update.
	_, _ = fmt.Fprintln(pBar.writer, pBar.statsStyle.Render(pBar.statsTable.String()))
	_ = pBar.bar.Add(amount) // Prints progress bar line.
	_, _ = fmt.Fprintln(pBar.writer)
	pBar.termenv.ShowCursor()
}

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// everytime Loop is run, it will display a progress bar with progression and metrics.
//
// If the standard output is not a terminal, a plain progress bar is printed with the metrics appended.
//
// The associated data will be attached to the train.Loop, so nothing is returned.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func AttachProgressBar(loop *train.Loop, extraMetrics ...ExtraMetricFn) {
	output := termenv.NewOutput(os.Stdout)
	attachProgressBar(loop, os.Stdout, output.Profile == termenv.Ascii, extraMetrics...)
}

func attachProgressBar(loop *train.Loop, writer io.Writer, plain bool, extraMetrics ...ExtraMetricFn) {
	pBar := &progressBar{
		loop:           loop,
		plain:          plain,
		writer:         writer,
		extraMetricFns: extraMetrics,
	}
	if !pBar.plain {
		pBar.termenv = termenv.NewOutput(writer)
		pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
		pBar.statsTable = lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return rightAlignedStyle
				}
				return normalStyle
			})
		pBar.startAsyncUpdates()
	}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Update at least 1000 times during the loop or at least every RefreshPeriod.
	train.NTimesDuringLoop(loop, 1000, ProgressBarName, 0, pBar.onStep)
	train.PeriodicCallback(loop, RefreshPeriod, false, ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}

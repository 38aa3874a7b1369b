// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"io"
	"maps"
	"os"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	// PlotWidth of the rendered images.
	PlotWidth = 10 * vg.Inch

	// PlotHeightPerMetricType is the height of each of the stacked plots, one per metric type.
	PlotHeightPerMetricType = 4 * vg.Inch
)

// MetricTypes returns the sorted list of metric types ("loss", "accuracy", etc.) in points.
func (points Points) MetricTypes() []string {
	types := make(map[string]bool)
	points.Map(func(p *Point) {
		types[p.MetricType] = true
	})
	return slices.Sorted(maps.Keys(types))
}

// Plots creates one gonum plot per metric type, each with one line per metric name,
// in the order given by MetricTypes.
func (points Points) Plots() ([]*plot.Plot, error) {
	metricTypes := points.MetricTypes()
	if len(metricTypes) == 0 {
		return nil, errors.New("no points to plot")
	}
	xysPerMetric := make(map[string]plotter.XYs)
	metricToType := make(map[string]string)
	points.Map(func(p *Point) {
		xysPerMetric[p.MetricName] = append(xysPerMetric[p.MetricName], plotter.XY{X: p.Step, Y: p.Value})
		metricToType[p.MetricName] = p.MetricType
	})
	metricNames := points.MetricsNames()

	plots := make([]*plot.Plot, 0, len(metricTypes))
	for _, metricType := range metricTypes {
		p := plot.New()
		p.Title.Text = metricType
		p.X.Label.Text = "global step"
		p.Y.Label.Text = metricType
		p.Add(plotter.NewGrid())
		p.Legend.Top = true

		var lines []any
		for _, name := range metricNames {
			if metricToType[name] != metricType {
				continue
			}
			lines = append(lines, name, xysPerMetric[name])
		}
		if err := plotutil.AddLinePoints(p, lines...); err != nil {
			return nil, errors.Wrapf(err, "failed to plot metrics of type %q", metricType)
		}
		plots = append(plots, p)
	}
	return plots, nil
}

// WritePNG renders the plots of all metric types stacked vertically as a PNG image.
func (points Points) WritePNG(w io.Writer) error {
	plots, err := points.Plots()
	if err != nil {
		return err
	}
	img := vgimg.New(PlotWidth, vg.Length(len(plots))*PlotHeightPerMetricType)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadY: vg.Centimeter,
	}
	grid := make([][]*plot.Plot, len(plots))
	for row, p := range plots {
		grid[row] = []*plot.Plot{p}
	}
	canvases := plot.Align(grid, tiles, dc)
	for row := range grid {
		grid[row][0].Draw(canvases[row][0])
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err = png.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to encode PNG")
	}
	return nil
}

// SavePNG renders the points collected so far to the PNG file filePath.
func (c *Collector) SavePNG(filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	err = c.points.WritePNG(f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrapf(closeErr, "failed to close %q", filePath)
	}
	return err
}

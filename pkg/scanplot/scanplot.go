// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scanplot renders scans and recording summaries as images.
package scanplot

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/Thermoquad/scanstat/pkg/scanlog"
)

// Image sizes
const (
	ScanSize      = 8 * vg.Inch
	ProfileWidth  = 14 * vg.Inch
	ProfileHeight = 6 * vg.Inch
)

var (
	pointColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	meanColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	spreadColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	sensorColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// valid reports whether d is a usable distance
func valid(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

// ScanPoints converts bucket ranges to cartesian points in metres, with the
// sensor at the origin and 0° along +X. Invalid distances are skipped.
func ScanPoints(ranges []float64, resolution float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(ranges))
	for b, d := range ranges {
		if !valid(d) {
			continue
		}
		theta := float64(b) * resolution * math.Pi / 180
		pts = append(pts, plotter.XY{X: d * math.Cos(theta), Y: d * math.Sin(theta)})
	}
	return pts
}

// Scan builds a top-down plot of one scan
func Scan(ranges []float64, resolution float64, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	pts := ScanPoints(ranges, resolution)
	if len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("scan scatter: %w", err)
		}
		scatter.GlyphStyle.Color = pointColor
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(scatter)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return nil, fmt.Errorf("sensor marker: %w", err)
	}
	origin.GlyphStyle.Color = sensorColor
	origin.GlyphStyle.Radius = vg.Points(4)
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	p.Add(origin)
	p.Legend.Add("sensor", origin)

	// Square axes so the room is not distorted
	extent := 0.5
	for _, pt := range pts {
		extent = math.Max(extent, math.Max(math.Abs(pt.X), math.Abs(pt.Y)))
	}
	extent *= 1.05
	p.X.Min, p.X.Max = -extent, extent
	p.Y.Min, p.Y.Max = -extent, extent

	return p, nil
}

// Profile builds a distance-versus-angle plot of a recording summary with
// the mean and a one standard deviation band.
func Profile(summary []scanlog.BucketSummary, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "angle (deg)"
	p.Y.Label.Text = "distance (m)"
	p.Add(plotter.NewGrid())

	mean := make(plotter.XYs, 0, len(summary))
	upper := make(plotter.XYs, 0, len(summary))
	lower := make(plotter.XYs, 0, len(summary))
	for _, s := range summary {
		if s.Valid == 0 {
			continue
		}
		mean = append(mean, plotter.XY{X: s.Angle, Y: s.Mean})
		upper = append(upper, plotter.XY{X: s.Angle, Y: s.Mean + s.StdDev})
		lower = append(lower, plotter.XY{X: s.Angle, Y: s.Mean - s.StdDev})
	}
	if len(mean) == 0 {
		return p, nil
	}

	meanLine, err := plotter.NewLine(mean)
	if err != nil {
		return nil, err
	}
	meanLine.Color = meanColor
	meanLine.Width = vg.Points(1)
	p.Add(meanLine)
	p.Legend.Add("mean", meanLine)

	for _, band := range []plotter.XYs{upper, lower} {
		line, err := plotter.NewLine(band)
		if err != nil {
			return nil, err
		}
		line.Color = spreadColor
		line.Width = vg.Points(0.5)
		line.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// SaveScan writes a scan plot to file. The format follows the extension.
func SaveScan(ranges []float64, resolution float64, title, file string) error {
	p, err := Scan(ranges, resolution, title)
	if err != nil {
		return err
	}
	if err := p.Save(ScanSize, ScanSize, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// SaveProfile writes a summary plot to file
func SaveProfile(summary []scanlog.BucketSummary, title, file string) error {
	p, err := Profile(summary, title)
	if err != nil {
		return err
	}
	if err := p.Save(ProfileWidth, ProfileHeight, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// WriteScanPNG renders a scan plot as PNG to w
func WriteScanPNG(w io.Writer, ranges []float64, resolution float64, title string) error {
	p, err := Scan(ranges, resolution, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(ScanSize, ScanSize, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

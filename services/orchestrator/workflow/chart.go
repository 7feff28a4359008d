// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/fogleman/gg"
)

// Chart types the renderer understands.
const (
	ChartBar      = "bar"
	ChartPie      = "pie"
	ChartTimeline = "timeline"
)

const (
	chartWidth  = 800
	chartHeight = 600
)

// slicePalette cycles across series. Muted tones render legibly on the
// white canvas.
var slicePalette = [][3]float64{
	{0.26, 0.47, 0.76},
	{0.87, 0.52, 0.20},
	{0.33, 0.66, 0.41},
	{0.77, 0.31, 0.32},
	{0.58, 0.47, 0.71},
	{0.55, 0.55, 0.55},
}

// ChartSpec describes a chart to render.
//
// # Fields
//
//   - ChartType: One of bar, pie, timeline. Unknown types fall back to bar.
//   - Title: Drawn across the top of the canvas.
//   - Labels: One per data point. Timeline charts need only labels.
//   - Values: One per label for bar and pie.
type ChartSpec struct {
	ChartType string    `json:"chart_type"`
	Title     string    `json:"title"`
	Labels    []string  `json:"labels"`
	Values    []float64 `json:"values"`
}

// normalize trims the spec to renderable shape.
func (s *ChartSpec) normalize() error {
	s.ChartType = strings.ToLower(strings.TrimSpace(s.ChartType))
	switch s.ChartType {
	case ChartBar, ChartPie, ChartTimeline:
	default:
		s.ChartType = ChartBar
	}
	if len(s.Labels) == 0 {
		return fmt.Errorf("chart has no data points")
	}
	if s.ChartType != ChartTimeline {
		if len(s.Values) != len(s.Labels) {
			return fmt.Errorf("chart has %d labels but %d values", len(s.Labels), len(s.Values))
		}
		for i, v := range s.Values {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("value %d is not renderable: %v", i, v)
			}
		}
	}
	return nil
}

// RenderChart draws the spec to a PNG.
func RenderChart(spec ChartSpec) ([]byte, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0.1, 0.1, 0.1)
	if spec.Title != "" {
		dc.DrawStringAnchored(spec.Title, chartWidth/2, 30, 0.5, 0.5)
	}

	switch spec.ChartType {
	case ChartPie:
		drawPie(dc, spec)
	case ChartTimeline:
		drawTimeline(dc, spec)
	default:
		drawBars(dc, spec)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBars(dc *gg.Context, spec ChartSpec) {
	const (
		marginLeft   = 60.0
		marginRight  = 40.0
		marginTop    = 70.0
		marginBottom = 80.0
	)
	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBottom

	maxVal := 0.0
	for _, v := range spec.Values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	n := float64(len(spec.Values))
	slot := plotW / n
	barW := slot * 0.7

	// Axes
	dc.SetRGB(0.3, 0.3, 0.3)
	dc.SetLineWidth(1.5)
	dc.DrawLine(marginLeft, marginTop, marginLeft, marginTop+plotH)
	dc.DrawLine(marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH)
	dc.Stroke()

	for i, v := range spec.Values {
		h := (v / maxVal) * plotH
		x := marginLeft + float64(i)*slot + (slot-barW)/2
		y := marginTop + plotH - h

		c := slicePalette[i%len(slicePalette)]
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawRectangle(x, y, barW, h)
		dc.Fill()

		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawStringAnchored(trimLabel(spec.Labels[i]), x+barW/2, marginTop+plotH+20, 0.5, 0.5)
		dc.DrawStringAnchored(formatValue(v), x+barW/2, y-12, 0.5, 0.5)
	}
}

func drawPie(dc *gg.Context, spec ChartSpec) {
	cx, cy := float64(chartWidth)/2, float64(chartHeight)/2+20
	radius := math.Min(float64(chartWidth), float64(chartHeight)) * 0.32

	total := 0.0
	for _, v := range spec.Values {
		total += v
	}
	if total == 0 {
		total = 1
	}

	angle := -math.Pi / 2
	for i, v := range spec.Values {
		sweep := (v / total) * 2 * math.Pi
		c := slicePalette[i%len(slicePalette)]
		dc.SetRGB(c[0], c[1], c[2])
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, radius, angle, angle+sweep)
		dc.ClosePath()
		dc.Fill()

		// Label outside the slice midpoint
		mid := angle + sweep/2
		lx := cx + math.Cos(mid)*(radius+40)
		ly := cy + math.Sin(mid)*(radius+40)
		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawStringAnchored(
			fmt.Sprintf("%s (%.0f%%)", trimLabel(spec.Labels[i]), 100*v/total),
			lx, ly, 0.5, 0.5)

		angle += sweep
	}
}

func drawTimeline(dc *gg.Context, spec ChartSpec) {
	const margin = 70.0
	y := float64(chartHeight) / 2
	lineW := float64(chartWidth) - 2*margin

	dc.SetRGB(0.3, 0.3, 0.3)
	dc.SetLineWidth(2)
	dc.DrawLine(margin, y, margin+lineW, y)
	dc.Stroke()

	n := len(spec.Labels)
	step := 0.0
	if n > 1 {
		step = lineW / float64(n-1)
	}
	for i, label := range spec.Labels {
		x := margin + float64(i)*step
		c := slicePalette[i%len(slicePalette)]
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(x, y, 8)
		dc.Fill()

		dc.SetRGB(0.1, 0.1, 0.1)
		// Alternate labels above and below so neighbors don't collide.
		ly := y - 36
		if i%2 == 1 {
			ly = y + 36
		}
		dc.DrawStringAnchored(trimLabel(label), x, ly, 0.5, 0.5)
	}
}

// trimLabel keeps axis labels from overflowing their slot.
func trimLabel(s string) string {
	const max = 18
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scanlog

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// BucketSummary is the spread of one bucket across a recording
type BucketSummary struct {
	Bucket int
	Angle  float64
	Valid  int // frames with a finite, non-zero distance
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes per-bucket statistics over frames. Zero, infinite and
// NaN distances are ignored.
func Summarize(h Header, frames []Frame) []BucketSummary {
	n := 0
	for _, f := range frames {
		n = max(n, len(f.Ranges))
	}

	out := make([]BucketSummary, n)
	values := make([]float64, 0, len(frames))
	for b := range out {
		values = values[:0]
		for _, f := range frames {
			if b >= len(f.Ranges) {
				continue
			}
			d := f.Ranges[b]
			if d == 0 || math.IsInf(d, 0) || math.IsNaN(d) {
				continue
			}
			values = append(values, d)
		}

		s := BucketSummary{
			Bucket: b,
			Angle:  float64(b) * h.Resolution,
			Valid:  len(values),
		}
		if len(values) > 0 {
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
			if len(values) == 1 {
				s.StdDev = 0
			}
			s.Min, s.Max = values[0], values[0]
			for _, v := range values[1:] {
				s.Min = math.Min(s.Min, v)
				s.Max = math.Max(s.Max, v)
			}
		}
		out[b] = s
	}
	return out
}

// Coverage returns the fraction of buckets with at least one valid distance
func Coverage(summary []BucketSummary) float64 {
	if len(summary) == 0 {
		return 0
	}
	covered := 0
	for _, s := range summary {
		if s.Valid > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(summary))
}

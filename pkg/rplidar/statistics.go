// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"fmt"
	"math"
	"time"
)

// Statistics tracks decoder throughput and resynchronisation counts
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	BytesReceived   uint64
	Samples         uint64
	Scans           uint64
	Desyncs         uint64
	DesyncByReason  [desyncReasonCount]uint64
	InfiniteSamples uint64
	ClippedMin      uint64
	ClippedMax      uint64
	OutOfRange      uint64

	// Rates (calculated)
	SampleRate float64 // samples/sec
	DesyncRate float64 // desyncs/sec
	ScanRate   float64 // revolutions/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordBytes counts bytes staged from the transport
func (s *Statistics) RecordBytes(n int) {
	if n > 0 {
		s.BytesReceived += uint64(n)
	}
}

// RecordDesync counts a rejected look-ahead window
func (s *Statistics) RecordDesync(reason DesyncReason) {
	s.Desyncs++
	if reason > DesyncNone && reason < desyncReasonCount {
		s.DesyncByReason[reason]++
	}
	s.LastUpdateTime = time.Now()
}

// RecordSample counts an accepted sample
func (s *Statistics) RecordSample(sample Sample, clip ClipKind, inRange bool) {
	s.Samples++
	if sample.NewScan {
		s.Scans++
	}
	if math.IsInf(sample.Distance, 1) {
		s.InfiniteSamples++
	}
	switch clip {
	case ClipBelowMin:
		s.ClippedMin++
	case ClipAboveMax:
		s.ClippedMax++
	}
	if !inRange {
		s.OutOfRange++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates sample, desync and revolution rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.SampleRate = float64(s.Samples) / elapsed
		s.DesyncRate = float64(s.Desyncs) / elapsed
		s.ScanRate = float64(s.Scans) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	windows := s.Samples + s.Desyncs
	var acceptedPercent float64
	if windows > 0 {
		acceptedPercent = float64(s.Samples) * 100.0 / float64(windows)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	result += fmt.Sprintf("Samples:         %8d (%.1f%% of windows)\n", s.Samples, acceptedPercent)
	result += fmt.Sprintf("Revolutions:     %8d\n", s.Scans)

	if s.Desyncs > 0 {
		result += fmt.Sprintf("Desyncs:         %8d\n", s.Desyncs)
		for r := DesyncLock1; r < desyncReasonCount; r++ {
			if s.DesyncByReason[r] > 0 {
				result += fmt.Sprintf("  %-17s %5d\n", r.String()+":", s.DesyncByReason[r])
			}
		}
	}
	if s.InfiniteSamples > 0 {
		result += fmt.Sprintf("No Return:       %8d\n", s.InfiniteSamples)
	}
	if s.ClippedMin > 0 || s.ClippedMax > 0 {
		result += fmt.Sprintf("Clipped:         %8d (below min %d, above max %d)\n",
			s.ClippedMin+s.ClippedMax, s.ClippedMin, s.ClippedMax)
	}
	if s.OutOfRange > 0 {
		result += fmt.Sprintf("Out Of Limits:   %8d\n", s.OutOfRange)
	}

	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", s.SampleRate)
	result += fmt.Sprintf("Desync Rate:     %8.1f desyncs/sec\n", s.DesyncRate)
	result += fmt.Sprintf("Scan Rate:       %8.1f Hz\n", s.ScanRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"fmt"
	"math"
)

// ScanBuffer holds the latest distance per angle bucket.
// Buckets are written last-write-wins; a bucket that receives no sample
// during a revolution keeps its previous value.
type ScanBuffer struct {
	ranges     []float64
	resolution float64
}

// BucketCount returns the number of buckets covering [minAngle, maxAngle)
// at the given resolution.
func BucketCount(minAngle, maxAngle, resolution float64) int {
	if resolution <= 0 || maxAngle <= minAngle {
		return 0
	}
	return int((maxAngle - minAngle) / resolution)
}

// NewScanBuffer allocates a zeroed scan covering [minAngle, maxAngle)
func NewScanBuffer(minAngle, maxAngle, resolution float64) (*ScanBuffer, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("invalid resolution: %g (must be > 0)", resolution)
	}
	if maxAngle <= minAngle {
		return nil, fmt.Errorf("invalid scan limits: min %g >= max %g", minAngle, maxAngle)
	}
	n := BucketCount(minAngle, maxAngle, resolution)
	if n == 0 {
		return nil, fmt.Errorf("scan limits [%g, %g) hold no bucket at resolution %g", minAngle, maxAngle, resolution)
	}
	return &ScanBuffer{
		ranges:     make([]float64, n),
		resolution: resolution,
	}, nil
}

// Len returns the number of buckets
func (s *ScanBuffer) Len() int {
	return len(s.ranges)
}

// Resolution returns the bucket width in degrees
func (s *ScanBuffer) Resolution() float64 {
	return s.resolution
}

// Bucket returns the bucket index for an angle in degrees. Buckets start at
// 0 degrees whatever the scan's minAngle.
func (s *ScanBuffer) Bucket(angle float64) int {
	return int(math.Floor(angle / s.resolution))
}

// Set stores distance in the bucket for angle. It reports the bucket and
// false if the bucket lies outside the buffer.
func (s *ScanBuffer) Set(angle, distance float64) (int, bool) {
	b := s.Bucket(angle)
	if b < 0 || b >= len(s.ranges) {
		return b, false
	}
	s.ranges[b] = distance
	return b, true
}

// At returns the distance stored in bucket i
func (s *ScanBuffer) At(i int) float64 {
	return s.ranges[i]
}

// Snapshot copies the scan into dst, growing it if needed, and returns it
func (s *ScanBuffer) Snapshot(dst []float64) []float64 {
	if cap(dst) < len(s.ranges) {
		dst = make([]float64, len(s.ranges))
	}
	dst = dst[:len(s.ranges)]
	copy(dst, s.ranges)
	return dst
}

// ClipKind reports which clip rule rewrote a distance
type ClipKind int

const (
	ClipNone ClipKind = iota
	ClipBelowMin
	ClipAboveMax
)

// Filter is the distance clip policy. Clipping saturates to MaxDistance;
// samples are never dropped.
type Filter struct {
	MinDistance   float64
	MaxDistance   float64
	ClipMin       bool
	ClipMax       bool
	AllowInfinity bool
}

// Apply returns the clipped distance and the rule that fired, if any
func (f Filter) Apply(distance float64) (float64, ClipKind) {
	if f.ClipMin && distance < f.MinDistance {
		return f.MaxDistance, ClipBelowMin
	}
	if f.ClipMax && distance > f.MaxDistance && !f.AllowInfinity {
		return f.MaxDistance, ClipAboveMax
	}
	return distance, ClipNone
}

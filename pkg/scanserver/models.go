// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scanserver

import (
	"math"
	"time"

	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

// ApiResponse is the envelope of every JSON response
type ApiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ScanResponse is the latest scan. Buckets without a finite distance are null.
type ScanResponse struct {
	Timestamp  time.Time  `json:"timestamp"`
	MinAngle   float64    `json:"min_angle"`
	MaxAngle   float64    `json:"max_angle"`
	Resolution float64    `json:"resolution"`
	Ranges     []*float64 `json:"ranges"`
}

// InfoResponse describes the sensor
type InfoResponse struct {
	Description  string `json:"description"`
	Model        *uint8 `json:"model,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
	Hardware     *uint8 `json:"hardware,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Health       string `json:"health"`
	HealthCode   uint16 `json:"health_code"`
}

// StatusResponse is the driver state
type StatusResponse struct {
	State        string `json:"state"`
	DeviceStatus string `json:"device_status"`
	Uptime       string `json:"uptime"`
}

// StatisticsResponse is a decoder statistics snapshot
type StatisticsResponse struct {
	BytesReceived   uint64            `json:"bytes_received"`
	Samples         uint64            `json:"samples"`
	Revolutions     uint64            `json:"revolutions"`
	Desyncs         uint64            `json:"desyncs"`
	DesyncByReason  map[string]uint64 `json:"desync_by_reason,omitempty"`
	InfiniteSamples uint64            `json:"infinite_samples"`
	ClippedMin      uint64            `json:"clipped_min"`
	ClippedMax      uint64            `json:"clipped_max"`
	OutOfRange      uint64            `json:"out_of_range"`
	SampleRate      float64           `json:"sample_rate"`
	DesyncRate      float64           `json:"desync_rate"`
	ScanRate        float64           `json:"scan_rate"`
}

// RangeRequest sets the clip distances
type RangeRequest struct {
	Min *float64 `json:"min" binding:"required"`
	Max *float64 `json:"max" binding:"required"`
}

// RangeResponse is the clip distances
type RangeResponse struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SessionSummaryResponse is a stored session with its coverage
type SessionSummaryResponse struct {
	Session  any     `json:"session"`
	Coverage float64 `json:"coverage"`
}

func finiteOrNil(ranges []float64) []*float64 {
	out := make([]*float64, len(ranges))
	for i, d := range ranges {
		if math.IsInf(d, 0) || math.IsNaN(d) {
			continue
		}
		v := d
		out[i] = &v
	}
	return out
}

func newStatisticsResponse(s rplidar.Statistics) StatisticsResponse {
	resp := StatisticsResponse{
		BytesReceived:   s.BytesReceived,
		Samples:         s.Samples,
		Revolutions:     s.Scans,
		Desyncs:         s.Desyncs,
		InfiniteSamples: s.InfiniteSamples,
		ClippedMin:      s.ClippedMin,
		ClippedMax:      s.ClippedMax,
		OutOfRange:      s.OutOfRange,
		SampleRate:      s.SampleRate,
		DesyncRate:      s.DesyncRate,
		ScanRate:        s.ScanRate,
	}
	for i, n := range s.DesyncByReason {
		if n == 0 {
			continue
		}
		if resp.DesyncByReason == nil {
			resp.DesyncByReason = make(map[string]uint64)
		}
		resp.DesyncByReason[rplidar.DesyncReason(i).String()] = n
	}
	return resp
}

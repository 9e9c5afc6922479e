// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"math"
	"time"

	"github.com/Thermoquad/scanstat/internal/monitoring"
)

// Decoder recovers quanta from the scan stream staged in a RingBuffer and
// writes accepted samples into a ScanBuffer.
//
// Every sample is corroborated by the two quanta that follow it. A window that
// fails validation costs a single byte, so a corrupted byte is skipped by
// shifting the window rather than dropping a whole packet.
type Decoder struct {
	rb     *RingBuffer
	scan   *ScanBuffer
	filter Filter
	stats  *Statistics
	window [LookAheadSize]byte
	okRun  uint64 // samples accepted since the last desync
}

// NewDecoder creates a decoder reading from rb and writing into scan
func NewDecoder(rb *RingBuffer, scan *ScanBuffer, filter Filter) *Decoder {
	return &Decoder{
		rb:     rb,
		scan:   scan,
		filter: filter,
		stats:  NewStatistics(),
	}
}

// Filter returns the active clip policy
func (d *Decoder) Filter() Filter {
	return d.filter
}

// SetFilter replaces the clip policy for subsequent samples
func (d *Decoder) SetFilter(f Filter) {
	d.filter = f
}

// Statistics returns the decoder's live statistics
func (d *Decoder) Statistics() *Statistics {
	return d.stats
}

// Next examines the three quanta at the head of the ring buffer.
//
// If they are consistent the first one is decoded, stored in the scan and
// consumed, and the sample is returned with ok set. Otherwise one byte is
// discarded and ok is false. An error is returned only when fewer than
// LookAheadSize bytes are buffered, in which case nothing is consumed.
func (d *Decoder) Next() (Sample, bool, error) {
	if err := d.rb.Peek(d.window[:]); err != nil {
		return Sample{}, false, err
	}

	if reason := ValidateWindow(d.window); reason != DesyncNone {
		if monitoring.Enabled(monitoring.LevelDebug) {
			monitoring.Debugf("%s, previous ok %d, total bytes %d", reason, d.okRun, d.stats.BytesReceived)
		}
		d.stats.RecordDesync(reason)
		d.okRun = 0
		return Sample{}, false, d.rb.Discard(1)
	}

	var q Quantum
	copy(q[:], d.window[:QuantumSize])

	distance := q.DistanceMeters()
	if q.Quality() == 0 {
		distance = math.Inf(1)
	}
	distance, clip := d.filter.Apply(distance)

	sample := Sample{
		Angle:     q.AngleDegrees(),
		Distance:  distance,
		Quality:   q.Quality(),
		NewScan:   q.Start() == 1,
		Timestamp: time.Now(),
	}

	bucket, inRange := d.scan.Set(sample.Angle, sample.Distance)
	sample.Bucket = bucket
	d.stats.RecordSample(sample, clip, inRange)
	d.okRun++

	return sample, true, d.rb.Discard(QuantumSize)
}

// DecodeAbove calls Next while more than lowWater bytes are buffered and
// returns the number of accepted samples. onSample may be nil.
func (d *Decoder) DecodeAbove(lowWater int, onSample func(Sample)) int {
	if lowWater < LookAheadSize-1 {
		lowWater = LookAheadSize - 1
	}

	accepted := 0
	for d.rb.Size() > lowWater {
		sample, ok, err := d.Next()
		if err != nil {
			break
		}
		if ok {
			accepted++
			if onSample != nil {
				onSample(sample)
			}
		}
	}
	return accepted
}

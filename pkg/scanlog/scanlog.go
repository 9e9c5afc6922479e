// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scanlog records scans to a CBOR stream and reads them back.
//
// A recording is a header item followed by one item per frame. Both use
// integer map keys.
package scanlog

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

// Magic identifies a scan recording
const Magic = "scanstat"

// Version is the recording format version
const Version = 1

// ErrBadRecording is returned for a stream that is not a scan recording
var ErrBadRecording = errors.New("not a scan recording")

// Header describes the recording
type Header struct {
	Magic      string  `cbor:"1,keyasint"`
	Version    int     `cbor:"2,keyasint"`
	Created    int64   `cbor:"3,keyasint"` // unix nanoseconds
	MinAngle   float64 `cbor:"4,keyasint"`
	MaxAngle   float64 `cbor:"5,keyasint"`
	Resolution float64 `cbor:"6,keyasint"`
	DeviceInfo string  `cbor:"7,keyasint,omitempty"`
	Source     string  `cbor:"8,keyasint,omitempty"`
}

// CreatedAt returns the creation time
func (h Header) CreatedAt() time.Time {
	return time.Unix(0, h.Created)
}

// Frame is one recorded scan
type Frame struct {
	Seq     uint64    `cbor:"1,keyasint"`
	Time    int64     `cbor:"2,keyasint"` // unix nanoseconds
	Ranges  []float64 `cbor:"3,keyasint"`
	Samples uint64    `cbor:"4,keyasint"`
	Scans   uint64    `cbor:"5,keyasint"`
	Desyncs uint64    `cbor:"6,keyasint"`
}

// At returns the frame time
func (f Frame) At() time.Time {
	return time.Unix(0, f.Time)
}

// encMode keeps float64 ranges bit-exact
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{ShortestFloat: cbor.ShortestFloatNone}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends frames to a recording
type Writer struct {
	enc *cbor.Encoder
	seq uint64
	now func() time.Time
}

// NewWriter writes the header and returns a frame writer
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	h.Magic = Magic
	h.Version = Version
	if h.Created == 0 {
		h.Created = time.Now().UnixNano()
	}

	enc := encMode.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{enc: enc, now: time.Now}, nil
}

// WriteFrame records ranges with the current decoder counters
func (w *Writer) WriteFrame(ranges []float64, stats rplidar.Statistics) error {
	f := Frame{
		Seq:     w.seq,
		Time:    w.now().UnixNano(),
		Ranges:  ranges,
		Samples: stats.Samples,
		Scans:   stats.Scans,
		Desyncs: stats.Desyncs,
	}
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("write frame %d: %w", w.seq, err)
	}
	w.seq++
	return nil
}

// Append writes a frame captured elsewhere, keeping its time and counters.
// The sequence number is reassigned.
func (w *Writer) Append(f Frame) error {
	f.Seq = w.seq
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("write frame %d: %w", w.seq, err)
	}
	w.seq++
	return nil
}

// Frames returns the number of frames written
func (w *Writer) Frames() uint64 {
	return w.seq
}

// Reader reads frames from a recording
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)

	var h Header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty stream", ErrBadRecording)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadRecording, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadRecording, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadRecording, h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the recording header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next frame, or io.EOF at the end of the recording
func (r *Reader) Next() (Frame, error) {
	var f Frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return f, nil
}

// ReadAll returns every remaining frame
func (r *Reader) ReadAll() ([]Frame, error) {
	var frames []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

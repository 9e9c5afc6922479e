// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferOverflow is returned when a write does not fit in the free space.
	ErrBufferOverflow = errors.New("ring buffer overflow")

	// ErrBufferUnderflow is returned when more bytes are requested than buffered.
	ErrBufferUnderflow = errors.New("ring buffer underflow")
)

// RingBuffer is a fixed-capacity byte queue.
//
// The backing slice holds capacity+1 bytes so that start == end always means
// empty and the buffer is full at Size() == Capacity(). Writes that do not fit
// are rejected whole; nothing already queued is ever overwritten.
//
// RingBuffer is not safe for concurrent use.
type RingBuffer struct {
	elems []byte
	start int
	end   int
}

// NewRingBuffer creates a ring buffer holding up to capacity bytes
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{elems: make([]byte, capacity+1)}
}

// Capacity returns the maximum number of bytes the buffer can hold
func (rb *RingBuffer) Capacity() int {
	return len(rb.elems) - 1
}

// Size returns the number of buffered bytes
func (rb *RingBuffer) Size() int {
	n := len(rb.elems)
	return (rb.end - rb.start + n) % n
}

// Free returns the number of bytes that can be written without overflow
func (rb *RingBuffer) Free() int {
	return rb.Capacity() - rb.Size()
}

// Reset empties the buffer
func (rb *RingBuffer) Reset() {
	rb.start = 0
	rb.end = 0
}

// Write appends p to the buffer. If p does not fit in the free space the
// buffer is left untouched and ErrBufferOverflow is returned.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) > rb.Free() {
		return 0, fmt.Errorf("%w: write of %d bytes, %d free", ErrBufferOverflow, len(p), rb.Free())
	}

	// At most two copies: up to the end of the slice, then from the front
	n := copy(rb.elems[rb.end:], p)
	if n < len(p) {
		copy(rb.elems, p[n:])
	}
	rb.end = (rb.end + len(p)) % len(rb.elems)
	return len(p), nil
}

// Peek copies len(p) bytes from the head of the buffer without consuming them
func (rb *RingBuffer) Peek(p []byte) error {
	if len(p) > rb.Size() {
		return fmt.Errorf("%w: peek of %d bytes, %d buffered", ErrBufferUnderflow, len(p), rb.Size())
	}

	n := copy(p, rb.elems[rb.start:])
	if n < len(p) {
		copy(p[n:], rb.elems)
	}
	return nil
}

// Discard drops k bytes from the head of the buffer
func (rb *RingBuffer) Discard(k int) error {
	if k < 0 {
		return fmt.Errorf("invalid discard count: %d", k)
	}
	if k > rb.Size() {
		return fmt.Errorf("%w: discard of %d bytes, %d buffered", ErrBufferUnderflow, k, rb.Size())
	}
	rb.start = (rb.start + k) % len(rb.elems)
	return nil
}

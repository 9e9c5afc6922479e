// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

// Transport is the raw byte link to the sensor.
//
// Receive blocks for at most the transport's own read timeout and returns the
// number of bytes actually read, which may be 0 when nothing arrived in time.
// A non-nil error means the link is unusable.
type Transport interface {
	// Flush discards pending input and reports how many bytes were dropped.
	Flush() (int, error)
	Send(p []byte) (int, error)
	Receive(p []byte) (int, error)
	Close() error
}

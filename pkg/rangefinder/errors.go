// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rangefinder

import "errors"

var (
	// ErrConfig is returned when the configuration fails validation
	ErrConfig = errors.New("invalid configuration")

	// ErrTransport is returned when the transport cannot be opened
	ErrTransport = errors.New("transport unavailable")

	// ErrNotImplemented is returned by operations the sensor does not support
	ErrNotImplemented = errors.New("not implemented")

	// ErrGeometryLocked is returned when scan limits or resolution are changed
	// while the driver is open
	ErrGeometryLocked = errors.New("scan geometry is locked while the driver is open")

	// ErrNotOpen is returned by operations that need a scanning driver
	ErrNotOpen = errors.New("driver not open")

	// ErrAlreadyOpen is returned by Open on a driver that is not closed
	ErrAlreadyOpen = errors.New("driver already open")
)

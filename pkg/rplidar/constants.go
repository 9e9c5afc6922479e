// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rplidar implements the RPLIDAR A-series serial protocol.
//
// The sensor answers a small set of fixed request frames and, once scanning,
// emits an unframed stream of 5-byte measurement quanta. This package
// provides the byte ring buffer the stream is staged in, the sliding-window
// decoder that recovers quantum boundaries, the request/response command
// channel, and a software simulator of the device.
package rplidar

import "time"

// Request framing
const (
	SyncByte     = 0xA5
	ResponseSync = 0x5A
)

// Request opcodes (Host → Sensor)
const (
	OpStop      = 0x25
	OpReset     = 0x40
	OpScan      = 0x20
	OpForceScan = 0x21
	OpGetInfo   = 0x50
	OpGetHealth = 0x52
)

// Exchange sizes and timing
const (
	RequestSize = 2
	HeaderSize  = 7
	InfoSize    = 20
	HealthSize  = 3
	SerialSize  = 16

	// SettleDelay is the time the sensor needs before a response can be read.
	SettleDelay = 10 * time.Millisecond
)

// Response descriptor bytes checked by the command channel
const (
	infoLength    = 0x14
	infoType      = 0x04
	healthLength  = 0x03
	healthType    = 0x06
	scanLength    = 0x05
	scanMode      = 0x40
	scanType      = 0x81
	headerLenIdx  = 2
	headerModeIdx = 5
	headerTypeIdx = 6
)

// Health status values reported by GET_HEALTH
const (
	HealthOK      = 0
	HealthWarning = 1
	HealthError   = 2
)

// Scan stream layout
const (
	QuantumSize   = 5
	LookAheadSize = 3 * QuantumSize

	// DistanceScale converts the raw distance field (quarter millimetres) to metres.
	DistanceScale = 4000.0

	// AngleScale converts the raw angle field (Q6 fixed point) to degrees.
	AngleScale = 64.0

	// AngleOffset rotates the sensor frame so 0° of the sensor faces 90°.
	AngleOffset = 90.0

	maxAngleRaw = 0x7FFF
)

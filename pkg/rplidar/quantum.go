// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"math"
	"time"
)

// Quantum is one 5-byte measurement unit of the scan stream.
//
//	byte0: bit0 start, bit1 lock (inverse of start), bits2-7 quality
//	byte1: bit0 check flag, angle bits 0-7
//	byte2: bits1-7 angle bits 8-14
//	byte3: distance low byte
//	byte4: distance high byte
//
// Bit 0 of byte1 is both the check flag and the angle's lowest bit, so the
// raw angle of a valid quantum is always odd.
type Quantum [QuantumSize]byte

// NewQuantum encodes a quantum from its fields. The lock bit is set to the
// inverse of start. Quality is truncated to 6 bits and angleRaw to 15 bits.
func NewQuantum(start bool, quality uint8, angleRaw uint16, distanceRaw uint16) Quantum {
	var q Quantum
	q[0] = (quality & 0x3F) << 2
	if start {
		q[0] |= 0x01
	} else {
		q[0] |= 0x02
	}
	angleRaw &= maxAngleRaw
	q[1] = byte(angleRaw)
	q[2] = byte(angleRaw>>8) << 1
	q[3] = byte(distanceRaw)
	q[4] = byte(distanceRaw >> 8)
	return q
}

// Start returns the start-of-revolution bit
func (q Quantum) Start() uint8 {
	return q[0] & 0x01
}

// Lock returns the inverted start bit
func (q Quantum) Lock() uint8 {
	return (q[0] >> 1) & 0x01
}

// Check returns the check flag
func (q Quantum) Check() uint8 {
	return q[1] & 0x01
}

// Quality returns the 6-bit signal quality
func (q Quantum) Quality() uint8 {
	return q[0] >> 2
}

// AngleRaw returns the 15-bit fixed-point angle field
func (q Quantum) AngleRaw() uint16 {
	return uint16(q[2]>>1)<<8 | uint16(q[1])
}

// DistanceRaw returns the 16-bit fixed-point distance field
func (q Quantum) DistanceRaw() uint16 {
	return uint16(q[4])<<8 | uint16(q[3])
}

// AngleDegrees returns the quantum's angle in the host frame
func (q Quantum) AngleDegrees() float64 {
	return AngleFromRaw(q.AngleRaw())
}

// DistanceMeters returns the quantum's distance in metres, without the quality gate
func (q Quantum) DistanceMeters() float64 {
	return DistanceFromRaw(q.DistanceRaw())
}

// AngleFromRaw converts a raw angle to degrees in [0, 360), mirrored and
// rotated by AngleOffset.
func AngleFromRaw(raw uint16) float64 {
	return Normalize360(360 - float64(raw)/AngleScale + AngleOffset)
}

// DistanceFromRaw converts a raw distance to metres
func DistanceFromRaw(raw uint16) float64 {
	return float64(raw) / DistanceScale
}

// Normalize360 maps an angle in degrees into [0, 360)
func Normalize360(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	// math.Mod of a tiny negative value can round back up to 360
	if angle >= 360 {
		angle = 0
	}
	return angle
}

// Sample is one accepted measurement after unit conversion and clipping
type Sample struct {
	Angle     float64 // degrees, [0, 360)
	Distance  float64 // metres, +Inf when the sensor reported no return
	Quality   uint8
	NewScan   bool // start bit set: first sample of a revolution
	Bucket    int
	Timestamp time.Time
}

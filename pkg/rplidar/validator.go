// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

// DesyncReason identifies the rule that rejected a look-ahead window
type DesyncReason int

const (
	DesyncNone DesyncReason = iota
	DesyncLock1
	DesyncLock2
	DesyncLock3
	DesyncDoubleStart
	DesyncChecksum1
	DesyncChecksum2
	DesyncChecksum3
	desyncReasonCount
)

// String returns the reason's log name
func (r DesyncReason) String() string {
	switch r {
	case DesyncNone:
		return "none"
	case DesyncLock1:
		return "lock error 1"
	case DesyncLock2:
		return "lock error 2"
	case DesyncLock3:
		return "lock error 3"
	case DesyncDoubleStart:
		return "double start"
	case DesyncChecksum1:
		return "checksum error 1"
	case DesyncChecksum2:
		return "checksum error 2"
	case DesyncChecksum3:
		return "checksum error 3"
	default:
		return "unknown"
	}
}

// ValidateWindow checks three consecutive quanta for structural consistency.
// Rules are applied in order and the first failure is returned:
//   - start and lock bits must differ in every quantum
//   - the first two quanta must not both carry a start bit
//   - every quantum must carry the check flag
func ValidateWindow(window [LookAheadSize]byte) DesyncReason {
	var q [3]Quantum
	for i := range q {
		copy(q[i][:], window[i*QuantumSize:])
	}

	lockReasons := [3]DesyncReason{DesyncLock1, DesyncLock2, DesyncLock3}
	for i := range q {
		if q[i].Start() == q[i].Lock() {
			return lockReasons[i]
		}
	}

	if q[0].Start() == 1 && q[1].Start() == 1 {
		return DesyncDoubleStart
	}

	checkReasons := [3]DesyncReason{DesyncChecksum1, DesyncChecksum2, DesyncChecksum3}
	for i := range q {
		if q[i].Check() != 1 {
			return checkReasons[i]
		}
	}

	return DesyncNone
}

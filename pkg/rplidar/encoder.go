// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

// Encoding helpers for the device side of the protocol. The simulator and the
// tests use them to produce byte-exact responses and scan streams.

// EncodeStream concatenates quanta into a scan stream
func EncodeStream(quanta ...Quantum) []byte {
	out := make([]byte, 0, len(quanta)*QuantumSize)
	for _, q := range quanta {
		out = append(out, q[:]...)
	}
	return out
}

// EncodeInfoResponse builds the GET_INFO descriptor and payload
func EncodeInfoResponse(info DeviceInfo) []byte {
	out := []byte{SyncByte, ResponseSync, infoLength, 0x00, 0x00, 0x00, infoType}
	out = append(out, info.Model, info.FirmwareMajor, info.FirmwareMinor, info.Hardware)
	return append(out, info.Serial[:]...)
}

// EncodeHealthResponse builds the GET_HEALTH descriptor and payload
func EncodeHealthResponse(h Health) []byte {
	return []byte{
		SyncByte, ResponseSync, healthLength, 0x00, 0x00, 0x00, healthType,
		h.Status, byte(h.Code >> 8), byte(h.Code),
	}
}

// EncodeScanResponse builds the SCAN descriptor
func EncodeScanResponse() []byte {
	return []byte{SyncByte, ResponseSync, scanLength, 0x00, 0x00, scanMode, scanType}
}

// AngleRawFor returns the odd raw angle closest to the given sensor-frame
// angle in degrees. The lowest bit carries the check flag.
func AngleRawFor(sensorAngle float64) uint16 {
	sensorAngle = Normalize360(sensorAngle)
	return uint16(sensorAngle*AngleScale)&maxAngleRaw | 0x01
}

// DistanceRawFor converts metres to the raw distance field, saturating
func DistanceRawFor(meters float64) uint16 {
	if meters <= 0 {
		return 0
	}
	raw := meters * DistanceScale
	if raw > 0xFFFF {
		return 0xFFFF
	}
	return uint16(raw + 0.5)
}

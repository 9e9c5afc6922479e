// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"fmt"
	"math"
	"strings"
)

// FormatOpcode returns the human-readable name for a request opcode
func FormatOpcode(opcode uint8) string {
	switch opcode {
	case OpStop:
		return "STOP"
	case OpReset:
		return "RESET"
	case OpScan:
		return "SCAN"
	case OpForceScan:
		return "FORCE_SCAN"
	case OpGetInfo:
		return "GET_INFO"
	case OpGetHealth:
		return "GET_HEALTH"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", opcode)
	}
}

// FormatHealthStatus returns the human-readable name for a health status
func FormatHealthStatus(status uint8) string {
	switch status {
	case HealthOK:
		return "OK"
	case HealthWarning:
		return "WARNING"
	case HealthError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FormatHealth formats a health response
func FormatHealth(h Health) string {
	return fmt.Sprintf("%s (%d), code 0x%04X", FormatHealthStatus(h.Status), h.Status, h.Code)
}

// FormatDistance formats a distance in metres, spelling out no-return
func FormatDistance(d float64) string {
	if math.IsInf(d, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.3f m", d)
}

// FormatSample formats a decoded sample as a log line
func FormatSample(s Sample) string {
	timestamp := s.Timestamp.Format("15:04:05.000")
	marker := " "
	if s.NewScan {
		marker = "S"
	}
	return fmt.Sprintf("[%s] %s angle=%7.3f° bucket=%3d dist=%-9s quality=%2d\n",
		timestamp, marker, s.Angle, s.Bucket, FormatDistance(s.Distance), s.Quality)
}

// FormatQuantum dumps the fields of a raw quantum
func FormatQuantum(q Quantum) string {
	return fmt.Sprintf("% X start=%d lock=%d check=%d quality=%d angle_raw=%d distance_raw=%d",
		q[:], q.Start(), q.Lock(), q.Check(), q.Quality(), q.AngleRaw(), q.DistanceRaw())
}

// FormatHex dumps bytes 16 per line
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%02X ", b))
	}
	return sb.String()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"errors"
	"math"
	"math/rand"
	"sync"
)

// ErrSimulatorClosed is returned by a closed Simulator
var ErrSimulatorClosed = errors.New("simulator closed")

// RoomFunc returns the distance in metres seen at a sensor-frame angle in
// degrees. Zero or negative means no return.
type RoomFunc func(angle float64) float64

// RectangularRoom returns a RoomFunc for a sensor at the centre of a
// width × depth rectangle.
func RectangularRoom(width, depth float64) RoomFunc {
	return func(angle float64) float64 {
		rad := angle * math.Pi / 180
		c, s := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
		d := math.Inf(1)
		if c > 1e-9 {
			d = math.Min(d, width/2/c)
		}
		if s > 1e-9 {
			d = math.Min(d, depth/2/s)
		}
		return d
	}
}

// Simulator emulates an RPLIDAR on the far side of a Transport.
//
// Requests are answered with byte-exact responses. Once scanning, Receive
// streams quanta of a synthetic room. After every BurstSize streamed bytes one
// Receive returns 0, the way a serial port read times out between bursts.
type Simulator struct {
	mu sync.Mutex

	Info DeviceInfo

	// HealthSequence answers successive GET_HEALTH requests; the last entry repeats.
	HealthSequence []Health

	// Unanswered counts, per opcode, requests that get no response at all.
	Unanswered map[uint8]int

	SamplesPerRevolution int
	BurstSize            int

	// CorruptionRate is the probability of a stray byte before each quantum.
	CorruptionRate float64

	Room RoomFunc

	rng         *rand.Rand
	pending     []byte
	stream      []byte
	scanning    bool
	sampleIdx   int
	burst       int
	healthCalls int
	requests    []uint8
	closed      bool
}

// NewSimulator creates a healthy simulator in a 4 m × 3 m room
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		Info: DeviceInfo{
			Model:         0x18,
			FirmwareMajor: 1,
			FirmwareMinor: 29,
			Hardware:      7,
			Serial:        [SerialSize]byte{0x53, 0x43, 0x41, 0x4E, 0x53, 0x54, 0x41, 0x54, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
		},
		HealthSequence:       []Health{{Status: HealthOK}},
		Unanswered:           make(map[uint8]int),
		SamplesPerRevolution: 360,
		BurstSize:            400,
		Room:                 RectangularRoom(4, 3),
		rng:                  rand.New(rand.NewSource(seed)),
	}
}

// Requests returns the opcodes received so far
func (s *Simulator) Requests() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint8, len(s.requests))
	copy(out, s.requests)
	return out
}

// Scanning reports whether the simulator is streaming quanta
func (s *Simulator) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Closed reports whether Close was called
func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send implements Transport
func (s *Simulator) Send(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSimulatorClosed
	}

	for i := 0; i+1 < len(p); i += RequestSize {
		if p[i] != SyncByte {
			continue
		}
		s.handleRequest(p[i+1])
	}
	return len(p), nil
}

func (s *Simulator) handleRequest(opcode uint8) {
	s.requests = append(s.requests, opcode)

	if s.Unanswered[opcode] > 0 {
		s.Unanswered[opcode]--
		return
	}

	switch opcode {
	case OpGetInfo:
		s.pending = append(s.pending, EncodeInfoResponse(s.Info)...)

	case OpGetHealth:
		h := Health{Status: HealthOK}
		if len(s.HealthSequence) > 0 {
			idx := s.healthCalls
			if idx >= len(s.HealthSequence) {
				idx = len(s.HealthSequence) - 1
			}
			h = s.HealthSequence[idx]
		}
		s.healthCalls++
		s.pending = append(s.pending, EncodeHealthResponse(h)...)

	case OpScan, OpForceScan:
		s.pending = append(s.pending, EncodeScanResponse()...)
		s.scanning = true
		s.sampleIdx = 0
		s.burst = 0

	case OpStop:
		s.scanning = false
		s.stream = s.stream[:0]

	case OpReset:
		s.scanning = false
		s.pending = s.pending[:0]
		s.stream = s.stream[:0]
	}
}

// Receive implements Transport
func (s *Simulator) Receive(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSimulatorClosed
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	if n == len(p) || !s.scanning {
		return n, nil
	}

	if s.BurstSize > 0 && s.burst >= s.BurstSize {
		s.burst = 0
		return n, nil
	}

	want := len(p) - n
	if s.BurstSize > 0 && want > s.BurstSize-s.burst {
		want = s.BurstSize - s.burst
	}
	for len(s.stream) < want {
		s.generateQuantum()
	}
	m := copy(p[n:n+want], s.stream)
	s.stream = s.stream[m:]
	s.burst += m
	return n + m, nil
}

func (s *Simulator) generateQuantum() {
	spr := s.SamplesPerRevolution
	if spr <= 0 {
		spr = 360
	}

	angle := float64(s.sampleIdx) * 360 / float64(spr)
	distance := 0.0
	if s.Room != nil {
		distance = s.Room(angle)
	}

	quality := uint8(47)
	if distance <= 0 || math.IsInf(distance, 0) || math.IsNaN(distance) {
		quality = 0
		distance = 0
	}

	if s.CorruptionRate > 0 && s.rng.Float64() < s.CorruptionRate {
		s.stream = append(s.stream, byte(s.rng.Intn(256)))
	}

	q := NewQuantum(s.sampleIdx == 0, quality, AngleRawFor(angle), DistanceRawFor(distance))
	s.stream = append(s.stream, q[:]...)
	s.sampleIdx = (s.sampleIdx + 1) % spr
}

// Flush implements Transport
func (s *Simulator) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSimulatorClosed
	}
	n := len(s.pending) + len(s.stream)
	s.pending = s.pending[:0]
	s.stream = s.stream[:0]
	return n, nil
}

// Close implements Transport
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.scanning = false
	return nil
}

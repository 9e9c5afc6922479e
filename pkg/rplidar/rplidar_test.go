// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// validTriple returns three consistent quanta, the first carrying the given fields
func validTriple(start bool, quality uint8, angleRaw, distanceRaw uint16) []byte {
	return EncodeStream(
		NewQuantum(start, quality, angleRaw, distanceRaw),
		NewQuantum(false, 10, 0x0101, 1000),
		NewQuantum(false, 10, 0x0103, 1000),
	)
}

func newTestDecoder(t *testing.T, filter Filter) (*RingBuffer, *ScanBuffer, *Decoder) {
	t.Helper()
	rb := NewRingBuffer(1024)
	scan, err := NewScanBuffer(0, 360, 1.0)
	if err != nil {
		t.Fatalf("NewScanBuffer: %v", err)
	}
	return rb, scan, NewDecoder(rb, scan, filter)
}

func mustWrite(t *testing.T, rb *RingBuffer, data []byte) {
	t.Helper()
	if _, err := rb.Write(data); err != nil {
		t.Fatalf("Write(%d bytes): %v", len(data), err)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// RingBuffer Tests
// ============================================================

func TestRingBuffer_Empty(t *testing.T) {
	rb := NewRingBuffer(16)
	if rb.Size() != 0 {
		t.Errorf("Size() = %d, want 0", rb.Size())
	}
	if rb.Capacity() != 16 {
		t.Errorf("Capacity() = %d, want 16", rb.Capacity())
	}
	if rb.Free() != 16 {
		t.Errorf("Free() = %d, want 16", rb.Free())
	}
}

func TestRingBuffer_WraparoundPreservesOrder(t *testing.T) {
	rb := NewRingBuffer(8)

	mustWrite(t, rb, []byte{1, 2, 3, 4, 5, 6})
	if err := rb.Discard(5); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	// end is now at index 6 of a 9-slot array, so this write wraps
	mustWrite(t, rb, []byte{7, 8, 9, 10, 11, 12})

	got := make([]byte, 7)
	if err := rb.Peek(got); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	want := []byte{6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(got, want) {
		t.Errorf("Peek = %v, want %v", got, want)
	}
	if rb.Size() != 7 {
		t.Errorf("Size() = %d, want 7", rb.Size())
	}
}

func TestRingBuffer_FullRejectsWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	mustWrite(t, rb, []byte{1, 2, 3, 4})

	if rb.Size() != rb.Capacity() {
		t.Fatalf("Size() = %d, want full (%d)", rb.Size(), rb.Capacity())
	}

	n, err := rb.Write([]byte{5})
	if !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("Write on full buffer: err = %v, want ErrBufferOverflow", err)
	}
	if n != 0 {
		t.Errorf("Write on full buffer wrote %d bytes", n)
	}

	// Oldest data must be intact
	got := make([]byte, 4)
	if err := rb.Peek(got); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("Peek = %v, want [1 2 3 4]", got)
	}
}

func TestRingBuffer_OversizedWriteIsAtomic(t *testing.T) {
	rb := NewRingBuffer(4)
	mustWrite(t, rb, []byte{1, 2})

	if _, err := rb.Write([]byte{3, 4, 5}); !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("err = %v, want ErrBufferOverflow", err)
	}
	if rb.Size() != 2 {
		t.Errorf("Size() = %d after rejected write, want 2", rb.Size())
	}
}

func TestRingBuffer_Underflow(t *testing.T) {
	rb := NewRingBuffer(8)
	mustWrite(t, rb, []byte{1, 2, 3})

	if err := rb.Peek(make([]byte, 4)); !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("Peek(4) err = %v, want ErrBufferUnderflow", err)
	}
	if err := rb.Discard(4); !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("Discard(4) err = %v, want ErrBufferUnderflow", err)
	}
	if err := rb.Discard(-1); err == nil {
		t.Error("Discard(-1) should fail")
	}
	if rb.Size() != 3 {
		t.Errorf("Size() = %d, want 3", rb.Size())
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer(8)
	mustWrite(t, rb, []byte{1, 2, 3})
	rb.Reset()
	if rb.Size() != 0 {
		t.Errorf("Size() = %d after Reset, want 0", rb.Size())
	}
}

func TestRingBuffer_RandomInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rb := NewRingBuffer(37)
	var model []byte
	var written, discarded int

	for i := 0; i < 5000; i++ {
		if rng.Intn(2) == 0 {
			n := rng.Intn(rb.Free() + 1)
			data := make([]byte, n)
			rng.Read(data)
			mustWrite(t, rb, data)
			model = append(model, data...)
			written += n
		} else {
			k := rng.Intn(rb.Size() + 1)
			if err := rb.Discard(k); err != nil {
				t.Fatalf("Discard(%d): %v", k, err)
			}
			model = model[k:]
			discarded += k
		}

		if rb.Size() != written-discarded {
			t.Fatalf("step %d: Size() = %d, want %d", i, rb.Size(), written-discarded)
		}
		got := make([]byte, rb.Size())
		if err := rb.Peek(got); err != nil {
			t.Fatalf("Peek: %v", err)
		}
		if !bytes.Equal(got, model) {
			t.Fatalf("step %d: contents diverged from model", i)
		}
	}
}

// ============================================================
// Quantum Tests
// ============================================================

func TestNewQuantum_Fields(t *testing.T) {
	q := NewQuantum(true, 5, 23039, 4000)

	if q.Start() != 1 || q.Lock() != 0 {
		t.Errorf("start/lock = %d/%d, want 1/0", q.Start(), q.Lock())
	}
	if q.Check() != 1 {
		t.Errorf("Check() = %d, want 1 for odd raw angle", q.Check())
	}
	if q.Quality() != 5 {
		t.Errorf("Quality() = %d, want 5", q.Quality())
	}
	if q.AngleRaw() != 23039 {
		t.Errorf("AngleRaw() = %d, want 23039", q.AngleRaw())
	}
	if q.DistanceRaw() != 4000 {
		t.Errorf("DistanceRaw() = %d, want 4000", q.DistanceRaw())
	}
	if !almostEqual(q.DistanceMeters(), 1.0) {
		t.Errorf("DistanceMeters() = %f, want 1.0", q.DistanceMeters())
	}
}

func TestNewQuantum_ContinuationBits(t *testing.T) {
	q := NewQuantum(false, 63, 1, 0)
	if q.Start() != 0 || q.Lock() != 1 {
		t.Errorf("start/lock = %d/%d, want 0/1", q.Start(), q.Lock())
	}
	if q.Quality() != 63 {
		t.Errorf("Quality() = %d, want 63", q.Quality())
	}
}

func TestAngleFromRaw(t *testing.T) {
	tests := []struct {
		raw  uint16
		want float64
	}{
		{0, 90},
		{5760, 0},
		{23039, 90.015625},
		{1, 89.984375},
		{11520, 270},
		{0x7FFF, Normalize360(450 - float64(0x7FFF)/64)},
	}

	for _, tt := range tests {
		got := AngleFromRaw(tt.raw)
		if !almostEqual(got, tt.want) {
			t.Errorf("AngleFromRaw(%d) = %f, want %f", tt.raw, got, tt.want)
		}
		if got < 0 || got >= 360 {
			t.Errorf("AngleFromRaw(%d) = %f outside [0, 360)", tt.raw, got)
		}
	}
}

func TestNormalize360(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{450, 90},
		{-61.5, 298.5},
		{720.5, 0.5},
		{359.999, 359.999},
	}
	for _, tt := range tests {
		if got := Normalize360(tt.in); !almostEqual(got, tt.want) {
			t.Errorf("Normalize360(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestAngleRawFor_RoundTrip(t *testing.T) {
	for angle := 0.0; angle < 360; angle += 7.5 {
		raw := AngleRawFor(angle)
		if raw&1 != 1 {
			t.Errorf("AngleRawFor(%f) = %d, want odd", angle, raw)
		}
		sensor := float64(raw) / AngleScale
		if math.Abs(sensor-angle) > 2/AngleScale {
			t.Errorf("AngleRawFor(%f) decodes to sensor angle %f", angle, sensor)
		}
	}
}

func TestDistanceRawFor(t *testing.T) {
	if got := DistanceRawFor(1.0); got != 4000 {
		t.Errorf("DistanceRawFor(1.0) = %d, want 4000", got)
	}
	if got := DistanceRawFor(-1); got != 0 {
		t.Errorf("DistanceRawFor(-1) = %d, want 0", got)
	}
	if got := DistanceRawFor(100); got != 0xFFFF {
		t.Errorf("DistanceRawFor(100) = %d, want saturation", got)
	}
}

// ============================================================
// Window Validation Tests
// ============================================================

func TestValidateWindow(t *testing.T) {
	good := NewQuantum(false, 10, 0x0101, 1000)
	start := NewQuantum(true, 10, 0x0101, 1000)

	badLock := good
	badLock[0] |= 0x03 // start == lock == 1

	badCheck := good
	badCheck[1] &^= 0x01

	tests := []struct {
		name   string
		quanta [3]Quantum
		want   DesyncReason
	}{
		{"all continuation", [3]Quantum{good, good, good}, DesyncNone},
		{"start then continuation", [3]Quantum{start, good, good}, DesyncNone},
		{"start in third", [3]Quantum{good, good, start}, DesyncNone},
		{"lock error 1", [3]Quantum{badLock, good, good}, DesyncLock1},
		{"lock error 2", [3]Quantum{good, badLock, good}, DesyncLock2},
		{"lock error 3", [3]Quantum{good, good, badLock}, DesyncLock3},
		{"double start", [3]Quantum{start, start, good}, DesyncDoubleStart},
		{"checksum error 1", [3]Quantum{badCheck, good, good}, DesyncChecksum1},
		{"checksum error 2", [3]Quantum{good, badCheck, good}, DesyncChecksum2},
		{"checksum error 3", [3]Quantum{good, good, badCheck}, DesyncChecksum3},
		{"lock beats checksum", [3]Quantum{badCheck, badLock, good}, DesyncLock2},
		{"double start beats checksum", [3]Quantum{start, start, badCheck}, DesyncDoubleStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var window [LookAheadSize]byte
			copy(window[:], EncodeStream(tt.quanta[:]...))
			if got := ValidateWindow(window); got != tt.want {
				t.Errorf("ValidateWindow = %s, want %s", got, tt.want)
			}
		})
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_InsufficientData(t *testing.T) {
	rb, _, d := newTestDecoder(t, Filter{})
	mustWrite(t, rb, make([]byte, LookAheadSize-1))

	_, ok, err := d.Next()
	if !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("err = %v, want ErrBufferUnderflow", err)
	}
	if ok {
		t.Error("ok should be false")
	}
	if rb.Size() != LookAheadSize-1 {
		t.Errorf("Size() = %d, nothing should be consumed", rb.Size())
	}
}

func TestDecoder_GarbageThenTriple(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for k := 0; k <= 12; k++ {
		rb, _, d := newTestDecoder(t, Filter{})

		// Garbage bytes whose start and lock bits agree can never open a valid window
		garbage := make([]byte, k)
		for i := range garbage {
			b := byte(rng.Intn(256)) &^ 0x03
			if rng.Intn(2) == 1 {
				b |= 0x03
			}
			garbage[i] = b
		}
		mustWrite(t, rb, garbage)
		mustWrite(t, rb, validTriple(true, 5, 23039, 4000))

		for i := 0; i < k; i++ {
			before := rb.Size()
			_, ok, err := d.Next()
			if err != nil || ok {
				t.Fatalf("k=%d step %d: ok=%v err=%v, want desync", k, i, ok, err)
			}
			if rb.Size() != before-1 {
				t.Fatalf("k=%d step %d: desync consumed %d bytes, want 1", k, i, before-rb.Size())
			}
		}

		sample, ok, err := d.Next()
		if err != nil || !ok {
			t.Fatalf("k=%d: expected sample, ok=%v err=%v", k, ok, err)
		}
		if !almostEqual(sample.Angle, 90.015625) {
			t.Errorf("k=%d: angle = %f, want 90.015625", k, sample.Angle)
		}
		if !almostEqual(sample.Distance, 1.0) {
			t.Errorf("k=%d: distance = %f, want 1.0", k, sample.Distance)
		}
		if d.Statistics().Desyncs != uint64(k) {
			t.Errorf("k=%d: Desyncs = %d", k, d.Statistics().Desyncs)
		}
		if rb.Size() != 2*QuantumSize {
			t.Errorf("k=%d: %d bytes left, want the two look-ahead quanta", k, rb.Size())
		}
	}
}

func TestDecoder_EndToEndBucket(t *testing.T) {
	rb, scan, d := newTestDecoder(t, Filter{MinDistance: 0.1, MaxDistance: 2.5, ClipMin: true, ClipMax: true})
	mustWrite(t, rb, validTriple(true, 5, 23039, 4000))

	sample, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if sample.Bucket != 90 {
		t.Errorf("Bucket = %d, want 90", sample.Bucket)
	}
	if scan.At(90) != 1.0 {
		t.Errorf("scan[90] = %f, want 1.0", scan.At(90))
	}
	if !sample.NewScan {
		t.Error("NewScan should be set for a start quantum")
	}
	if d.Statistics().Scans != 1 {
		t.Errorf("Scans = %d, want 1", d.Statistics().Scans)
	}
}

func TestDecoder_ClipPolicy(t *testing.T) {
	tests := []struct {
		name        string
		filter      Filter
		quality     uint8
		distanceRaw uint16
		want        float64
	}{
		{
			name:        "below min saturates to max",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5, ClipMin: true},
			quality:     10,
			distanceRaw: 200, // 0.05 m
			want:        2.5,
		},
		{
			name:        "below min without clip passes",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5},
			quality:     10,
			distanceRaw: 200,
			want:        0.05,
		},
		{
			name:        "above max saturates",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5, ClipMax: true},
			quality:     10,
			distanceRaw: 12000, // 3.0 m
			want:        2.5,
		},
		{
			name:        "above max passes with infinity allowed",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5, ClipMax: true, AllowInfinity: true},
			quality:     10,
			distanceRaw: 12000,
			want:        3.0,
		},
		{
			name:        "quality zero is infinite",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5},
			quality:     0,
			distanceRaw: 4000,
			want:        math.Inf(1),
		},
		{
			name:        "quality zero clipped to max",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5, ClipMax: true},
			quality:     0,
			distanceRaw: 4000,
			want:        2.5,
		},
		{
			name:        "quality zero passes with infinity allowed",
			filter:      Filter{MinDistance: 0.1, MaxDistance: 2.5, ClipMax: true, AllowInfinity: true},
			quality:     0,
			distanceRaw: 0,
			want:        math.Inf(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb, scan, d := newTestDecoder(t, tt.filter)
			mustWrite(t, rb, validTriple(false, tt.quality, 23039, tt.distanceRaw))

			sample, ok, err := d.Next()
			if err != nil || !ok {
				t.Fatalf("Next: ok=%v err=%v", ok, err)
			}
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(sample.Distance, 1) {
					t.Errorf("distance = %f, want +Inf", sample.Distance)
				}
			} else if !almostEqual(sample.Distance, tt.want) {
				t.Errorf("distance = %f, want %f", sample.Distance, tt.want)
			}
			if got := scan.At(sample.Bucket); got != sample.Distance && !(math.IsInf(got, 1) && math.IsInf(sample.Distance, 1)) {
				t.Errorf("scan[%d] = %f, want %f", sample.Bucket, got, sample.Distance)
			}
		})
	}
}

func TestDecoder_OutOfRangeBucket(t *testing.T) {
	rb := NewRingBuffer(256)
	scan, err := NewScanBuffer(0, 180, 1.0)
	if err != nil {
		t.Fatalf("NewScanBuffer: %v", err)
	}
	d := NewDecoder(rb, scan, Filter{})

	// raw 11521 decodes to ~270°, outside a half-circle scan
	mustWrite(t, rb, validTriple(false, 10, 11521, 4000))
	sample, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if sample.Bucket < 180 {
		t.Errorf("Bucket = %d, expected outside [0, 180)", sample.Bucket)
	}
	if d.Statistics().OutOfRange != 1 {
		t.Errorf("OutOfRange = %d, want 1", d.Statistics().OutOfRange)
	}
	if rb.Size() != 2*QuantumSize {
		t.Errorf("window should still advance, %d bytes left", rb.Size())
	}
}

func TestDecoder_LastWriteWins(t *testing.T) {
	rb, scan, d := newTestDecoder(t, Filter{})
	mustWrite(t, rb, EncodeStream(
		NewQuantum(false, 10, 23039, 4000),
		NewQuantum(false, 10, 23039, 8000),
		NewQuantum(false, 10, 0x0101, 1000),
		NewQuantum(false, 10, 0x0103, 1000),
	))

	d.DecodeAbove(0, nil)
	if scan.At(90) != 2.0 {
		t.Errorf("scan[90] = %f, want the later sample 2.0", scan.At(90))
	}
}

func TestDecoder_DecodeAboveStopsAtLowWater(t *testing.T) {
	rb, _, d := newTestDecoder(t, Filter{})
	var quanta []Quantum
	for i := 0; i < 40; i++ {
		quanta = append(quanta, NewQuantum(i == 0, 10, AngleRawFor(float64(i)*9), 4000))
	}
	mustWrite(t, rb, EncodeStream(quanta...))

	var seen []Sample
	n := d.DecodeAbove(100, func(s Sample) { seen = append(seen, s) })

	if rb.Size() > 100 {
		t.Errorf("Size() = %d, want <= 100", rb.Size())
	}
	if n != len(seen) {
		t.Errorf("returned %d, callback saw %d", n, len(seen))
	}
	// 200 bytes in, stride 5 down to 100 bytes
	if n != 20 {
		t.Errorf("accepted %d samples, want 20", n)
	}
}

func TestDecoder_SetFilter(t *testing.T) {
	rb, _, d := newTestDecoder(t, Filter{})
	d.SetFilter(Filter{MinDistance: 0.5, MaxDistance: 1.5, ClipMax: true})
	if d.Filter().MaxDistance != 1.5 {
		t.Fatalf("Filter not replaced")
	}
	mustWrite(t, rb, validTriple(false, 10, 23039, 8000))
	sample, _, _ := d.Next()
	if sample.Distance != 1.5 {
		t.Errorf("distance = %f, want 1.5", sample.Distance)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.RecordBytes(100)
	s.RecordDesync(DesyncLock2)
	s.RecordSample(Sample{Distance: math.Inf(1), NewScan: true}, ClipAboveMax, true)

	out := s.String()
	for _, want := range []string{"Bytes Received", "Desyncs", "lock error 2", "No Return", "Clipped"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if s.Samples != 0 || s.Desyncs != 0 || s.BytesReceived != 0 {
		t.Error("Reset should clear counters")
	}
}

func TestScanBuffer_MinAngleDoesNotShiftBuckets(t *testing.T) {
	scan, err := NewScanBuffer(90, 180, 1.0)
	if err != nil {
		t.Fatalf("NewScanBuffer: %v", err)
	}
	if scan.Len() != 90 {
		t.Fatalf("Len = %d, expected 90", scan.Len())
	}

	if b, ok := scan.Set(45.5, 1.0); !ok || b != 45 {
		t.Errorf("Set(45.5) = %d, %v, expected bucket 45 stored", b, ok)
	}
	if b, ok := scan.Set(120.0, 1.0); ok || b != 120 {
		t.Errorf("Set(120) = %d, %v, expected bucket 120 dropped", b, ok)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// scriptedTransport replays canned response bytes and records requests
type scriptedTransport struct {
	rx      bytes.Buffer
	tx      bytes.Buffer
	flushes int
	sendErr error
	short   bool
}

func (s *scriptedTransport) Flush() (int, error) {
	s.flushes++
	n := s.rx.Len()
	s.rx.Reset()
	return n, nil
}

func (s *scriptedTransport) Send(p []byte) (int, error) {
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	if s.short {
		p = p[:1]
	}
	return s.tx.Write(p)
}

func (s *scriptedTransport) Receive(p []byte) (int, error) {
	n, _ := s.rx.Read(p)
	return n, nil
}

func (s *scriptedTransport) Close() error { return nil }

func newTestChannel(t Transport) *CommandChannel {
	c := NewCommandChannel(t)
	c.SettleDelay = 0
	return c
}

// primedTransport queues response when the first request is sent, so the
// flush that precedes a command cannot discard it.
type primedTransport struct {
	scriptedTransport
	response []byte
}

func (p *primedTransport) Send(b []byte) (int, error) {
	n, err := p.scriptedTransport.Send(b)
	p.rx.Write(p.response)
	p.response = nil
	return n, err
}

// ============================================================
// Request Encoding
// ============================================================

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		opcode uint8
		want   []byte
	}{
		{OpStop, []byte{0xA5, 0x25}},
		{OpReset, []byte{0xA5, 0x40}},
		{OpScan, []byte{0xA5, 0x20}},
		{OpForceScan, []byte{0xA5, 0x21}},
		{OpGetInfo, []byte{0xA5, 0x50}},
		{OpGetHealth, []byte{0xA5, 0x52}},
	}
	for _, tt := range tests {
		if got := EncodeRequest(tt.opcode); !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeRequest(%s) = % X, want % X", FormatOpcode(tt.opcode), got, tt.want)
		}
	}
}

// ============================================================
// Command Channel against the Simulator
// ============================================================

func TestCommandChannel_GetInfo(t *testing.T) {
	sim := NewSimulator(1)
	c := newTestChannel(sim)

	info, err := c.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info != sim.Info {
		t.Errorf("GetInfo = %+v, want %+v", info, sim.Info)
	}
	s := info.String()
	if !strings.HasPrefix(s, "model 24 fw_major 1 fw_minor 29 hardware 7 serial number ") {
		t.Errorf("String() = %q", s)
	}
	if !strings.HasSuffix(s, "5343414E535441540001020304050607") {
		t.Errorf("serial not hex encoded: %q", s)
	}
}

func TestCommandChannel_GetHealth(t *testing.T) {
	tests := []struct {
		name   string
		health Health
		ok     bool
	}{
		{"ok", Health{Status: HealthOK}, true},
		{"warning", Health{Status: HealthWarning, Code: 3}, true},
		{"error", Health{Status: HealthError, Code: 0x0102}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulator(1)
			sim.HealthSequence = []Health{tt.health}
			c := newTestChannel(sim)

			h, err := c.GetHealth()
			if err != nil {
				t.Fatalf("GetHealth: %v", err)
			}
			if h != tt.health {
				t.Errorf("GetHealth = %+v, want %+v", h, tt.health)
			}
			if h.OK() != tt.ok {
				t.Errorf("OK() = %v, want %v", h.OK(), tt.ok)
			}
		})
	}
}

func TestCommandChannel_GetHealthUnknownStatus(t *testing.T) {
	sim := NewSimulator(1)
	sim.HealthSequence = []Health{{Status: 7}}
	c := newTestChannel(sim)

	if _, err := c.GetHealth(); !errors.Is(err, ErrHandshake) {
		t.Errorf("err = %v, want ErrHandshake", err)
	}
}

func TestCommandChannel_NoAnswer(t *testing.T) {
	for _, op := range []uint8{OpGetInfo, OpGetHealth, OpScan} {
		t.Run(FormatOpcode(op), func(t *testing.T) {
			sim := NewSimulator(1)
			sim.Unanswered[op] = 1
			c := newTestChannel(sim)

			var err error
			switch op {
			case OpGetInfo:
				_, err = c.GetInfo()
			case OpGetHealth:
				_, err = c.GetHealth()
			case OpScan:
				err = c.Start(false)
			}
			if !errors.Is(err, ErrHandshake) {
				t.Errorf("err = %v, want ErrHandshake", err)
			}
		})
	}
}

func TestCommandChannel_StartStop(t *testing.T) {
	sim := NewSimulator(1)
	c := newTestChannel(sim)

	if err := c.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sim.Scanning() {
		t.Error("simulator should be scanning after Start")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sim.Scanning() {
		t.Error("simulator should stop scanning after Stop")
	}

	if err := c.Start(true); err != nil {
		t.Fatalf("Start(force): %v", err)
	}
	reqs := sim.Requests()
	want := []uint8{OpScan, OpStop, OpForceScan}
	if !bytes.Equal(reqs, want) {
		t.Errorf("requests = % X, want % X", reqs, want)
	}
}

func TestCommandChannel_Reset(t *testing.T) {
	sim := NewSimulator(1)
	c := newTestChannel(sim)
	if err := c.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sim.Scanning() {
		t.Error("reset should leave scan mode")
	}
}

// ============================================================
// Command Channel against scripted responses
// ============================================================

func TestCommandChannel_InvalidHeaders(t *testing.T) {
	info := EncodeInfoResponse(DeviceInfo{})
	health := EncodeHealthResponse(Health{})
	scan := EncodeScanResponse()

	corrupt := func(b []byte, idx int) []byte {
		out := append([]byte(nil), b...)
		out[idx] ^= 0xFF
		return out
	}

	tests := []struct {
		name     string
		response []byte
		call     func(c *CommandChannel) error
	}{
		{"info sync", corrupt(info, 0), func(c *CommandChannel) error { _, err := c.GetInfo(); return err }},
		{"info response sync", corrupt(info, 1), func(c *CommandChannel) error { _, err := c.GetInfo(); return err }},
		{"info length", corrupt(info, 2), func(c *CommandChannel) error { _, err := c.GetInfo(); return err }},
		{"info type", corrupt(info, 6), func(c *CommandChannel) error { _, err := c.GetInfo(); return err }},
		{"info short payload", info[:len(info)-1], func(c *CommandChannel) error { _, err := c.GetInfo(); return err }},
		{"health length", corrupt(health, 2), func(c *CommandChannel) error { _, err := c.GetHealth(); return err }},
		{"health type", corrupt(health, 6), func(c *CommandChannel) error { _, err := c.GetHealth(); return err }},
		{"health short header", health[:5], func(c *CommandChannel) error { _, err := c.GetHealth(); return err }},
		{"scan length", corrupt(scan, 2), func(c *CommandChannel) error { return c.Start(false) }},
		{"scan mode", corrupt(scan, 5), func(c *CommandChannel) error { return c.Start(false) }},
		{"scan type", corrupt(scan, 6), func(c *CommandChannel) error { return c.Start(false) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &primedTransport{response: tt.response}
			if err := tt.call(newTestChannel(tr)); !errors.Is(err, ErrHandshake) {
				t.Errorf("err = %v, want ErrHandshake", err)
			}
		})
	}
}

func TestCommandChannel_HealthDecodesCode(t *testing.T) {
	tr := &primedTransport{response: EncodeHealthResponse(Health{Status: HealthWarning, Code: 0xBEEF})}
	h, err := newTestChannel(tr).GetHealth()
	if err != nil {
		t.Fatalf("GetHealth: %v", err)
	}
	if h.Code != 0xBEEF {
		t.Errorf("Code = 0x%04X, want 0xBEEF", h.Code)
	}
}

func TestCommandChannel_FlushesBeforeCommands(t *testing.T) {
	tr := &primedTransport{}
	tr.rx.WriteString("stale bytes")
	c := newTestChannel(tr)

	_ = c.Stop()
	if tr.flushes != 1 {
		t.Errorf("Stop flushed %d times, want 1", tr.flushes)
	}
	_ = c.Reset()
	if tr.flushes != 2 {
		t.Errorf("Reset flushed %d times, want 2", tr.flushes)
	}
	if !bytes.Equal(tr.tx.Bytes(), []byte{0xA5, 0x25, 0xA5, 0x40}) {
		t.Errorf("sent % X", tr.tx.Bytes())
	}
}

func TestCommandChannel_SendFailures(t *testing.T) {
	tr := &scriptedTransport{short: true}
	if err := newTestChannel(tr).Stop(); !errors.Is(err, ErrHandshake) {
		t.Errorf("short send: err = %v, want ErrHandshake", err)
	}

	sendErr := errors.New("port gone")
	tr = &scriptedTransport{sendErr: sendErr}
	if err := newTestChannel(tr).Stop(); !errors.Is(err, sendErr) {
		t.Errorf("send error: err = %v, want wrapped %v", err, sendErr)
	}
}

func TestCommandChannel_SettleDelay(t *testing.T) {
	c := NewCommandChannel(&scriptedTransport{})
	var slept time.Duration
	c.sleep = func(d time.Duration) { slept += d }

	_ = c.Stop()
	if slept != SettleDelay {
		t.Errorf("slept %v, want %v", slept, SettleDelay)
	}
}

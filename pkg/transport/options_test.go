// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate = %d, want %d", got.BaudRate, DefaultBaudRate)
	}
	if got.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", got.DataBits)
	}
	if got.StopBits != 1 {
		t.Errorf("StopBits = %d, want 1", got.StopBits)
	}
	if got.Parity != "N" {
		t.Errorf("Parity = %q, want %q", got.Parity, "N")
	}
	if got.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want %v", got.ReadTimeout, DefaultReadTimeout)
	}
}

func TestPortOptions_Normalize_ExplicitValues(t *testing.T) {
	opts := PortOptions{BaudRate: 256000, DataBits: 7, StopBits: 2, Parity: "even", ReadTimeout: time.Second}
	got, err := opts.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.BaudRate != 256000 || got.DataBits != 7 || got.StopBits != 2 || got.Parity != "E" || got.ReadTimeout != time.Second {
		t.Errorf("Normalize() = %+v", got)
	}
}

func TestPortOptions_Normalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"nonstandard baud", PortOptions{BaudRate: 12345}},
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
		{"negative timeout", PortOptions{ReadTimeout: -time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalize(); err == nil {
				t.Errorf("Normalize(%+v) expected error", tt.opts)
			}
		})
	}
}

func TestPortOptions_Normalize_StandardRates(t *testing.T) {
	for _, rate := range StandardBaudRates {
		if _, err := (PortOptions{BaudRate: rate}).Normalize(); err != nil {
			t.Errorf("baud %d: unexpected error %v", rate, err)
		}
	}
}

func TestPortOptions_Equal(t *testing.T) {
	a := PortOptions{Port: "/dev/ttyUSB0"}
	b := PortOptions{Port: "/dev/ttyUSB0", BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}
	if !a.Equal(b) {
		t.Errorf("expected %+v to equal %+v", a, b)
	}

	c := b
	c.BaudRate = 256000
	if a.Equal(c) {
		t.Errorf("expected %+v to differ from %+v", a, c)
	}

	if a.Equal(PortOptions{BaudRate: 12345}) {
		t.Error("invalid options should never be equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name     string
		opts     PortOptions
		stopBits serial.StopBits
		parity   serial.Parity
	}{
		{"defaults", PortOptions{}, serial.OneStopBit, serial.NoParity},
		{"two stop bits", PortOptions{StopBits: 2}, serial.TwoStopBits, serial.NoParity},
		{"even", PortOptions{Parity: "E"}, serial.OneStopBit, serial.EvenParity},
		{"odd", PortOptions{Parity: "odd"}, serial.OneStopBit, serial.OddParity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.opts.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode() error = %v", err)
			}
			if mode.BaudRate != DefaultBaudRate {
				t.Errorf("BaudRate = %d, want %d", mode.BaudRate, DefaultBaudRate)
			}
			if mode.StopBits != tt.stopBits {
				t.Errorf("StopBits = %v, want %v", mode.StopBits, tt.stopBits)
			}
			if mode.Parity != tt.parity {
				t.Errorf("Parity = %v, want %v", mode.Parity, tt.parity)
			}
		})
	}

	if _, err := (PortOptions{DataBits: 9}).SerialMode(); err == nil {
		t.Error("SerialMode() expected error for invalid options")
	}
}

func TestPortOptions_String(t *testing.T) {
	got := PortOptions{Port: "/dev/ttyUSB0"}.String()
	want := "Serial: /dev/ttyUSB0 @ 115200 baud (8N1)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

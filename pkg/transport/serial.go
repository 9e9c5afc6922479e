// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// flushTimeout bounds each read while draining stale input
const flushTimeout = 2 * time.Millisecond

// maxFlushBytes stops a flush against a sensor that is still streaming
const maxFlushBytes = 64 * 1024

// ErrPortClosed is returned when using a closed serial transport
var ErrPortClosed = errors.New("serial port closed")

// port is the subset of serial.Port the transport needs
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// portOpener opens a serial port. Tests replace it.
var portOpener = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// SerialTransport talks to the sensor over a serial port
type SerialTransport struct {
	port        port
	opts        PortOptions
	readTimeout time.Duration
	closed      bool
}

// OpenSerial opens the port described by opts
func OpenSerial(opts PortOptions) (*SerialTransport, error) {
	if opts.Port == "" {
		return nil, errors.New("no serial port specified")
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, err
	}

	p, err := portOpener(normalized.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", normalized.Port, err)
	}
	if err := p.SetReadTimeout(normalized.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", normalized.Port, err)
	}

	return &SerialTransport{port: p, opts: normalized, readTimeout: normalized.ReadTimeout}, nil
}

// Options returns the normalized port options
func (s *SerialTransport) Options() PortOptions {
	return s.opts
}

// Flush drains whatever the port has buffered and reports the byte count
func (s *SerialTransport) Flush() (int, error) {
	if s.closed {
		return 0, ErrPortClosed
	}
	if err := s.port.SetReadTimeout(flushTimeout); err != nil {
		return 0, err
	}
	defer s.port.SetReadTimeout(s.readTimeout)

	buf := make([]byte, 256)
	total := 0
	for total < maxFlushBytes {
		n, err := s.port.Read(buf)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, s.port.ResetInputBuffer()
}

// Send writes p to the port
func (s *SerialTransport) Send(p []byte) (int, error) {
	if s.closed {
		return 0, ErrPortClosed
	}
	return s.port.Write(p)
}

// Receive fills p until it is full or a read times out with nothing
func (s *SerialTransport) Receive(p []byte) (int, error) {
	if s.closed {
		return 0, ErrPortClosed
	}
	total := 0
	for total < len(p) {
		n, err := s.port.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Close releases the port
func (s *SerialTransport) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return ports, nil
}

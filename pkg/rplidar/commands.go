// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/scanstat/internal/monitoring"
)

// ErrHandshake is returned when a command response is short or malformed
var ErrHandshake = errors.New("protocol handshake failed")

// DeviceInfo is the GET_INFO payload
type DeviceInfo struct {
	Model         uint8
	FirmwareMajor uint8
	FirmwareMinor uint8
	Hardware      uint8
	Serial        [SerialSize]byte
}

// String formats the device info as a single line
func (i DeviceInfo) String() string {
	return fmt.Sprintf("model %d fw_major %d fw_minor %d hardware %d serial number %X",
		i.Model, i.FirmwareMajor, i.FirmwareMinor, i.Hardware, i.Serial[:])
}

// Health is the GET_HEALTH payload
type Health struct {
	Status uint8
	Code   uint16
}

// OK reports whether the sensor can scan. Warning is usable, error is not.
func (h Health) OK() bool {
	return h.Status == HealthOK || h.Status == HealthWarning
}

// CommandChannel performs request/response exchanges with the sensor.
// It must not be used while the scan stream is being consumed.
type CommandChannel struct {
	t Transport

	// SettleDelay is waited between a request and reading its response.
	SettleDelay time.Duration

	sleep func(time.Duration)
}

// NewCommandChannel creates a command channel over t
func NewCommandChannel(t Transport) *CommandChannel {
	return &CommandChannel{
		t:           t,
		SettleDelay: SettleDelay,
		sleep:       time.Sleep,
	}
}

// EncodeRequest builds a request frame
func EncodeRequest(opcode uint8) []byte {
	return []byte{SyncByte, opcode}
}

func (c *CommandChannel) send(opcode uint8) error {
	n, err := c.t.Send(EncodeRequest(opcode))
	if err != nil {
		return fmt.Errorf("send %s: %w", FormatOpcode(opcode), err)
	}
	if n != RequestSize {
		return fmt.Errorf("%w: %s sent %d of %d bytes", ErrHandshake, FormatOpcode(opcode), n, RequestSize)
	}
	if c.SettleDelay > 0 {
		c.sleep(c.SettleDelay)
	}
	return nil
}

func (c *CommandChannel) flush() {
	if n, err := c.t.Flush(); err != nil {
		monitoring.Warnf("flush failed: %v", err)
	} else if n > 0 {
		monitoring.Debugf("flushed %d bytes", n)
	}
}

// receive reads exactly len(p) bytes or fails
func (c *CommandChannel) receive(opcode uint8, p []byte) error {
	n, err := c.t.Receive(p)
	if err != nil {
		return fmt.Errorf("receive %s: %w", FormatOpcode(opcode), err)
	}
	if n != len(p) {
		err := fmt.Errorf("%w: %s received answer with wrong length: %d (want %d)",
			ErrHandshake, FormatOpcode(opcode), n, len(p))
		monitoring.Errorf("%v", err)
		return err
	}
	return nil
}

// readHeader reads a response descriptor and checks the given byte positions
func (c *CommandChannel) readHeader(opcode uint8, want map[int]byte) error {
	var header [HeaderSize]byte
	if err := c.receive(opcode, header[:]); err != nil {
		return err
	}
	if header[0] != SyncByte || header[1] != ResponseSync {
		return c.invalidHeader(opcode, header)
	}
	for idx, b := range want {
		if header[idx] != b {
			return c.invalidHeader(opcode, header)
		}
	}
	return nil
}

func (c *CommandChannel) invalidHeader(opcode uint8, header [HeaderSize]byte) error {
	err := fmt.Errorf("%w: %s invalid answer header % X", ErrHandshake, FormatOpcode(opcode), header[:])
	monitoring.Errorf("%v", err)
	return err
}

// GetInfo requests model, firmware, hardware and serial number
func (c *CommandChannel) GetInfo() (DeviceInfo, error) {
	if err := c.send(OpGetInfo); err != nil {
		return DeviceInfo{}, err
	}
	if err := c.readHeader(OpGetInfo, map[int]byte{headerLenIdx: infoLength, headerTypeIdx: infoType}); err != nil {
		return DeviceInfo{}, err
	}

	var payload [InfoSize]byte
	if err := c.receive(OpGetInfo, payload[:]); err != nil {
		return DeviceInfo{}, err
	}

	info := DeviceInfo{
		Model:         payload[0],
		FirmwareMajor: payload[1],
		FirmwareMinor: payload[2],
		Hardware:      payload[3],
	}
	copy(info.Serial[:], payload[4:])
	return info, nil
}

// GetHealth requests the sensor health status
func (c *CommandChannel) GetHealth() (Health, error) {
	c.flush()
	if err := c.send(OpGetHealth); err != nil {
		return Health{}, err
	}
	if err := c.readHeader(OpGetHealth, map[int]byte{headerLenIdx: healthLength, headerTypeIdx: healthType}); err != nil {
		return Health{}, err
	}

	var payload [HealthSize]byte
	if err := c.receive(OpGetHealth, payload[:]); err != nil {
		return Health{}, err
	}

	h := Health{
		Status: payload[0],
		Code:   uint16(payload[1])<<8 | uint16(payload[2]),
	}
	switch h.Status {
	case HealthOK:
	case HealthWarning:
		monitoring.Warnf("sensor in warning status, code %d", h.Code)
	case HealthError:
		monitoring.Errorf("sensor in error status, code %d", h.Code)
	default:
		err := fmt.Errorf("%w: unknown health status %d", ErrHandshake, h.Status)
		monitoring.Errorf("%v", err)
		return h, err
	}
	return h, nil
}

// Reset reboots the sensor core. There is no response.
func (c *CommandChannel) Reset() error {
	c.flush()
	return c.send(OpReset)
}

// Start puts the sensor in scan mode. force requests a scan regardless of
// motor speed stability.
func (c *CommandChannel) Start(force bool) error {
	c.flush()
	opcode := uint8(OpScan)
	if force {
		opcode = OpForceScan
	}
	if err := c.send(opcode); err != nil {
		return err
	}
	return c.readHeader(opcode, map[int]byte{
		headerLenIdx:  scanLength,
		headerModeIdx: scanMode,
		headerTypeIdx: scanType,
	})
}

// Stop leaves scan mode. There is no response.
func (c *CommandChannel) Stop() error {
	c.flush()
	return c.send(OpStop)
}

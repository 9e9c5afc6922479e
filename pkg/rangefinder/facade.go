// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rangefinder

import (
	"fmt"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

// GetMeasurementData returns a copy of the latest scan, one distance per
// bucket. The first read moves the device status from standby to in use.
func (d *Driver) GetMeasurementData() ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scan == nil {
		return nil, ErrNotOpen
	}
	if d.state == StateScanning && d.status == StatusStandby {
		d.status = StatusInUse
	}
	return d.scan.Snapshot(nil), nil
}

// GetDistanceRange returns the clip distances in metres
func (d *Driver) GetDistanceRange() (min, max float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.MinDistance, d.cfg.MaxDistance
}

// SetDistanceRange changes the clip distances. It takes effect on the next
// decoded sample.
func (d *Driver) SetDistanceRange(min, max float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := validateDistanceRange(min, max); err != nil {
		return err
	}
	d.cfg.MinDistance = min
	d.cfg.MaxDistance = max
	if d.decoder != nil {
		d.decoder.SetFilter(d.cfg.Filter())
	}
	return nil
}

// GetScanLimits returns the scan angle limits in degrees
func (d *Driver) GetScanLimits() (min, max float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.MinAngle, d.cfg.MaxAngle
}

// SetScanLimits changes the scan angle limits. The scan is sized at Open, so
// the driver must be closed. Buckets are indexed from 0 degrees, not from min:
// a non-zero min does not shift them, and returns above 360-min fall outside the scan.
func (d *Driver) SetScanLimits(min, max float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateClosed {
		return ErrGeometryLocked
	}
	if err := validateGeometry(min, max, d.cfg.Resolution); err != nil {
		return err
	}
	d.cfg.MinAngle = min
	d.cfg.MaxAngle = max
	return nil
}

// GetHorizontalResolution returns the bucket width in degrees
func (d *Driver) GetHorizontalResolution() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Resolution
}

// SetHorizontalResolution changes the bucket width. The driver must be closed.
func (d *Driver) SetHorizontalResolution(step float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateClosed {
		return ErrGeometryLocked
	}
	if err := validateGeometry(d.cfg.MinAngle, d.cfg.MaxAngle, step); err != nil {
		return err
	}
	d.cfg.Resolution = step
	return nil
}

// GetScanRate is not supported by the sensor
func (d *Driver) GetScanRate() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	monitoring.Warnf("getScanRate not yet implemented")
	return 0, fmt.Errorf("get scan rate: %w", ErrNotImplemented)
}

// SetScanRate is not supported by the sensor
func (d *Driver) SetScanRate(rate float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	monitoring.Warnf("setScanRate not yet implemented")
	return fmt.Errorf("set scan rate %g: %w", rate, ErrNotImplemented)
}

// GetDeviceStatus returns the device status
func (d *Driver) GetDeviceStatus() DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// GetDeviceInfo returns the device description
func (d *Driver) GetDeviceInfo() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// DeviceInfo returns the GET_INFO payload, if the sensor answered it
func (d *Driver) DeviceInfo() (rplidar.DeviceInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deviceInfo == nil {
		return rplidar.DeviceInfo{}, false
	}
	return *d.deviceInfo, true
}

// Health returns the health reported when the driver was opened
func (d *Driver) Health() rplidar.Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health
}

// State returns the lifecycle state
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Statistics returns a copy of the decoder statistics
func (d *Driver) Statistics() (rplidar.Statistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.decoder == nil {
		return rplidar.Statistics{}, ErrNotOpen
	}
	stats := *d.decoder.Statistics()
	stats.CalculateRates()
	return stats, nil
}

// Config returns a copy of the current configuration
func (d *Driver) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Cycles returns the number of poll cycles run since Open
func (d *Driver) Cycles() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycles
}

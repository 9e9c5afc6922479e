// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rangefinder

import (
	"fmt"
	"time"

	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

// Default driver settings
const (
	DefaultMinDistance    = 0.1 // m
	DefaultMaxDistance    = 2.5 // m
	DefaultMinAngle       = 0.0
	DefaultMaxAngle       = 360.0
	DefaultResolution     = 1.0 // degrees per bucket
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultPacketSize     = 100
	DefaultBufferCapacity = 4096
	DefaultMaxDrainReads  = 16
)

// Config holds the driver settings
type Config struct {
	// Distance clip policy
	MinDistance    float64
	MaxDistance    float64
	ClipMinEnabled bool
	ClipMaxEnabled bool
	AllowInfinity  bool

	// Scan geometry
	MinAngle   float64
	MaxAngle   float64
	Resolution float64

	// Poll cycle
	PollInterval   time.Duration
	PacketSize     int // bytes per transport read, also the decode low-water mark
	BufferCapacity int
	MaxDrainReads  int

	// ForceScan starts scanning without waiting for a stable motor speed
	ForceScan bool
}

// DefaultConfig returns the default driver settings. Clipping is disabled.
func DefaultConfig() Config {
	return Config{
		MinDistance:    DefaultMinDistance,
		MaxDistance:    DefaultMaxDistance,
		MinAngle:       DefaultMinAngle,
		MaxAngle:       DefaultMaxAngle,
		Resolution:     DefaultResolution,
		PollInterval:   DefaultPollInterval,
		PacketSize:     DefaultPacketSize,
		BufferCapacity: DefaultBufferCapacity,
		MaxDrainReads:  DefaultMaxDrainReads,
	}
}

// Validate checks the configuration invariants
func (c Config) Validate() error {
	if err := validateDistanceRange(c.MinDistance, c.MaxDistance); err != nil {
		return err
	}
	if err := validateGeometry(c.MinAngle, c.MaxAngle, c.Resolution); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval %v must be > 0", ErrConfig, c.PollInterval)
	}
	if c.PacketSize < rplidar.LookAheadSize {
		return fmt.Errorf("%w: packet size %d must be >= %d", ErrConfig, c.PacketSize, rplidar.LookAheadSize)
	}
	if c.BufferCapacity < 3*c.PacketSize {
		return fmt.Errorf("%w: buffer capacity %d must hold 3 packets (%d bytes)", ErrConfig, c.BufferCapacity, 3*c.PacketSize)
	}
	if c.MaxDrainReads < 1 {
		return fmt.Errorf("%w: max drain reads %d must be >= 1", ErrConfig, c.MaxDrainReads)
	}
	return nil
}

// Filter returns the decoder clip policy for this configuration
func (c Config) Filter() rplidar.Filter {
	return rplidar.Filter{
		MinDistance:   c.MinDistance,
		MaxDistance:   c.MaxDistance,
		ClipMin:       c.ClipMinEnabled,
		ClipMax:       c.ClipMaxEnabled,
		AllowInfinity: c.AllowInfinity,
	}
}

// Buckets returns the number of scan buckets
func (c Config) Buckets() int {
	return rplidar.BucketCount(c.MinAngle, c.MaxAngle, c.Resolution)
}

func validateDistanceRange(min, max float64) error {
	if min < 0 {
		return fmt.Errorf("%w: min distance %g must be >= 0", ErrConfig, min)
	}
	if min >= max {
		return fmt.Errorf("%w: min distance %g must be < max distance %g", ErrConfig, min, max)
	}
	return nil
}

func validateGeometry(minAngle, maxAngle, resolution float64) error {
	if resolution <= 0 {
		return fmt.Errorf("%w: resolution %g must be > 0", ErrConfig, resolution)
	}
	if minAngle >= maxAngle {
		return fmt.Errorf("%w: min angle %g must be < max angle %g", ErrConfig, minAngle, maxAngle)
	}
	if minAngle < 0 || maxAngle > 360 {
		return fmt.Errorf("%w: scan limits [%g, %g] must lie within [0, 360]", ErrConfig, minAngle, maxAngle)
	}
	if rplidar.BucketCount(minAngle, maxAngle, resolution) < 1 {
		return fmt.Errorf("%w: scan limits [%g, %g] hold no bucket at resolution %g", ErrConfig, minAngle, maxAngle, resolution)
	}
	return nil
}

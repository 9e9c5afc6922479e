// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the driver configuration file and the serial port file
// it points to.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/transport"
)

// File is the driver configuration file
type File struct {
	General *General `yaml:"general"`
}

// General holds the driver keys. A clip key that is present enables that clip.
type General struct {
	ClipMin             *float64 `yaml:"clip_min"`
	ClipMax             *float64 `yaml:"clip_max"`
	AllowInfinity       Flag     `yaml:"allow_infinity"`
	SerialConfiguration string   `yaml:"serial_configuration"`

	MinAngle       *float64      `yaml:"min_angle"`
	MaxAngle       *float64      `yaml:"max_angle"`
	Resolution     *float64      `yaml:"resolution"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PacketSize     int           `yaml:"packet_size"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	ForceScan      Flag          `yaml:"force_scan"`
}

// Flag is a boolean that also accepts 0 and 1
type Flag bool

// UnmarshalYAML implements yaml.Unmarshaler
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		*f = Flag(b)
		return nil
	}
	n, err := strconv.Atoi(node.Value)
	if err != nil || (n != 0 && n != 1) {
		return fmt.Errorf("line %d: %q is not a boolean", node.Line, node.Value)
	}
	*f = n == 1
	return nil
}

// Settings is a loaded configuration
type Settings struct {
	Driver     rangefinder.Config
	Serial     transport.PortOptions
	SerialPath string
}

// Load reads the driver file at path and the serial file it references.
// Every error wraps rangefinder.ErrConfig.
func Load(path string) (*Settings, error) {
	var file File
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}
	if file.General == nil {
		return nil, fmt.Errorf("%w: %s: missing general section", rangefinder.ErrConfig, path)
	}
	g := file.General

	driver, err := g.driverConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if g.SerialConfiguration == "" {
		return nil, fmt.Errorf("%w: %s: missing serial_configuration", rangefinder.ErrConfig, path)
	}
	serialPath := g.SerialConfiguration
	if !filepath.IsAbs(serialPath) {
		serialPath = filepath.Join(filepath.Dir(path), serialPath)
	}

	var port transport.PortOptions
	if err := readYAML(serialPath, &port); err != nil {
		return nil, err
	}
	port, err = port.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", rangefinder.ErrConfig, serialPath, err)
	}

	return &Settings{Driver: driver, Serial: port, SerialPath: serialPath}, nil
}

// driverConfig overlays the general section on the driver defaults
func (g *General) driverConfig() (rangefinder.Config, error) {
	cfg := rangefinder.DefaultConfig()

	if g.ClipMin != nil {
		cfg.MinDistance = *g.ClipMin
		cfg.ClipMinEnabled = true
	}
	if g.ClipMax != nil {
		cfg.MaxDistance = *g.ClipMax
		cfg.ClipMaxEnabled = true
	}
	cfg.AllowInfinity = bool(g.AllowInfinity)

	if g.MinAngle != nil {
		cfg.MinAngle = *g.MinAngle
	}
	if g.MaxAngle != nil {
		cfg.MaxAngle = *g.MaxAngle
	}
	if g.Resolution != nil {
		cfg.Resolution = *g.Resolution
	}
	if g.PollInterval != 0 {
		cfg.PollInterval = g.PollInterval
	}
	if g.PacketSize != 0 {
		cfg.PacketSize = g.PacketSize
	}
	if g.BufferCapacity != 0 {
		cfg.BufferCapacity = g.BufferCapacity
	}
	cfg.ForceScan = bool(g.ForceScan)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", rangefinder.ErrConfig, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: parse %s: %v", rangefinder.ErrConfig, path, err)
	}
	return nil
}

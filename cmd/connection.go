// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/config"
	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
	"github.com/Thermoquad/scanstat/pkg/transport"
)

// errNoSource is returned when no connection flag selects a sensor
var errNoSource = errors.New("one of --port, --url, --config or --simulate must be specified")

// source is a resolved sensor connection
type source struct {
	driver rangefinder.Config
	opener rangefinder.Opener
	info   string
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SCANSTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// resolveSource picks the sensor connection from the flags and the
// configuration file
func resolveSource(cmd *cobra.Command) (*source, error) {
	src := &source{driver: rangefinder.DefaultConfig()}

	var serialOpts transport.PortOptions
	if configPath != "" {
		settings, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		src.driver = settings.Driver
		serialOpts = settings.Serial
		monitoring.Debugf("loaded %s (serial configuration %s)", configPath, settings.SerialPath)
	}

	switch {
	case simulate:
		corruption := simCorruption
		src.opener = func() (rplidar.Transport, error) {
			sim := rplidar.NewSimulator(time.Now().UnixNano())
			sim.CorruptionRate = corruption
			return sim, nil
		}
		src.info = "Simulator: 4.0 x 3.0 m room"
		if corruption > 0 {
			src.info += fmt.Sprintf(" (corruption %.3f)", corruption)
		}

	case wsURL != "":
		// WebSocket mode
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		opts := transport.WebSocketOptions{
			URL:           wsURL,
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		}
		src.opener = func() (rplidar.Transport, error) {
			t, err := transport.OpenWebSocket(opts)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		src.info = fmt.Sprintf("WebSocket: %s", wsURL)

	case portName != "" || serialOpts.Port != "":
		// Serial mode
		if portName != "" {
			serialOpts.Port = portName
		}
		if cmd.Flags().Changed("baud") || serialOpts.BaudRate == 0 {
			serialOpts.BaudRate = baudRate
		}
		opts, err := serialOpts.Normalize()
		if err != nil {
			return nil, err
		}
		src.opener = func() (rplidar.Transport, error) {
			t, err := transport.OpenSerial(opts)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		src.info = opts.String()

	default:
		return nil, errNoSource
	}

	return src, nil
}

// openDriver resolves the connection and opens a driver on it
func openDriver(cmd *cobra.Command, opts ...rangefinder.Option) (*rangefinder.Driver, string, error) {
	src, err := resolveSource(cmd)
	if err != nil {
		return nil, "", err
	}
	d := rangefinder.NewDriver(src.driver, src.opener, opts...)
	if err := d.Open(); err != nil {
		return nil, "", fmt.Errorf("%s: %w", src.info, err)
	}
	monitoring.Infof("opened %s: %s", src.info, d.GetDeviceInfo())
	return d, src.info, nil
}

// waitForScan blocks until the driver has completed a full revolution
func waitForScan(d *rangefinder.Driver, timeout time.Duration) ([]float64, error) {
	deadline := time.Now().Add(timeout)
	for {
		stats, err := d.Statistics()
		if err != nil {
			return nil, err
		}
		if stats.Scans > 0 {
			return d.GetMeasurementData()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no complete scan within %v", timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Query device info and health",
	Long: `Open the sensor, run the health check and print what it reports about itself.

The sensor is started and stopped again, so this also verifies that the
handshake and scan request succeed.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	d, connInfo, err := openDriver(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Printf("Connection:  %s\n", connInfo)
	fmt.Printf("Device:      %s\n", d.GetDeviceInfo())
	if info, ok := d.DeviceInfo(); ok {
		fmt.Printf("Model:       0x%02X\n", info.Model)
		fmt.Printf("Firmware:    %d.%02d\n", info.FirmwareMajor, info.FirmwareMinor)
		fmt.Printf("Hardware:    %d\n", info.Hardware)
		fmt.Printf("Serial:      %X\n", info.Serial[:])
	}
	fmt.Printf("Health:      %s\n", rplidar.FormatHealth(d.Health()))

	minAngle, maxAngle := d.GetScanLimits()
	minDist, maxDist := d.GetDistanceRange()
	cfg := d.Config()
	fmt.Printf("Scan Limits: [%g°, %g°) at %g°/bucket (%d buckets)\n",
		minAngle, maxAngle, d.GetHorizontalResolution(), cfg.Buckets())
	fmt.Printf("Range:       [%g m, %g m] clip min=%t max=%t infinity=%t\n",
		minDist, maxDist, cfg.ClipMinEnabled, cfg.ClipMaxEnabled, cfg.AllowInfinity)
	return nil
}

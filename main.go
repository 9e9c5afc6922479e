// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Scanstat - RPLIDAR Rangefinder Driver and Analyzer
//
// A CLI tool for driving RPLIDAR 2D laser scanners, monitoring their
// scans and recording them for later analysis.

package main

import (
	"os"

	"github.com/Thermoquad/scanstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

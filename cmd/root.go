// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/internal/monitoring"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Driver flags
	configPath    string
	simulate      bool
	simCorruption float64
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "scanstat",
	Short: "RPLIDAR Rangefinder Driver and Analyzer",
	Long: `Scanstat - A CLI tool for driving RPLIDAR 2D laser scanners and analyzing their scans.

Provides commands for live scan monitoring, raw sample logging, recording and
replaying scans, storing sessions and serving the live scan over HTTP.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  Config:    --config rplidar.yaml (serial port taken from the referenced file)
  WebSocket: --url ws://host/path [--username user]
  Simulator: --simulate

Flags override the values loaded from --config.

For WebSocket authentication, the password is read from the SCANSTAT_PASSWORD
environment variable (a .env file in the working directory is loaded first),
or prompted interactively if not set. The --password flag is intentionally not
provided to avoid leaking credentials in shell history.`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is not an error
		_ = godotenv.Load()
		if verbose {
			monitoring.SetLevel(monitoring.LevelDebug)
		}
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Driver flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Driver configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use a simulated sensor in a 4 x 3 m room")
	rootCmd.PersistentFlags().Float64Var(&simCorruption, "sim-corruption", 0, "Probability of a stray byte before each simulated sample")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

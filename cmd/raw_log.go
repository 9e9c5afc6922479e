// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

var (
	rawScanMarkers bool
	rawBacklog     int
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded samples in human-readable format",
	Long: `Continuously decode and display samples as the sensor streams them.

Each line shows the sample time, the scan-start marker, the corrected angle,
the target bucket, the distance after clipping and the quality.

Supports serial, WebSocket and simulated connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawScanMarkers, "scans-only", false, "Only print the first sample of each revolution")
	rawLogCmd.Flags().IntVar(&rawBacklog, "backlog", 4096, "Samples buffered between the poll cycle and the terminal")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	samples := make(chan rplidar.Sample, rawBacklog)
	var dropped atomic.Uint64

	// Runs inside the poll cycle and must not block
	handler := func(s rplidar.Sample) {
		if rawScanMarkers && !s.NewScan {
			return
		}
		select {
		case samples <- s:
		default:
			dropped.Add(1)
		}
	}

	d, connInfo, err := openDriver(cmd, rangefinder.WithSampleHandler(handler))
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Printf("Scanstat - Raw Sample Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Device: %s\n", d.GetDeviceInfo())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return printSamples(ctx, samples, func() {
		stats, err := d.Statistics()
		if err != nil {
			monitoring.Warnf("statistics unavailable: %v", err)
			return
		}
		fmt.Println()
		fmt.Print(stats.String())
		if n := dropped.Load(); n > 0 {
			fmt.Printf("Dropped %d samples (terminal too slow)\n", n)
		}
	})
}

// printSamples prints samples until ctx is done, then calls summary once
func printSamples(ctx context.Context, samples <-chan rplidar.Sample, summary func()) error {
	idle := time.NewTicker(5 * time.Second)
	defer idle.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			summary()
			return nil
		case s := <-samples:
			fmt.Print(rplidar.FormatSample(s))
			last = time.Now()
		case <-idle.C:
			if time.Since(last) >= 5*time.Second {
				monitoring.Warnf("no samples for %v", time.Since(last).Truncate(time.Second))
			}
		}
	}
}

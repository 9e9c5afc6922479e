// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

var (
	statsInterval int
	useTUI        bool
	sectorCount   int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Monitor live scans and decoder health",
	Long: `Run the poll cycle and track the scan, the decoder statistics and desyncs.

The scan is summarised per sector: how many buckets hold a distance, the
nearest return and the mean distance. Desyncs are broken down by the check
that rejected the look-ahead window.

In the terminal UI, press 'r' to change the distance clip range.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	scanCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	scanCmd.Flags().IntVar(&sectorCount, "sectors", 8, "Number of sectors in the scan summary")
}

func runScan(cmd *cobra.Command, args []string) error {
	if sectorCount < 1 || sectorCount > 360 {
		return fmt.Errorf("--sectors must be between 1 and 360")
	}
	if statsInterval < 1 {
		return fmt.Errorf("--stats-interval must be at least 1 second")
	}

	d, connInfo, err := openDriver(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	if useTUI {
		return runTUIMode(d, connInfo)
	}
	return runTextMode(cmd.Context(), d, connInfo)
}

// sectorStat summarises the buckets of one angular sector
type sectorStat struct {
	Start, End float64 // degrees
	Valid      int
	Total      int
	Nearest    float64
	Mean       float64
}

// Coverage returns the fraction of buckets holding a distance
func (s sectorStat) Coverage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Total)
}

// sectorStats splits a scan into n equal sectors of the full circle. Bucket b
// lies at b*resolution degrees. Nearest and Mean are NaN for a sector with no
// valid distance.
func sectorStats(ranges []float64, resolution float64, n int) []sectorStat {
	width := 360.0 / float64(n)
	sectors := make([]sectorStat, n)
	values := make([][]float64, n)
	for i := range sectors {
		sectors[i].Start = float64(i) * width
		sectors[i].End = float64(i+1) * width
	}

	for b, dist := range ranges {
		i := int(float64(b) * resolution / width)
		if i >= n {
			i = n - 1
		}
		sectors[i].Total++
		if dist > 0 && !math.IsInf(dist, 0) && !math.IsNaN(dist) {
			values[i] = append(values[i], dist)
		}
	}

	for i := range sectors {
		sectors[i].Valid = len(values[i])
		if len(values[i]) == 0 {
			sectors[i].Nearest = math.NaN()
			sectors[i].Mean = math.NaN()
			continue
		}
		sectors[i].Nearest = floats.Min(values[i])
		sectors[i].Mean = stat.Mean(values[i], nil)
	}
	return sectors
}

// formatMeters formats a sector distance, "-" when there is none
func formatMeters(d float64) string {
	if math.IsNaN(d) {
		return "-"
	}
	return fmt.Sprintf("%.3f m", d)
}

// printSectors prints the sector table of a scan
func printSectors(ranges []float64, resolution float64) {
	fmt.Printf("%-13s %8s %10s %10s\n", "Sector", "Coverage", "Nearest", "Mean")
	for _, s := range sectorStats(ranges, resolution, sectorCount) {
		fmt.Printf("%5.1f°-%5.1f° %7.1f%% %10s %10s\n",
			s.Start, s.End, s.Coverage()*100, formatMeters(s.Nearest), formatMeters(s.Mean))
	}
}

// scanMsg is a snapshot of the driver taken by the TUI poller
type scanMsg struct {
	ranges []float64
	stats  rplidar.Statistics
	status rangefinder.DeviceStatus
	state  rangefinder.State
	err    error
}

// snapshot reads the scan and counters from the driver
func snapshot(d *rangefinder.Driver) scanMsg {
	msg := scanMsg{status: d.GetDeviceStatus(), state: d.State()}
	msg.stats, msg.err = d.Statistics()
	if msg.err != nil {
		return msg
	}
	msg.ranges, msg.err = d.GetMeasurementData()
	return msg
}

// runTUIMode runs the scan monitor in TUI mode
func runTUIMode(d *rangefinder.Driver, connInfo string) error {
	m := initialModel(connInfo, d.GetDeviceInfo(), d.GetHorizontalResolution(), sectorCount, d.SetDistanceRange)
	m.minDist, m.maxDist = d.GetDistanceRange()
	p := tea.NewProgram(m)

	// Driver poller goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.Send(snapshot(d))
			}
		}
	}()

	// Run TUI
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// runTextMode runs the scan monitor in text mode
func runTextMode(ctx context.Context, d *rangefinder.Driver, connInfo string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanstat - Scan Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Device: %s\n", d.GetDeviceInfo())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Desync ticker, so desyncs show up between summaries
	desyncTicker := time.NewTicker(time.Second)
	defer desyncTicker.Stop()

	var lastDesyncs uint64
	lastStatus := d.GetDeviceStatus()
	synchronized := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-desyncTicker.C:
			msg := snapshot(d)
			if msg.err != nil {
				return msg.err
			}
			if !synchronized && msg.stats.Scans > 0 {
				synchronized = true
				if msg.stats.Desyncs > 0 {
					fmt.Printf("[SYNC] First revolution after %d desyncs\n\n", msg.stats.Desyncs)
				} else {
					fmt.Printf("[SYNC] First revolution\n\n")
				}
			}
			if msg.stats.Desyncs > lastDesyncs {
				timestamp := time.Now().Format("15:04:05.000")
				fmt.Printf("[%s] \033[1;31mDESYNC:\033[0m %d new (%s)\n",
					timestamp, msg.stats.Desyncs-lastDesyncs, desyncBreakdown(msg.stats))
				lastDesyncs = msg.stats.Desyncs
			}
			if msg.status != lastStatus {
				fmt.Printf("[STATUS] %s -> %s\n", lastStatus, msg.status)
				lastStatus = msg.status
			}

		case <-statsTicker.C:
			msg := snapshot(d)
			if msg.err != nil {
				return msg.err
			}
			fmt.Println()
			fmt.Print(msg.stats.String())
			printSectors(msg.ranges, d.GetHorizontalResolution())
			fmt.Println()
		}
	}
}

// desyncBreakdown lists the non-zero desync counters by reason
func desyncBreakdown(s rplidar.Statistics) string {
	out := ""
	for i, n := range s.DesyncByReason {
		if n == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", rplidar.DesyncReason(i), n)
	}
	if out == "" {
		return "no reason recorded"
	}
	return out
}

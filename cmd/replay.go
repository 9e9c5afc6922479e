// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/pkg/scanlog"
)

var replayBuckets bool

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Summarize a scan recording",
	Long: `Read a CBOR recording made by 'record' and print its header, the decoder
counters over the recording and the per-bucket distance summary.

Use --buckets to print mean, standard deviation and extremes for every bucket.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayBuckets, "buckets", false, "Print the per-bucket summary")
}

// readRecording reads a whole recording file
func readRecording(path string) (scanlog.Header, []scanlog.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return scanlog.Header{}, nil, err
	}
	defer f.Close()

	r, err := scanlog.NewReader(bufio.NewReader(f))
	if err != nil {
		return scanlog.Header{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	frames, err := r.ReadAll()
	if err != nil {
		return r.Header(), frames, fmt.Errorf("%s: %w", path, err)
	}
	return r.Header(), frames, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	h, frames, err := readRecording(args[0])
	if err != nil {
		return err
	}
	printRecording(h, frames)
	return nil
}

// printRecording prints the header, counters and bucket summary of a recording
func printRecording(h scanlog.Header, frames []scanlog.Frame) {
	fmt.Printf("Recording:   %s\n", h.CreatedAt().Format("2006-01-02 15:04:05"))
	if h.Source != "" {
		fmt.Printf("Source:      %s\n", h.Source)
	}
	if h.DeviceInfo != "" {
		fmt.Printf("Device:      %s\n", h.DeviceInfo)
	}
	fmt.Printf("Geometry:    [%g°, %g°) at %g°/bucket\n", h.MinAngle, h.MaxAngle, h.Resolution)
	fmt.Printf("Frames:      %d\n", len(frames))
	if len(frames) == 0 {
		return
	}

	first, last := frames[0], frames[len(frames)-1]
	elapsed := last.At().Sub(first.At())
	fmt.Printf("Duration:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Samples:     %d\n", last.Samples-first.Samples)
	fmt.Printf("Revolutions: %d\n", last.Scans-first.Scans)
	fmt.Printf("Desyncs:     %d\n", last.Desyncs-first.Desyncs)
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("Scan Rate:   %.1f Hz\n", float64(last.Scans-first.Scans)/secs)
	}

	summary := scanlog.Summarize(h, frames)
	fmt.Printf("Coverage:    %.1f%%\n", scanlog.Coverage(summary)*100)

	if !replayBuckets {
		return
	}
	fmt.Println()
	fmt.Printf("%6s %8s %6s %9s %9s %9s %9s\n", "Bucket", "Angle", "Valid", "Mean", "StdDev", "Min", "Max")
	for _, b := range summary {
		if b.Valid == 0 {
			fmt.Printf("%6d %7.2f° %6d %9s %9s %9s %9s\n", b.Bucket, b.Angle, 0, "-", "-", "-", "-")
			continue
		}
		fmt.Printf("%6d %7.2f° %6d %9.3f %9.3f %9.3f %9.3f\n",
			b.Bucket, b.Angle, b.Valid, b.Mean, b.StdDev, b.Min, b.Max)
	}
}

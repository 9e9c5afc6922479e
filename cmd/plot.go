// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/pkg/scanlog"
	"github.com/Thermoquad/scanstat/pkg/scanplot"
)

var (
	plotOutput  string
	plotFrame   int
	plotProfile bool
	plotTimeout time.Duration
)

var plotCmd = &cobra.Command{
	Use:   "plot [recording]",
	Short: "Plot a live scan or a recording",
	Long: `Render a scan to an image. The format follows the output extension
(.png, .svg, .pdf, .jpg, .eps, .tif).

Without a recording, the sensor is opened and its first complete scan is
plotted. With a recording, --frame selects the scan to plot (negative counts
from the end) and --profile plots the per-bucket mean and spread instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlot,
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.Flags().StringVarP(&plotOutput, "output", "o", "scan.png", "Output image file")
	plotCmd.Flags().IntVar(&plotFrame, "frame", -1, "Recording frame to plot")
	plotCmd.Flags().BoolVar(&plotProfile, "profile", false, "Plot the range profile of the recording")
	plotCmd.Flags().DurationVar(&plotTimeout, "timeout", 5*time.Second, "Time to wait for a live scan")
}

func runPlot(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return plotRecording(args[0])
	}
	if plotProfile {
		return fmt.Errorf("--profile needs a recording")
	}

	d, connInfo, err := openDriver(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ranges, err := waitForScan(d, plotTimeout)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s %s", connInfo, time.Now().Format("2006-01-02 15:04:05"))
	if err := scanplot.SaveScan(ranges, d.GetHorizontalResolution(), title, plotOutput); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", plotOutput)
	return nil
}

func plotRecording(path string) error {
	h, frames, err := readRecording(path)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("%s: recording has no frames", path)
	}
	name := filepath.Base(path)

	if plotProfile {
		title := fmt.Sprintf("%s (%d frames)", name, len(frames))
		if err := scanplot.SaveProfile(scanlog.Summarize(h, frames), title, plotOutput); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", plotOutput)
		return nil
	}

	idx := plotFrame
	if idx < 0 {
		idx += len(frames)
	}
	if idx < 0 || idx >= len(frames) {
		return fmt.Errorf("frame %d out of range (recording has %d frames)", plotFrame, len(frames))
	}
	f := frames[idx]
	title := fmt.Sprintf("%s frame %d %s", name, f.Seq, f.At().Format("15:04:05.000"))
	if err := scanplot.SaveScan(f.Ranges, h.Resolution, title, plotOutput); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", plotOutput)
	return nil
}

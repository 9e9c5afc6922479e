// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
	"github.com/Thermoquad/scanstat/pkg/scanlog"
	"github.com/Thermoquad/scanstat/pkg/scanstore"
)

var (
	recordOutput   string
	recordStore    string
	recordDuration time.Duration
	recordMaxScans uint64
	recordNotes    string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record scans to a file or the session store",
	Long: `Record every completed revolution until interrupted.

Scans are written as a CBOR recording (--output) and/or as a session in the
SQLite session store (--store). At least one of the two is required.

Recordings can be analysed with 'replay' and 'plot'. Stored sessions are
managed with 'sessions'.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "CBOR recording file")
	recordCmd.Flags().StringVar(&recordStore, "store", "", "Session store database (SQLite)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 records until interrupted)")
	recordCmd.Flags().Uint64Var(&recordMaxScans, "scans", 0, "Stop after this many scans (0 is unlimited)")
	recordCmd.Flags().StringVar(&recordNotes, "notes", "", "Notes stored with the session")
}

// scanSink receives every recorded scan
type scanSink interface {
	WriteScan(at time.Time, ranges []float64, stats rplidar.Statistics) error
	Finish(at time.Time, stats rplidar.Statistics) error
}

// fileSink writes a CBOR recording
type fileSink struct {
	file *os.File
	buf  *bufio.Writer
	w    *scanlog.Writer
}

func newFileSink(path string, h scanlog.Header) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	w, err := scanlog.NewWriter(buf, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSink{file: f, buf: buf, w: w}, nil
}

func (s *fileSink) WriteScan(at time.Time, ranges []float64, stats rplidar.Statistics) error {
	return s.w.Append(scanlog.Frame{
		Time:    at.UnixNano(),
		Ranges:  ranges,
		Samples: stats.Samples,
		Scans:   stats.Scans,
		Desyncs: stats.Desyncs,
	})
}

func (s *fileSink) Finish(time.Time, rplidar.Statistics) error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// storeSink writes a session into the store
type storeSink struct {
	store   *scanstore.Store
	session scanstore.Session
	seq     uint64
}

func (s *storeSink) WriteScan(at time.Time, ranges []float64, stats rplidar.Statistics) error {
	err := s.store.RecordScan(s.session.ID, s.seq, at, ranges, stats)
	s.seq++
	return err
}

func (s *storeSink) Finish(at time.Time, stats rplidar.Statistics) error {
	if err := s.store.EndSession(s.session.ID, at, stats); err != nil {
		s.store.Close()
		return err
	}
	return s.store.Close()
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordOutput == "" && recordStore == "" {
		return fmt.Errorf("one of --output or --store must be specified")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	d, connInfo, err := openDriver(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	minAngle, maxAngle := d.GetScanLimits()
	header := scanlog.Header{
		MinAngle:   minAngle,
		MaxAngle:   maxAngle,
		Resolution: d.GetHorizontalResolution(),
		DeviceInfo: d.GetDeviceInfo(),
		Source:     connInfo,
	}

	var sinks []scanSink
	finish := func(stats rplidar.Statistics) error {
		var firstErr error
		for _, s := range sinks {
			if err := s.Finish(time.Now(), stats); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if recordOutput != "" {
		fs, err := newFileSink(recordOutput, header)
		if err != nil {
			return err
		}
		sinks = append(sinks, fs)
	}
	if recordStore != "" {
		store, err := scanstore.Open(recordStore)
		if err != nil {
			finish(rplidar.Statistics{})
			return err
		}
		sess, err := store.StartSession(scanstore.Session{
			Source:     connInfo,
			DeviceInfo: header.DeviceInfo,
			MinAngle:   minAngle,
			MaxAngle:   maxAngle,
			Resolution: header.Resolution,
			Notes:      recordNotes,
		})
		if err != nil {
			store.Close()
			finish(rplidar.Statistics{})
			return err
		}
		sinks = append(sinks, &storeSink{store: store, session: sess})
		fmt.Printf("Session: %s\n", sess.ID)
	}

	fmt.Printf("Scanstat - Recording\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Device: %s\n", header.DeviceInfo)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	recorded, stats, err := recordScans(ctx, d, sinks, recordMaxScans)
	if ferr := finish(stats); err == nil {
		err = ferr
	}
	fmt.Printf("Recorded %d scans (%d samples, %d desyncs)\n", recorded, stats.Samples, stats.Desyncs)
	return err
}

// recordScans writes each new revolution to every sink until ctx is done or
// max scans have been written (0 is unlimited)
func recordScans(ctx context.Context, d *rangefinder.Driver, sinks []scanSink, max uint64) (uint64, rplidar.Statistics, error) {
	interval := d.Config().PollInterval
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var recorded, lastScans uint64
	var stats rplidar.Statistics
	for {
		select {
		case <-ctx.Done():
			return recorded, stats, nil
		case <-ticker.C:
		}

		current, err := d.Statistics()
		if err != nil {
			return recorded, stats, err
		}
		stats = current
		if stats.Scans == lastScans {
			continue
		}
		if stats.Scans > lastScans+1 && lastScans > 0 {
			monitoring.Debugf("missed %d revolutions between snapshots", stats.Scans-lastScans-1)
		}
		lastScans = stats.Scans

		ranges, err := d.GetMeasurementData()
		if err != nil {
			return recorded, stats, err
		}
		now := time.Now()
		for _, s := range sinks {
			if err := s.WriteScan(now, ranges, stats); err != nil {
				return recorded, stats, err
			}
		}
		recorded++
		if recorded%100 == 0 {
			monitoring.Infof("recorded %d scans", recorded)
		}
		if max > 0 && recorded >= max {
			return recorded, stats, nil
		}
	}
}

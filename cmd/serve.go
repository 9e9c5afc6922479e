// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/scanserver"
	"github.com/Thermoquad/scanstat/pkg/scanstore"
)

var (
	serveAddr  string
	serveStore string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live scan over HTTP",
	Long: `Open the sensor and serve it over HTTP.

Endpoints:
  GET  /chart              live scan chart (?refresh=N seconds, 0 disables)
  GET  /api/health         liveness
  GET  /api/status         driver state and device status
  GET  /api/info           device info and health
  GET  /api/scan           latest scan as JSON (no-return buckets are null)
  GET  /api/scan.png       latest scan as a PNG plot
  GET  /api/statistics     decoder statistics
  GET  /api/range          distance clip range
  PUT  /api/range          set the clip range {"min": 0.1, "max": 2.5}
  GET  /api/sessions       stored sessions (with --store)
  GET  /api/sessions/:id   stored session summary (with --store)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Session store database (SQLite)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *scanstore.Store
	if serveStore != "" {
		var err error
		store, err = scanstore.Open(serveStore)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	d, connInfo, err := openDriver(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    serveAddr,
		Handler: scanserver.NewEngine(scanserver.NewServer(d, store)),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("Scanstat - HTTP Server\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Listening on %s\n", serveAddr)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	monitoring.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scanserver serves the live scan and stored sessions over HTTP.
package scanserver

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
	"github.com/Thermoquad/scanstat/pkg/scanlog"
	"github.com/Thermoquad/scanstat/pkg/scanplot"
	"github.com/Thermoquad/scanstat/pkg/scanstore"
)

// Sensor is the part of the rangefinder the server reads and controls
type Sensor interface {
	GetMeasurementData() ([]float64, error)
	GetDistanceRange() (min, max float64)
	SetDistanceRange(min, max float64) error
	GetScanLimits() (min, max float64)
	GetHorizontalResolution() float64
	GetDeviceStatus() rangefinder.DeviceStatus
	GetDeviceInfo() string
	DeviceInfo() (rplidar.DeviceInfo, bool)
	Health() rplidar.Health
	State() rangefinder.State
	Statistics() (rplidar.Statistics, error)
}

// Server serves one sensor and, optionally, a session store
type Server struct {
	sensor  Sensor
	store   *scanstore.Store
	started time.Time
}

// NewServer creates a server. store may be nil.
func NewServer(sensor Sensor, store *scanstore.Store) *Server {
	return &Server{sensor: sensor, store: store, started: time.Now()}
}

// NewEngine returns a gin engine with recovery, CORS and the server routes
func NewEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	s.SetupRoutes(r)
	return r
}

// requestLogger logs requests through the monitoring logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		monitoring.Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// SetupRoutes registers the routes on r
func (s *Server) SetupRoutes(r *gin.Engine) {
	r.GET("/chart", s.handleChart)

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.GET("/info", s.handleInfo)
		api.GET("/scan", s.handleScan)
		api.GET("/scan.png", s.handleScanPNG)
		api.GET("/statistics", s.handleStatistics)
		api.GET("/range", s.handleGetRange)
		api.PUT("/range", s.handleSetRange)

		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:id", s.handleGetSession)
	}
}

func errorResponse(c *gin.Context, code int, err string) {
	c.JSON(code, ApiResponse{Status: "error", Error: err})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, ApiResponse{Status: "success", Message: "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ApiResponse{
		Status: "success",
		Data: StatusResponse{
			State:        s.sensor.State().String(),
			DeviceStatus: s.sensor.GetDeviceStatus().String(),
			Uptime:       time.Since(s.started).Truncate(time.Second).String(),
		},
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	h := s.sensor.Health()
	resp := InfoResponse{
		Description: s.sensor.GetDeviceInfo(),
		Health:      rplidar.FormatHealthStatus(h.Status),
		HealthCode:  h.Code,
	}
	if info, ok := s.sensor.DeviceInfo(); ok {
		resp.Model = &info.Model
		resp.Hardware = &info.Hardware
		resp.Firmware = fmt.Sprintf("%d.%02d", info.FirmwareMajor, info.FirmwareMinor)
		resp.SerialNumber = fmt.Sprintf("%X", info.Serial[:])
	}
	c.JSON(http.StatusOK, ApiResponse{Status: "success", Data: resp})
}

// latestScan returns the scan, answering the request itself on failure
func (s *Server) latestScan(c *gin.Context) ([]float64, bool) {
	if !s.scanning(c) {
		return nil, false
	}
	ranges, err := s.sensor.GetMeasurementData()
	if errors.Is(err, rangefinder.ErrNotOpen) {
		errorResponse(c, http.StatusServiceUnavailable, "sensor is not open")
		return nil, false
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return ranges, true
}

func (s *Server) handleScan(c *gin.Context) {
	ranges, ok := s.latestScan(c)
	if !ok {
		return
	}
	minAngle, maxAngle := s.sensor.GetScanLimits()
	c.JSON(http.StatusOK, ApiResponse{
		Status: "success",
		Data: ScanResponse{
			Timestamp:  time.Now(),
			MinAngle:   minAngle,
			MaxAngle:   maxAngle,
			Resolution: s.sensor.GetHorizontalResolution(),
			Ranges:     finiteOrNil(ranges),
		},
	})
}

func (s *Server) handleScanPNG(c *gin.Context) {
	ranges, ok := s.latestScan(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	title := fmt.Sprintf("scan %s", time.Now().Format(time.RFC3339))
	if err := scanplot.WriteScanPNG(&buf, ranges, s.sensor.GetHorizontalResolution(), title); err != nil {
		errorResponse(c, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// scanning answers 503 unless the sensor is scanning. A closed driver keeps
// its last scan, but the API does not serve it.
func (s *Server) scanning(c *gin.Context) bool {
	if s.sensor.State() != rangefinder.StateScanning {
		errorResponse(c, http.StatusServiceUnavailable, "sensor is not open")
		return false
	}
	return true
}

func (s *Server) handleStatistics(c *gin.Context) {
	if !s.scanning(c) {
		return
	}
	stats, err := s.sensor.Statistics()
	if errors.Is(err, rangefinder.ErrNotOpen) {
		errorResponse(c, http.StatusServiceUnavailable, "sensor is not open")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, ApiResponse{Status: "success", Data: newStatisticsResponse(stats)})
}

func (s *Server) handleGetRange(c *gin.Context) {
	lo, hi := s.sensor.GetDistanceRange()
	c.JSON(http.StatusOK, ApiResponse{Status: "success", Data: RangeResponse{Min: lo, Max: hi}})
}

func (s *Server) handleSetRange(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid range request: "+err.Error())
		return
	}
	if err := s.sensor.SetDistanceRange(*req.Min, *req.Max); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	monitoring.Infof("distance range set to [%g, %g]", *req.Min, *req.Max)
	c.JSON(http.StatusOK, ApiResponse{
		Status:  "success",
		Message: "distance range updated",
		Data:    RangeResponse{Min: *req.Min, Max: *req.Max},
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusNotFound, "no session store configured")
		return
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []scanstore.Session{}
	}
	c.JSON(http.StatusOK, ApiResponse{Status: "success", Data: sessions})
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusNotFound, "no session store configured")
		return
	}
	id := c.Param("id")
	sess, err := s.store.GetSession(id)
	if errors.Is(err, scanstore.ErrSessionNotFound) {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	frames, err := s.store.Scans(id)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	summary := scanlog.Summarize(sess.Header(), frames)
	c.JSON(http.StatusOK, ApiResponse{
		Status: "success",
		Data:   SessionSummaryResponse{Session: sess, Coverage: scanlog.Coverage(summary)},
	})
}

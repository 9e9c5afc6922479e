// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scanserver

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Thermoquad/scanstat/pkg/scanplot"
)

// handleChart renders the latest scan as an interactive top-down scatter.
// The page reloads itself every refresh seconds (default 1, 0 disables).
func (s *Server) handleChart(c *gin.Context) {
	ranges, ok := s.latestScan(c)
	if !ok {
		return
	}

	refresh := 1
	if v := c.Query("refresh"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid refresh %q", v))
			return
		}
		refresh = n
	}

	pts := scanplot.ScanPoints(ranges, s.sensor.GetHorizontalResolution())
	data := make([]opts.ScatterData, 0, len(pts))
	pad := 0.5
	for _, p := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		pad = math.Max(pad, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	pad = math.Ceil(pad*10) / 10

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "RPLIDAR Scan", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "RPLIDAR Scan", Subtitle: fmt.Sprintf("%s points=%d", s.sensor.GetDeviceStatus(), len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("scan", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("sensor", []opts.ScatterData{{Value: []interface{}{0, 0}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		errorResponse(c, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	if refresh > 0 {
		c.Header("Refresh", strconv.Itoa(refresh))
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

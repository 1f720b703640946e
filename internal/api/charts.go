package api

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/airquality.report/internal/units"
)

// showPMChart renders an HTML line chart of the most recent readings.
func (s *Server) showPMChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, 500)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := s.store.Readings(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	// newest first from the store; plot oldest first
	slices.Reverse(readings)

	_, tz := s.display()
	xs := make([]string, 0, len(readings))
	pm2p5 := make([]opts.LineData, 0, len(readings))
	pm10 := make([]opts.LineData, 0, len(readings))
	for _, rd := range readings {
		at, err := units.ConvertTime(rd.RecordedAt, tz)
		if err != nil {
			at = rd.RecordedAt
		}
		xs = append(xs, at.Format("2006-01-02 15:04:05"))
		pm2p5 = append(pm2p5, opts.LineData{Value: units.ConvertConcentration(rd.PM2p5, u)})
		pm10 = append(pm10, opts.LineData{Value: units.ConvertConcentration(rd.PM10, u)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "SDS011 Particulates", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Particulate matter", Subtitle: fmt.Sprintf("readings=%d tz=%s", len(readings), tz)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: units.Symbol(u), NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	smooth := charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})
	line.SetXAxis(xs).
		AddSeries("PM2.5", pm2p5, smooth).
		AddSeries("PM10", pm10, smooth)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Package api serves the station's live state, stored history and charts
// over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/sds011"
	"github.com/banshee-data/airquality.report/internal/units"
	"github.com/banshee-data/airquality.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const maxDecodeBody = 4 << 10

// StateSource exposes the live sensor state. *ingest.Station satisfies it.
type StateSource interface {
	Snapshot() sds011.SensorState
}

// Store is the read side of the database used by the API. *db.DB satisfies
// it.
type Store interface {
	Readings(limit int) ([]db.Reading, error)
	ReadingSummary(since time.Time) (*db.ReadingSummary, error)
	ConfigEvents(limit int) ([]db.ConfigEvent, error)
}

type Server struct {
	state StateSource
	store Store

	mu       sync.RWMutex
	units    string
	timezone string
}

func NewServer(state StateSource, store Store, units, timezone string) *Server {
	return &Server{
		state:    state,
		store:    store,
		units:    units,
		timezone: timezone,
	}
}

// SetDisplay changes the default units and timezone used in responses.
func (s *Server) SetDisplay(units, timezone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = units
	s.timezone = timezone
}

func (s *Server) display() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units, s.timezone
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/readings", s.listReadings)
	mux.HandleFunc("/api/readings/summary", s.showReadingSummary)
	mux.HandleFunc("/api/config-events", s.listConfigEvents)
	mux.HandleFunc("/api/charts/pm", s.showPMChart)
	mux.HandleFunc("/api/decode", s.decodeFrame)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Warnf("failed to write response: %v", err)
	}
}

// requestUnits returns the units query parameter or the server default.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	def, _ := s.display()
	u := r.URL.Query().Get("units")
	if u == "" {
		return def, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter: must be one of %s", units.GetValidUnitsString())
	}
	return u, nil
}

func parseLimit(r *http.Request, def int) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, nil
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 || n > 10000 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return n, nil
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.state.Snapshot())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	u, tz := s.display()
	s.writeJSON(w, map[string]string{
		"units":    u,
		"timezone": tz,
		"version":  version.Version,
		"git_sha":  version.GitSHA,
	})
}

type readingAPI struct {
	ID         int64     `json:"id"`
	PM2p5      float64   `json:"pm2p5"`
	PM10       float64   `json:"pm10"`
	Units      string    `json:"units"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, 100)
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

	_, tz := s.display()
	out := make([]readingAPI, 0, len(readings))
	for _, rd := range readings {
		at, err := units.ConvertTime(rd.RecordedAt, tz)
		if err != nil {
			at = rd.RecordedAt
		}
		out = append(out, readingAPI{
			ID:         rd.ID,
			PM2p5:      units.ConvertConcentration(rd.PM2p5, u),
			PM10:       units.ConvertConcentration(rd.PM10, u),
			Units:      u,
			RecordedAt: at,
		})
	}
	s.writeJSON(w, out)
}

// parseSince accepts an RFC 3339 timestamp or a duration before now.
func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return now.Add(-24 * time.Hour), nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid 'since' parameter: negative duration")
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid 'since' parameter: want RFC 3339 time or duration")
	}
	return t, nil
}

func convertStats(st db.Stats, u string) db.Stats {
	return db.Stats{
		Mean:   units.ConvertConcentration(st.Mean, u),
		StdDev: units.ConvertConcentration(st.StdDev, u),
		Min:    units.ConvertConcentration(st.Min, u),
		Max:    units.ConvertConcentration(st.Max, u),
	}
}

func (s *Server) showReadingSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.store.ReadingSummary(since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to summarise readings: %v", err))
		return
	}
	summary.PM2p5 = convertStats(summary.PM2p5, u)
	summary.PM10 = convertStats(summary.PM10, u)

	s.writeJSON(w, struct {
		*db.ReadingSummary
		Units string `json:"units"`
	}{summary, u})
}

func (s *Server) listConfigEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit, err := parseLimit(r, 50)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.store.ConfigEvents(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve config events: %v", err))
		return
	}
	s.writeJSON(w, events)
}

type decodeRequest struct {
	Frame string `json:"frame"`
}

type decodeResponse struct {
	Command string              `json:"command"`
	State   *sds011.SensorState `json:"state,omitempty"`
	Error   string              `json:"error,omitempty"`
	Kind    string              `json:"kind,omitempty"`
}

// decodeErrorKind maps a decode error onto a stable identifier for clients.
func decodeErrorKind(err error) string {
	switch {
	case errors.Is(err, sds011.ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, sds011.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, sds011.ErrUnknownSubCommand):
		return "unknown_sub_command"
	}
	return "invalid"
}

// decodeFrame decodes a single hex frame into a fresh state. The live state
// is never touched.
func (s *Server) decodeFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDecodeBody))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, "{") {
		var req decodeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		raw = req.Frame
	}

	buf, err := sds011.ParseHex(raw)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(decodeResponse{Error: err.Error(), Kind: "invalid"})
		return
	}

	var resp decodeResponse
	if len(buf) > 1 {
		resp.Command = sds011.Command(buf[1]).String()
	}

	var st sds011.SensorState
	if err := sds011.Handle(buf, &st); err != nil {
		resp.Error = err.Error()
		resp.Kind = decodeErrorKind(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(resp)
		return
	}
	resp.State = &st
	s.writeJSON(w, resp)
}

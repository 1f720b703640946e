// Package ingest applies frames from the serial mux to the process-wide
// sensor state and fans the results out to storage and metrics.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/sds011"
	"github.com/banshee-data/airquality.report/internal/serialmux"
	"github.com/banshee-data/airquality.report/internal/timeutil"
)

// Recorder persists decoded frames. *db.DB satisfies it.
type Recorder interface {
	RecordReadingAt(t time.Time, pm2p5, pm10 float64) error
	RecordConfigEventAt(t time.Time, field, value string) error
}

// Station owns the live SensorState and serialises every decode against it.
type Station struct {
	mu    sync.RWMutex
	state sds011.SensorState

	rec     Recorder
	metrics *monitoring.FrameMetrics
	clock   timeutil.Clock
}

// NewStation returns a Station with an empty state. rec and metrics may be
// nil.
func NewStation(rec Recorder, metrics *monitoring.FrameMetrics) *Station {
	return &Station{rec: rec, metrics: metrics, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used to timestamp stored frames. It is safe to
// call while Run is applying frames.
func (s *Station) SetClock(c timeutil.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// Apply decodes f into the live state. Decode errors leave the state
// unchanged and are returned; storage errors are logged only.
func (s *Station) Apply(f sds011.Frame) error {
	kind := serialmux.ClassifyFrame(f)

	s.mu.Lock()
	at := s.clock.Now()
	err := sds011.Handle(f[:], &s.state)
	snap := s.state.Clone()
	s.mu.Unlock()

	s.metrics.ObserveFrame(kind, len(f), err)
	if err != nil {
		return fmt.Errorf("failed to decode %s frame %s: %w", kind, f, err)
	}

	switch f.Command() {
	case sds011.CommandReading:
		s.metrics.SetConcentration(*snap.PM2p5, *snap.PM10)
		monitoring.Debugf("reading: pm2.5=%.1f pm10=%.1f device=%04X", *snap.PM2p5, *snap.PM10, f.DeviceID())
		if s.rec != nil {
			if err := s.rec.RecordReadingAt(at, *snap.PM2p5, *snap.PM10); err != nil {
				monitoring.Errorf("failed to record reading: %v", err)
			}
		}
	case sds011.CommandConfigAck:
		field, value := configField(f.SubCommand(), &snap)
		monitoring.Logf("config: %s=%s", field, value)
		if s.rec != nil {
			if err := s.rec.RecordConfigEventAt(at, field, value); err != nil {
				monitoring.Errorf("failed to record config event: %v", err)
			}
		}
	}
	return nil
}

// configField renders the field a successful config-ack wrote.
func configField(sub sds011.SubCommand, st *sds011.SensorState) (string, string) {
	switch sub {
	case sds011.SubCommandReportMode:
		return sub.String(), st.Mode.String()
	case sds011.SubCommandSleep:
		return sub.String(), strconv.FormatBool(*st.IsSleeping)
	case sds011.SubCommandFirmware:
		return sub.String(), *st.Firmware
	case sds011.SubCommandWorkingPeriod:
		return sub.String(), strconv.Itoa(*st.WorkingPeriod)
	}
	return sub.String(), ""
}

// Snapshot returns a copy of the current state.
func (s *Station) Snapshot() sds011.SensorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Source is the subscription half of a serial mux.
type Source interface {
	Subscribe() (string, chan sds011.Frame)
	Unsubscribe(string)
}

// Run applies frames from src until ctx is done or the subscription closes.
func (s *Station) Run(ctx context.Context, src Source) {
	id, c := src.Subscribe()
	defer src.Unsubscribe(id)
	for {
		select {
		case f, ok := <-c:
			if !ok {
				monitoring.Logf("frame subscription closed")
				return
			}
			if err := s.Apply(f); err != nil {
				monitoring.Warnf("error handling frame: %v", err)
			}
		case <-ctx.Done():
			monitoring.Logf("ingest routine terminated")
			return
		}
	}
}

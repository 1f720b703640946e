package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/sds011"
	"github.com/banshee-data/airquality.report/internal/serialmux"
	"github.com/banshee-data/airquality.report/internal/timeutil"
)

type fakeRecorder struct {
	mu       sync.Mutex
	readings [][2]float64
	config   [][2]string
	times    []time.Time
	err      error
}

func (f *fakeRecorder) RecordReadingAt(t time.Time, pm2p5, pm10 float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, [2]float64{pm2p5, pm10})
	f.times = append(f.times, t)
	return f.err
}

func (f *fakeRecorder) RecordConfigEventAt(t time.Time, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = append(f.config, [2]string{field, value})
	f.times = append(f.times, t)
	return f.err
}

func mustFrame(t *testing.T, b ...byte) sds011.Frame {
	t.Helper()
	f, err := sds011.ParseFrame(b)
	require.NoError(t, err)
	return f
}

func quiet(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	monitoring.SetOutput(io.Discard, true)
	t.Cleanup(func() {
		monitoring.SetLogger(orig)
		monitoring.SetOutput(os.Stderr, false)
	})
}

func TestStation_ApplyReading(t *testing.T) {
	quiet(t)
	rec := &fakeRecorder{}
	m := monitoring.NewFrameMetrics(prometheus.NewRegistry())
	s := NewStation(rec, m)

	require.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)))

	snap := s.Snapshot()
	assert.Equal(t, 7.5, *snap.PM2p5)
	assert.Equal(t, 8.1, *snap.PM10)
	assert.Equal(t, [][2]float64{{7.5, 8.1}}, rec.readings)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("reading", "ok")))
	assert.Equal(t, 8.1, testutil.ToFloat64(m.Concentration.WithLabelValues("pm10")))
}

func TestStation_ApplyConfig(t *testing.T) {
	quiet(t)
	rec := &fakeRecorder{}
	s := NewStation(rec, nil)

	frames := []sds011.Frame{
		mustFrame(t, 0xAA, 0xC5, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xAB),
		mustFrame(t, 0xAA, 0xC5, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB),
		mustFrame(t, 0xAA, 0xC5, 0x07, 0x10, 0x0B, 0x15, 0xE9, 0x77, 0x97, 0xAB),
		mustFrame(t, 0xAA, 0xC5, 0x08, 0x10, 0x1E, 0x00, 0x00, 0x00, 0x00, 0xAB),
	}
	for _, f := range frames {
		require.NoError(t, s.Apply(f))
	}

	assert.Equal(t, [][2]string{
		{"report_mode", "query"},
		{"sleep", "true"},
		{"firmware", "16-11-21"},
		{"working_period", "30"},
	}, rec.config)

	snap := s.Snapshot()
	assert.Equal(t, sds011.ModeQuery, *snap.Mode)
	assert.True(t, *snap.IsSleeping)
	assert.Nil(t, snap.PM2p5)
}

func TestStation_ApplyErrorLeavesStateUntouched(t *testing.T) {
	quiet(t)
	rec := &fakeRecorder{}
	m := monitoring.NewFrameMetrics(prometheus.NewRegistry())
	s := NewStation(rec, m)
	require.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)))
	before := s.Snapshot()

	err := s.Apply(mustFrame(t, 0xAA, 0xC5, 0x30, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB))
	require.ErrorIs(t, err, sds011.ErrUnknownSubCommand)
	err = s.Apply(mustFrame(t, 0xAA, 0xF0, 0x30, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB))
	require.ErrorIs(t, err, sds011.ErrUnknownCommand)

	assert.Equal(t, before, s.Snapshot())
	assert.Len(t, rec.readings, 1)
	assert.Empty(t, rec.config)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("config", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("unknown", "error")))
}

func TestStation_TimestampsFromClock(t *testing.T) {
	quiet(t)
	rec := &fakeRecorder{}
	s := NewStation(rec, nil)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	s.SetClock(clock)

	require.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)))
	clock.Advance(time.Second)
	require.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC5, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB)))

	assert.Equal(t, []time.Time{start, start.Add(time.Second)}, rec.times)
}

func TestStation_SetClockWhileApplying(t *testing.T) {
	quiet(t)
	rec := &fakeRecorder{}
	s := NewStation(rec, nil)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.SetClock(timeutil.NewMockClock(start.Add(time.Duration(i) * time.Second)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.NoError(t, s.Apply(frame))
		}
	}()
	wg.Wait()

	assert.Len(t, rec.readings, 100)
}

func TestStation_RecorderErrorIsNotFatal(t *testing.T) {
	quiet(t)
	s := NewStation(&fakeRecorder{err: errors.New("disk full")}, nil)
	assert.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)))
	assert.NotNil(t, s.Snapshot().PM2p5)
}

func TestStation_RecorderErrorLoggedAtWarnLevel(t *testing.T) {
	quiet(t)
	var buf bytes.Buffer
	monitoring.SetOutput(&buf, true)
	require.NoError(t, monitoring.SetLevel("warn"))
	t.Cleanup(func() { _ = monitoring.SetLevel("info") })

	s := NewStation(&fakeRecorder{err: errors.New("disk full")}, nil)
	require.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)))

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "failed to record reading: disk full")
	assert.NotContains(t, out, "pm2.5=7.5")
}

func TestStation_SnapshotIsACopy(t *testing.T) {
	quiet(t)
	s := NewStation(nil, nil)
	require.NoError(t, s.Apply(mustFrame(t, 0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB)))

	snap := s.Snapshot()
	*snap.PM2p5 = 999
	assert.Equal(t, 7.5, *s.Snapshot().PM2p5)
}

func TestStation_RunFromMux(t *testing.T) {
	quiet(t)
	port := serialmux.NewTestableSerialPort()
	port.BlockReads = true
	mux := serialmux.NewSerialMux(port)
	s := NewStation(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mux.Monitor(ctx)
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx, mux)
		close(runDone)
	}()

	// frames sent before Run subscribes are dropped, so keep feeding until one lands
	reading := []byte{0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB}
	require.Eventually(t, func() bool {
		port.AddReadData(reading)
		return s.Snapshot().PM2p5 != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	mux.Close()
}

func TestStation_RunStopsWhenSubscriptionCloses(t *testing.T) {
	quiet(t)
	d := serialmux.NewDisabledSerialMux()
	s := NewStation(nil, nil)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), d)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after mux Close")
	}
}

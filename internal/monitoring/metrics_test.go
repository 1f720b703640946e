package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewFrameMetrics(reg)

	m.ObserveFrame("reading", 10, nil)
	m.ObserveFrame("reading", 10, nil)
	m.ObserveFrame("config", 10, errors.New("boom"))
	m.SetConcentration(7.5, 8.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues("reading", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("config", "error")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.BytesReceived))
	assert.Equal(t, 7.5, testutil.ToFloat64(m.Concentration.WithLabelValues("pm2.5")))
	assert.Equal(t, 8.1, testutil.ToFloat64(m.Concentration.WithLabelValues("pm10")))
}

func TestFrameMetrics_NilSafe(t *testing.T) {
	var m *FrameMetrics
	m.ObserveFrame("reading", 10, nil)
	m.SetConcentration(1, 2)
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewFrameMetrics(reg)
	m.ObserveFrame("reading", 10, nil)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `sds011_frames_total{kind="reading",result="ok"} 1`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

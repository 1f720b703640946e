package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a Prometheus registry with the Go and process
// collectors already registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the /metrics handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// FrameMetrics counts decoded frames and tracks the latest concentrations.
type FrameMetrics struct {
	Frames        *prometheus.CounterVec // labels: kind, result
	Concentration *prometheus.GaugeVec   // labels: size
	BytesReceived prometheus.Counter
}

// NewFrameMetrics registers and returns the frame metrics.
func NewFrameMetrics(reg prometheus.Registerer) *FrameMetrics {
	m := &FrameMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sds011_frames_total",
			Help: "Frames received from the sensor by kind and decode result.",
		}, []string{"kind", "result"}),
		Concentration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sds011_pm_ugm3",
			Help: "Latest particulate concentration in µg/m³.",
		}, []string{"size"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sds011_bytes_received_total",
			Help: "Bytes of aligned frames received from the serial port.",
		}),
	}
	reg.MustRegister(m.Frames, m.Concentration, m.BytesReceived)
	return m
}

// ObserveFrame records one decode attempt. err == nil counts as ok.
func (m *FrameMetrics) ObserveFrame(kind string, size int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Frames.WithLabelValues(kind, result).Inc()
	m.BytesReceived.Add(float64(size))
}

// SetConcentration updates the gauges for the latest reading.
func (m *FrameMetrics) SetConcentration(pm2p5, pm10 float64) {
	if m == nil {
		return
	}
	m.Concentration.WithLabelValues("pm2.5").Set(pm2p5)
	m.Concentration.WithLabelValues("pm10").Set(pm10)
}

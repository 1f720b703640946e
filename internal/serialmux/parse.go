package serialmux

import "github.com/banshee-data/airquality.report/internal/sds011"

const (
	EventTypeReading = "reading"
	EventTypeConfig  = "config"
	EventTypeUnknown = "unknown"
)

// ClassifyFrame returns a simple event type token for a frame based on its
// command byte. It does not decode the payload.
func ClassifyFrame(f sds011.Frame) string {
	switch f.Command() {
	case sds011.CommandReading:
		return EventTypeReading
	case sds011.CommandConfigAck:
		return EventTypeConfig
	default:
		return EventTypeUnknown
	}
}

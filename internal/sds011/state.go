package sds011

import (
	"encoding/json"
	"fmt"
)

// Mode is the sensor's reporting mode.
type Mode int

const (
	ModeActive Mode = iota
	ModeQuery
)

func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeQuery:
		return "query"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeActive, ModeQuery:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("invalid mode %d", int(m))
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*m = ModeActive
	case "query":
		*m = ModeQuery
	default:
		return fmt.Errorf("invalid mode %q", b)
	}
	return nil
}

// SensorState is the last known state of one sensor. A nil field has not been
// reported yet. The zero value is ready to use. SensorState performs no
// locking; callers sharing one across goroutines must serialise decode calls.
type SensorState struct {
	PM2p5         *float64 `json:"pm2p5,omitempty"`          // µg/m³
	PM10          *float64 `json:"pm10,omitempty"`           // µg/m³
	Mode          *Mode    `json:"mode,omitempty"`           // reporting mode
	IsSleeping    *bool    `json:"is_sleeping,omitempty"`    // fan and laser off
	Firmware      *string  `json:"firmware,omitempty"`       // YY-MM-DD
	WorkingPeriod *int     `json:"working_period,omitempty"` // minutes, 0 = continuous
}

// Clone returns a deep copy of s.
func (s *SensorState) Clone() SensorState {
	var c SensorState
	if s.PM2p5 != nil {
		c.PM2p5 = ptr(*s.PM2p5)
	}
	if s.PM10 != nil {
		c.PM10 = ptr(*s.PM10)
	}
	if s.Mode != nil {
		c.Mode = ptr(*s.Mode)
	}
	if s.IsSleeping != nil {
		c.IsSleeping = ptr(*s.IsSleeping)
	}
	if s.Firmware != nil {
		c.Firmware = ptr(*s.Firmware)
	}
	if s.WorkingPeriod != nil {
		c.WorkingPeriod = ptr(*s.WorkingPeriod)
	}
	return c
}

func (s *SensorState) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("SensorState(%v)", err)
	}
	return string(b)
}

func ptr[T any](v T) *T { return &v }

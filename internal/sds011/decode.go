package sds011

import "fmt"

// Handle routes buf to the decoder registered for its command byte. Unknown
// commands are rejected before st is touched.
func Handle(buf []byte, st *SensorState) error {
	f, err := ParseFrame(buf)
	if err != nil {
		return err
	}
	switch f.Command() {
	case CommandReading:
		applyReading(f, st)
		return nil
	case CommandConfigAck:
		return applyConfig(f, st)
	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, byte(f.Command()))
	}
}

// HandleReading decodes a particulate reading frame. The command byte is not
// checked.
func HandleReading(buf []byte, st *SensorState) error {
	f, err := ParseFrame(buf)
	if err != nil {
		return err
	}
	applyReading(f, st)
	return nil
}

// HandleConfig decodes a config-ack frame. Exactly one state field is written
// per call. The command byte is not checked.
func HandleConfig(buf []byte, st *SensorState) error {
	f, err := ParseFrame(buf)
	if err != nil {
		return err
	}
	return applyConfig(f, st)
}

func applyReading(f Frame, st *SensorState) {
	pm2p5 := float64(f.u16(2)) / 10.0
	pm10 := float64(f.u16(4)) / 10.0
	st.PM2p5 = &pm2p5
	st.PM10 = &pm10
}

func applyConfig(f Frame, st *SensorState) error {
	// Mode and sleep read zero with opposite meanings; this mirrors the device.
	switch sub := f.SubCommand(); sub {
	case SubCommandReportMode:
		mode := ModeQuery
		if f[4] == 0 {
			mode = ModeActive
		}
		st.Mode = &mode
	case SubCommandSleep:
		sleeping := f[4] == 0
		st.IsSleeping = &sleeping
	case SubCommandFirmware:
		fw := fmt.Sprintf("%02d-%02d-%02d", f[3], f[4], f[5])
		st.Firmware = &fw
	case SubCommandWorkingPeriod:
		period := int(f[4])
		st.WorkingPeriod = &period
	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnknownSubCommand, byte(sub))
	}
	return nil
}

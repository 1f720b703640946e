// Package sds011 decodes the fixed-size binary frames emitted by SDS011-family
// particulate matter sensors and applies them to a caller-owned SensorState.
package sds011

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameLen is the size of every frame on the wire.
const FrameLen = 10

const (
	FrameHead byte = 0xAA
	FrameTail byte = 0xAB
)

var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnknownSubCommand = errors.New("unknown sub-command")
)

// Command is byte 1 of a frame.
type Command byte

const (
	CommandReading   Command = 0xC0
	CommandConfigAck Command = 0xC5
)

func (c Command) String() string {
	switch c {
	case CommandReading:
		return "reading"
	case CommandConfigAck:
		return "config"
	default:
		return fmt.Sprintf("0x%02X", byte(c))
	}
}

// SubCommand is byte 2 of a config-ack frame.
type SubCommand byte

const (
	SubCommandReportMode    SubCommand = 0x02
	SubCommandSleep         SubCommand = 0x06
	SubCommandFirmware      SubCommand = 0x07
	SubCommandWorkingPeriod SubCommand = 0x08
)

func (s SubCommand) String() string {
	switch s {
	case SubCommandReportMode:
		return "report_mode"
	case SubCommandSleep:
		return "sleep"
	case SubCommandFirmware:
		return "firmware"
	case SubCommandWorkingPeriod:
		return "working_period"
	default:
		return fmt.Sprintf("0x%02X", byte(s))
	}
}

// Frame is one validated 10-byte protocol unit:
//
//	[0xAA, command, b2, b3, b4, b5, b6, b7, checksum, 0xAB]
type Frame [FrameLen]byte

// ParseFrame copies buf into a Frame after checking its length and markers.
func ParseFrame(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) != FrameLen {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(buf), FrameLen)
	}
	if buf[0] != FrameHead {
		return f, fmt.Errorf("%w: bad start marker 0x%02X", ErrMalformedFrame, buf[0])
	}
	if buf[FrameLen-1] != FrameTail {
		return f, fmt.Errorf("%w: bad end marker 0x%02X", ErrMalformedFrame, buf[FrameLen-1])
	}
	copy(f[:], buf)
	return f, nil
}

func (f Frame) Command() Command { return Command(f[1]) }

// SubCommand is only meaningful for config-ack frames.
func (f Frame) SubCommand() SubCommand { return SubCommand(f[2]) }

// Checksum returns the raw checksum byte. It is carried but never verified.
func (f Frame) Checksum() byte { return f[8] }

// DeviceID returns the sensor id carried in bytes 6-7.
func (f Frame) DeviceID() uint16 { return binary.LittleEndian.Uint16(f[6:8]) }

func (f Frame) u16(off int) uint16 { return binary.LittleEndian.Uint16(f[off : off+2]) }

func (f Frame) String() string { return fmt.Sprintf("% X", f[:]) }

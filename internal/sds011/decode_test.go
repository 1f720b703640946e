package sds011

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	readingFrame   = []byte{0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB}
	modeQueryFrame = []byte{0xAA, 0xC5, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xAB}
	modeActiveAck  = []byte{0xAA, 0xC5, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB}
	sleepingAck    = []byte{0xAA, 0xC5, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB}
	awakeAck       = []byte{0xAA, 0xC5, 0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xAB}
	firmwareAck    = []byte{0xAA, 0xC5, 0x07, 0x10, 0x0B, 0x15, 0xE9, 0x77, 0x97, 0xAB}
	periodZeroAck  = []byte{0xAA, 0xC5, 0x08, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB}
	period30Ack    = []byte{0xAA, 0xC5, 0x08, 0x10, 0x1E, 0x00, 0x00, 0x00, 0x00, 0xAB}
	unknownSubAck  = []byte{0xAA, 0xC5, 0x30, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB}
	unknownCommand = []byte{0xAA, 0xF0, 0x30, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB}
)

// populated returns a state with every field set so error paths can be
// checked for accidental writes.
func populated() SensorState {
	return SensorState{
		PM2p5:         ptr(1.1),
		PM10:          ptr(2.2),
		Mode:          ptr(ModeActive),
		IsSleeping:    ptr(false),
		Firmware:      ptr("15-07-10"),
		WorkingPeriod: ptr(5),
	}
}

func TestHandleReading(t *testing.T) {
	var st SensorState
	require.NoError(t, HandleReading(readingFrame, &st))

	require.NotNil(t, st.PM2p5)
	require.NotNil(t, st.PM10)
	assert.Equal(t, 7.5, *st.PM2p5)
	assert.Equal(t, 8.1, *st.PM10)
	assert.Nil(t, st.Mode)
	assert.Nil(t, st.IsSleeping)
	assert.Nil(t, st.Firmware)
	assert.Nil(t, st.WorkingPeriod)
}

func TestHandleReading_LittleEndian(t *testing.T) {
	buf := []byte{0xAA, 0xC0, 0x34, 0x12, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0xAB}
	var st SensorState
	require.NoError(t, HandleReading(buf, &st))
	assert.InDelta(t, 466.0, *st.PM2p5, 1e-9)  // 0x1234 = 4660
	assert.InDelta(t, 6553.5, *st.PM10, 1e-9) // 0xFFFF = 65535
}

func TestHandleReading_DoesNotCheckCommand(t *testing.T) {
	buf := append([]byte(nil), readingFrame...)
	buf[1] = byte(CommandConfigAck)
	var st SensorState
	require.NoError(t, HandleReading(buf, &st))
	assert.Equal(t, 7.5, *st.PM2p5)
}

func TestHandle_Reading(t *testing.T) {
	var st SensorState
	require.NoError(t, Handle(readingFrame, &st))
	assert.Equal(t, 7.5, *st.PM2p5)
	assert.Equal(t, 8.1, *st.PM10)
}

func TestHandleConfig(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
		want  SensorState
	}{
		{"mode query", modeQueryFrame, SensorState{Mode: ptr(ModeQuery)}},
		{"mode active", modeActiveAck, SensorState{Mode: ptr(ModeActive)}},
		{"sleeping", sleepingAck, SensorState{IsSleeping: ptr(true)}},
		{"awake", awakeAck, SensorState{IsSleeping: ptr(false)}},
		{"firmware", firmwareAck, SensorState{Firmware: ptr("16-11-21")}},
		{"working period continuous", periodZeroAck, SensorState{WorkingPeriod: ptr(0)}},
		{"working period 30", period30Ack, SensorState{WorkingPeriod: ptr(30)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var st SensorState
			require.NoError(t, HandleConfig(tc.frame, &st))
			if diff := cmp.Diff(tc.want, st); diff != "" {
				t.Errorf("HandleConfig() state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleConfig_ModeAndSleepAreInverted(t *testing.T) {
	for b4 := 0; b4 <= 0xFF; b4++ {
		mode := append([]byte(nil), modeActiveAck...)
		sleep := append([]byte(nil), sleepingAck...)
		mode[4], sleep[4] = byte(b4), byte(b4)

		var st SensorState
		require.NoError(t, HandleConfig(mode, &st))
		require.NoError(t, HandleConfig(sleep, &st))

		if b4 == 0 {
			assert.Equal(t, ModeActive, *st.Mode)
			assert.True(t, *st.IsSleeping)
		} else {
			assert.Equal(t, ModeQuery, *st.Mode, "b4=0x%02X", b4)
			assert.False(t, *st.IsSleeping, "b4=0x%02X", b4)
		}
	}
}

func TestHandleConfig_FirmwareZeroPadded(t *testing.T) {
	buf := []byte{0xAA, 0xC5, 0x07, 0x01, 0x02, 0x03, 0x09, 0x09, 0x00, 0xAB}
	var st SensorState
	require.NoError(t, HandleConfig(buf, &st))
	assert.Equal(t, "01-02-03", *st.Firmware)
}

func TestHandleConfig_UnknownSubCommand(t *testing.T) {
	st := populated()
	before := st.Clone()

	err := HandleConfig(unknownSubAck, &st)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSubCommand))
	assert.Contains(t, err.Error(), "0x30")
	if diff := cmp.Diff(before, st); diff != "" {
		t.Errorf("state changed on error (-before +after):\n%s", diff)
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	st := populated()
	before := st.Clone()

	err := Handle(unknownCommand, &st)
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), "0xF0")
	if diff := cmp.Diff(before, st); diff != "" {
		t.Errorf("state changed on error (-before +after):\n%s", diff)
	}
}

func TestHandle_UnknownSubCommandThroughDispatcher(t *testing.T) {
	st := populated()
	before := st.Clone()

	require.ErrorIs(t, Handle(unknownSubAck, &st), ErrUnknownSubCommand)
	assert.Empty(t, cmp.Diff(before, st))
}

func TestHandle_MatchesDirectDecoders(t *testing.T) {
	frames := [][]byte{
		readingFrame, modeQueryFrame, modeActiveAck, sleepingAck, awakeAck,
		firmwareAck, periodZeroAck, period30Ack,
	}
	for _, f := range frames {
		viaHandle := populated()
		direct := populated()

		require.NoError(t, Handle(f, &viaHandle))
		if Command(f[1]) == CommandReading {
			require.NoError(t, HandleReading(f, &direct))
		} else {
			require.NoError(t, HandleConfig(f, &direct))
		}
		if diff := cmp.Diff(direct, viaHandle); diff != "" {
			t.Errorf("Handle(% X) differs from direct decoder (-direct +handle):\n%s", f, diff)
		}
	}
}

func TestHandle_Idempotent(t *testing.T) {
	for _, f := range [][]byte{readingFrame, modeQueryFrame, sleepingAck, firmwareAck, period30Ack} {
		var once, twice SensorState
		require.NoError(t, Handle(f, &once))
		require.NoError(t, Handle(f, &twice))
		require.NoError(t, Handle(f, &twice))
		assert.Empty(t, cmp.Diff(once, twice))
	}
}

func TestHandle_FieldsAccumulateAcrossFrameTypes(t *testing.T) {
	var st SensorState
	for _, f := range [][]byte{readingFrame, modeQueryFrame, sleepingAck, firmwareAck, period30Ack} {
		require.NoError(t, Handle(f, &st))
	}
	want := SensorState{
		PM2p5:         ptr(7.5),
		PM10:          ptr(8.1),
		Mode:          ptr(ModeQuery),
		IsSleeping:    ptr(true),
		Firmware:      ptr("16-11-21"),
		WorkingPeriod: ptr(30),
	}
	assert.Empty(t, cmp.Diff(want, st))
}

func TestDecoders_MalformedFrame(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"nil", nil},
		{"short", readingFrame[:9]},
		{"long", append(append([]byte(nil), readingFrame...), 0x00)},
		{"bad head", []byte{0xAB, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAB}},
		{"bad tail", []byte{0xAA, 0xC0, 0x4B, 0x00, 0x51, 0x00, 0xE9, 0x77, 0xFC, 0xAA}},
	}
	decoders := map[string]func([]byte, *SensorState) error{
		"Handle":        Handle,
		"HandleReading": HandleReading,
		"HandleConfig":  HandleConfig,
	}

	for _, tc := range cases {
		for name, decode := range decoders {
			t.Run(name+"/"+tc.name, func(t *testing.T) {
				st := populated()
				before := st.Clone()
				require.ErrorIs(t, decode(tc.buf, &st), ErrMalformedFrame)
				assert.Empty(t, cmp.Diff(before, st))
			})
		}
	}
}

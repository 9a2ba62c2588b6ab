package frame_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/srg/gripsense/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioFrame returns the 48-byte frame used across the end-to-end checks:
// timestamp=10, tip=20, finger=5, angle raw=-6, offset 8 = 99, battery=80.
func scenarioFrame(tip int16) []byte {
	buf := make([]byte, frame.FrameSize)
	copy(buf, []byte{10, 0, 20, 0, 5, 0, 250, 255, 99, 0, 80, 0})
	binary.LittleEndian.PutUint16(buf[2:], uint16(tip))
	return buf
}

func TestDecode_Scenario(t *testing.T) {
	r, err := frame.Decode(scenarioFrame(20))
	require.NoError(t, err)

	assert.Equal(t, uint16(10), r.Timestamp)
	assert.Equal(t, int16(20), r.TipSensorValue)
	assert.Equal(t, int16(5), r.FingerSensorValue)
	assert.Equal(t, uint16(6), r.Angle, "angle MUST be the absolute value of the raw reading")
	assert.Equal(t, int16(99), r.Speed, "tip above threshold MUST expose raw speed")
	assert.Equal(t, int16(80), r.BatteryLevel)
	assert.Zero(t, r.AccX)
	assert.Zero(t, r.GyroZ)
}

func TestDecode_SpeedZeroedAtOrBelowThreshold(t *testing.T) {
	tests := []struct {
		name      string
		tip       int16
		wantSpeed int16
	}{
		{name: "tip 10 zeroes speed", tip: 10, wantSpeed: 0},
		{name: "tip at threshold zeroes speed", tip: frame.SpeedThreshold, wantSpeed: 0},
		{name: "negative tip zeroes speed", tip: -300, wantSpeed: 0},
		{name: "tip just above threshold keeps speed", tip: frame.SpeedThreshold + 1, wantSpeed: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := frame.Decode(scenarioFrame(tt.tip))
			require.NoError(t, err)
			assert.Equal(t, tt.tip, r.TipSensorValue)
			assert.Equal(t, tt.wantSpeed, r.Speed)
		})
	}
}

func TestDecode_AngleNeverNegative(t *testing.T) {
	for _, raw := range []int16{math.MinInt16, -1, 0, 1, math.MaxInt16} {
		buf := scenarioFrame(20)
		binary.LittleEndian.PutUint16(buf[6:], uint16(raw))

		r, err := frame.Decode(buf)
		require.NoError(t, err)

		want := int32(raw)
		if want < 0 {
			want = -want
		}
		assert.Equal(t, uint16(want), r.Angle, "raw %d", raw)
	}
}

func TestDecode_FullLayout(t *testing.T) {
	buf := make([]byte, frame.FrameSize+4)
	le := binary.LittleEndian
	le.PutUint16(buf[0:], 65535)
	le.PutUint16(buf[2:], 100)
	le.PutUint16(buf[4:], uint16(0xFFFF)) // -1
	le.PutUint16(buf[6:], 45)
	le.PutUint16(buf[8:], uint16(0xFFF6)) // -10
	le.PutUint16(buf[10:], 77)
	le.PutUint16(buf[12:], 12)
	le.PutUint16(buf[14:], 14)
	le.PutUint16(buf[16:], 16)
	le.PutUint16(buf[18:], 18)
	le.PutUint16(buf[20:], 20)
	le.PutUint16(buf[22:], 22)
	for i, v := range []float32{1.5, -2.25, 9.81, 0.125, -0.5, 3} {
		le.PutUint32(buf[24+4*i:], math.Float32bits(v))
	}
	buf[48], buf[49] = 0xAA, 0xBB // trailing bytes are ignored

	r, err := frame.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, frame.SensorReading{
		Timestamp:              65535,
		TipSensorValue:         100,
		FingerSensorValue:      -1,
		Angle:                  45,
		Speed:                  -10,
		BatteryLevel:           77,
		SecondsInRange:         12,
		SecondsInUse:           14,
		TipSensorUpperRange:    16,
		TipSensorLowerRange:    18,
		FingerSensorUpperRange: 20,
		FingerSensorLowerRange: 22,
		AccX:                   1.5,
		AccY:                   -2.25,
		AccZ:                   9.81,
		GyroX:                  0.125,
		GyroY:                  -0.5,
		GyroZ:                  3,
	}, r)
}

func TestDecode_Deterministic(t *testing.T) {
	buf := scenarioFrame(42)
	first, err := frame.Decode(buf)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := frame.Decode(buf)
		require.NoError(t, err)
		assert.True(t, first == again, "decode MUST be deterministic")
	}
}

func TestDecode_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, 8, frame.FrameSize - 1} {
		var err error
		assert.NotPanics(t, func() {
			_, err = frame.Decode(make([]byte, n))
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, frame.ErrTooShort)

		var decErr *frame.DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, n, decErr.Len)
	}

	_, err := frame.Decode(nil)
	assert.ErrorIs(t, err, frame.ErrTooShort)
}

func TestSensorReading_String(t *testing.T) {
	r, err := frame.Decode(scenarioFrame(20))
	require.NoError(t, err)

	s := r.String()
	assert.Contains(t, s, "timestamp: 10\n")
	assert.Contains(t, s, "angle: 6\n")
	assert.Contains(t, s, "speed: 99\n")
	assert.Contains(t, s, "gyroZ: 0")

	fields := r.Fields()
	require.Len(t, fields, 18)
	assert.Equal(t, "timestamp", fields[0].Name)
	assert.Equal(t, "gyroZ", fields[17].Name)
}

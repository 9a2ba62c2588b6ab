// Package frame decodes the fixed-layout telemetry frame emitted by the sensor grip's
// notification characteristic.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// FrameSize is the minimum length of a telemetry frame in bytes.
	FrameSize = 48

	// SpeedThreshold is the tip sensor value above which offset 8 carries speed.
	// Firmware contract: at or below it the device reports no speed.
	SpeedThreshold = 15
)

// ErrTooShort is matched by every DecodeError.
var ErrTooShort = errors.New("frame too short")

// DecodeError reports a buffer that cannot hold a full frame.
type DecodeError struct {
	Len int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: got %d bytes, need %d", ErrTooShort, e.Len, FrameSize)
}

// Is allows errors.Is(err, ErrTooShort).
func (e *DecodeError) Is(target error) bool {
	return target == ErrTooShort
}

// SensorReading is one decoded frame. It is comparable; two readings are equal when
// every field is equal.
type SensorReading struct {
	Timestamp              uint16
	TipSensorValue         int16
	FingerSensorValue      int16
	Angle                  uint16
	Speed                  int16
	BatteryLevel           int16
	SecondsInRange         int16
	SecondsInUse           int16
	TipSensorUpperRange    int16
	TipSensorLowerRange    int16
	FingerSensorUpperRange int16
	FingerSensorLowerRange int16
	AccX                   float32
	AccY                   float32
	AccZ                   float32
	GyroX                  float32
	GyroY                  float32
	GyroZ                  float32
}

// Decode parses buf into a SensorReading. Bytes past FrameSize are ignored.
func Decode(buf []byte) (SensorReading, error) {
	if len(buf) < FrameSize {
		return SensorReading{}, &DecodeError{Len: len(buf)}
	}

	tip := i16(buf, 2)
	var speed int16
	if tip > SpeedThreshold {
		speed = i16(buf, 8)
	}

	return SensorReading{
		Timestamp:              binary.LittleEndian.Uint16(buf[0:2]),
		TipSensorValue:         tip,
		FingerSensorValue:      i16(buf, 4),
		Angle:                  abs16(i16(buf, 6)),
		Speed:                  speed,
		BatteryLevel:           i16(buf, 10),
		SecondsInRange:         i16(buf, 12),
		SecondsInUse:           i16(buf, 14),
		TipSensorUpperRange:    i16(buf, 16),
		TipSensorLowerRange:    i16(buf, 18),
		FingerSensorUpperRange: i16(buf, 20),
		FingerSensorLowerRange: i16(buf, 22),
		AccX:                   f32(buf, 24),
		AccY:                   f32(buf, 28),
		AccZ:                   f32(buf, 32),
		GyroX:                  f32(buf, 36),
		GyroY:                  f32(buf, 40),
		GyroZ:                  f32(buf, 44),
	}, nil
}

func i16(buf []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[off : off+2]))
}

func f32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

// abs16 widens before negating so that -32768 maps to 32768.
func abs16(v int16) uint16 {
	w := int32(v)
	if w < 0 {
		w = -w
	}
	return uint16(w)
}

// Field is a named, formatted reading value.
type Field struct {
	Name  string
	Value string
}

// Fields returns the reading's values in frame order.
func (r SensorReading) Fields() []Field {
	return []Field{
		{"timestamp", fmt.Sprint(r.Timestamp)},
		{"tipSensorValue", fmt.Sprint(r.TipSensorValue)},
		{"fingerSensorValue", fmt.Sprint(r.FingerSensorValue)},
		{"angle", fmt.Sprint(r.Angle)},
		{"speed", fmt.Sprint(r.Speed)},
		{"batteryLevel", fmt.Sprint(r.BatteryLevel)},
		{"secondsInRange", fmt.Sprint(r.SecondsInRange)},
		{"secondsInUse", fmt.Sprint(r.SecondsInUse)},
		{"tipSensorUpperRange", fmt.Sprint(r.TipSensorUpperRange)},
		{"tipSensorLowerRange", fmt.Sprint(r.TipSensorLowerRange)},
		{"fingerSensorUpperRange", fmt.Sprint(r.FingerSensorUpperRange)},
		{"fingerSensorLowerRange", fmt.Sprint(r.FingerSensorLowerRange)},
		{"accX", fmt.Sprint(r.AccX)},
		{"accY", fmt.Sprint(r.AccY)},
		{"accZ", fmt.Sprint(r.AccZ)},
		{"gyroX", fmt.Sprint(r.GyroX)},
		{"gyroY", fmt.Sprint(r.GyroY)},
		{"gyroZ", fmt.Sprint(r.GyroZ)},
	}
}

// String renders one "name: value" line per field.
func (r SensorReading) String() string {
	var sb strings.Builder
	for i, f := range r.Fields() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
	}
	return sb.String()
}

package goble

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
)

func TestFormatUUID(t *testing.T) {
	assert.Equal(t, "00003004-0000-1000-8000-00805f9b34fb", formatUUID(ble.MustParse("00003004-0000-1000-8000-00805F9B34FB")))
	assert.Equal(t, "2901", formatUUID(ble.UUID16(0x2901)))
}

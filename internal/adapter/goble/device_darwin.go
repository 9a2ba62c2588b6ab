package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newPlatformDevice(Options) (ble.Device, error) {
	return darwin.NewDevice()
}

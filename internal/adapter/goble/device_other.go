//go:build !linux && !darwin

package goble

import "github.com/go-ble/ble"

func newPlatformDevice(Options) (ble.Device, error) {
	return nil, ErrUnsupportedPlatform
}

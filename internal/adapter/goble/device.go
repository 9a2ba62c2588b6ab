package goble

import (
	"time"

	"github.com/go-ble/ble"
)

// DeviceFactory creates the host's ble.Device. Tests replace it with a mock.
//
//nolint:gochecknoglobals // overridden in tests
var DeviceFactory = func(opts Options) (ble.Device, error) {
	return newPlatformDevice(opts)
}

// Options tune the adapter. Zero fields take the defaults in the struct tags.
type Options struct {
	// ScanDuration bounds a device scan; the scan reports Finished when it elapses.
	ScanDuration time.Duration `default:"10s"`
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration `default:"10s"`
	// DescriptorReadTimeout bounds the user description read.
	DescriptorReadTimeout time.Duration `default:"2s"`
	// QueueSize is the capacity of each scan result queue.
	QueueSize int `default:"256"`
	// FrameBufferSize is the capacity of the notification frame ring.
	FrameBufferSize uint32 `default:"1024"`
}

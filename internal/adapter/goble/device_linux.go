package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

func newPlatformDevice(opts Options) (ble.Device, error) {
	return linux.NewDevice(
		ble.OptDialerTimeout(opts.DialTimeout),
		ble.OptScanParams(cmd.LESetScanParameters{
			LEScanType:           0x01,   // active, so scan responses carry the local name
			LEScanInterval:       0x0010, // 10 ms
			LEScanWindow:         0x0010,
			OwnAddressType:       0x00,
			ScanningFilterPolicy: 0x00,
		}),
	)
}

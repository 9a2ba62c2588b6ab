package goble

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBluetoothOff        = errors.New("bluetooth is turned off")
	ErrNotConnected        = errors.New("device not connected")
	ErrUnsupportedPlatform = errors.New("no BLE device support on this platform")
	ErrUnknownService      = errors.New("service not discovered")
	ErrUnknownChar         = errors.New("characteristic not discovered")
	ErrAdapterClosed       = errors.New("adapter closed")
)

// NormalizeError maps known go-ble failures to the package's sentinel errors, keeping
// the original message. Unknown errors are returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/gripsense/internal/adapter/goble"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/scan"
	"github.com/srg/gripsense/internal/telemetry"
)

// Command-level errors
var (
	// ErrNoDevice is returned when a device scan finishes without a matching grip.
	ErrNoDevice = errors.New("no matching device found")
	// ErrScanTimeout is returned when a scan does not finish within its deadline.
	ErrScanTimeout = errors.New("scan timed out")
)

// FormatUserError turns known errors into a one-line message with a hint.
func FormatUserError(err error) string {
	var adapterErr *connector.AdapterError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off. Enable it and try again."
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return "BLE is not supported on this platform."
	case errors.Is(err, goble.ErrNotConnected):
		return "Device disconnected. Make sure it is powered on and in range."
	case errors.Is(err, connector.ErrPayloadTooLarge):
		return fmt.Sprintf("%v. Split the data into smaller writes.", err)
	case errors.Is(err, telemetry.ErrSubscribeFailed):
		return fmt.Sprintf("%v. Check the service and characteristic UUIDs.", err)
	case errors.Is(err, scan.ErrAlreadyScanning), errors.Is(err, telemetry.ErrAlreadySubscribed):
		return fmt.Sprintf("%v. Wait for the running operation to finish.", err)
	case errors.Is(err, ErrNoDevice):
		return fmt.Sprintf("%v. Use --all to list every device in range.", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrScanTimeout):
		return "Operation timed out. Move closer to the device or raise the timeout."
	case errors.As(err, &adapterErr):
		if strings.Contains(adapterErr.Msg, goble.ErrBluetoothOff.Error()) {
			return "Bluetooth is turned off. Enable it and try again."
		}
		return adapterErr.Msg
	default:
		return err.Error()
	}
}

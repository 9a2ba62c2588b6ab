package scan

import (
	"fmt"

	"github.com/srg/gripsense/internal/adapter"
)

// Target selects what a service or characteristic scan walks. Device scans ignore it.
type Target struct {
	DeviceID    string
	ServiceUUID string
}

// Source is the adapter side of one scan kind.
type Source[U any] interface {
	// Begin validates the target and starts the adapter scan.
	Begin(t Target) error
	// End cancels the adapter scan, where the adapter supports it.
	End()
	// Next polls the adapter once.
	Next(block bool) (adapter.ScanStatus, U)
}

type deviceSource struct {
	a adapter.Adapter
}

func (s deviceSource) Begin(Target) error {
	s.a.StartDeviceScan()
	return nil
}

func (s deviceSource) End() {
	s.a.StopDeviceScan()
}

func (s deviceSource) Next(block bool) (adapter.ScanStatus, adapter.DeviceUpdate) {
	return s.a.PollDevice(block)
}

type serviceSource struct {
	a adapter.Adapter
}

func (s serviceSource) Begin(t Target) error {
	if t.DeviceID == "" {
		return fmt.Errorf("%w: service scan requires a device", ErrIncompleteTarget)
	}
	s.a.ScanServices(t.DeviceID)
	return nil
}

// End is a no-op: the adapter cannot cancel a service scan, its results are abandoned.
func (s serviceSource) End() {}

func (s serviceSource) Next(block bool) (adapter.ScanStatus, adapter.Service) {
	return s.a.PollService(block)
}

type characteristicSource struct {
	a adapter.Adapter
}

func (s characteristicSource) Begin(t Target) error {
	if t.DeviceID == "" || t.ServiceUUID == "" {
		return fmt.Errorf("%w: characteristic scan requires a device and a service", ErrIncompleteTarget)
	}
	s.a.ScanCharacteristics(t.DeviceID, t.ServiceUUID)
	return nil
}

func (s characteristicSource) End() {}

func (s characteristicSource) Next(block bool) (adapter.ScanStatus, adapter.Characteristic) {
	return s.a.PollCharacteristic(block)
}

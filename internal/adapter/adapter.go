// Package adapter defines the boundary between the core and a native BLE stack.
//
// The contract is poll based: scans are started, then results are drained with the
// Poll* calls, either blocking until a result is ready or returning Processing when
// nothing is immediately available.
package adapter

import "fmt"

// UserDescriptionPlaceholder is reported by adapters for characteristics without a
// user description descriptor.
const UserDescriptionPlaceholder = "no description available"

// MaxPayload is the largest frame the adapter can carry.
const MaxPayload = 512

// ScanStatus is the result of a single poll.
type ScanStatus int

const (
	Processing ScanStatus = iota
	Available
	Finished
)

func (s ScanStatus) String() string {
	switch s {
	case Processing:
		return "processing"
	case Available:
		return "available"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("ScanStatus(%d)", int(s))
	}
}

// DeviceUpdate is a partial device sighting. Only fields whose *Updated flag is set
// carry new information.
type DeviceUpdate struct {
	ID                   string
	Name                 string
	NameUpdated          bool
	IsConnectable        bool
	IsConnectableUpdated bool
}

// Service is a discovered GATT service.
type Service struct {
	UUID string
}

// Characteristic is a discovered GATT characteristic. UserDescription holds the
// UserDescriptionPlaceholder when the peripheral exposes none.
type Characteristic struct {
	UUID            string
	UserDescription string
}

// RawFrame is a notification received from, or a payload written to, a characteristic.
type RawFrame struct {
	Data               []byte
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
}

// Adapter is the external BLE stack.
//
// SubscribeCharacteristic and SendData only report a success flag; failures that
// happen after a successful call surface through LastError. After Quit no method may
// be called.
type Adapter interface {
	StartDeviceScan()
	StopDeviceScan()
	PollDevice(block bool) (ScanStatus, DeviceUpdate)

	ScanServices(deviceID string)
	PollService(block bool) (ScanStatus, Service)

	ScanCharacteristics(deviceID, serviceUUID string)
	PollCharacteristic(block bool) (ScanStatus, Characteristic)

	SubscribeCharacteristic(deviceID, serviceUUID, characteristicUUID string, block bool) bool
	PollData(block bool) (RawFrame, bool)
	SendData(frame RawFrame, block bool) bool

	LastError() string
	Quit()
}

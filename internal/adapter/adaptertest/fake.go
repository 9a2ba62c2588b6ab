// Package adaptertest provides a scripted in-memory adapter.Adapter for tests.
package adaptertest

import (
	"fmt"
	"sync"

	"github.com/srg/gripsense/internal/adapter"
)

type step[T any] struct {
	status adapter.ScanStatus
	value  T
}

// Fake replays queued scan results and frames. When a queue is empty the matching
// Poll call reports adapter.Processing (or no frame). All methods are safe for
// concurrent use.
type Fake struct {
	mu sync.Mutex

	devices         []step[adapter.DeviceUpdate]
	services        []step[adapter.Service]
	characteristics []step[adapter.Characteristic]
	frames          []adapter.RawFrame

	subscribeOK bool
	sendOK      bool
	lastError   string

	calls []string
	sent  []adapter.RawFrame
}

// New returns a Fake whose subscribe and send calls succeed.
func New() *Fake {
	return &Fake{subscribeOK: true, sendOK: true}
}

// QueueDevices appends available device updates.
func (f *Fake) QueueDevices(updates ...adapter.DeviceUpdate) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		f.devices = append(f.devices, step[adapter.DeviceUpdate]{status: adapter.Available, value: u})
	}
	return f
}

// FinishDevices appends the terminal device status.
func (f *Fake) FinishDevices() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, step[adapter.DeviceUpdate]{status: adapter.Finished})
	return f
}

// QueueServices appends available services.
func (f *Fake) QueueServices(uuids ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range uuids {
		f.services = append(f.services, step[adapter.Service]{status: adapter.Available, value: adapter.Service{UUID: u}})
	}
	return f
}

// FinishServices appends the terminal service status.
func (f *Fake) FinishServices() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = append(f.services, step[adapter.Service]{status: adapter.Finished})
	return f
}

// QueueCharacteristics appends available characteristics.
func (f *Fake) QueueCharacteristics(chars ...adapter.Characteristic) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chars {
		f.characteristics = append(f.characteristics, step[adapter.Characteristic]{status: adapter.Available, value: c})
	}
	return f
}

// FinishCharacteristics appends the terminal characteristic status.
func (f *Fake) FinishCharacteristics() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characteristics = append(f.characteristics, step[adapter.Characteristic]{status: adapter.Finished})
	return f
}

// QueueFrames appends notification frames.
func (f *Fake) QueueFrames(frames ...adapter.RawFrame) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frames...)
	return f
}

// SetSubscribeResult sets the value returned by SubscribeCharacteristic.
func (f *Fake) SetSubscribeResult(ok bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeOK = ok
	return f
}

// SetSendResult sets the value returned by SendData.
func (f *Fake) SetSendResult(ok bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendOK = ok
	return f
}

// SetLastError sets the value returned by LastError.
func (f *Fake) SetLastError(msg string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastError = msg
	return f
}

// Calls returns the recorded adapter calls, excluding polls.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times the named call was recorded.
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Sent returns the frames passed to SendData.
func (f *Fake) Sent() []adapter.RawFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.RawFrame(nil), f.sent...)
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

func pop[T any](q *[]step[T]) (adapter.ScanStatus, T) {
	var zero T
	if len(*q) == 0 {
		return adapter.Processing, zero
	}
	s := (*q)[0]
	*q = (*q)[1:]
	return s.status, s.value
}

func (f *Fake) StartDeviceScan() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartDeviceScan")
}

func (f *Fake) StopDeviceScan() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopDeviceScan")
}

func (f *Fake) PollDevice(bool) (adapter.ScanStatus, adapter.DeviceUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pop(&f.devices)
}

func (f *Fake) ScanServices(deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ScanServices:" + deviceID)
}

func (f *Fake) PollService(bool) (adapter.ScanStatus, adapter.Service) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pop(&f.services)
}

func (f *Fake) ScanCharacteristics(deviceID, serviceUUID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("ScanCharacteristics:%s/%s", deviceID, serviceUUID))
}

func (f *Fake) PollCharacteristic(bool) (adapter.ScanStatus, adapter.Characteristic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pop(&f.characteristics)
}

func (f *Fake) SubscribeCharacteristic(deviceID, serviceUUID, characteristicUUID string, _ bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("Subscribe:%s/%s/%s", deviceID, serviceUUID, characteristicUUID))
	return f.subscribeOK
}

func (f *Fake) PollData(bool) (adapter.RawFrame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return adapter.RawFrame{}, false
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, true
}

func (f *Fake) SendData(frame adapter.RawFrame, _ bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendData")
	f.sent = append(f.sent, frame)
	return f.sendOK
}

func (f *Fake) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastError
}

func (f *Fake) Quit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Quit")
}

var _ adapter.Adapter = (*Fake)(nil)

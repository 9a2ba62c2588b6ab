// Package goble implements adapter.Adapter over github.com/go-ble/ble.
//
// Every blocking go-ble call runs on a named worker goroutine that pushes its results
// into a bounded queue; the Poll* methods only read those queues. Scan queues drop the
// oldest result on overflow, and so does the notification frame ring.
package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/groutine"
	"github.com/srg/gripsense/internal/ringchan"
)

type result[T any] struct {
	status adapter.ScanStatus
	value  T
}

// queue carries the results of one scan kind. gen is bumped on every restart so a
// worker from an abandoned scan cannot deliver into the new one.
type queue[T any] struct {
	mu   sync.Mutex
	gen  uint64
	ring *ringchan.RingChannel[result[T]]
}

func newQueue[T any](size int) *queue[T] {
	return &queue[T]{ring: ringchan.New[result[T]](size)}
}

// restart discards pending results and returns the new generation.
func (q *queue[T]) restart() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	q.ring.Drain()
	return q.gen
}

// push delivers r if gen is still current. It reports whether an older result was dropped.
func (q *queue[T]) push(gen uint64, r result[T]) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.gen {
		return false
	}
	return q.ring.ForceSend(r)
}

func (q *queue[T]) poll(block bool, done <-chan struct{}) (adapter.ScanStatus, T) {
	var (
		r  result[T]
		ok bool
	)
	if block {
		r, ok = q.ring.ReceiveUntil(done)
	} else {
		r, ok = q.ring.TryReceive()
	}
	if !ok {
		var zero T
		return adapter.Processing, zero
	}
	return r.status, r.value
}

type charKey struct {
	device, service, char string
}

// Adapter talks to the host's BLE controller.
type Adapter struct {
	opts   Options
	logger *logrus.Logger
	group  *groutine.Group
	done   chan struct{}

	devOnce sync.Once
	dev     ble.Device
	devErr  error

	errMu   sync.Mutex
	lastErr string

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanDone   chan struct{}

	devices  *queue[adapter.DeviceUpdate]
	services *queue[adapter.Service]
	chars    *queue[adapter.Characteristic]

	frames      mpmc.RichOverlappedRingBuffer[adapter.RawFrame]
	frameSignal chan struct{}

	connMu     sync.Mutex
	clients    map[string]ble.Client
	profiles   map[string]map[string]*ble.Service
	discovered map[charKey]*ble.Characteristic
	subscribed map[charKey]struct{}

	quitOnce sync.Once
}

// New creates an adapter. The host device is opened lazily, on the first scan.
func New(opts Options, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	defaults.SetDefaults(&opts)

	return &Adapter{
		opts:        opts,
		logger:      logger,
		group:       groutine.NewGroup(context.Background()),
		done:        make(chan struct{}),
		devices:     newQueue[adapter.DeviceUpdate](opts.QueueSize),
		services:    newQueue[adapter.Service](opts.QueueSize),
		chars:       newQueue[adapter.Characteristic](opts.QueueSize),
		frames:      mpmc.NewOverlappedRingBuffer[adapter.RawFrame](opts.FrameBufferSize),
		frameSignal: make(chan struct{}, 1),
		clients:     make(map[string]ble.Client),
		profiles:    make(map[string]map[string]*ble.Service),
		discovered:  make(map[charKey]*ble.Characteristic),
		subscribed:  make(map[charKey]struct{}),
	}
}

func (a *Adapter) device() (ble.Device, error) {
	a.devOnce.Do(func() {
		a.dev, a.devErr = DeviceFactory(a.opts)
		if a.devErr != nil {
			a.devErr = NormalizeError(a.devErr)
		}
	})
	return a.dev, a.devErr
}

func (a *Adapter) closed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// fail records err as the adapter's last error.
func (a *Adapter) fail(op string, err error) {
	a.errMu.Lock()
	a.lastErr = op + ": " + err.Error()
	a.errMu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"op":    op,
		"error": err,
	}).Debug("BLE operation failed")
}

// LastError returns the most recent failure message, or "".
func (a *Adapter) LastError() string {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.lastErr
}

// StartDeviceScan starts an advertisement scan that runs for Options.ScanDuration.
// A scan already running is cancelled first.
func (a *Adapter) StartDeviceScan() {
	if a.closed() {
		return
	}
	a.cancelScan(true)
	gen := a.devices.restart()

	dev, err := a.device()
	if err != nil {
		a.fail("scan", err)
		a.devices.push(gen, result[adapter.DeviceUpdate]{status: adapter.Finished})
		return
	}

	ctx, cancel := context.WithTimeout(a.group.Context(), a.opts.ScanDuration)
	scanDone := make(chan struct{})

	a.scanMu.Lock()
	a.scanCancel = cancel
	a.scanDone = scanDone
	a.scanMu.Unlock()

	a.group.Go("ble-device-scan", func(context.Context) {
		defer close(scanDone)
		defer cancel()

		seen := make(map[string]adapter.DeviceUpdate)
		handler := func(adv ble.Advertisement) {
			u, ok := deviceUpdate(adv)
			if !ok {
				return
			}
			if prev, known := seen[u.ID]; known && prev == u {
				return
			}
			seen[u.ID] = u
			if a.devices.push(gen, result[adapter.DeviceUpdate]{status: adapter.Available, value: u}) {
				a.logger.Warn("Device queue full, dropped oldest update")
			}
		}

		err := dev.Scan(ctx, true, handler)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			a.fail("scan", NormalizeError(err))
		}
		a.logger.WithField("devices", len(seen)).Debug("Device scan ended")
		a.devices.push(gen, result[adapter.DeviceUpdate]{status: adapter.Finished})
	})
}

// deviceUpdate converts an advertisement. A missing local name is reported as not
// updated, so a name seen earlier is kept.
func deviceUpdate(adv ble.Advertisement) (adapter.DeviceUpdate, bool) {
	addr := adv.Addr()
	if addr == nil || addr.String() == "" {
		return adapter.DeviceUpdate{}, false
	}
	name := adv.LocalName()
	return adapter.DeviceUpdate{
		ID:                   addr.String(),
		Name:                 name,
		NameUpdated:          name != "",
		IsConnectable:        adv.Connectable(),
		IsConnectableUpdated: true,
	}, true
}

// StopDeviceScan cancels the running scan. Results not yet polled are discarded.
func (a *Adapter) StopDeviceScan() {
	a.cancelScan(false)
	a.devices.restart()
}

func (a *Adapter) cancelScan(wait bool) {
	a.scanMu.Lock()
	cancel, done := a.scanCancel, a.scanDone
	a.scanCancel, a.scanDone = nil, nil
	a.scanMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if wait {
		select {
		case <-done:
		case <-a.done:
		}
	}
}

// PollDevice returns the next device scan result.
func (a *Adapter) PollDevice(block bool) (adapter.ScanStatus, adapter.DeviceUpdate) {
	return a.devices.poll(block, a.done)
}

// PollService returns the next service scan result.
func (a *Adapter) PollService(block bool) (adapter.ScanStatus, adapter.Service) {
	return a.services.poll(block, a.done)
}

// PollCharacteristic returns the next characteristic scan result.
func (a *Adapter) PollCharacteristic(block bool) (adapter.ScanStatus, adapter.Characteristic) {
	return a.chars.poll(block, a.done)
}

// Quit cancels every worker, drops all connections and stops the host device. Only
// the first call has an effect. Connections are cancelled before waiting for the
// workers, since go-ble discovery and subscribe calls only return once their
// connection goes away.
func (a *Adapter) Quit() {
	a.quitOnce.Do(func() {
		a.logger.Debug("Shutting down BLE adapter")
		close(a.done)
		a.group.Cancel()

		a.connMu.Lock()
		clients := a.clients
		a.clients = make(map[string]ble.Client)
		a.connMu.Unlock()

		for id, c := range clients {
			if err := c.CancelConnection(); err != nil {
				a.logger.WithFields(logrus.Fields{
					"device": id,
					"error":  err,
				}).Warn("Failed to cancel connection")
			}
		}

		a.group.Stop()

		// Waits for a factory call in flight; marks the device unusable if none was made.
		a.devOnce.Do(func() { a.devErr = ErrAdapterClosed })
		if a.dev != nil {
			if err := a.dev.Stop(); err != nil {
				a.logger.WithError(err).Warn("Failed to stop BLE device")
			}
		}
	})
}

var _ adapter.Adapter = (*Adapter)(nil)

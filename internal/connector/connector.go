// Package connector composes the scan sessions, the discovery registry and the
// telemetry stream over one adapter. A Connector is built explicitly and driven by a
// single tick loop, so every session and the stream are polled from one goroutine.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/discovery"
	"github.com/srg/gripsense/internal/frame"
	"github.com/srg/gripsense/internal/scan"
	"github.com/srg/gripsense/internal/telemetry"
	"github.com/srg/gripsense/pkg/config"
)

var (
	// ErrAdapterClosed is returned by every operation after Quit.
	ErrAdapterClosed = errors.New("adapter closed")
	// ErrPayloadTooLarge is returned when a write exceeds adapter.MaxPayload bytes.
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", adapter.MaxPayload)
	// ErrSendFailed is returned when the adapter rejects a write.
	ErrSendFailed = errors.New("send failed")
)

// AdapterError carries a message reported by the adapter's LastError.
type AdapterError struct {
	Msg string
}

func (e *AdapterError) Error() string {
	return "adapter: " + e.Msg
}

// Handlers receive the connector's events from the tick loop. Nil handlers are skipped.
type Handlers struct {
	Device         func(discovery.DeviceRecord)
	Service        func(discovery.ServiceRecord)
	Characteristic func(discovery.CharacteristicRecord)
	ScanFinished   func(discovery.Kind)
	// Error receives adapter errors, once per distinct message, and frame decode errors.
	Error func(error)
}

// Connector is the entry point for discovering a peripheral and streaming its readings.
type Connector struct {
	adapter  adapter.Adapter
	cfg      config.Config
	logger   *logrus.Logger
	registry *discovery.Registry

	devices         *scan.DeviceSession
	services        *scan.ServiceSession
	characteristics *scan.CharacteristicSession

	notifier *telemetry.Notifier
	stream   *telemetry.Stream
	monitor  adapter.ErrorMonitor

	mu       sync.RWMutex
	handlers Handlers
	closed   bool
	quitOnce sync.Once
}

// New builds a connector over a. The notifier exists before any listener subscribes.
func New(a adapter.Adapter, cfg config.Config, logger *logrus.Logger) *Connector {
	if logger == nil {
		logger = logrus.New()
	}

	reg := discovery.NewRegistry(discovery.Filter{
		DeviceName:         cfg.Profile.NameFilter,
		ServiceUUID:        cfg.Profile.ServiceFilter,
		CharacteristicUUID: cfg.Profile.CharacteristicFilter,
	}, logger)
	notifier := telemetry.NewNotifier()

	return &Connector{
		adapter:         a,
		cfg:             cfg,
		logger:          logger,
		registry:        reg,
		devices:         scan.NewDeviceSession(a, reg, logger),
		services:        scan.NewServiceSession(a, reg, logger),
		characteristics: scan.NewCharacteristicSession(a, reg, logger),
		notifier:        notifier,
		stream:          telemetry.NewStream(a, notifier, logger),
	}
}

// SetHandlers replaces the event handlers.
func (c *Connector) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Connector) currentHandlers() Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

func (c *Connector) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Registry returns the discovery registry shared by the scan sessions.
func (c *Connector) Registry() *discovery.Registry {
	return c.registry
}

// Profile returns the configured peripheral profile.
func (c *Connector) Profile() config.Profile {
	return c.cfg.Profile
}

// StartDeviceScan discards earlier devices and starts a device scan.
func (c *Connector) StartDeviceScan() error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.devices.Start(scan.Target{})
}

// StopDeviceScan stops the device scan.
func (c *Connector) StopDeviceScan() error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.devices.Stop()
}

// StartServiceScan discards earlier services and walks the services of deviceID.
func (c *Connector) StartServiceScan(deviceID string) error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.services.Start(scan.Target{DeviceID: deviceID})
}

// StopServiceScan abandons the service scan.
func (c *Connector) StopServiceScan() error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.services.Stop()
}

// StartCharacteristicScan discards earlier characteristics and walks one service.
func (c *Connector) StartCharacteristicScan(deviceID, serviceUUID string) error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.characteristics.Start(scan.Target{DeviceID: deviceID, ServiceUUID: serviceUUID})
}

// StopCharacteristicScan abandons the characteristic scan.
func (c *Connector) StopCharacteristicScan() error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.characteristics.Stop()
}

// ScanState reports the state of the session for kind.
func (c *Connector) ScanState(kind discovery.Kind) scan.State {
	switch kind {
	case discovery.KindService:
		return c.services.State()
	case discovery.KindCharacteristic:
		return c.characteristics.State()
	default:
		return c.devices.State()
	}
}

// Subscribe starts streaming readings from a characteristic. charUUID may also be a
// display name recorded by the last characteristic scan.
func (c *Connector) Subscribe(deviceID, serviceUUID, charUUID string) error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	if uuid, ok := c.registry.ResolveCharacteristic(charUUID); ok {
		charUUID = uuid
	}
	return c.stream.Start(telemetry.Target{
		DeviceID:           deviceID,
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: charUUID,
	})
}

// SubscribeProfile subscribes to the profile's fixed service and characteristic.
func (c *Connector) SubscribeProfile(deviceID string) error {
	return c.Subscribe(deviceID, c.cfg.Profile.ServiceUUID, c.cfg.Profile.CharacteristicUUID)
}

// Unsubscribe stops the stream.
func (c *Connector) Unsubscribe() error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	return c.stream.Stop()
}

// Subscribed reports whether a stream is active.
func (c *Connector) Subscribed() bool {
	return c.stream.Active()
}

// OnReading registers l for every changed reading and returns a func that removes it.
func (c *Connector) OnReading(l telemetry.Listener) (cancel func()) {
	return c.notifier.Subscribe(l)
}

// LastReading returns the most recent reading of the active stream.
func (c *Connector) LastReading() (frame.SensorReading, bool) {
	return c.notifier.Last()
}

// Write sends payload to a characteristic and waits for the adapter's answer.
func (c *Connector) Write(deviceID, serviceUUID, charUUID string, payload []byte) error {
	if c.isClosed() {
		return ErrAdapterClosed
	}
	if len(payload) > adapter.MaxPayload {
		return fmt.Errorf("%w: got %d", ErrPayloadTooLarge, len(payload))
	}
	if uuid, ok := c.registry.ResolveCharacteristic(charUUID); ok {
		charUUID = uuid
	}

	ok := c.adapter.SendData(adapter.RawFrame{
		Data:               payload,
		DeviceID:           deviceID,
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: charUUID,
	}, true)
	if !ok {
		if msg := c.adapter.LastError(); msg != "" {
			return fmt.Errorf("%w: %s", ErrSendFailed, msg)
		}
		return ErrSendFailed
	}

	c.logger.WithFields(logrus.Fields{
		"device":         deviceID,
		"characteristic": charUUID,
		"bytes":          len(payload),
	}).Debug("Payload written")
	return nil
}

// Tick polls every running session, the stream and the adapter's error once. Events
// are delivered to the handlers in the order the adapter produced them.
func (c *Connector) Tick() {
	if c.isClosed() {
		return
	}
	h := c.currentHandlers()

	for ev := range c.devices.Poll() {
		dispatch(ev, h.Device, h.ScanFinished)
	}
	for ev := range c.services.Poll() {
		dispatch(ev, h.Service, h.ScanFinished)
	}
	for ev := range c.characteristics.Poll() {
		dispatch(ev, h.Characteristic, h.ScanFinished)
	}

	for _, err := range c.stream.Poll() {
		if err != nil && h.Error != nil {
			h.Error(err)
		}
	}

	if msg, changed := c.monitor.Check(c.adapter); changed {
		c.logger.WithField("error", msg).Error("Adapter reported an error")
		if h.Error != nil {
			h.Error(&AdapterError{Msg: msg})
		}
	}
}

func dispatch[R any](ev scan.Event[R], onRecord func(R), onFinished func(discovery.Kind)) {
	switch ev.Type {
	case scan.EventAvailable:
		if onRecord != nil {
			onRecord(ev.Record)
		}
	case scan.EventFinished:
		if onFinished != nil {
			onFinished(ev.Kind)
		}
	}
}

// Run ticks once per PollInterval until ctx is done or the connector quits.
func (c *Connector) Run(ctx context.Context) error {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.Tick()
		if c.isClosed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Quit stops every scan and the stream, then shuts the adapter down. Only the first
// call reaches the adapter; afterwards every operation returns ErrAdapterClosed.
func (c *Connector) Quit() {
	c.quitOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.devices.State() == scan.Scanning {
			_ = c.devices.Stop()
		}
		if c.services.State() == scan.Scanning {
			_ = c.services.Stop()
		}
		if c.characteristics.State() == scan.Scanning {
			_ = c.characteristics.Stop()
		}
		if c.stream.Active() {
			_ = c.stream.Stop()
		}

		c.adapter.Quit()
		c.logger.Debug("Connector closed")
	})
}

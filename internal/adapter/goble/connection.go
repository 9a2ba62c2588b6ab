package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gripsense/internal/adapter"
)

var userDescriptionUUID = ble.UUID16(0x2901)

// client returns the cached connection to id, dialing it when needed.
func (a *Adapter) client(ctx context.Context, id string) (ble.Client, error) {
	a.connMu.Lock()
	c, ok := a.clients[id]
	a.connMu.Unlock()
	if ok {
		return c, nil
	}

	dev, err := a.device()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	defer cancel()

	a.logger.WithField("device", id).Debug("Dialing BLE device...")
	c, err = dev.Dial(dialCtx, ble.NewAddr(id))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device %q: %w", id, NormalizeError(err))
	}

	a.connMu.Lock()
	if a.closed() {
		a.connMu.Unlock()
		_ = c.CancelConnection()
		return nil, ErrAdapterClosed
	}
	if existing, raced := a.clients[id]; raced {
		a.connMu.Unlock()
		_ = c.CancelConnection()
		return existing, nil
	}
	a.clients[id] = c
	a.connMu.Unlock()

	a.logger.WithField("device", id).Info("BLE device connected")
	a.group.Go("ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-c.Disconnected():
			a.forget(id, c)
			a.fail("connection", fmt.Errorf("%w: %s", ErrNotConnected, id))
			a.logger.WithField("device", id).Warn("BLE device disconnected")
		case <-ctx.Done():
		}
	})
	return c, nil
}

// forget drops everything cached for a connection that went away.
func (a *Adapter) forget(id string, c ble.Client) {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.clients[id] != c {
		return
	}
	delete(a.clients, id)
	delete(a.profiles, id)
	for k := range a.discovered {
		if k.device == id {
			delete(a.discovered, k)
		}
	}
	for k := range a.subscribed {
		if k.device == id {
			delete(a.subscribed, k)
		}
	}
}

// ScanServices discovers the primary services of deviceID, connecting first if needed.
func (a *Adapter) ScanServices(deviceID string) {
	gen := a.services.restart()
	if a.closed() {
		return
	}

	a.group.Go("ble-service-scan", func(ctx context.Context) {
		svcs, err := a.discoverServices(ctx, deviceID)
		if err != nil {
			a.fail("service scan", err)
		}
		for _, s := range svcs {
			if a.services.push(gen, result[adapter.Service]{status: adapter.Available, value: adapter.Service{UUID: formatUUID(s.UUID)}}) {
				a.logger.Warn("Service queue full, dropped oldest result")
			}
		}
		a.services.push(gen, result[adapter.Service]{status: adapter.Finished})
	})
}

func (a *Adapter) discoverServices(ctx context.Context, deviceID string) ([]*ble.Service, error) {
	c, err := a.client(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	svcs, err := c.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	byUUID := make(map[string]*ble.Service, len(svcs))
	for _, s := range svcs {
		byUUID[adapter.NormalizeUUID(s.UUID.String())] = s
	}

	a.connMu.Lock()
	a.profiles[deviceID] = byUUID
	a.connMu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"device":   deviceID,
		"services": len(svcs),
	}).Debug("Services discovered")
	return svcs, nil
}

// service returns a discovered service, running discovery once when the device has
// not been walked yet.
func (a *Adapter) service(ctx context.Context, deviceID, serviceUUID string) (ble.Client, *ble.Service, error) {
	c, err := a.client(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}

	key := adapter.NormalizeUUID(serviceUUID)
	a.connMu.Lock()
	svc, ok := a.profiles[deviceID][key]
	_, walked := a.profiles[deviceID]
	a.connMu.Unlock()
	if ok {
		return c, svc, nil
	}
	if !walked {
		if _, err := a.discoverServices(ctx, deviceID); err != nil {
			return nil, nil, err
		}
		a.connMu.Lock()
		svc, ok = a.profiles[deviceID][key]
		a.connMu.Unlock()
		if ok {
			return c, svc, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s on %s", ErrUnknownService, serviceUUID, deviceID)
}

// ScanCharacteristics discovers the characteristics of one service together with
// their user descriptions.
func (a *Adapter) ScanCharacteristics(deviceID, serviceUUID string) {
	gen := a.chars.restart()
	if a.closed() {
		return
	}

	a.group.Go("ble-characteristic-scan", func(ctx context.Context) {
		chars, err := a.discoverCharacteristics(ctx, deviceID, serviceUUID)
		if err != nil {
			a.fail("characteristic scan", err)
		}
		for _, c := range chars {
			if a.chars.push(gen, result[adapter.Characteristic]{status: adapter.Available, value: c}) {
				a.logger.Warn("Characteristic queue full, dropped oldest result")
			}
		}
		a.chars.push(gen, result[adapter.Characteristic]{status: adapter.Finished})
	})
}

func (a *Adapter) discoverCharacteristics(ctx context.Context, deviceID, serviceUUID string) ([]adapter.Characteristic, error) {
	c, svc, err := a.service(ctx, deviceID, serviceUUID)
	if err != nil {
		return nil, err
	}

	chars, err := c.DiscoverCharacteristics(nil, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", NormalizeError(err))
	}

	out := make([]adapter.Characteristic, 0, len(chars))
	a.connMu.Lock()
	for _, ch := range chars {
		a.discovered[charKey{deviceID, adapter.NormalizeUUID(serviceUUID), adapter.NormalizeUUID(ch.UUID.String())}] = ch
	}
	a.connMu.Unlock()

	for _, ch := range chars {
		// Linux needs the CCCD discovered before Subscribe, so every descriptor is walked.
		descs, err := c.DiscoverDescriptors(nil, ch)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"char_uuid": ch.UUID.String(),
				"error":     err,
			}).Debug("Failed to discover descriptors")
		}
		out = append(out, adapter.Characteristic{
			UUID:            formatUUID(ch.UUID),
			UserDescription: a.userDescription(c, ch, descs),
		})
	}
	return out, nil
}

// userDescription reads the 0x2901 descriptor. Any failure, including a timeout,
// yields the placeholder text.
func (a *Adapter) userDescription(c ble.Client, ch *ble.Characteristic, descs []*ble.Descriptor) string {
	for _, d := range descs {
		if !d.UUID.Equal(userDescriptionUUID) {
			continue
		}
		if len(d.Value) > 0 {
			return string(d.Value)
		}
		// Darwin does not populate descriptor handles, so they cannot be read.
		if d.Handle == 0 || a.opts.DescriptorReadTimeout == 0 {
			return adapter.UserDescriptionPlaceholder
		}

		type readResult struct {
			data []byte
			err  error
		}
		resultCh := make(chan readResult, 1)
		go func() {
			data, err := c.ReadDescriptor(d)
			resultCh <- readResult{data: data, err: err}
		}()

		select {
		case r := <-resultCh:
			if r.err != nil || len(r.data) == 0 {
				return adapter.UserDescriptionPlaceholder
			}
			return string(r.data)
		case <-time.After(a.opts.DescriptorReadTimeout):
			a.logger.WithField("char_uuid", ch.UUID.String()).Debug("Timeout reading user description")
			return adapter.UserDescriptionPlaceholder
		}
	}
	return adapter.UserDescriptionPlaceholder
}

func (a *Adapter) characteristic(ctx context.Context, deviceID, serviceUUID, charUUID string) (ble.Client, *ble.Characteristic, error) {
	key := charKey{deviceID, adapter.NormalizeUUID(serviceUUID), adapter.NormalizeUUID(charUUID)}

	a.connMu.Lock()
	ch, ok := a.discovered[key]
	a.connMu.Unlock()
	if !ok {
		if _, err := a.discoverCharacteristics(ctx, deviceID, serviceUUID); err != nil {
			return nil, nil, err
		}
		a.connMu.Lock()
		ch, ok = a.discovered[key]
		a.connMu.Unlock()
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s in %s", ErrUnknownChar, charUUID, serviceUUID)
		}
	}

	c, err := a.client(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}
	return c, ch, nil
}

// SubscribeCharacteristic enables notifications on a characteristic. With block set
// it reports whether the subscription succeeded; otherwise it reports that the request
// was accepted and failures surface through LastError.
func (a *Adapter) SubscribeCharacteristic(deviceID, serviceUUID, characteristicUUID string, block bool) bool {
	if a.closed() {
		return false
	}

	subscribe := func(ctx context.Context) bool {
		if err := a.subscribe(ctx, deviceID, serviceUUID, characteristicUUID); err != nil {
			a.fail("subscribe", err)
			return false
		}
		return true
	}

	if block {
		return subscribe(a.group.Context())
	}
	a.group.Go("ble-subscribe", func(ctx context.Context) { subscribe(ctx) })
	return true
}

func (a *Adapter) subscribe(ctx context.Context, deviceID, serviceUUID, charUUID string) error {
	c, ch, err := a.characteristic(ctx, deviceID, serviceUUID, charUUID)
	if err != nil {
		return err
	}

	key := charKey{deviceID, adapter.NormalizeUUID(serviceUUID), adapter.NormalizeUUID(charUUID)}
	a.connMu.Lock()
	_, already := a.subscribed[key]
	a.connMu.Unlock()
	if already {
		return nil
	}

	handler := func(data []byte) {
		a.pushFrame(adapter.RawFrame{
			Data:               append([]byte(nil), data...),
			DeviceID:           deviceID,
			ServiceUUID:        serviceUUID,
			CharacteristicUUID: charUUID,
		})
	}
	if err := c.Subscribe(ch, false, handler); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", charUUID, NormalizeError(err))
	}

	a.connMu.Lock()
	a.subscribed[key] = struct{}{}
	a.connMu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"device":    deviceID,
		"char_uuid": charUUID,
	}).Info("Subscribed to notifications")
	return nil
}

func (a *Adapter) pushFrame(f adapter.RawFrame) {
	overwrites, err := a.frames.EnqueueM(f)
	if err != nil {
		a.fail("notification", fmt.Errorf("frame buffer: %w", err))
		return
	}
	if overwrites > 0 {
		a.logger.WithField("dropped", overwrites).Warn("Frame buffer full, dropped oldest frames")
	}
	select {
	case a.frameSignal <- struct{}{}:
	default:
	}
}

// PollData returns the oldest pending notification frame. With block set it waits
// until a frame arrives or the adapter quits.
func (a *Adapter) PollData(block bool) (adapter.RawFrame, bool) {
	for {
		if !a.frames.IsEmpty() {
			f, err := a.frames.Dequeue()
			if err == nil {
				return f, true
			}
		}
		if !block {
			return adapter.RawFrame{}, false
		}
		select {
		case <-a.frameSignal:
		case <-a.done:
			return adapter.RawFrame{}, false
		}
	}
}

// SendData writes a frame to its characteristic. With block set the write waits for
// the peripheral's response and the result reflects it; otherwise a write without
// response is queued and failures surface through LastError.
func (a *Adapter) SendData(f adapter.RawFrame, block bool) bool {
	if a.closed() {
		return false
	}
	if len(f.Data) > adapter.MaxPayload {
		a.fail("send", fmt.Errorf("payload of %d bytes exceeds %d", len(f.Data), adapter.MaxPayload))
		return false
	}

	send := func(ctx context.Context) bool {
		c, ch, err := a.characteristic(ctx, f.DeviceID, f.ServiceUUID, f.CharacteristicUUID)
		if err != nil {
			a.fail("send", err)
			return false
		}
		if err := c.WriteCharacteristic(ch, f.Data, !block); err != nil {
			a.fail("send", fmt.Errorf("failed to write %s: %w", f.CharacteristicUUID, NormalizeError(err)))
			return false
		}
		return true
	}

	if block {
		return send(a.group.Context())
	}
	a.group.Go("ble-send", func(ctx context.Context) { send(ctx) })
	return true
}

// Package scan drives the device, service and characteristic discovery loops.
//
// A Session is a small state machine (Idle -> Scanning -> Finished) over one adapter
// scan kind. Results are drained with Poll, which never blocks on the adapter and
// yields only the records the discovery registry decides to surface.
package scan

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/discovery"
)

// State is a session's lifecycle state.
type State int

const (
	Idle State = iota
	Scanning
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventType tells an Available record apart from the terminal Finished signal.
type EventType int

const (
	EventAvailable EventType = iota
	EventFinished
)

// Event is one discovery result. Record is the zero value for EventFinished.
type Event[R any] struct {
	Type   EventType
	Kind   discovery.Kind
	Record R
}

// Session runs one scan kind. Starting a session that is already scanning fails
// with ErrAlreadyScanning; callers stop it first.
type Session[U, R any] struct {
	mu      sync.Mutex
	kind    discovery.Kind
	state   State
	source  Source[U]
	observe func(U) (R, bool)
	reset   func()
	logger  *logrus.Logger
}

// DeviceSession surfaces devices as they become qualifying.
type DeviceSession = Session[adapter.DeviceUpdate, discovery.DeviceRecord]

// ServiceSession surfaces each new service once.
type ServiceSession = Session[adapter.Service, discovery.ServiceRecord]

// CharacteristicSession surfaces each new characteristic once.
type CharacteristicSession = Session[adapter.Characteristic, discovery.CharacteristicRecord]

// NewDeviceSession creates a device scan over a, recording into reg.
func NewDeviceSession(a adapter.Adapter, reg *discovery.Registry, logger *logrus.Logger) *DeviceSession {
	return newSession(discovery.KindDevice, deviceSource{a: a}, reg.ObserveDevice, reg, logger)
}

// NewServiceSession creates a service scan over a, recording into reg.
func NewServiceSession(a adapter.Adapter, reg *discovery.Registry, logger *logrus.Logger) *ServiceSession {
	return newSession(discovery.KindService, serviceSource{a: a},
		func(s adapter.Service) (discovery.ServiceRecord, bool) {
			return reg.ObserveService(s.UUID)
		}, reg, logger)
}

// NewCharacteristicSession creates a characteristic scan over a, recording into reg.
func NewCharacteristicSession(a adapter.Adapter, reg *discovery.Registry, logger *logrus.Logger) *CharacteristicSession {
	return newSession(discovery.KindCharacteristic, characteristicSource{a: a},
		func(c adapter.Characteristic) (discovery.CharacteristicRecord, bool) {
			return reg.ObserveCharacteristic(c.UUID, c.UserDescription)
		}, reg, logger)
}

func newSession[U, R any](kind discovery.Kind, src Source[U], observe func(U) (R, bool), reg *discovery.Registry, logger *logrus.Logger) *Session[U, R] {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session[U, R]{
		kind:    kind,
		state:   Idle,
		source:  src,
		observe: observe,
		reset:   func() { reg.Reset(kind) },
		logger:  logger,
	}
}

// Kind returns what the session discovers.
func (s *Session[U, R]) Kind() discovery.Kind {
	return s.kind
}

// State returns the current state.
func (s *Session[U, R]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start clears the registry for this kind and starts the adapter scan.
func (s *Session[U, R]) Start(t Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Scanning {
		return &StateError{Code: AlreadyScanning, Msg: s.kind.String() + " scan"}
	}

	// a rejected target keeps the previous records
	if err := s.source.Begin(t); err != nil {
		return err
	}
	s.reset()
	s.state = Scanning

	s.logger.WithFields(logrus.Fields{
		"kind":    s.kind,
		"device":  t.DeviceID,
		"service": t.ServiceUUID,
	}).Info("Scan started")
	return nil
}

// Stop cancels a running scan and returns the session to Idle.
func (s *Session[U, R]) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Scanning {
		return &StateError{Code: NotScanning, Msg: s.kind.String() + " scan"}
	}
	s.source.End()
	s.state = Idle

	s.logger.WithField("kind", s.kind).Info("Scan stopped")
	return nil
}

// Poll drains every result the adapter has ready right now. It yields an
// EventAvailable for each surfaced record and, when the adapter reports completion,
// a final EventFinished after which the session is Finished. Outside Scanning the
// sequence is empty.
//
// Poll may run concurrently with Stop: the state is re-checked before every adapter
// call, so the sequence ends as soon as the scan is stopped.
func (s *Session[U, R]) Poll() iter.Seq[Event[R]] {
	return func(yield func(Event[R]) bool) {
		for {
			ev, ok, more := s.step()
			if ok && !yield(ev) {
				return
			}
			if !more {
				return
			}
		}
	}
}

// step polls the adapter once. ok reports whether ev should be yielded; more reports
// whether the drain should continue.
func (s *Session[U, R]) step() (ev Event[R], ok bool, more bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Scanning {
		return ev, false, false
	}

	status, update := s.source.Next(false)
	switch status {
	case adapter.Available:
		rec, surfaced := s.observe(update)
		if !surfaced {
			return ev, false, true
		}
		return Event[R]{Type: EventAvailable, Kind: s.kind, Record: rec}, true, true
	case adapter.Finished:
		s.state = Finished
		s.logger.WithField("kind", s.kind).Info("Scan finished")
		return Event[R]{Type: EventFinished, Kind: s.kind}, true, false
	default:
		return ev, false, false
	}
}

// Run polls s once per interval, passing every event to fn, until the scan finishes,
// is stopped, or ctx is done. A scan still running when Run returns is stopped, so the
// adapter's scan is released on every exit path.
func Run[U, R any](ctx context.Context, s *Session[U, R], interval time.Duration, fn func(Event[R])) (err error) {
	defer func() {
		if s.State() == Scanning {
			if stopErr := s.Stop(); stopErr != nil {
				s.logger.WithError(stopErr).Debug("Scan already stopped on exit")
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for ev := range s.Poll() {
			fn(ev)
		}
		if s.State() != Scanning {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

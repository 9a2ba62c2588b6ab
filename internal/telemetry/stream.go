// Package telemetry turns notification frames from a subscribed characteristic into
// decoded sensor readings and dispatches them to listeners when the value changes.
package telemetry

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/frame"
)

// Target is the characteristic a stream subscribes to.
type Target struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%s", t.DeviceID, t.ServiceUUID, t.CharacteristicUUID)
}

func (t Target) matches(f adapter.RawFrame) bool {
	return f.DeviceID == t.DeviceID &&
		adapter.SameUUID(f.ServiceUUID, t.ServiceUUID) &&
		adapter.SameUUID(f.CharacteristicUUID, t.CharacteristicUUID)
}

// Stream is one characteristic subscription.
type Stream struct {
	mu       sync.Mutex
	adapter  adapter.Adapter
	notifier *Notifier
	logger   *logrus.Logger

	active bool
	target Target
}

// NewStream creates an inactive stream that dispatches through n.
func NewStream(a adapter.Adapter, n *Notifier, logger *logrus.Logger) *Stream {
	if logger == nil {
		logger = logrus.New()
	}
	if n == nil {
		n = NewNotifier()
	}
	return &Stream{adapter: a, notifier: n, logger: logger}
}

// Notifier returns the notifier readings are dispatched through.
func (s *Stream) Notifier() *Notifier {
	return s.notifier
}

// Active reports whether the stream is subscribed.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Target returns the subscribed characteristic; it is the zero value when inactive.
func (s *Stream) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Start subscribes to t. When the adapter rejects the subscription the stream stays
// inactive and ErrSubscribeFailed is returned.
func (s *Stream) Start(t Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return &StateError{Code: AlreadySubscribed, Msg: s.target.String()}
	}

	if !s.adapter.SubscribeCharacteristic(t.DeviceID, t.ServiceUUID, t.CharacteristicUUID, true) {
		s.logger.WithFields(logrus.Fields{
			"device":         t.DeviceID,
			"service":        t.ServiceUUID,
			"characteristic": t.CharacteristicUUID,
		}).Warn("Subscription rejected by adapter")
		return fmt.Errorf("%w: %s", ErrSubscribeFailed, t)
	}

	s.active = true
	s.target = t
	s.notifier.Reset()

	s.logger.WithFields(logrus.Fields{
		"device":         t.DeviceID,
		"service":        t.ServiceUUID,
		"characteristic": t.CharacteristicUUID,
	}).Info("Subscribed")
	return nil
}

// Stop ends the subscription and forgets the last reading. The adapter keeps the
// notification enabled; frames arriving afterwards are not polled.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return &StateError{Code: NotSubscribed}
	}
	s.active = false
	s.target = Target{}
	s.notifier.Reset()

	s.logger.Info("Unsubscribed")
	return nil
}

// Poll drains the frames the adapter has ready, in arrival order. Frames for another
// characteristic are skipped. A frame that fails to decode yields a *FrameDecodeError
// and the drain continues. A reading is yielded only when it changed, after the
// notifier has dispatched it. Outside an active subscription the sequence is empty.
func (s *Stream) Poll() iter.Seq2[frame.SensorReading, error] {
	return func(yield func(frame.SensorReading, error) bool) {
		for {
			r, emit, more, err := s.step()
			if emit && !yield(r, err) {
				return
			}
			if !more {
				return
			}
		}
	}
}

func (s *Stream) step() (r frame.SensorReading, emit, more bool, err error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return r, false, false, nil
	}
	target := s.target
	raw, ok := s.adapter.PollData(false)
	s.mu.Unlock()

	if !ok {
		return r, false, false, nil
	}
	if !target.matches(raw) {
		s.logger.WithFields(logrus.Fields{
			"device":         raw.DeviceID,
			"characteristic": raw.CharacteristicUUID,
		}).Debug("Skipping frame for another characteristic")
		return r, false, true, nil
	}

	r, err = frame.Decode(raw.Data)
	if err != nil {
		s.logger.WithError(err).WithField("len", len(raw.Data)).Warn("Dropping malformed frame")
		return r, true, true, &FrameDecodeError{DeviceID: raw.DeviceID, Err: err}
	}

	// Stop may have run since the frame was polled; its reset must win.
	s.mu.Lock()
	if !s.active || s.target != target {
		s.mu.Unlock()
		return r, false, false, nil
	}
	targets, changed := s.notifier.record(r)
	s.mu.Unlock()

	if !changed {
		return r, false, true, nil
	}
	dispatch(targets, r)
	return r, true, true, nil
}

// Run polls the stream once per interval until ctx is done or the stream is stopped.
// Decode errors are passed to onErr when it is not nil; changed readings reach the
// notifier's listeners.
func (s *Stream) Run(ctx context.Context, interval time.Duration, onErr func(error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, err := range s.Poll() {
			if err != nil && onErr != nil {
				onErr(err)
			}
		}
		if !s.Active() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

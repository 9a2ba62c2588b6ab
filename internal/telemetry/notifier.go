package telemetry

import (
	"sync"

	"github.com/srg/gripsense/internal/frame"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Listener receives every changed reading.
type Listener func(frame.SensorReading)

// Notifier holds the last reading and dispatches a new one to its listeners only when
// it differs from the last. Listeners are called in subscription order, outside the
// notifier's lock, so a listener may cancel itself or subscribe another.
type Notifier struct {
	mu        sync.Mutex
	last      *frame.SensorReading
	nextID    uint64
	listeners *orderedmap.OrderedMap[uint64, Listener]
}

// NewNotifier creates a notifier with no listeners and no reading.
func NewNotifier() *Notifier {
	return &Notifier{listeners: orderedmap.New[uint64, Listener]()}
}

// Subscribe registers l and returns a func that removes it. Calling the returned func
// more than once is harmless.
func (n *Notifier) Subscribe(l Listener) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.listeners.Set(id, l)

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.listeners.Delete(id)
	}
}

// Offer records r and dispatches it when it differs from the last reading. It reports
// whether listeners were notified.
func (n *Notifier) Offer(r frame.SensorReading) bool {
	targets, changed := n.record(r)
	if !changed {
		return false
	}
	dispatch(targets, r)
	return true
}

// record stores r when it differs from the last reading and returns the listeners to
// notify. Dispatch is left to the caller, outside any lock.
func (n *Notifier) record(r frame.SensorReading) ([]Listener, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.last != nil && *n.last == r {
		return nil, false
	}
	n.last = &r

	targets := make([]Listener, 0, n.listeners.Len())
	for pair := n.listeners.Oldest(); pair != nil; pair = pair.Next() {
		targets = append(targets, pair.Value)
	}
	return targets, true
}

func dispatch(targets []Listener, r frame.SensorReading) {
	for _, l := range targets {
		l(r)
	}
}

// Last returns the most recent reading, if any.
func (n *Notifier) Last() (frame.SensorReading, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return frame.SensorReading{}, false
	}
	return *n.last, true
}

// Reset forgets the last reading; the next offer always dispatches.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = nil
}

// Listeners returns how many listeners are registered.
func (n *Notifier) Listeners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listeners.Len()
}

package adapter

import "sync"

// ErrorMonitor surfaces the adapter's last error message only when it changes.
type ErrorMonitor struct {
	mu   sync.Mutex
	last string
}

// Check reads the adapter's last error and returns it with true when it differs from
// the previously seen message. An empty message is never reported.
func (m *ErrorMonitor) Check(a Adapter) (string, bool) {
	msg := a.LastError()

	m.mu.Lock()
	defer m.mu.Unlock()

	if msg == m.last {
		return "", false
	}
	m.last = msg
	return msg, msg != ""
}

// Last returns the most recently seen message.
func (m *ErrorMonitor) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

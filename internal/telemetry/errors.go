package telemetry

import (
	"errors"
	"fmt"
)

// StateCode is the kind of misuse reported by a StateError.
type StateCode string

const (
	AlreadySubscribed StateCode = "already subscribed"
	NotSubscribed     StateCode = "not subscribed"
)

// StateError reports a call that is not valid in the stream's current state.
type StateError struct {
	Code StateCode
	Msg  string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is allows errors.Is to compare StateError values by Code.
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	return ok && e.Code == t.Code
}

var (
	ErrAlreadySubscribed = &StateError{Code: AlreadySubscribed}
	ErrNotSubscribed     = &StateError{Code: NotSubscribed}

	// ErrSubscribeFailed is returned when the adapter rejects a subscription.
	ErrSubscribeFailed = errors.New("subscribe failed")
)

// FrameDecodeError reports a notification payload that could not be decoded. The
// stream keeps running after it.
type FrameDecodeError struct {
	DeviceID string
	Err      error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("decode frame from %s: %v", e.DeviceID, e.Err)
}

func (e *FrameDecodeError) Unwrap() error {
	return e.Err
}

package scan

import (
	"errors"
	"fmt"
)

// StateCode is the kind of misuse reported by a StateError.
type StateCode string

const (
	AlreadyScanning StateCode = "already scanning"
	NotScanning     StateCode = "not scanning"
)

// StateError reports a call that is not valid in the session's current state.
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
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrAlreadyScanning = &StateError{Code: AlreadyScanning}
	ErrNotScanning     = &StateError{Code: NotScanning}

	// ErrIncompleteTarget is returned when a scan needs a device or service that was not given.
	ErrIncompleteTarget = errors.New("incomplete scan target")
)

package domain

import "errors"

var (
	// ErrInvalidArea is returned for a malformed or inconsistent bounding box.
	ErrInvalidArea = errors.New("invalid area")
	// ErrDuplicateConnection means a connection id was registered twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrUnknownConnection targets a connection that is not (or no longer) registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrStoreUnavailable wraps any failure of the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTransportPush is returned when a message cannot be written to a client.
	ErrTransportPush = errors.New("transport push failed")
	// ErrNotFound is returned for lookups of records that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for rejected REST payloads and query parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// InvalidAreaError carries the reason a subscribe-area request was rejected.
type InvalidAreaError struct {
	Reason string
}

func (e *InvalidAreaError) Error() string {
	return "invalid area: " + e.Reason
}

func (e *InvalidAreaError) Unwrap() error {
	return ErrInvalidArea
}

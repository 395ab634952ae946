package models

import "errors"

// Error taxonomy for the pipeline core. Per-frame errors are recovered
// locally (frame dropped, session continues); session-level errors are fatal
// to that session only.
var (
	// ErrInvalidFrame marks malformed input, local to one frame.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrDetectionFailed marks batch-level inference failure or timeout.
	// The affected frame is dropped but the tracker still advances.
	ErrDetectionFailed = errors.New("detection failed")

	// ErrSessionTimeout is returned when a session's heartbeat expired and
	// the session was force-closed.
	ErrSessionTimeout = errors.New("session heartbeat timeout")

	// ErrDuplicateSession is returned when opening a session id that is
	// still active and the reconnect policy refuses the replacement.
	ErrDuplicateSession = errors.New("duplicate session id")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrModelUnavailable is returned by a detector whose underlying model
	// cannot run.
	ErrModelUnavailable = errors.New("model unavailable")
)

package schema

import "errors"

var (
	// ErrInvalidFrame indicates a frame that is not a JSON object.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrUnknownMessage indicates an unrecognized message type.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrMissingField indicates a message missing a required field for its kind.
	ErrMissingField = errors.New("missing required field")
	// ErrSessionNotFound indicates a session key with no registered conversation.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotPaired indicates sending is blocked because the companion file is missing.
	ErrNotPaired = errors.New("notebook is not paired")
	// ErrEmptyContent indicates an empty prompt.
	ErrEmptyContent = errors.New("empty content")
	// ErrConnClosed indicates the connection manager has been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrNotConnected indicates no live transport connection.
	ErrNotConnected = errors.New("not connected")
)

package session

import "errors"

var (
	// ErrDisconnected is returned for operations issued after the connection went away
	ErrDisconnected = errors.New("session handler already disconnected")
)

package relay

import "errors"

var (
	ErrRelayAlreadyRunning = errors.New("relay is already running")
	ErrRelayNotRunning     = errors.New("relay is not running")
	ErrNoProjectCode       = errors.New("event has no project code")
)

package room

import "errors"

// ARCHITECTURAL DISCOVERY: Both errors travel back to the client through the
// ack channel, never as a panic across the connection boundary
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrRoomNotFound    = errors.New("room not found")
)

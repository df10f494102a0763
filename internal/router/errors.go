package router

import "errors"

var (
	ErrInvalidFrame      = errors.New("frame is not a JSON object with an event name")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Error codes carried in ack frames
const (
	CodeProjectNotFound = "project_not_found"
	CodeRoomNotFound    = "room_not_found"
	CodeInvalidPayload  = "invalid_payload"
	CodeUnknownEvent    = "unknown_event"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)

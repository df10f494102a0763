package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and stable error codes on the wire
var (
	ErrInvalidProjectCode = errors.New("project code must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidIdentity    = errors.New("identity id must be 1-100 characters and name at most 200")
	ErrInvalidPayload     = errors.New("invalid event payload")
	ErrUnknownMutation    = errors.New("unknown mutation kind")
	ErrPayloadTooLarge    = errors.New("event payload exceeds 64KB limit")
)

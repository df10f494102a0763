package router

import (
	"encoding/json"
	"errors"

	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// Frame is one inbound client message
type Frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// AckError is the error half of an acknowledgment
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack answers a frame that carried an ack id. Error is null on success.
type Ack struct {
	ID     int64     `json:"ack"`
	Error  *AckError `json:"error"`
	Result any       `json:"result,omitempty"`
}

// ParseFrame decodes the envelope; the data member is left raw for the event decoder
func ParseFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		return nil, ErrInvalidFrame
	}
	return &frame, nil
}

// ErrorCode maps an operation error to its wire code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrProjectNotFound):
		return CodeProjectNotFound
	case errors.Is(err, room.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrRateLimitExceeded):
		return CodeRateLimited
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, types.ErrUnknownMutation):
		return CodeUnknownEvent
	case errors.Is(err, ErrInvalidFrame),
		errors.Is(err, types.ErrInvalidPayload),
		errors.Is(err, types.ErrInvalidProjectCode),
		errors.Is(err, types.ErrInvalidIdentity),
		errors.Is(err, types.ErrPayloadTooLarge):
		return CodeInvalidPayload
	default:
		return CodeInternal
	}
}

func newAck(id int64, result any, err error) Ack {
	if err != nil {
		return Ack{ID: id, Error: &AckError{Code: ErrorCode(err), Message: err.Error()}}
	}
	return Ack{ID: id, Result: result}
}

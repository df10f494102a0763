package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/metrics"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// Router decodes inbound frames, dispatches them to the connection's session
// handler and answers with an ack when the client asked for one.
// ARCHITECTURAL DISCOVERY: Pure dispatch logic, no membership state; the session
// handler owns every room interaction
type Router struct {
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

// NewRouter creates a router allowing ratePerMinute mutation intents per connection
func NewRouter(ratePerMinute int, logger *zap.Logger) *Router {
	return &Router{
		rateLimiter: NewRateLimiter(ratePerMinute),
		logger:      logger.Named("router"),
	}
}

// Route handles one raw frame from conn. The returned error has already been
// acknowledged (when requested) and is only for the caller's bookkeeping.
func (r *Router) Route(ctx context.Context, handler interfaces.SessionHandler, conn interfaces.Connection, raw []byte) error {
	frame, err := ParseFrame(raw)
	if err != nil {
		r.reject(conn, nil, "", err)
		return err
	}

	result, err := r.dispatch(ctx, handler, conn, frame)
	if err != nil {
		r.reject(conn, frame.Ack, frame.Event, err)
		return err
	}

	if frame.Ack != nil {
		r.ack(conn, newAck(*frame.Ack, result, nil))
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, handler interfaces.SessionHandler, conn interfaces.Connection, frame *Frame) (any, error) {
	switch {
	case frame.Event == types.EventJoin:
		var req types.JoinRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return nil, err
		}
		return handler.Join(ctx, req)

	case frame.Event == types.EventLeave:
		var req types.LeaveRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return nil, err
		}
		return nil, handler.Leave(ctx, req.ProjectCode)

	case types.IsMutationEvent(frame.Event):
		if !r.rateLimiter.Allow(conn.ID()) {
			return nil, ErrRateLimitExceeded
		}
		mutation, err := types.DecodeMutation(frame.Event, frame.Data)
		if err != nil {
			return nil, err
		}
		return nil, handler.Mutate(ctx, mutation)

	default:
		// "disconnect" is raised by the transport only, clients cannot send it
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) > types.MaxPayloadBytes {
		return types.ErrPayloadTooLarge
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidPayload, err)
	}
	return nil
}

func (r *Router) reject(conn interfaces.Connection, ackID *int64, event string, err error) {
	code := ErrorCode(err)
	metrics.FramesRejected.WithLabelValues(code).Inc()

	log := r.logger.Debug
	if code == CodeInternal {
		log = r.logger.Warn
	}
	log("frame rejected",
		zap.String("conn", conn.ID()),
		zap.String("event", event),
		zap.String("code", code),
		zap.Error(err))

	if ackID != nil {
		r.ack(conn, newAck(*ackID, nil, err))
	}
}

func (r *Router) ack(conn interfaces.Connection, ack Ack) {
	if err := conn.Emit(types.EventAck, ack); err != nil {
		r.logger.Debug("ack dropped", zap.String("conn", conn.ID()), zap.Error(err))
	}
}

// Forget releases per-connection state once the connection is gone
func (r *Router) Forget(conn interfaces.Connection) {
	r.rateLimiter.Forget(conn.ID())
}

// Run periodically drops stale rate limiter state until ctx is done
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.rateLimiter.Cleanup()
		}
	}
}

package interfaces

import (
	"context"

	"github.com/rdxz2/t3dapi/pkg/types"
)

// SessionHandler turns the inbound operations of one connection into room operations
// ARCHITECTURAL DISCOVERY: Operations return a result or error instead of taking
// callbacks; the transport decides how to acknowledge them
type SessionHandler interface {
	// Join enters the project room, creating it on first use, and returns the
	// members present after the join in join order
	Join(ctx context.Context, req types.JoinRequest) ([]types.Identity, error)

	// Leave exits the named room; leaving a room the connection is not in is a no-op
	Leave(ctx context.Context, projectCode string) error

	// Mutate relays a validated mutation intent to the room
	Mutate(ctx context.Context, mutation *types.Mutation) error

	// Disconnect removes the connection from every room it is in
	Disconnect(ctx context.Context, reason string)
}

package room

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/metrics"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

type member struct {
	conn     interfaces.Connection
	identity types.Identity
}

// Room is the live membership of one project.
// Membership changes that can empty the room must go through the Directory so
// an empty room is never left reachable.
type Room struct {
	code   string
	logger *zap.Logger

	mu      sync.RWMutex
	order   []string // connection ids in join order
	members map[string]*member
}

func newRoom(code string, logger *zap.Logger) *Room {
	return &Room{
		code:    code,
		logger:  logger.With(zap.String("project", code)),
		members: make(map[string]*member),
	}
}

// Code returns the project code the room was created for
func (r *Room) Code() string {
	return r.code
}

// AddMember upserts the connection's identity. A re-join keeps the original
// position and only replaces the identity. Reports whether the entry is new.
func (r *Room) AddMember(conn interfaces.Connection, identity types.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if m, ok := r.members[id]; ok {
		m.identity = identity
		m.conn = conn
		return false
	}

	r.members[id] = &member{conn: conn, identity: identity}
	r.order = append(r.order, id)
	return true
}

// RemoveMember drops the connection's entry and returns its identity, or nil
// when the connection was not a member
func (r *Room) RemoveMember(conn interfaces.Connection) *types.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	m, ok := r.members[id]
	if !ok {
		return nil
	}

	delete(r.members, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	identity := m.identity
	return &identity
}

// Members lists identities in join order
func (r *Room) Members() []types.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]types.Identity, 0, len(r.order))
	for _, id := range r.order {
		identities = append(identities, r.members[id].identity)
	}
	return identities
}

// Len returns the number of members
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Has reports whether the connection is a member
func (r *Room) Has(conn interfaces.Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[conn.ID()]
	return ok
}

// Broadcast delivers the event to every member, skipping sender when
// excludeSender is set. Returns the number of successful deliveries.
// TECHNICAL DISCOVERY: Recipients are snapshotted under the read lock and
// emitted outside it, so a slow connection never blocks membership changes
func (r *Room) Broadcast(event types.Event, sender interfaces.Connection, excludeSender bool) int {
	skip := ""
	if excludeSender && sender != nil {
		skip = sender.ID()
	}

	delivered := r.emit(event, r.recipients(skip))
	metrics.EventsBroadcast.WithLabelValues(event.Name).Inc()
	return delivered
}

// Deliver sends an event that originated elsewhere to all local members
func (r *Room) Deliver(event types.Event) int {
	return r.emit(event, r.recipients(""))
}

func (r *Room) recipients(skip string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.order))
	for _, id := range r.order {
		if id == skip {
			continue
		}
		conns = append(conns, r.members[id].conn)
	}
	return conns
}

// FUNCTIONAL DISCOVERY: A failed delivery means the connection is going away
// and will be cleaned up by its own disconnect, so it is only logged
func (r *Room) emit(event types.Event, conns []interfaces.Connection) int {
	delivered := 0
	for _, conn := range conns {
		if err := conn.Emit(event.Name, event.Payload); err != nil {
			metrics.DeliveryFailures.Inc()
			r.logger.Debug("dropped event",
				zap.String("event", event.Name),
				zap.String("conn", conn.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

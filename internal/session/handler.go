package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// Publisher forwards room events to other broker instances
type Publisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// Config holds the broker policy shared by every handler
type Config struct {
	// ExcludeSender skips the originating connection when relaying mutations
	ExcludeSender bool
}

// Factory builds one Handler per connection around the shared Directory
type Factory struct {
	directory *room.Directory
	publisher Publisher
	config    Config
	logger    *zap.Logger
}

// NewFactory creates a handler factory. publisher may be nil.
func NewFactory(directory *room.Directory, publisher Publisher, config Config, logger *zap.Logger) *Factory {
	return &Factory{
		directory: directory,
		publisher: publisher,
		config:    config,
		logger:    logger.Named("session"),
	}
}

// New binds a handler to conn
func (f *Factory) New(conn interfaces.Connection) *Handler {
	return &Handler{
		conn:      conn,
		directory: f.directory,
		publisher: f.publisher,
		config:    f.config,
		logger:    f.logger.With(zap.String("conn", conn.ID())),
	}
}

// Handler adapts the inbound operations of one connection to the Directory.
// ARCHITECTURAL DISCOVERY: Operations of one connection are serialized by the
// handler; different connections run concurrently against the shared Directory
type Handler struct {
	conn      interfaces.Connection
	directory *room.Directory
	publisher Publisher
	config    Config
	logger    *zap.Logger

	mu           sync.Mutex
	disconnected bool
}

var _ interfaces.SessionHandler = (*Handler)(nil)

// Join enters the project room and announces the member to the others
func (h *Handler) Join(ctx context.Context, req types.JoinRequest) ([]types.Identity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return nil, ErrDisconnected
	}

	identity := req.Identity()
	r, err := h.directory.Join(ctx, req.ProjectCode, h.conn, identity)
	if err != nil {
		h.logger.Debug("join rejected", zap.String("project", req.ProjectCode), zap.Error(err))
		return nil, err
	}

	h.broadcast(ctx, r, types.Event{Name: types.EventJoined, ProjectCode: r.Code(), Payload: identity}, true)
	h.logger.Info("joined", zap.String("project", r.Code()), zap.String("identity", identity.ID))
	return r.Members(), nil
}

// Leave exits the named room. Leaving a room the connection is not in is a no-op.
func (h *Handler) Leave(ctx context.Context, projectCode string) error {
	req := types.LeaveRequest{ProjectCode: projectCode}
	if err := req.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return ErrDisconnected
	}

	r, removed, err := h.directory.Leave(projectCode, h.conn)
	if err != nil {
		return err
	}
	if removed != nil {
		h.broadcast(ctx, r, types.Event{Name: types.EventLeaved, ProjectCode: r.Code(), Payload: *removed}, true)
		h.logger.Info("left", zap.String("project", r.Code()), zap.String("identity", removed.ID))
	}
	return nil
}

// Mutate relays a mutation intent to the room it names
func (h *Handler) Mutate(ctx context.Context, mutation *types.Mutation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return ErrDisconnected
	}

	r, err := h.directory.GetRoom(mutation.ProjectCode)
	if err != nil {
		return fmt.Errorf("%s: %w", mutation.Kind, err)
	}

	h.broadcast(ctx, r, mutation.Event(), h.config.ExcludeSender)
	return nil
}

// Disconnect removes the connection from all its rooms and tells the members
// left behind. Later calls do nothing.
func (h *Handler) Disconnect(ctx context.Context, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return
	}
	h.disconnected = true

	removals := h.directory.RemoveConnection(h.conn)
	for _, removal := range removals {
		// The connection is no longer a member so nothing needs excluding
		h.broadcast(ctx, removal.Room, types.Event{Name: types.EventLeaved, ProjectCode: removal.Room.Code(), Payload: removal.Identity}, false)
	}
	h.logger.Info("disconnected", zap.String("reason", reason), zap.Int("rooms", len(removals)))
}

func (h *Handler) broadcast(ctx context.Context, r *room.Room, event types.Event, excludeSender bool) {
	r.Broadcast(event, h.conn, excludeSender)

	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("relay publish failed", zap.String("event", event.Name), zap.Error(err))
	}
}

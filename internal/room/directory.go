package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rdxz2/t3dapi/internal/metrics"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// DefaultLookupTimeout bounds a single project lookup
const DefaultLookupTimeout = 5 * time.Second

// Removal is one membership dropped by RemoveConnection
type Removal struct {
	Room     *Room
	Identity types.Identity
}

// Stats summarizes directory contents
type Stats struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

// Directory maps project codes to live rooms.
// ARCHITECTURAL DISCOVERY: One instance per process, injected into every session
// handler. Lock order is always Directory.mu then Room.mu.
type Directory struct {
	lookup        interfaces.ProjectLookup
	logger        *zap.Logger
	lookupTimeout time.Duration

	mu    sync.RWMutex
	rooms map[string]*Room

	// creation coalesces concurrent first joins of the same code into one lookup
	creation singleflight.Group
}

// Option configures a Directory
type Option func(*Directory)

// WithLogger sets the directory logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

// WithLookupTimeout bounds each project lookup
func WithLookupTimeout(timeout time.Duration) Option {
	return func(d *Directory) { d.lookupTimeout = timeout }
}

// NewDirectory creates an empty directory backed by the given project lookup
func NewDirectory(lookup interfaces.ProjectLookup, opts ...Option) *Directory {
	d := &Directory{
		lookup:        lookup,
		logger:        zap.NewNop(),
		lookupTimeout: DefaultLookupTimeout,
		rooms:         make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("directory")
	return d
}

// GetRoom returns the live room for code or ErrRoomNotFound
func (d *Directory) GetRoom(code string) (*Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	room, ok := d.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetOrCreateRoom returns the room for code, creating it after the project is
// confirmed by the lookup. Concurrent calls for the same unseen code share one
// lookup and receive the same Room.
// TECHNICAL DISCOVERY: The lookup runs without the directory lock held so
// unrelated rooms keep working while it is in flight
func (d *Directory) GetOrCreateRoom(ctx context.Context, code string) (*Room, error) {
	if room, err := d.GetRoom(code); err == nil {
		return room, nil
	}

	// The flight outlives any single caller, so it must not inherit one caller's cancellation
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := d.creation.Do(code, func() (any, error) {
		if room, err := d.GetRoom(code); err == nil {
			return room, nil
		}

		if err := d.confirmProject(flightCtx, code); err != nil {
			return nil, err
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		if room, ok := d.rooms[code]; ok {
			return room, nil
		}
		room := newRoom(code, d.logger)
		d.rooms[code] = room
		metrics.RoomsCreated.Inc()
		metrics.RoomsActive.Set(float64(len(d.rooms)))
		d.logger.Info("room created", zap.String("project", code))
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

func (d *Directory) confirmProject(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	project, err := d.lookup.FindProjectByCode(ctx, code)
	switch {
	case errors.Is(err, interfaces.ErrProjectNotFound):
		metrics.ProjectLookups.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: %s", ErrProjectNotFound, code)
	case err != nil:
		metrics.ProjectLookups.WithLabelValues("error").Inc()
		d.logger.Warn("project lookup failed", zap.String("project", code), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrProjectNotFound, code, err)
	case project == nil || !project.IsActive:
		metrics.ProjectLookups.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: %s", ErrProjectNotFound, code)
	}

	metrics.ProjectLookups.WithLabelValues("found").Inc()
	return nil
}

// Join resolves or creates the room and adds the member.
// FUNCTIONAL DISCOVERY: The room may have emptied and been collected between
// creation and the add; it is re-registered under the directory lock so the
// new member never lands in an unreachable room
func (d *Directory) Join(ctx context.Context, code string, conn interfaces.Connection, identity types.Identity) (*Room, error) {
	room, err := d.GetOrCreateRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.rooms[code]; ok {
		room = current
	} else {
		d.rooms[code] = room
		metrics.RoomsActive.Set(float64(len(d.rooms)))
	}

	if room.AddMember(conn, identity) {
		metrics.MembersActive.Inc()
	}
	return room, nil
}

// Leave removes the connection from the named room and collects the room when
// it empties. The identity is nil when the connection was not a member.
func (d *Directory) Leave(code string, conn interfaces.Connection) (*Room, *types.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[code]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}

	removed := room.RemoveMember(conn)
	if removed != nil {
		metrics.MembersActive.Dec()
		d.collectLocked(room)
	}
	return room, removed, nil
}

// RemoveConnection drops the connection from every room, collecting rooms that
// empty. Calling it again for the same connection returns nothing.
func (d *Directory) RemoveConnection(conn interfaces.Connection) []Removal {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removals []Removal
	for _, room := range d.rooms {
		removed := room.RemoveMember(conn)
		if removed == nil {
			continue
		}
		metrics.MembersActive.Dec()
		removals = append(removals, Removal{Room: room, Identity: *removed})
		d.collectLocked(room)
	}

	sort.Slice(removals, func(i, j int) bool {
		return removals[i].Room.Code() < removals[j].Room.Code()
	})
	return removals
}

func (d *Directory) collectLocked(room *Room) {
	if room.Len() > 0 {
		return
	}
	if d.rooms[room.code] == room {
		delete(d.rooms, room.code)
		metrics.RoomsActive.Set(float64(len(d.rooms)))
		d.logger.Info("room collected", zap.String("project", room.code))
	}
}

// Occupancy reports member counts for the requested codes in request order.
// Codes without an active room are omitted.
func (d *Directory) Occupancy(codes []string) []types.Occupancy {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]types.Occupancy, 0, len(codes))
	for _, code := range codes {
		room, ok := d.rooms[code]
		if !ok {
			continue
		}
		if n := room.Len(); n > 0 {
			result = append(result, types.Occupancy{Code: code, MemberCount: n})
		}
	}
	return result
}

// Rooms returns a snapshot of the live rooms sorted by code
func (d *Directory) Rooms() []*Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].code < rooms[j].code })
	return rooms
}

// Stats returns room and membership totals
func (d *Directory) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := Stats{Rooms: len(d.rooms)}
	for _, room := range d.rooms {
		stats.Members += room.Len()
	}
	return stats
}

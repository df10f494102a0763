package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

type emitted struct {
	event   string
	payload any
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []emitted
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.events = append(c.events, emitted{event: event, payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.events...)
}

type fakeLookup struct {
	calls    atomic.Int32
	delay    time.Duration
	err      error
	projects map[string]bool // code -> active
}

func newFakeLookup(codes ...string) *fakeLookup {
	l := &fakeLookup{projects: make(map[string]bool)}
	for _, code := range codes {
		l.projects[code] = true
	}
	return l
}

func (l *fakeLookup) FindProjectByCode(ctx context.Context, code string) (*types.Project, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	active, ok := l.projects[code]
	if !ok {
		return nil, fmt.Errorf("code %s: %w", code, interfaces.ErrProjectNotFound)
	}
	return &types.Project{Code: code, Name: "project " + code, IsActive: active}, nil
}

func identity(id string) types.Identity {
	return types.Identity{ID: id, Name: "user " + id}
}

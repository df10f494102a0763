package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []string
	data   []string
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, _ := json.Marshal(payload)
	c.events = append(c.events, event)
	c.data = append(c.data, string(raw))
	return nil
}
func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type allProjects struct{}

func (allProjects) FindProjectByCode(ctx context.Context, code string) (*types.Project, error) {
	if code == "ZZZZZ" {
		return nil, fmt.Errorf("%s: %w", code, interfaces.ErrProjectNotFound)
	}
	return &types.Project{Code: code, IsActive: true}, nil
}

func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func newInstance(t *testing.T, mr *miniredis.Miniredis) (*Relay, *room.Directory) {
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	directory := room.NewDirectory(allProjects{})
	r := New(rdb, directory, zaptest.NewLogger(t))
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })
	return r, directory
}

// Functional Validation Tests

func TestRelay_DeliversToOtherInstance(t *testing.T) {
	mr := setupTestRedis(t)
	relayA, dirA := newInstance(t, mr)
	_, dirB := newInstance(t, mr)
	ctx := context.Background()

	local := &fakeConn{id: "a"}
	remote := &fakeConn{id: "b"}
	_, err := dirA.Join(ctx, "PRJ1", local, types.Identity{ID: "A"})
	require.NoError(t, err)
	_, err = dirB.Join(ctx, "PRJ1", remote, types.Identity{ID: "B"})
	require.NoError(t, err)

	payload := json.RawMessage(`{"projectCode":"PRJ1","description":"buy milk","priority":4}`)
	require.NoError(t, relayA.Publish(ctx, types.Event{Name: "todo_created", ProjectCode: "PRJ1", Payload: payload}))

	require.Eventually(t, func() bool { return remote.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	remote.mu.Lock()
	assert.Equal(t, "todo_created", remote.events[0])
	assert.JSONEq(t, string(payload), remote.data[0])
	remote.mu.Unlock()

	// The publishing instance does not receive its own event back
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, local.count())
}

func TestRelay_IgnoresRoomsWithoutLocalMembers(t *testing.T) {
	mr := setupTestRedis(t)
	relayA, _ := newInstance(t, mr)
	_, dirB := newInstance(t, mr)
	ctx := context.Background()

	bystander := &fakeConn{id: "b"}
	_, err := dirB.Join(ctx, "PRJ2", bystander, types.Identity{ID: "B"})
	require.NoError(t, err)

	require.NoError(t, relayA.Publish(ctx, types.Event{Name: types.EventJoined, ProjectCode: "PRJ1", Payload: types.Identity{ID: "A"}}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, bystander.count())
	_, err = dirB.GetRoom("PRJ1")
	assert.ErrorIs(t, err, room.ErrRoomNotFound, "remote events never create rooms")
}

func TestRelay_PublishRequiresProjectCode(t *testing.T) {
	mr := setupTestRedis(t)
	r, _ := newInstance(t, mr)

	err := r.Publish(context.Background(), types.Event{Name: "todo_created"})
	assert.ErrorIs(t, err, ErrNoProjectCode)
}

func TestRelay_StartStopLifecycle(t *testing.T) {
	mr := setupTestRedis(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	r := New(rdb, room.NewDirectory(allProjects{}), zaptest.NewLogger(t))
	assert.NotEmpty(t, r.InstanceID())
	assert.ErrorIs(t, r.Stop(), ErrRelayNotRunning)

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrRelayAlreadyRunning)
	require.NoError(t, r.Stop())
}

func TestRelay_MalformedMessageIsDropped(t *testing.T) {
	mr := setupTestRedis(t)
	relayA, dirA := newInstance(t, mr)
	ctx := context.Background()

	member := &fakeConn{id: "a"}
	_, err := dirA.Join(ctx, "PRJ1", member, types.Identity{ID: "A"})
	require.NoError(t, err)

	mr.Publish(ChannelPrefix+"PRJ1", "{not json")
	require.NoError(t, relayA.rdb.Publish(ctx, ChannelPrefix+"PRJ1", `{"instance":"other","event":"todo_commented","data":{"comment":"hi"}}`).Err())

	require.Eventually(t, func() bool { return member.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/pkg/types"
)

type fakeConn struct {
	mu   sync.Mutex
	acks []Ack
}

func (c *fakeConn) ID() string { return "conn-1" }
func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event == types.EventAck {
		c.acks = append(c.acks, payload.(Ack))
	}
	return nil
}
func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) lastAck(t *testing.T) Ack {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.acks)
	return c.acks[len(c.acks)-1]
}

type fakeHandler struct {
	joins     []types.JoinRequest
	leaves    []string
	mutations []*types.Mutation
	err       error
}

func (h *fakeHandler) Join(ctx context.Context, req types.JoinRequest) ([]types.Identity, error) {
	h.joins = append(h.joins, req)
	if h.err != nil {
		return nil, h.err
	}
	return []types.Identity{req.Identity()}, nil
}
func (h *fakeHandler) Leave(ctx context.Context, code string) error {
	h.leaves = append(h.leaves, code)
	return h.err
}
func (h *fakeHandler) Mutate(ctx context.Context, m *types.Mutation) error {
	h.mutations = append(h.mutations, m)
	return h.err
}
func (h *fakeHandler) Disconnect(ctx context.Context, reason string) {}

func route(t *testing.T, r *Router, h *fakeHandler, conn *fakeConn, frame string) error {
	t.Helper()
	return r.Route(context.Background(), h, conn, []byte(frame))
}

// Functional Validation Tests - Dispatch

func TestRouter_JoinAcksMembers(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	err := route(t, r, h, conn, `{"event":"join","ack":1,"data":{"projectCode":"PRJ1","identityId":"A","name":"Alice"}}`)
	require.NoError(t, err)

	require.Len(t, h.joins, 1)
	assert.Equal(t, "PRJ1", h.joins[0].ProjectCode)
	ack := conn.lastAck(t)
	assert.Equal(t, int64(1), ack.ID)
	assert.Nil(t, ack.Error)
	assert.Equal(t, []types.Identity{{ID: "A", Name: "Alice"}}, ack.Result)
}

func TestRouter_JoinErrorAck(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{err: fmt.Errorf("%w: ZZZZZ", room.ErrProjectNotFound)}, &fakeConn{}

	err := route(t, r, h, conn, `{"event":"join","ack":7,"data":{"projectCode":"ZZZZZ","identityId":"A"}}`)
	assert.ErrorIs(t, err, room.ErrProjectNotFound)

	ack := conn.lastAck(t)
	require.NotNil(t, ack.Error)
	assert.Equal(t, CodeProjectNotFound, ack.Error.Code)
	assert.Nil(t, ack.Result)
}

func TestRouter_LeaveAckHasNoResult(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	require.NoError(t, route(t, r, h, conn, `{"event":"leave","ack":2,"data":{"projectCode":"PRJ1"}}`))
	assert.Equal(t, []string{"PRJ1"}, h.leaves)

	data, err := json.Marshal(conn.lastAck(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ack":2,"error":null}`, string(data))
}

func TestRouter_MutationWithoutAckIsSilent(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	require.NoError(t, route(t, r, h, conn, `{"event":"todo_creating","data":{"projectCode":"PRJ1","description":"buy milk","priority":4}}`))

	require.Len(t, h.mutations, 1)
	assert.Equal(t, types.MutationTodoCreated, h.mutations[0].Kind)
	assert.Empty(t, conn.acks)
}

func TestRouter_MutationValidationError(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	err := route(t, r, h, conn, `{"event":"todotag_creating","ack":3,"data":{"projectCode":"PRJ1"}}`)
	assert.ErrorIs(t, err, types.ErrInvalidPayload)
	assert.Empty(t, h.mutations)
	assert.Equal(t, CodeInvalidPayload, conn.lastAck(t).Error.Code)
}

func TestRouter_MutationRoomNotFound(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{err: room.ErrRoomNotFound}, &fakeConn{}

	_ = route(t, r, h, conn, `{"event":"todocomp_toggling","ack":4,"data":{"projectCode":"PRJ1","isCompleted":true}}`)
	assert.Equal(t, CodeRoomNotFound, conn.lastAck(t).Error.Code)
}

func TestRouter_UnknownAndReservedEvents(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	for _, name := range []string{"todo_exploding", types.EventDisconnect} {
		err := route(t, r, h, conn, fmt.Sprintf(`{"event":%q,"ack":5,"data":{}}`, name))
		assert.ErrorIs(t, err, ErrUnknownEvent)
		assert.Equal(t, CodeUnknownEvent, conn.lastAck(t).Error.Code)
	}
}

func TestRouter_MalformedFrame(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	assert.ErrorIs(t, route(t, r, h, conn, `not json`), ErrInvalidFrame)
	assert.ErrorIs(t, route(t, r, h, conn, `{"ack":1}`), ErrInvalidFrame)
	assert.Empty(t, conn.acks)
}

func TestRouter_OversizedJoinPayload(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}

	frame := `{"event":"join","ack":1,"data":{"projectCode":"PRJ1","identityId":"A","name":"` + strings.Repeat("n", types.MaxPayloadBytes) + `"}}`
	assert.ErrorIs(t, route(t, r, h, conn, frame), types.ErrPayloadTooLarge)
	assert.Empty(t, h.joins)
}

// Technical Validation Tests - Rate limiting

func TestRouter_RateLimitsMutations(t *testing.T) {
	r := NewRouter(2, zaptest.NewLogger(t))
	h, conn := &fakeHandler{}, &fakeConn{}
	frame := `{"event":"todo_commenting","ack":9,"data":{"projectCode":"PRJ1","comment":"hi"}}`

	require.NoError(t, route(t, r, h, conn, frame))
	require.NoError(t, route(t, r, h, conn, frame))
	assert.ErrorIs(t, route(t, r, h, conn, frame), ErrRateLimitExceeded)
	assert.Equal(t, CodeRateLimited, conn.lastAck(t).Error.Code)
	assert.Len(t, h.mutations, 2)

	// Presence frames are not budgeted
	require.NoError(t, route(t, r, h, conn, `{"event":"leave","data":{"projectCode":"PRJ1"}}`))

	r.Forget(conn)
	require.NoError(t, route(t, r, h, conn, frame))
}

func TestErrorCode_Mapping(t *testing.T) {
	assert.Equal(t, CodeInvalidPayload, ErrorCode(types.ErrInvalidProjectCode))
	assert.Equal(t, CodeInvalidPayload, ErrorCode(types.ErrInvalidIdentity))
	assert.Equal(t, CodeUnknownEvent, ErrorCode(types.ErrUnknownMutation))
	assert.Equal(t, CodeInternal, ErrorCode(fmt.Errorf("boom")))
}

package integration

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rdxz2/t3dapi/internal/app"
	"github.com/rdxz2/t3dapi/internal/config"
	"github.com/rdxz2/t3dapi/internal/router"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// startBroker runs a full broker on a free local port with the given projects
// registered in a fresh SQLite store. redisAddr enables the relay when set.
func startBroker(t *testing.T, redisAddr string, codes ...string) *app.Application {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "projects.db")
	cfg.Database.MigrationsPath = filepath.Join("..", "..", "migrations")
	cfg.Redis.Addr = redisAddr

	application, err := app.NewApplication(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, code := range codes {
		require.NoError(t, application.RegisterProject(context.Background(),
			&types.Project{Code: code, Name: "project " + code, IsActive: true}))
	}

	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return application
}

// client is a test websocket client speaking the broker's frame format
type client struct {
	t    *testing.T
	conn *websocket.Conn
	ack  int64
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ackData struct {
	ID     int64            `json:"ack"`
	Error  *router.AckError `json:"error"`
	Result json.RawMessage  `json:"result"`
}

func dial(t *testing.T, application *app.Application) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.GetAddr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

// request sends event with a fresh ack id and waits for the matching ack.
// Non-ack frames received meanwhile are returned in order.
func (c *client) request(event string, data any) (ackData, []inbound) {
	c.t.Helper()
	c.ack++
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"event": event, "ack": c.ack, "data": data}))

	var others []inbound
	for {
		msg := c.next()
		if msg.Event != types.EventAck {
			others = append(others, msg)
			continue
		}
		var ack ackData
		require.NoError(c.t, json.Unmarshal(msg.Data, &ack))
		if ack.ID == c.ack {
			return ack, others
		}
	}
}

func (c *client) join(code, id string) ackData {
	c.t.Helper()
	ack, _ := c.request(types.EventJoin, map[string]string{"projectCode": code, "identityId": id, "name": "user " + id})
	return ack
}

func (c *client) next() inbound {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg inbound
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// expect reads the next frame and checks its event name
func (c *client) expect(event string) json.RawMessage {
	c.t.Helper()
	msg := c.next()
	require.Equal(c.t, event, msg.Event)
	return msg.Data
}

// await skips frames until one named event arrives. Used where relay
// timing can interleave earlier presence events.
func (c *client) await(event string) json.RawMessage {
	c.t.Helper()
	for {
		if msg := c.next(); msg.Event == event {
			return msg.Data
		}
	}
}

// expectSilence asserts nothing arrives within d. The read deadline breaks
// the connection, so it must be the client's last read.
func (c *client) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected frame %s", data)
}

func (c *client) close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

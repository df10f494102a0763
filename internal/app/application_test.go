package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rdxz2/t3dapi/internal/api"
	"github.com/rdxz2/t3dapi/internal/config"
	"github.com/rdxz2/t3dapi/pkg/types"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "projects.db")
	cfg.Database.MigrationsPath = "../../migrations"
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	application, err := NewApplication(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() { _ = application.Stop(context.Background()) })
	return application
}

// FUNCTIONAL VALIDATION TEST: Application construction validation
func TestApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = -1

	application, err := NewApplication(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, application)
}

func TestApplication_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := NewApplication(cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "redis")
}

func TestApplication_EmbeddedMigrationsFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.MigrationsPath = filepath.Join(t.TempDir(), "does-not-exist")

	application, err := NewApplication(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer application.Stop(context.Background())

	require.NoError(t, application.RegisterProject(context.Background(), &types.Project{Code: "PRJ1", Name: "One", IsActive: true}))
}

// FUNCTIONAL VALIDATION TEST: Start serves HTTP and websocket; Stop cleans up
func TestApplication_Lifecycle(t *testing.T) {
	application := startApp(t, testConfig(t))
	require.NoError(t, application.RegisterProject(context.Background(), &types.Project{Code: "PRJ1", Name: "One", IsActive: true}))

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health api.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Components["database"])

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.GetAddr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "join",
		"ack":   1,
		"data":  map[string]string{"projectCode": "PRJ1", "identityId": "u1", "name": "Ann"},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack struct {
		Event string `json:"event"`
		Data  struct {
			Error *struct{ Code string } `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "ack", ack.Event)
	require.Nil(t, ack.Data.Error)
	assert.Equal(t, 1, application.Directory().Stats().Members)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, application.Stop(ctx))

	assert.Equal(t, 0, application.Directory().Stats().Rooms, "shutdown disconnects every member")
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestApplication_WithRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	application := startApp(t, cfg)

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health api.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Components["redis"])
}

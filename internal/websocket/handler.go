package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/router"
	"github.com/rdxz2/t3dapi/internal/session"
)

// Disconnect reasons handed to the session handler
const (
	ReasonClientClose = "client namespace disconnect"
	ReasonTransport   = "transport close"
	ReasonPingTimeout = "ping timeout"
	ReasonServerClose = "server namespace disconnect"
)

// Options configures the transport
type Options struct {
	// AllowedOrigins lists accepted Origin headers; empty or "*" accepts any
	AllowedOrigins []string
	// ReadLimit caps one inbound frame. It is kept above the payload limit so
	// oversized payloads are answered with an ack instead of a dropped socket.
	ReadLimit        int64
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	WriteBuffer      int
	HandshakeTimeout time.Duration
}

// DefaultOptions returns the transport settings used when none are configured
// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// detects dead peers without flooding idle project tabs
func DefaultOptions() Options {
	return Options{
		AllowedOrigins:   []string{"*"},
		ReadLimit:        128 * 1024,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     DefaultWriteTimeout,
		WriteBuffer:      DefaultWriteBuffer,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Handler upgrades HTTP requests and runs one read pump per connection
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from room logic;
// frames go through the router to a per-connection session handler
type Handler struct {
	registry *Registry
	sessions *session.Factory
	router   *router.Router
	options  Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, sessions *session.Factory, rt *router.Router, options Options, logger *zap.Logger) *Handler {
	h := &Handler{
		registry: registry,
		sessions: sessions,
		router:   rt,
		options:  options,
		logger:   logger.Named("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: options.HandshakeTimeout,
	}
	return h
}

// FUNCTIONAL DISCOVERY: Requests without an Origin header come from
// non-browser clients and are accepted
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.options.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.options.AllowedOrigins, "*") ||
		slices.Contains(h.options.AllowedOrigins, origin)
}

// HandleWebSocket upgrades the request and starts the connection lifecycle.
// Identity is not checked here; clients present it with each join.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConnection(ws, h.options.WriteBuffer, h.options.WriteTimeout)
	if err := h.registry.RegisterConnection(conn); err != nil {
		h.logger.Error("failed to register connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	h.logger.Debug("connection opened",
		zap.String("conn", conn.ID()),
		zap.String("remote", r.RemoteAddr))

	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// frees the HTTP handler once the socket is hijacked
	go h.handleConnection(conn)
}

// handleConnection reads frames until the socket fails, then runs the
// disconnect cleanup exactly once.
// ARCHITECTURAL DISCOVERY: Frames of one connection are routed sequentially
// by this goroutine, which is what orders that connection's operations
func (h *Handler) handleConnection(conn *Connection) {
	sess := h.sessions.New(conn)
	ctx, cancel := context.WithCancel(context.Background())
	reason := ReasonTransport

	defer func() {
		cancel()
		// FUNCTIONAL DISCOVERY: Cleanup must outlive the read context so the
		// leaved notices still reach the relay
		sess.Disconnect(context.WithoutCancel(ctx), reason)
		h.router.Forget(conn)
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		h.logger.Debug("connection closed",
			zap.String("conn", conn.ID()),
			zap.String("reason", reason))
	}()

	conn.conn.SetReadLimit(h.options.ReadLimit)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.options.PongTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.options.PongTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			reason = h.disconnectReason(conn, err)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = h.router.Route(ctx, sess, conn, data)
	}
}

// heartbeat pings the peer until the connection closes
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl is safe to call concurrently with the writer goroutine
			deadline := time.Now().Add(h.options.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) disconnectReason(conn *Connection, err error) string {
	select {
	case <-conn.Done():
		return ReasonServerClose
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ReasonClientClose
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		h.logger.Info("websocket read error", zap.String("conn", conn.ID()), zap.Error(err))
	}
	return ReasonTransport
}

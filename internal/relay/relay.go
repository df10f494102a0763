package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/metrics"
	"github.com/rdxz2/t3dapi/internal/room"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// ChannelPrefix namespaces room channels; the project code is appended
const ChannelPrefix = "t3dstream:room:"

// envelope is the Redis message body
type envelope struct {
	Instance string          `json:"instance"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// Relay fans room events out to the other broker instances sharing a Redis.
// ARCHITECTURAL DISCOVERY: Each instance keeps its own Directory; only events
// travel, so a room can have members spread over several instances
type Relay struct {
	rdb        *redis.Client
	directory  *room.Directory
	instanceID string
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a relay delivering remote events into directory
func New(rdb *redis.Client, directory *room.Directory, logger *zap.Logger) *Relay {
	id := uuid.New().String()
	return &Relay{
		rdb:        rdb,
		directory:  directory,
		instanceID: id,
		logger:     logger.Named("relay").With(zap.String("instance", id)),
	}
}

// InstanceID identifies this broker on the shared channels
func (r *Relay) InstanceID() string {
	return r.instanceID
}

// Publish sends a room event to the other instances
func (r *Relay) Publish(ctx context.Context, event types.Event) error {
	if event.ProjectCode == "" {
		return ErrNoProjectCode
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Name, err)
	}

	body, err := json.Marshal(envelope{Instance: r.instanceID, Event: event.Name, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	if err := r.rdb.Publish(ctx, ChannelPrefix+event.ProjectCode, body).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Name, err)
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
	return nil
}

// Start subscribes to every room channel and returns once the subscription is
// confirmed, so no event published afterwards is missed
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrRelayAlreadyRunning
	}

	pubsub := r.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to room channels: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(runCtx, pubsub, r.done)
	r.logger.Info("relay subscribed", zap.String("pattern", ChannelPrefix+"*"))
	return nil
}

// Stop unsubscribes and waits for the receive loop to exit
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrRelayNotRunning
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (r *Relay) run(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Warn("dropping malformed relay message", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}

	// Our own events were already delivered locally
	if env.Instance == r.instanceID {
		return
	}

	code := strings.TrimPrefix(msg.Channel, ChannelPrefix)
	target, err := r.directory.GetRoom(code)
	if err != nil {
		return
	}

	metrics.RelayMessages.WithLabelValues("in").Inc()
	target.Deliver(types.Event{Name: env.Event, ProjectCode: code, Payload: env.Data})
}

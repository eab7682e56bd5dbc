package hub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// LocalBroadcaster delivers events straight to the in-process hub. Suitable
// for single-instance deployments and tests.
type LocalBroadcaster struct {
	Hub *Hub
}

func (b LocalBroadcaster) Publish(ctx context.Context, ev domain.Event) error {
	return b.Hub.Publish(ev.Room, ev)
}

// RedisBroadcaster publishes events onto a shared redis channel so every
// instance can deliver them to its own connections.
type RedisBroadcaster struct {
	rc      *redis.Client
	channel string
}

func NewRedisBroadcaster(rc *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{rc: rc, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rc.Publish(ctx, b.channel, data).Err()
}

// RunBridge listens on the shared event channel and fans incoming events out
// to this instance's local rooms. It blocks until ctx is cancelled or the
// subscription closes; run it in its own goroutine.
func RunBridge(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, h *Hub) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	sub := rc.Subscribe(ctx, channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logger.Error("event subscription channel closed")
				return
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Errorf("unable to parse event: %v", err)
				continue
			}
			h.Deliver(ev.Room, []byte(msg.Payload))
		}
	}
}

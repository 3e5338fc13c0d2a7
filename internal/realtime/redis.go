package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orderhub/internal/logger"
)

const relayPublishTimeout = 2 * time.Second

// relayMessage is what instances exchange over the redis channel
type relayMessage struct {
	Origin string          `json:"origin"`
	Topic  string          `json:"topic"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// RedisRelay fans events out to every server instance sharing a redis channel.
// Local subscribers are served directly; remote instances replay the event into
// their own hub. Memberships stay local to the instance holding the connection.
type RedisRelay struct {
	hub     *Hub
	client  redis.UniversalClient
	channel string
	origin  string
}

// NewRedisRelay wraps hub with cross-instance publishing on channel
func NewRedisRelay(hub *Hub, client redis.UniversalClient, channel string) *RedisRelay {
	return &RedisRelay{
		hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

func (r *RedisRelay) Subscribe(connID, topic string) {
	r.hub.Subscribe(connID, topic)
}

func (r *RedisRelay) Unsubscribe(connID, topic string) {
	r.hub.Unsubscribe(connID, topic)
}

// Publish delivers locally, then forwards the event to the other instances
func (r *RedisRelay) Publish(topic, event string, payload interface{}) {
	r.hub.Publish(topic, event, payload)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("marshal relay payload", zap.String("event", event), zap.Error(err))
		return
	}
	msg, err := json.Marshal(relayMessage{Origin: r.origin, Topic: topic, Event: event, Data: data})
	if err != nil {
		logger.Log.Error("marshal relay message", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		logger.Log.Warn("relay publish failed", zap.String("event", event), zap.Error(err))
	}
}

// Run consumes the channel until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.replay([]byte(msg.Payload))
		}
	}
}

// replay publishes a remote event into the local hub, skipping our own messages
func (r *RedisRelay) replay(raw []byte) bool {
	var msg relayMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Log.Warn("bad relay message", zap.Error(err))
		return false
	}
	if msg.Origin == r.origin {
		return false
	}
	r.hub.Publish(msg.Topic, msg.Event, msg.Data)
	return true
}

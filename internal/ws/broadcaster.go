package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Broadcaster fans an event out to every session joined to the conversation's
// room, across all server processes. A single-process deployment and a
// multi-process one satisfy the same contract.
type Broadcaster interface {
	Publish(ctx context.Context, conversationID int64, event any) error
}

// LocalBroadcaster loops events straight back into the process-local hub.
// Suitable when one server instance holds every connection.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

var _ Broadcaster = (*LocalBroadcaster)(nil)

func (b *LocalBroadcaster) Publish(_ context.Context, conversationID int64, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b.hub.Deliver(conversationID, payload)
	return nil
}

const roomChannelPrefix = "room."

// RedisBroadcaster replicates room events through Redis Pub/Sub so that
// conversations spanning several server instances still reach every joined
// session. Each instance publishes to room.<id> and a pattern subscription
// feeds inbound publishes, including this instance's own, into the local hub.
type RedisBroadcaster struct {
	rdb *redis.Client
	hub *Hub
}

// NewRedisBroadcaster connects to Redis using the given URL and verifies the
// connection with a short ping.
func NewRedisBroadcaster(url string, hub *Hub) (*RedisBroadcaster, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBroadcaster{rdb: rdb, hub: hub}, nil
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

func (b *RedisBroadcaster) Publish(ctx context.Context, conversationID int64, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := roomChannelPrefix + strconv.FormatInt(conversationID, 10)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Run consumes room.* publishes and delivers them to the local hub. It blocks
// until ctx is cancelled; run it in its own goroutine at startup.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	ps := b.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			idStr := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			conversationID, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				log.Printf("ws: bad room channel %q", msg.Channel)
				continue
			}
			b.hub.Deliver(conversationID, []byte(msg.Payload))
		}
	}
}

func (b *RedisBroadcaster) Close() error {
	return b.rdb.Close()
}

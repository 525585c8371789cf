package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctoring/internal/config"
)

// Broadcaster delivers events to everyone watching an exam.
type Broadcaster interface {
	Publish(ctx context.Context, examID uuid.UUID, ev Event) error
}

// RedisBroadcaster publishes events on the exam's Redis Pub/Sub channel,
// which the SSE and WebSocket feeds subscribe to.
type RedisBroadcaster struct {
	rdb *redis.Client
}

// NewRedisBroadcaster creates a new RedisBroadcaster.
func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

// Publish implements Broadcaster.
func (b *RedisBroadcaster) Publish(ctx context.Context, examID uuid.UUID, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := config.CacheKey.ExamProctoringChannel(examID.String())
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscription is a live feed of one exam's events.
type Subscription struct {
	C     <-chan Event
	close func() error
}

// NewSubscription wraps an event channel and the function that stops it.
func NewSubscription(c <-chan Event, stop func() error) *Subscription {
	return &Subscription{C: c, close: stop}
}

// Close stops the feed.
func (s *Subscription) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Subscribe opens a feed of examID's events. Payloads that do not decode are
// skipped. The feed ends when ctx is done or Close is called.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, examID uuid.UUID) (*Subscription, error) {
	channel := config.CacheKey.ExamProctoringChannel(examID.String())
	pubsub := b.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return NewSubscription(out, pubsub.Close), nil
}

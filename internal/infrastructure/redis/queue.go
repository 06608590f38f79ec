package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/otp-identity/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	payloadField = "payload"

	// streamMaxLen caps each stream; trimming is approximate.
	streamMaxLen = 100_000
)

// StreamPublisher appends delivery messages to a Redis stream named after the
// queue. Entries survive restarts as long as the server persists to disk.
type StreamPublisher struct {
	client redis.UniversalClient
}

func NewStreamPublisher(client redis.UniversalClient) *StreamPublisher {
	return &StreamPublisher{client: client}
}

func (p *StreamPublisher) Publish(ctx context.Context, queue string, msg domain.DeliveryMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal delivery message: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queue,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: string(b)},
	}).Err()
}

// MessageHandler processes one delivery message. A non-nil error leaves the
// message pending so it is retried.
type MessageHandler func(ctx context.Context, msg domain.DeliveryMessage) error

// StreamConsumer reads a queue stream through a consumer group.
type StreamConsumer struct {
	client redis.UniversalClient
	queue  string
	group  string
	name   string
	block  time.Duration
	count  int64
}

func NewStreamConsumer(client redis.UniversalClient, queue, group, name string) *StreamConsumer {
	return &StreamConsumer{
		client: client,
		queue:  queue,
		group:  group,
		name:   name,
		block:  5 * time.Second,
		count:  10,
	}
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.queue, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Poll reads one batch and hands every message to h. With pending set it
// re-reads messages this consumer received but never acknowledged; otherwise
// it waits up to the block interval for new ones. It returns the number of
// messages acknowledged.
func (c *StreamConsumer) Poll(ctx context.Context, h MessageHandler, pending bool) (int, error) {
	start := ">"
	block := c.block
	if pending {
		start = "0"
		block = -1
	}
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.queue, start},
		Count:    c.count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, s := range streams {
		for _, m := range s.Messages {
			if c.handle(ctx, h, m) {
				if err := c.client.XAck(ctx, c.queue, c.group, m.ID).Err(); err != nil {
					return acked, fmt.Errorf("ack %s: %w", m.ID, err)
				}
				acked++
			}
		}
	}
	return acked, nil
}

// handle reports whether m should be acknowledged.
func (c *StreamConsumer) handle(ctx context.Context, h MessageHandler, m redis.XMessage) bool {
	raw, _ := m.Values[payloadField].(string)
	var msg domain.DeliveryMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Undecodable entries would be retried forever.
		slog.Error("dropping malformed delivery message", "queue", c.queue, "id", m.ID, "err", err)
		return true
	}
	if err := h(ctx, msg); err != nil {
		slog.Warn("delivery handler failed, leaving message pending", "queue", c.queue, "id", m.ID, "err", err)
		return false
	}
	return true
}

// Run polls until ctx is cancelled. Pending messages are retried on start and
// every retryEvery thereafter.
func (c *StreamConsumer) Run(ctx context.Context, h MessageHandler, retryEvery time.Duration) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	lastRetry := time.Time{}
	for {
		if ctx.Err() != nil {
			return nil
		}
		pending := time.Since(lastRetry) >= retryEvery
		if pending {
			lastRetry = time.Now()
		}
		if _, err := c.Poll(ctx, h, pending); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("stream poll failed", "queue", c.queue, "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

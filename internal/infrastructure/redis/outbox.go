package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/otp-identity/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultOutboxKey is the list holding deliveries whose publish failed.
const DefaultOutboxKey = "otp:outbox"

// Outbox is a FIFO of undelivered messages kept in a Redis list. Claimed
// entries sit on a companion processing list until acked or released, so a
// relay that dies mid-publish loses nothing.
type Outbox struct {
	client     redis.UniversalClient
	key        string
	processing string
}

func NewOutbox(client redis.UniversalClient, key string) *Outbox {
	if key == "" {
		key = DefaultOutboxKey
	}
	return &Outbox{client: client, key: key, processing: key + ":processing"}
}

func (o *Outbox) Push(ctx context.Context, e domain.OutboxEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	return o.client.RPush(ctx, o.key, b).Err()
}

// Claim atomically moves the oldest entry onto the processing list. The
// returned receipt identifies it for Ack or Release. ok is false when the
// outbox is empty.
func (o *Outbox) Claim(ctx context.Context) (e *domain.OutboxEntry, receipt string, ok bool, err error) {
	raw, err := o.client.LMove(ctx, o.key, o.processing, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, err
	}
	var entry domain.OutboxEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Unreadable entries would cycle through Recover forever.
		_ = o.client.LRem(ctx, o.processing, 1, raw).Err()
		return nil, "", false, fmt.Errorf("unmarshal outbox entry: %w", err)
	}
	return &entry, raw, true, nil
}

// Ack drops a claimed entry once it has been published or expired.
func (o *Outbox) Ack(ctx context.Context, receipt string) error {
	return o.client.LRem(ctx, o.processing, 1, receipt).Err()
}

// Release puts a claimed entry back at the head so it is retried before
// newer entries.
func (o *Outbox) Release(ctx context.Context, receipt string) error {
	_, err := o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, o.processing, 1, receipt)
		pipe.LPush(ctx, o.key, receipt)
		return nil
	})
	return err
}

// Recover returns entries stranded on the processing list by a previous
// relay to the head of the outbox, oldest first.
func (o *Outbox) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := o.client.LMove(ctx, o.processing, o.key, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Len counts entries waiting to be claimed.
func (o *Outbox) Len(ctx context.Context) (int64, error) {
	return o.client.LLen(ctx, o.key).Result()
}

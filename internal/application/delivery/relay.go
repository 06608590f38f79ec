package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/otp-identity/internal/domain"
	"github.com/otp-identity/internal/metrics"
)

const (
	defaultBatch   = 100
	defaultTimeout = 5 * time.Second
)

type outboxStore interface {
	Claim(ctx context.Context) (*domain.OutboxEntry, string, bool, error)
	Ack(ctx context.Context, receipt string) error
	Release(ctx context.Context, receipt string) error
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
}

type publisher interface {
	Publish(ctx context.Context, queue string, msg domain.DeliveryMessage) error
}

// Relay republishes deliveries parked in the outbox after a failed publish.
type Relay struct {
	outbox    outboxStore
	publisher publisher
	recorder  metrics.Recorder
	maxAge    time.Duration
	batch     int
	timeout   time.Duration
	now       func() time.Time
}

type RelayDeps struct {
	Outbox    outboxStore
	Publisher publisher
	Metrics   metrics.Recorder
	// MaxAge drops entries older than this; it should match the OTP TTL since
	// the code they carry is dead afterwards. 0 keeps everything.
	MaxAge time.Duration
	// Batch caps entries handled per tick. Defaults to 100.
	Batch int
	// Timeout bounds the publish and settle of one claimed entry. Defaults to 5s.
	Timeout time.Duration
}

func NewRelay(deps RelayDeps) *Relay {
	r := &Relay{
		outbox:    deps.Outbox,
		publisher: deps.Publisher,
		recorder:  deps.Metrics,
		maxAge:    deps.MaxAge,
		batch:     deps.Batch,
		timeout:   deps.Timeout,
		now:       time.Now,
	}
	if r.recorder == nil {
		r.recorder = metrics.Nop{}
	}
	if r.batch <= 0 {
		r.batch = defaultBatch
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	return r
}

// Flush drains up to one batch and returns how many entries were published.
// It stops at the first publish failure, leaving that entry at the head. A
// claimed entry is always settled even if ctx is cancelled meanwhile.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	sent := 0
	defer func() {
		if sent > 0 {
			r.recorder.RecordOutboxRelayed(sent)
		}
		if n, err := r.outbox.Len(context.WithoutCancel(ctx)); err == nil {
			r.recorder.RecordOutboxDepth(n)
		}
	}()
	for i := 0; i < r.batch && ctx.Err() == nil; i++ {
		e, receipt, ok, err := r.outbox.Claim(ctx)
		if err != nil {
			return sent, fmt.Errorf("claim outbox: %w", err)
		}
		if !ok {
			return sent, nil
		}
		published, err := r.settle(context.WithoutCancel(ctx), e, receipt)
		if err != nil {
			return sent, err
		}
		if published {
			sent++
		}
	}
	return sent, nil
}

// settle publishes one claimed entry, then acks it or releases it back.
func (r *Relay) settle(ctx context.Context, e *domain.OutboxEntry, receipt string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.maxAge > 0 && r.now().Sub(e.EnqueuedAt) >= r.maxAge {
		slog.Info("dropping expired outbox entry", "queue", e.Queue, "enqueued_at", e.EnqueuedAt)
		if err := r.outbox.Ack(ctx, receipt); err != nil {
			slog.Warn("failed to ack expired outbox entry", "err", err)
		}
		return false, nil
	}
	if err := r.publisher.Publish(ctx, e.Queue, e.Message); err != nil {
		r.recorder.RecordDeliveryFailure()
		if rerr := r.outbox.Release(ctx, receipt); rerr != nil {
			slog.Warn("failed to release outbox entry; it is recovered on next start", "queue", e.Queue, "err", rerr)
		}
		return false, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	if err := r.outbox.Ack(ctx, receipt); err != nil {
		// The entry stays on the processing list and is republished after recovery.
		slog.Warn("failed to ack outbox entry", "queue", e.Queue, "err", err)
	}
	return true, nil
}

// Run returns entries stranded by an earlier relay to the outbox, then
// flushes every interval until ctx is cancelled. An in-flight flush is
// finished before Run returns.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	if n, err := r.outbox.Recover(ctx); err != nil {
		slog.Warn("outbox recovery failed", "err", err)
	} else if n > 0 {
		slog.Info("outbox entries recovered", "count", n)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil {
				slog.Warn("outbox relay stalled", "relayed", n, "err", err)
			} else if n > 0 {
				slog.Info("outbox relayed", "count", n)
			}
		}
	}
}

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/otp-identity/internal/domain"
)

type sender interface {
	Send(ctx context.Context, msg domain.DeliveryMessage) error
}

// Worker turns queued delivery messages into emails.
type Worker struct {
	sender  sender
	timeout time.Duration
}

func NewWorker(s sender, timeout time.Duration) *Worker {
	return &Worker{sender: s, timeout: timeout}
}

// Handle sends one message. Messages without a recipient are dropped rather
// than retried; send failures are returned so the queue redelivers.
func (w *Worker) Handle(ctx context.Context, msg domain.DeliveryMessage) error {
	if msg.To == "" {
		slog.Warn("dropping delivery message without recipient")
		return nil
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if err := w.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	slog.Info("otp email sent", "subject", msg.Subject)
	return nil
}

package http

import (
	"context"
	"time"

	"github.com/otp-identity/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateName(ctx context.Context, userID, name string) error
	List(ctx context.Context) ([]domain.User, error)
}

// OTPCache is the minimal interface the router requires from the ephemeral store.
type OTPCache interface {
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Publisher hands delivery messages to the queue backend.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg domain.DeliveryMessage) error
}

// Outbox parks messages whose publish failed.
type Outbox interface {
	Push(ctx context.Context, e domain.OutboxEntry) error
}

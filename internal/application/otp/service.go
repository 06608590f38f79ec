package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/otp-identity/internal/domain"
	"github.com/otp-identity/internal/metrics"
	"github.com/otp-identity/internal/pkg/id"
)

const (
	DefaultOTPTTL       = 300 * time.Second
	DefaultRateLimitTTL = 60 * time.Second

	rateLimitSentinel = "true"
	deliverySubject   = "Your otp code"
)

// LoginResult is returned by a successful verification.
type LoginResult struct {
	User  *domain.User
	Token string
}

type Service interface {
	// RequestLogin issues a fresh OTP for email and queues it for delivery.
	// The code is never returned to the caller.
	RequestLogin(ctx context.Context, email string) error
	// VerifyLogin consumes the OTP for email and returns the (possibly newly
	// created) user together with a session token.
	VerifyLogin(ctx context.Context, email, code string) (*LoginResult, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type publisher interface {
	Publish(ctx context.Context, queue string, msg domain.DeliveryMessage) error
}

type outbox interface {
	Push(ctx context.Context, e domain.OutboxEntry) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

type tokenSigner interface {
	Sign(u *domain.User) (string, error)
}

type service struct {
	cache        cacheStore
	publisher    publisher
	outbox       outbox
	users        userStore
	signer       tokenSigner
	recorder     metrics.Recorder
	generate     func() (string, error)
	now          func() time.Time
	queue        string
	otpTTL       time.Duration
	rateLimitTTL time.Duration
	maxAttempts  int
	timeout      time.Duration
}

// ServiceDeps wires the engine. Zero values fall back to the defaults:
// 300s OTP TTL, 60s rate-limit window, the send-otp queue, no attempt lockout,
// no operation timeout and no outbox.
type ServiceDeps struct {
	Cache        cacheStore
	Publisher    publisher
	Outbox       outbox
	UserRepo     userStore
	JWTProvider  tokenSigner
	Metrics      metrics.Recorder
	GenerateCode func() (string, error)
	Queue        string
	OTPTTL       time.Duration
	RateLimitTTL time.Duration
	// MaxVerifyAttempts burns the live OTP after this many mismatches. 0 disables.
	MaxVerifyAttempts int
	// Timeout bounds each operation's outbound I/O as a whole.
	Timeout time.Duration
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		cache:        deps.Cache,
		publisher:    deps.Publisher,
		outbox:       deps.Outbox,
		users:        deps.UserRepo,
		signer:       deps.JWTProvider,
		recorder:     deps.Metrics,
		generate:     deps.GenerateCode,
		now:          time.Now,
		queue:        deps.Queue,
		otpTTL:       deps.OTPTTL,
		rateLimitTTL: deps.RateLimitTTL,
		maxAttempts:  deps.MaxVerifyAttempts,
		timeout:      deps.Timeout,
	}
	if s.recorder == nil {
		s.recorder = metrics.Nop{}
	}
	if s.generate == nil {
		s.generate = GenerateCode
	}
	if s.queue == "" {
		s.queue = domain.DefaultQueue
	}
	if s.otpTTL <= 0 {
		s.otpTTL = DefaultOTPTTL
	}
	if s.rateLimitTTL <= 0 {
		s.rateLimitTTL = DefaultRateLimitTTL
	}
	return s
}

// opContext detaches the operation from caller cancellation: once started,
// a login or verify runs to completion or to its own deadline.
func (s *service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *service) RequestLogin(ctx context.Context, email string) error {
	if email == "" {
		s.recorder.RecordLoginRequest(metrics.ResultBadRequest)
		return fmt.Errorf("email required: %w", domain.ErrBadRequest)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	limited, err := s.cache.Exists(ctx, domain.RateLimitKey(email))
	if err != nil {
		s.recorder.RecordLoginRequest(metrics.ResultError)
		return fmt.Errorf("check rate limit: %w: %w", domain.ErrCacheUnavailable, err)
	}
	if limited {
		s.recorder.RecordLoginRequest(metrics.ResultRateLimited)
		return fmt.Errorf("otp requested too recently: %w", domain.ErrRateLimited)
	}

	code, err := s.generate()
	if err != nil {
		s.recorder.RecordLoginRequest(metrics.ResultError)
		return err
	}

	// Both writes must land before anything is queued.
	if err := s.cache.Set(ctx, domain.OTPKey(email), code, s.otpTTL); err != nil {
		s.recorder.RecordLoginRequest(metrics.ResultError)
		return fmt.Errorf("store otp: %w: %w", domain.ErrCacheUnavailable, err)
	}
	if err := s.cache.Set(ctx, domain.RateLimitKey(email), rateLimitSentinel, s.rateLimitTTL); err != nil {
		s.recorder.RecordLoginRequest(metrics.ResultError)
		return fmt.Errorf("store rate limit: %w: %w", domain.ErrCacheUnavailable, err)
	}
	if s.maxAttempts > 0 {
		if err := s.cache.Delete(ctx, domain.AttemptsKey(email)); err != nil {
			slog.Warn("failed to reset otp attempt counter", "err", err)
		}
	}

	s.deliver(ctx, domain.DeliveryMessage{
		To:      email,
		Subject: deliverySubject,
		Body:    fmt.Sprintf("Your OTP is %s. It is valid for %s", code, humanMinutes(s.otpTTL)),
	})
	s.recorder.RecordLoginRequest(metrics.ResultOK)
	return nil
}

// deliver publishes msg. A publish failure never fails the login: the code is
// already live, so the message is parked in the outbox for the relay to retry.
func (s *service) deliver(ctx context.Context, msg domain.DeliveryMessage) {
	err := s.publisher.Publish(ctx, s.queue, msg)
	if err == nil {
		return
	}
	s.recorder.RecordDeliveryFailure()
	err = fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	if s.outbox == nil {
		slog.Error("otp delivery dropped", "queue", s.queue, "err", err)
		return
	}
	entry := domain.OutboxEntry{Queue: s.queue, Message: msg, EnqueuedAt: s.now().UTC()}
	if oerr := s.outbox.Push(ctx, entry); oerr != nil {
		slog.Error("otp delivery dropped, outbox unavailable", "queue", s.queue, "err", err, "outbox_err", oerr)
		return
	}
	slog.Warn("otp delivery deferred to outbox", "queue", s.queue, "err", err)
}

func (s *service) VerifyLogin(ctx context.Context, email, code string) (*LoginResult, error) {
	if email == "" || code == "" {
		s.recorder.RecordVerification(metrics.ResultBadRequest)
		return nil, fmt.Errorf("email and otp required: %w", domain.ErrBadRequest)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	consumed, err := s.cache.CompareAndDelete(ctx, domain.OTPKey(email), code)
	if err != nil {
		s.recorder.RecordVerification(metrics.ResultError)
		return nil, fmt.Errorf("consume otp: %w: %w", domain.ErrCacheUnavailable, err)
	}
	if !consumed {
		s.recordMismatch(ctx, email)
		s.recorder.RecordVerification(metrics.ResultInvalid)
		return nil, domain.ErrInvalidOTP
	}
	if s.maxAttempts > 0 {
		if err := s.cache.Delete(ctx, domain.AttemptsKey(email)); err != nil {
			slog.Warn("failed to clear otp attempt counter", "err", err)
		}
	}

	u, err := s.materializeUser(ctx, email)
	if err != nil {
		s.recorder.RecordVerification(metrics.ResultError)
		return nil, err
	}
	token, err := s.signer.Sign(u)
	if err != nil {
		s.recorder.RecordVerification(metrics.ResultError)
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.recorder.RecordVerification(metrics.ResultOK)
	return &LoginResult{User: u, Token: token}, nil
}

// recordMismatch counts a failed verify and burns the live OTP once the
// attempt budget is spent. The code is read before counting and removed with
// a compare-and-delete, so a fresh code issued meanwhile survives. Failures
// here are logged only: the caller already gets ErrInvalidOTP either way.
func (s *service) recordMismatch(ctx context.Context, email string) {
	if s.maxAttempts <= 0 {
		return
	}
	live, err := s.cache.Get(ctx, domain.OTPKey(email))
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Warn("failed to read otp for attempt count", "err", err)
		return
	}
	n, err := s.cache.Incr(ctx, domain.AttemptsKey(email), s.otpTTL)
	if err != nil {
		slog.Warn("failed to count otp attempt", "err", err)
		return
	}
	if n < int64(s.maxAttempts) {
		return
	}
	revoked, err := s.cache.CompareAndDelete(ctx, domain.OTPKey(email), live)
	if err != nil {
		slog.Warn("failed to revoke otp after max attempts", "err", err)
		return
	}
	if revoked {
		slog.Info("otp revoked after max verify attempts", "attempts", n)
	}
}

// materializeUser returns the user for email, creating it on first login.
func (s *service) materializeUser(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	now := s.now().UTC()
	u = &domain.User{
		UserID:    id.New(),
		Name:      domain.DefaultName(email),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Put(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.recorder.RecordUserCreated()
	return u, nil
}

func humanMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	if m < 1 {
		return d.String()
	}
	return fmt.Sprintf("%d minutes", m)
}

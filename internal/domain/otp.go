package domain

import "time"

// Cache key namespaces for the OTP flow.
const (
	otpKeyPrefix       = "otp:"
	rateLimitKeyPrefix = "otp:ratelimit:"
	attemptsKeyPrefix  = "otp:attempts:"
)

// DefaultQueue is the channel OTP delivery messages are published to.
const DefaultQueue = "send-otp"

func OTPKey(email string) string       { return otpKeyPrefix + email }
func RateLimitKey(email string) string { return rateLimitKeyPrefix + email }
func AttemptsKey(email string) string  { return attemptsKeyPrefix + email }

// DeliveryMessage is the envelope published for out-of-band OTP delivery.
type DeliveryMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// OutboxEntry is a DeliveryMessage whose first publish attempt failed.
type OutboxEntry struct {
	Queue      string          `json:"queue"`
	Message    DeliveryMessage `json:"message"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyRequest carries no validate tags: missing fields are reported by the
// OTP engine itself as ErrBadRequest.
type VerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// OTP flow.
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidOTP       = errors.New("invalid or expired otp")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrDeliveryFailed   = errors.New("delivery failed")
)

package billing

import "errors"

var (
	// ErrProcessorUnavailable marks network failures, processor 5xx responses,
	// rate limiting and an open circuit breaker. Callers may retry.
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	// ErrProcessorRejected marks terminal refusals such as a declined card.
	ErrProcessorRejected = errors.New("payment processor rejected the request")
	ErrInvalidInput      = errors.New("invalid input for payment processor")
	// ErrTimeout is joined with ErrProcessorUnavailable when a call ran out of
	// time. The processor may or may not have applied the request.
	ErrTimeout = errors.New("payment processor call timed out")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")

	ErrMissingAPIKey        = errors.New("payment processor API key is required")
	ErrMissingWebhookSecret = errors.New("payment processor webhook secret is required")
)

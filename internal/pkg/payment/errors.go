package payment

import "errors"

// Verification and lifecycle failures surfaced by provider adapters.
// Signature-class failures are non-retryable: the same payload must
// never be allowed to mutate state on a later delivery.
var (
	ErrUnsupportedProvider = errors.New("payment: unsupported provider")
	ErrSignatureInvalid    = errors.New("payment: webhook signature invalid")
	ErrStaleTimestamp      = errors.New("payment: webhook timestamp outside tolerance")
	ErrMissingHeaders      = errors.New("payment: required webhook headers missing")
	ErrDecryptionFailed    = errors.New("payment: webhook resource decryption failed")
	ErrMalformedPayload    = errors.New("payment: malformed webhook payload")
	ErrNotImplemented      = errors.New("payment: operation not implemented for this provider")
)

// IsNonRetryable reports whether an adapter error must be answered with a
// 4xx so the provider stops redelivering the payload.
func IsNonRetryable(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrStaleTimestamp) ||
		errors.Is(err, ErrMissingHeaders) ||
		errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrMalformedPayload)
}

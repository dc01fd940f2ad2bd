package domain

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("transaction amount must be greater than zero")
	ErrAccountNotFound   = errors.New("account not found")
	ErrLimitExceeded     = errors.New("per-transaction limit exceeded")
	ErrAccountFrozen     = errors.New("account is frozen")

	// Erros estruturais: nunca são re-tentados
	ErrMalformedRequest       = errors.New("malformed payment request")
	ErrMissingIdempotencyKey  = errors.New("idempotency key is required")
	ErrInvalidIdempotencyKey  = errors.New("idempotency key has an invalid format")
	ErrInvalidAccount         = errors.New("source and destination accounts are required")
	ErrSameAccount            = errors.New("source and destination accounts must differ")
	ErrInvalidCurrency        = errors.New("currency must be a 3-letter ISO code")
	ErrIdempotencyKeyReused   = errors.New("idempotency key already used with a different request")
	ErrIdempotencyUnavailable = errors.New("idempotency store unavailable")

	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	ErrInvalidTransition = errors.New("invalid phase transition")

	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationExpired   = errors.New("reservation expired")
	ErrReservationCommitted = errors.New("reservation already committed")
	ErrReservationReleased  = errors.New("reservation already released")

	ErrCommitAborted     = errors.New("commit aborted before ledger acknowledgement")
	ErrRequeueNotAllowed = errors.New("dead letter cannot be requeued")
	ErrTransport         = errors.New("transport failure")
)

// IsStructural indica falhas de formato que vão direto para revisão manual.
func IsStructural(err error) bool {
	for _, target := range []error{
		ErrMalformedRequest,
		ErrMissingIdempotencyKey,
		ErrInvalidIdempotencyKey,
		ErrInvalidAmount,
		ErrInvalidAccount,
		ErrSameAccount,
		ErrInvalidCurrency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

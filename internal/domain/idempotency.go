package domain

import "time"

type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "PENDING"
	IdempotencyCompleted IdempotencyStatus = "COMPLETED"
)

// PaymentOutcome é a resposta terminal cacheada e devolvida literalmente em reenvios.
type PaymentOutcome struct {
	TransactionID string      `json:"transaction_id"`
	Status        FinalStatus `json:"status"`
	Reason        ReasonCode  `json:"reason,omitempty"`
	StatusCode    int         `json:"status_code"`
	CompletedAt   time.Time   `json:"completed_at"`
}

func OutcomeFromRecord(rec TransactionRecord) PaymentOutcome {
	return PaymentOutcome{
		TransactionID: rec.TransactionID,
		Status:        rec.FinalStatus,
		Reason:        rec.Reason,
		StatusCode:    rec.FinalStatus.HTTPStatus(),
		CompletedAt:   rec.CompletedAt,
	}
}

type IdempotencyRecord struct {
	Key           string            `json:"key"`
	TransactionID string            `json:"transaction_id"`
	RequestHash   string            `json:"request_hash"`
	Status        IdempotencyStatus `json:"status"`
	Outcome       *PaymentOutcome   `json:"outcome,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

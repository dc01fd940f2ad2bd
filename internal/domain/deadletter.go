package domain

import "time"

type FailureReason string

const (
	FailureDispatchTransport FailureReason = "DISPATCH_TRANSPORT"
	FailureStateStore        FailureReason = "STATE_STORE"
	FailureMalformedRequest  FailureReason = "MALFORMED_REQUEST"
	FailureCommitExhausted   FailureReason = "COMMIT_EXHAUSTED"
)

// Transient indica se a falha pode ser re-tentada automaticamente.
// Falhas de commit já esgotaram o backoff do committer e vão para revisão manual.
func (r FailureReason) Transient() bool {
	return r == FailureDispatchTransport || r == FailureStateStore
}

type DeadLetterStatus string

const (
	DeadLetterScheduled    DeadLetterStatus = "SCHEDULED"
	DeadLetterRetrying     DeadLetterStatus = "RETRYING"
	DeadLetterManualReview DeadLetterStatus = "MANUAL_REVIEW"
	DeadLetterResolved     DeadLetterStatus = "RESOLVED"
)

type DeadLetterEnvelope struct {
	ID              string           `json:"id"`
	TransactionID   string           `json:"transaction_id"`
	OriginalRequest PaymentRequest   `json:"original_request"`
	FailureReason   FailureReason    `json:"failure_reason"`
	Detail          string           `json:"detail,omitempty"`
	Attempt         int              `json:"attempt"`
	NextRetryAt     time.Time        `json:"next_retry_at"`
	Status          DeadLetterStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ManualReviewSignal é publicado para o time de operações.
type ManualReviewSignal struct {
	EnvelopeID    string        `json:"envelope_id"`
	TransactionID string        `json:"transaction_id"`
	FailureReason FailureReason `json:"failure_reason"`
	Detail        string        `json:"detail,omitempty"`
	Attempt       int           `json:"attempt"`
	RaisedAt      time.Time     `json:"raised_at"`
}

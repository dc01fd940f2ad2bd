package domain

import "time"

type AuditEventType string

const (
	AuditDispatch         AuditEventType = "dispatch"
	AuditVerdictReceived  AuditEventType = "verdict.received"
	AuditVerdictIgnored   AuditEventType = "verdict.ignored_late"
	AuditVerdictStale     AuditEventType = "verdict.stale_attempt"
	AuditDecision         AuditEventType = "decision"
	AuditCommitted        AuditEventType = "ledger.commit"
	AuditReleased         AuditEventType = "ledger.release"
	AuditRejected         AuditEventType = "transaction.rejected"
	AuditFailed           AuditEventType = "transaction.failed"
	AuditAttemptAbandoned AuditEventType = "attempt.abandoned"
	AuditManualResolution AuditEventType = "manual.resolution"
)

// AuditEvent é append-only; Sequence é atribuído pelo repositório e cresce por transação.
type AuditEvent struct {
	TransactionID string         `json:"transaction_id" bson:"transaction_id"`
	Sequence      int64          `json:"sequence" bson:"sequence"`
	Type          AuditEventType `json:"event_type" bson:"event_type"`
	Payload       map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp" bson:"timestamp"`
}

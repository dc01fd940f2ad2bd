package domain

import (
	"net/http"
	"time"
)

type FinalStatus string

const (
	StatusCompleted FinalStatus = "COMPLETED"
	StatusRejected  FinalStatus = "REJECTED"
	StatusFailed    FinalStatus = "FAILED"
)

// StatusSubmitted é devolvido no 202 enquanto a orquestração não termina.
const StatusSubmitted = "SUBMITTED"

// TransactionRecord é criado uma única vez pelo committer e nunca alterado.
type TransactionRecord struct {
	TransactionID       string      `json:"transaction_id"`
	IdempotencyKey      string      `json:"idempotency_key"`
	FinalStatus         FinalStatus `json:"final_status"`
	Reason              ReasonCode  `json:"reason,omitempty"`
	LedgerReservationID string      `json:"ledger_reservation_id,omitempty"`
	SourceAccount       string      `json:"source_account"`
	DestAccount         string      `json:"dest_account"`
	Amount              int64       `json:"amount"`
	Currency            string      `json:"currency"`
	Fee                 int64       `json:"fee"`
	CompletedAt         time.Time   `json:"completed_at"`
}

// HTTPStatus é o status code "original" devolvido para reenvios da mesma chave.
func (s FinalStatus) HTTPStatus() int {
	switch s {
	case StatusCompleted:
		return http.StatusOK
	case StatusRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

package domain

import "time"

type ValidatorKind string

const (
	ValidatorFraud  ValidatorKind = "FRAUD"
	ValidatorLimit  ValidatorKind = "LIMIT"
	ValidatorLedger ValidatorKind = "LEDGER"
)

// ValidatorKinds na ordem de prioridade usada para escolher o motivo de rejeição.
var ValidatorKinds = []ValidatorKind{ValidatorFraud, ValidatorLimit, ValidatorLedger}

func (k ValidatorKind) Valid() bool {
	switch k {
	case ValidatorFraud, ValidatorLimit, ValidatorLedger:
		return true
	}
	return false
}

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDecline Decision = "DECLINE"
	DecisionError   Decision = "ERROR"
)

// ValidationRequest é o envelope enviado a cada validador.
// Adaptadores devem ser idempotentes em (TransactionID, AttemptNonce).
type ValidationRequest struct {
	TransactionID string        `json:"transaction_id"`
	AttemptNonce  string        `json:"attempt_nonce"`
	ValidatorKind ValidatorKind `json:"validator_kind"`
	SourceAccount string        `json:"source_account"`
	DestAccount   string        `json:"dest_account"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	PartitionKey  string        `json:"partition_key"`
}

type Verdict struct {
	TransactionID string        `json:"transaction_id" bson:"transaction_id"`
	AttemptNonce  string        `json:"attempt_nonce" bson:"attempt_nonce"`
	Kind          ValidatorKind `json:"validator_kind" bson:"validator_kind"`
	Decision      Decision      `json:"decision" bson:"decision"`
	Detail        string        `json:"detail,omitempty" bson:"detail,omitempty"`
	ReservationID string        `json:"reservation_id,omitempty" bson:"reservation_id,omitempty"`
	ReceivedAt    time.Time     `json:"received_at" bson:"received_at"`
}

func (v Verdict) Approved() bool {
	return v.Decision == DecisionApprove
}

// HoldsReservation indica um veredito do Ledger que deixou fundos reservados.
func (v Verdict) HoldsReservation() bool {
	return v.Kind == ValidatorLedger && v.ReservationID != ""
}

// Reservation é uma reserva provisória de fundos no ledger, com expiração definida pelo servidor.
type Reservation struct {
	ID            string    `json:"reservation_id"`
	TransactionID string    `json:"transaction_id"`
	Account       string    `json:"account"`
	Amount        int64     `json:"amount"`
	ExpiresAt     time.Time `json:"expires_at"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfirmationEvent vai para a camada de notificação, exatamente uma vez por transação.
type ConfirmationEvent struct {
	TransactionID string      `json:"transaction_id"`
	FinalStatus   FinalStatus `json:"final_status"`
	Reason        ReasonCode  `json:"reason,omitempty"`
	SourceAccount string      `json:"source_account"`
	DestAccount   string      `json:"dest_account"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	Fee           int64       `json:"fee"`
	CompletedAt   time.Time   `json:"completed_at"`
}

func ConfirmationFromRecord(rec TransactionRecord) ConfirmationEvent {
	return ConfirmationEvent{
		TransactionID: rec.TransactionID,
		FinalStatus:   rec.FinalStatus,
		Reason:        rec.Reason,
		SourceAccount: rec.SourceAccount,
		DestAccount:   rec.DestAccount,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Fee:           rec.Fee,
		CompletedAt:   rec.CompletedAt,
	}
}

// FeeSchedule cobra uma taxa em basis points (1 bp = 0,01%).
type FeeSchedule struct {
	BasisPoints int64
}

var tenThousand = decimal.NewFromInt(10_000)

// FeeFor arredonda meio-para-par para não enviesar a taxa em nenhuma direção.
func (f FeeSchedule) FeeFor(amount int64) int64 {
	if f.BasisPoints <= 0 || amount <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(f.BasisPoints)).
		Div(tenThousand).
		RoundBank(0)
	return fee.IntPart()
}

package validator

import (
	"context"
	"errors"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// LedgerValidator aprova reservando os fundos; o id da reserva segue no veredito.
type LedgerValidator struct {
	ledger gateway.LedgerClient
}

func NewLedgerValidator(ledger gateway.LedgerClient) *LedgerValidator {
	return &LedgerValidator{ledger: ledger}
}

func (v *LedgerValidator) Kind() domain.ValidatorKind {
	return domain.ValidatorLedger
}

func (v *LedgerValidator) Validate(ctx context.Context, req domain.ValidationRequest) (domain.Verdict, error) {
	reservation, err := v.ledger.Reserve(ctx, req.TransactionID, req.SourceAccount, req.Amount)
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrAccountNotFound):
		return domain.Verdict{Decision: domain.DecisionDecline, Detail: err.Error()}, nil
	case err != nil:
		return domain.Verdict{}, err
	}

	return domain.Verdict{
		Decision:      domain.DecisionApprove,
		ReservationID: reservation.ID,
	}, nil
}

package validator

import (
	"context"
	"errors"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// LimitValidator confere saldo disponível, limite por transação e bloqueio da conta de origem.
type LimitValidator struct {
	accounts gateway.AccountRepository
}

func NewLimitValidator(accounts gateway.AccountRepository) *LimitValidator {
	return &LimitValidator{accounts: accounts}
}

func (v *LimitValidator) Kind() domain.ValidatorKind {
	return domain.ValidatorLimit
}

func (v *LimitValidator) Validate(ctx context.Context, req domain.ValidationRequest) (domain.Verdict, error) {
	account, err := v.accounts.GetByID(ctx, req.SourceAccount)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Verdict{Decision: domain.DecisionDecline, Detail: err.Error()}, nil
	}
	if err != nil {
		return domain.Verdict{}, err
	}

	if err := account.CanSpend(req.Amount); err != nil {
		return domain.Verdict{Decision: domain.DecisionDecline, Detail: err.Error()}, nil
	}
	return domain.Verdict{Decision: domain.DecisionApprove}, nil
}

package validator

import (
	"context"
	"fmt"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// FraudRules é um motor de regras simples: teto por transação e contas bloqueadas.
type FraudRules struct {
	MaxAmount       int64 // 0 = sem teto
	BlockedAccounts []string
}

type FraudValidator struct {
	maxAmount int64
	blocked   map[string]bool
}

func NewFraudValidator(rules FraudRules) *FraudValidator {
	blocked := make(map[string]bool, len(rules.BlockedAccounts))
	for _, a := range rules.BlockedAccounts {
		blocked[a] = true
	}
	return &FraudValidator{maxAmount: rules.MaxAmount, blocked: blocked}
}

func (v *FraudValidator) Kind() domain.ValidatorKind {
	return domain.ValidatorFraud
}

func (v *FraudValidator) Validate(ctx context.Context, req domain.ValidationRequest) (domain.Verdict, error) {
	verdict := domain.Verdict{Decision: domain.DecisionApprove}

	switch {
	case v.blocked[req.SourceAccount]:
		verdict.Decision = domain.DecisionDecline
		verdict.Detail = fmt.Sprintf("source account %s is blocked", req.SourceAccount)
	case v.blocked[req.DestAccount]:
		verdict.Decision = domain.DecisionDecline
		verdict.Detail = fmt.Sprintf("destination account %s is blocked", req.DestAccount)
	case v.maxAmount > 0 && req.Amount > v.maxAmount:
		verdict.Decision = domain.DecisionDecline
		verdict.Detail = fmt.Sprintf("amount %d above fraud threshold %d", req.Amount, v.maxAmount)
	}
	return verdict, nil
}

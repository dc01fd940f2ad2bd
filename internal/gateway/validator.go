package gateway

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// Validator é o contrato uniforme dos adaptadores (Fraud, Limit, Ledger).
// Um erro retornado significa falha de transporte; recusa de negócio vem como Verdict DECLINE.
type Validator interface {
	Kind() domain.ValidatorKind
	Validate(ctx context.Context, req domain.ValidationRequest) (domain.Verdict, error)
}

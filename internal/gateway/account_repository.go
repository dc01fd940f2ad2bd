package gateway

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// AccountRepository é a fonte de saldo/limites do validador LIMIT.
// O Usecase só interage com isso, sem saber se é Postgres ou memória.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// AccountWriter grava perfis de conta (seed local e CLI de operação).
type AccountWriter interface {
	Upsert(ctx context.Context, account domain.Account) error
}

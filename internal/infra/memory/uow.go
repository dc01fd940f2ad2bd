package memory

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// UnitOfWork em memória não tem rollback: cada repositório já é atômico por operação.
type UnitOfWork struct{}

type memoryTx struct{}

func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{}
}

func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, gateway.TransactionKey, memoryTx{}))
}

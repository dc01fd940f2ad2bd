package gateway

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type TransactionRepository interface {
	// Create é create-once: se o registro já existir, devolve o existente com created=false.
	Create(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, bool, error)
	// GetByID retorna domain.ErrNotFound se não existir.
	GetByID(ctx context.Context, transactionID string) (*domain.TransactionRecord, error)
	// WithTx segue o mesmo padrão da UoW para participar da transação atômica
	WithTx(tx TransactionObject) TransactionRepository
}

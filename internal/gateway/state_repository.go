package gateway

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// OrchestrationStateRepository guarda o estado durável de cada orquestração.
// Save usa controle otimista: state.Version precisa bater com o persistido e é incrementado.
type OrchestrationStateRepository interface {
	Create(ctx context.Context, state *domain.OrchestrationState) error
	Get(ctx context.Context, transactionID string) (*domain.OrchestrationState, error)
	Save(ctx context.Context, state *domain.OrchestrationState) error
	// ListActive devolve os estados ainda não arquivados (usado na recuperação).
	ListActive(ctx context.Context) ([]*domain.OrchestrationState, error)
	Archive(ctx context.Context, transactionID string) error
	WithTx(tx TransactionObject) OrchestrationStateRepository
}

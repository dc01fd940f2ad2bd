package gateway

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type AuditRepository interface {
	// Append atribui event.Sequence (monotônico por transação) e grava o evento.
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByTransaction(ctx context.Context, transactionID string) ([]domain.AuditEvent, error)
}

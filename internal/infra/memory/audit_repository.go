package memory

import (
	"context"
	"sync"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type AuditRepository struct {
	mu     sync.Mutex
	events map[string][]domain.AuditEvent
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{events: make(map[string][]domain.AuditEvent)}
}

func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.Sequence = int64(len(r.events[event.TransactionID]) + 1)
	r.events[event.TransactionID] = append(r.events[event.TransactionID], *event)
	return nil
}

func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID string) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events[transactionID]...), nil
}

package memory

import (
	"context"
	"sync"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

type TransactionRepository struct {
	mu      sync.Mutex
	records map[string]domain.TransactionRecord
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{records: make(map[string]domain.TransactionRecord)}
}

func (r *TransactionRepository) Create(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.TransactionID]; ok {
		return &existing, false, nil
	}
	r.records[record.TransactionID] = *record
	stored := *record
	return &stored, true, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, transactionID string) (*domain.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (r *TransactionRepository) WithTx(tx gateway.TransactionObject) gateway.TransactionRepository {
	return r
}

// Count existe para os testes de "exatamente um registro".
func (r *TransactionRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

package memory

import (
	"context"
	"sync"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountRepository(accounts ...domain.Account) *AccountRepository {
	r := &AccountRepository{accounts: make(map[string]domain.Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (r *AccountRepository) Upsert(ctx context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.ID] = account
	return nil
}

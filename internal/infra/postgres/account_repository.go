package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// AccountRepository implementa gateway.AccountRepository usando pgx/v5
type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: pool}
}

const getAccount = `
SELECT id, balance, per_transaction_limit, frozen, updated_at
FROM accounts
WHERE id = $1`

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.QueryRow(ctx, getAccount, id).
		Scan(&a.ID, &a.Balance, &a.PerTransactionLimit, &a.Frozen, &a.UpdatedAt)
	if err != nil {
		// pgx retorna pgx.ErrNoRows, diferente de sql.ErrNoRows
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

const upsertAccount = `
INSERT INTO accounts (id, balance, per_transaction_limit, frozen, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE
SET balance = EXCLUDED.balance,
    per_transaction_limit = EXCLUDED.per_transaction_limit,
    frozen = EXCLUDED.frozen,
    updated_at = NOW()`

// Upsert atende o PUT /accounts e o paymentctl accounts put.
func (r *AccountRepository) Upsert(ctx context.Context, a domain.Account) error {
	if _, err := r.db.Exec(ctx, upsertAccount, a.ID, a.Balance, a.PerTransactionLimit, a.Frozen); err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

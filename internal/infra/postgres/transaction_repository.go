package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

type TransactionRepository struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool, db: pool}
}

const insertTransactionRecord = `
INSERT INTO transaction_records (
    transaction_id, idempotency_key, final_status, reason, ledger_reservation_id,
    source_account, dest_account, amount, currency, fee, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (transaction_id) DO NOTHING`

// Create é create-once: o registro nunca é sobrescrito.
func (r *TransactionRepository) Create(ctx context.Context, rec *domain.TransactionRecord) (*domain.TransactionRecord, bool, error) {
	tag, err := r.db.Exec(ctx, insertTransactionRecord,
		rec.TransactionID, rec.IdempotencyKey, rec.FinalStatus, rec.Reason, rec.LedgerReservationID,
		rec.SourceAccount, rec.DestAccount, rec.Amount, rec.Currency, rec.Fee, rec.CompletedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create transaction record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := r.GetByID(ctx, rec.TransactionID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	stored := *rec
	return &stored, true, nil
}

const getTransactionRecord = `
SELECT transaction_id, idempotency_key, final_status, reason, ledger_reservation_id,
       source_account, dest_account, amount, currency, fee, completed_at
FROM transaction_records
WHERE transaction_id = $1`

func (r *TransactionRepository) GetByID(ctx context.Context, transactionID string) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	err := r.db.QueryRow(ctx, getTransactionRecord, transactionID).Scan(
		&rec.TransactionID, &rec.IdempotencyKey, &rec.FinalStatus, &rec.Reason, &rec.LedgerReservationID,
		&rec.SourceAccount, &rec.DestAccount, &rec.Amount, &rec.Currency, &rec.Fee, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction record: %w", err)
	}
	return &rec, nil
}

func (r *TransactionRepository) WithTx(tx gateway.TransactionObject) gateway.TransactionRepository {
	return &TransactionRepository{pool: r.pool, db: txOr(r.pool, tx)}
}

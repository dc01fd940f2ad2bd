package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// IdempotencyRepository no Postgres participa da UoW do committer:
// a chave é completada na mesma transação que grava o TransactionRecord.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
	db   DBTX
	now  func() time.Time
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool, db: pool, now: time.Now}
}

// Só substitui a linha existente se ela já expirou
const claimIdempotencyKey = `
INSERT INTO idempotency_records (key, transaction_id, request_hash, status, outcome, created_at, expires_at)
VALUES ($1, $2, $3, 'PENDING', NULL, $4, $5)
ON CONFLICT (key) DO UPDATE
SET transaction_id = EXCLUDED.transaction_id,
    request_hash = EXCLUDED.request_hash,
    status = 'PENDING',
    outcome = NULL,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
WHERE idempotency_records.expires_at <= EXCLUDED.created_at
RETURNING key`

func (r *IdempotencyRepository) CreateIfAbsent(ctx context.Context, rec domain.IdempotencyRecord, ttl time.Duration) (*domain.IdempotencyRecord, bool, error) {
	now := r.now()
	rec.Status = domain.IdempotencyPending
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)

	var key string
	err := r.db.QueryRow(ctx, claimIdempotencyKey, rec.Key, rec.TransactionID, rec.RequestHash, rec.CreatedAt, rec.ExpiresAt).Scan(&key)
	if err == nil {
		return &rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("idempotency key %q vanished during claim", rec.Key)
	}
	return existing, false, nil
}

const getIdempotencyRecord = `
SELECT key, transaction_id, request_hash, status, outcome, created_at, expires_at
FROM idempotency_records
WHERE key = $1 AND expires_at > $2`

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var outcome []byte
	err := r.db.QueryRow(ctx, getIdempotencyRecord, key, r.now()).Scan(
		&rec.Key, &rec.TransactionID, &rec.RequestHash, &rec.Status, &outcome, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	if len(outcome) > 0 {
		var o domain.PaymentOutcome
		if err := json.Unmarshal(outcome, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached outcome: %w", err)
		}
		rec.Outcome = &o
	}
	return &rec, nil
}

const completeIdempotencyKey = `
UPDATE idempotency_records
SET status = 'COMPLETED', outcome = $2, expires_at = $3
WHERE key = $1 AND status = 'PENDING'`

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, outcome domain.PaymentOutcome, ttl time.Duration) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	tag, err := r.db.Exec(ctx, completeIdempotencyKey, key, data, r.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *IdempotencyRepository) WithTx(tx gateway.TransactionObject) gateway.IdempotencyRepository {
	return &IdempotencyRepository{pool: r.pool, db: txOr(r.pool, tx), now: r.now}
}

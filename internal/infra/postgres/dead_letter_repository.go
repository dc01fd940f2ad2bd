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
)

type DeadLetterRepository struct {
	db DBTX
}

func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{db: pool}
}

const deadLetterColumns = `id, transaction_id, original_request, failure_reason, detail, attempt, next_retry_at, status, created_at, updated_at`

const upsertDeadLetter = `
INSERT INTO dead_letters (` + deadLetterColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE
SET failure_reason = EXCLUDED.failure_reason,
    detail = EXCLUDED.detail,
    attempt = EXCLUDED.attempt,
    next_retry_at = EXCLUDED.next_retry_at,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at`

func (r *DeadLetterRepository) Save(ctx context.Context, env *domain.DeadLetterEnvelope) error {
	req, err := json.Marshal(env.OriginalRequest)
	if err != nil {
		return fmt.Errorf("failed to marshal original request: %w", err)
	}

	_, err = r.db.Exec(ctx, upsertDeadLetter,
		env.ID, env.TransactionID, req, env.FailureReason, env.Detail, env.Attempt,
		env.NextRetryAt, env.Status, env.CreatedAt, env.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) Get(ctx context.Context, id string) (*domain.DeadLetterEnvelope, error) {
	env, err := scanDeadLetter(r.db.QueryRow(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return env, nil
}

// SKIP LOCKED permite mais de um poller sem que dois peguem o mesmo envelope
const claimDueDeadLetters = `
UPDATE dead_letters SET status = 'RETRYING', updated_at = $1
WHERE id IN (
    SELECT id FROM dead_letters
    WHERE status = 'SCHEDULED' AND next_retry_at <= $1
    ORDER BY next_retry_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + deadLetterColumns

func (r *DeadLetterRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeadLetterEnvelope, error) {
	rows, err := r.db.Query(ctx, claimDueDeadLetters, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim dead letters: %w", err)
	}
	return collectDeadLetters(rows)
}

func (r *DeadLetterRepository) List(ctx context.Context, status domain.DeadLetterStatus) ([]*domain.DeadLetterEnvelope, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE ($1 = '' OR status = $1) ORDER BY created_at`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return collectDeadLetters(rows)
}

func (r *DeadLetterRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	return nil
}

func collectDeadLetters(rows pgx.Rows) ([]*domain.DeadLetterEnvelope, error) {
	defer rows.Close()

	var out []*domain.DeadLetterEnvelope
	for rows.Next() {
		env, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func scanDeadLetter(row pgx.Row) (*domain.DeadLetterEnvelope, error) {
	var env domain.DeadLetterEnvelope
	var req []byte
	err := row.Scan(
		&env.ID, &env.TransactionID, &req, &env.FailureReason, &env.Detail, &env.Attempt,
		&env.NextRetryAt, &env.Status, &env.CreatedAt, &env.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(req, &env.OriginalRequest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original request: %w", err)
	}
	return &env, nil
}

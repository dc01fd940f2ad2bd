package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// OrchestrationStateRepository guarda o estado como JSONB; a coluna version faz o controle otimista.
type OrchestrationStateRepository struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewOrchestrationStateRepository(pool *pgxpool.Pool) *OrchestrationStateRepository {
	return &OrchestrationStateRepository{pool: pool, db: pool}
}

const insertState = `
INSERT INTO orchestration_states (transaction_id, phase, data, version, created_at, updated_at)
VALUES ($1, $2, $3, 1, $4, $5)`

func (r *OrchestrationStateRepository) Create(ctx context.Context, s *domain.OrchestrationState) error {
	s.Version = 1
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal orchestration state: %w", err)
	}

	_, err = r.db.Exec(ctx, insertState, s.TransactionID, s.Phase, data, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create orchestration state: %w", err)
	}
	return nil
}

const getState = `SELECT data, version FROM orchestration_states WHERE transaction_id = $1`

func (r *OrchestrationStateRepository) Get(ctx context.Context, transactionID string) (*domain.OrchestrationState, error) {
	var data []byte
	var version int64
	if err := r.db.QueryRow(ctx, getState, transactionID).Scan(&data, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get orchestration state: %w", err)
	}
	return decodeState(data, version)
}

const updateState = `
UPDATE orchestration_states
SET phase = $2, data = $3, version = version + 1, updated_at = $4
WHERE transaction_id = $1 AND version = $5`

func (r *OrchestrationStateRepository) Save(ctx context.Context, s *domain.OrchestrationState) error {
	expected := s.Version
	s.Version++
	data, err := json.Marshal(s)
	if err != nil {
		s.Version = expected
		return fmt.Errorf("failed to marshal orchestration state: %w", err)
	}

	tag, err := r.db.Exec(ctx, updateState, s.TransactionID, s.Phase, data, s.UpdatedAt, expected)
	if err != nil {
		s.Version = expected
		return fmt.Errorf("failed to save orchestration state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.Version = expected
		if _, err := r.Get(ctx, s.TransactionID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	return nil
}

const listActiveStates = `
SELECT data, version FROM orchestration_states
WHERE NOT archived
ORDER BY created_at`

func (r *OrchestrationStateRepository) ListActive(ctx context.Context) ([]*domain.OrchestrationState, error) {
	rows, err := r.db.Query(ctx, listActiveStates)
	if err != nil {
		return nil, fmt.Errorf("failed to list active states: %w", err)
	}
	defer rows.Close()

	var out []*domain.OrchestrationState
	for rows.Next() {
		var data []byte
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("failed to scan orchestration state: %w", err)
		}
		s, err := decodeState(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const archiveState = `UPDATE orchestration_states SET archived = TRUE WHERE transaction_id = $1`

func (r *OrchestrationStateRepository) Archive(ctx context.Context, transactionID string) error {
	tag, err := r.db.Exec(ctx, archiveState, transactionID)
	if err != nil {
		return fmt.Errorf("failed to archive orchestration state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrchestrationStateRepository) WithTx(tx gateway.TransactionObject) gateway.OrchestrationStateRepository {
	return &OrchestrationStateRepository{pool: r.pool, db: txOr(r.pool, tx)}
}

func decodeState(data []byte, version int64) (*domain.OrchestrationState, error) {
	var s domain.OrchestrationState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orchestration state: %w", err)
	}
	s.Version = version
	return &s, nil
}

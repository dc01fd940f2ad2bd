package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
)

type ResolveAction string

const (
	// ResolveReleaseKey libera a chave: o cliente pode reenviar e gerar outra transação.
	ResolveReleaseKey ResolveAction = "release-key"
	// ResolveComplete fixa o desfecho registrado (FAILED) como resposta da chave.
	ResolveComplete ResolveAction = "complete"
)

var ErrNotInManualReview = errors.New("dead letter is not waiting for manual review")

// DeadLetterUseCase é o lado do operador da fila de revisão manual.
type DeadLetterUseCase struct {
	repo        gateway.DeadLetterRepository
	manager     *retry.Manager
	idempotency gateway.IdempotencyRepository
	records     gateway.TransactionRepository
	audit       *audit.Writer
	ttl         time.Duration
	Now         func() time.Time
}

func NewDeadLetterUseCase(
	repo gateway.DeadLetterRepository,
	manager *retry.Manager,
	idempotency gateway.IdempotencyRepository,
	records gateway.TransactionRepository,
	auditWriter *audit.Writer,
	ttl time.Duration,
) *DeadLetterUseCase {
	return &DeadLetterUseCase{
		repo:        repo,
		manager:     manager,
		idempotency: idempotency,
		records:     records,
		audit:       auditWriter,
		ttl:         ttl,
		Now:         time.Now,
	}
}

func (u *DeadLetterUseCase) List(ctx context.Context, status domain.DeadLetterStatus) ([]*domain.DeadLetterEnvelope, error) {
	return u.repo.List(ctx, status)
}

func (u *DeadLetterUseCase) Get(ctx context.Context, id string) (*domain.DeadLetterEnvelope, error) {
	return u.repo.Get(ctx, id)
}

// Resolve fecha um envelope em revisão manual e tira a chave de idempotência do PENDING.
func (u *DeadLetterUseCase) Resolve(ctx context.Context, id string, action ResolveAction) (*domain.DeadLetterEnvelope, error) {
	env, err := u.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if env.Status != domain.DeadLetterManualReview {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotInManualReview, id, env.Status)
	}

	key := env.OriginalRequest.IdempotencyKey
	switch action {
	case ResolveReleaseKey:
		if err := u.idempotency.Release(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to release idempotency key: %w", err)
		}
	case ResolveComplete:
		rec, err := u.records.GetByID(ctx, env.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("no transaction record to complete %s with: %w", env.TransactionID, err)
		}
		if err := u.idempotency.Complete(ctx, key, domain.OutcomeFromRecord(*rec), u.ttl); err != nil {
			return nil, fmt.Errorf("failed to complete idempotency key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown resolve action %q", action)
	}

	env.Status = domain.DeadLetterResolved
	env.UpdatedAt = u.Now()
	if err := u.repo.Save(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save dead letter: %w", err)
	}

	u.audit.Record(ctx, env.TransactionID, domain.AuditManualResolution, map[string]any{
		"action":      string(action),
		"envelope_id": env.ID,
	})
	log.Info().
		Str("envelope_id", env.ID).
		Str("transaction_id", env.TransactionID).
		Str("action", string(action)).
		Msg("Dead-letter resolvida manualmente")
	return env, nil
}

// Requeue devolve o envelope para a fila automática com as tentativas zeradas.
func (u *DeadLetterUseCase) Requeue(ctx context.Context, id string) (*domain.DeadLetterEnvelope, error) {
	return u.manager.Requeue(ctx, id)
}

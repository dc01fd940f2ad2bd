package gateway

import (
	"context"
	"time"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type DeadLetterRepository interface {
	Save(ctx context.Context, envelope *domain.DeadLetterEnvelope) error
	Get(ctx context.Context, id string) (*domain.DeadLetterEnvelope, error)
	// ClaimDue marca como RETRYING, de forma atômica, os envelopes SCHEDULED vencidos.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeadLetterEnvelope, error)
	// List com status vazio devolve todos.
	List(ctx context.Context, status domain.DeadLetterStatus) ([]*domain.DeadLetterEnvelope, error)
	Delete(ctx context.Context, id string) error
}

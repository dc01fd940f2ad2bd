package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type DeadLetterRepository struct {
	mu        sync.Mutex
	envelopes map[string]domain.DeadLetterEnvelope
}

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{envelopes: make(map[string]domain.DeadLetterEnvelope)}
}

func (r *DeadLetterRepository) Save(ctx context.Context, envelope *domain.DeadLetterEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes[envelope.ID] = *envelope
	return nil
}

func (r *DeadLetterRepository) Get(ctx context.Context, id string) (*domain.DeadLetterEnvelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	env, ok := r.envelopes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &env, nil
}

func (r *DeadLetterRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeadLetterEnvelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*domain.DeadLetterEnvelope
	for _, env := range r.envelopes {
		if env.Status == domain.DeadLetterScheduled && !env.NextRetryAt.After(now) {
			e := env
			due = append(due, &e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for _, env := range due {
		env.Status = domain.DeadLetterRetrying
		env.UpdatedAt = now
		r.envelopes[env.ID] = *env
	}
	return due, nil
}

func (r *DeadLetterRepository) List(ctx context.Context, status domain.DeadLetterStatus) ([]*domain.DeadLetterEnvelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.DeadLetterEnvelope
	for _, env := range r.envelopes {
		if status == "" || env.Status == status {
			e := env
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DeadLetterRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.envelopes, id)
	return nil
}

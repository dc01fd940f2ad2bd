package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	Now     func() time.Time
	// FailWith simula o store fora do ar.
	FailWith error
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		records: make(map[string]domain.IdempotencyRecord),
		Now:     time.Now,
	}
}

func (r *IdempotencyRepository) CreateIfAbsent(ctx context.Context, record domain.IdempotencyRecord, ttl time.Duration) (*domain.IdempotencyRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, false, r.FailWith
	}

	now := r.Now()
	if existing, ok := r.records[record.Key]; ok && !existing.Expired(now) {
		return &existing, false, nil
	}

	record.Status = domain.IdempotencyPending
	record.CreatedAt = now
	record.ExpiresAt = now.Add(ttl)
	r.records[record.Key] = record
	return &record, true, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}

	existing, ok := r.records[key]
	if !ok || existing.Expired(r.Now()) {
		return nil, nil
	}
	return &existing, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, outcome domain.PaymentOutcome, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}

	existing, ok := r.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status == domain.IdempotencyCompleted {
		return nil
	}
	existing.Status = domain.IdempotencyCompleted
	existing.Outcome = &outcome
	existing.ExpiresAt = r.Now().Add(ttl)
	r.records[key] = existing
	return nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

func (r *IdempotencyRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for key, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, key)
			purged++
		}
	}
	return purged, nil
}

// Len conta as chaves guardadas, inclusive as já expiradas que o janitor ainda não removeu.
func (r *IdempotencyRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

const (
	keyPrefix       = "idempotency:"
	maxWatchRetries = 3
)

// IdempotencyRepository usa SETNX como compare-and-set e o TTL nativo do Redis para expirar chaves.
type IdempotencyRepository struct {
	client *redis.Client
}

func NewIdempotencyRepository(client *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

func (r *IdempotencyRepository) CreateIfAbsent(ctx context.Context, rec domain.IdempotencyRecord, ttl time.Duration) (*domain.IdempotencyRecord, bool, error) {
	now := time.Now()
	rec.Status = domain.IdempotencyPending
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)

	bytes, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	// A chave pode expirar entre o SETNX e o GET; nesse caso tentamos de novo
	for i := 0; i < maxWatchRetries; i++ {
		ok, err := r.client.SetNX(ctx, keyPrefix+rec.Key, bytes, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if ok {
			return &rec, true, nil
		}

		existing, err := r.Get(ctx, rec.Key)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to claim idempotency key %q: contention", rec.Key)
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Não encontrado (cache miss)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &rec, nil
}

// Complete usa WATCH/MULTI para não sobrescrever uma chave liberada ou já completada.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, outcome domain.PaymentOutcome, ttl time.Duration) error {
	redisKey := keyPrefix + key

	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec domain.IdempotencyRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal idempotency record: %w", err)
		}
		if rec.Status == domain.IdempotencyCompleted {
			return nil
		}

		rec.Status = domain.IdempotencyCompleted
		rec.Outcome = &outcome
		rec.ExpiresAt = time.Now().Add(ttl)
		bytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal idempotency record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, bytes, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to complete idempotency key: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to complete idempotency key %q: contention", key)
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

func TestIdempotencyRepository_CreateIfAbsent_SingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewIdempotencyRepository()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.CreateIfAbsent(ctx, domain.IdempotencyRecord{Key: "k1", TransactionID: "t"}, time.Hour)
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestIdempotencyRepository_CompleteAndExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewIdempotencyRepository()
	repo.Now = func() time.Time { return now }

	_, created, err := repo.CreateIfAbsent(ctx, domain.IdempotencyRecord{Key: "k1", TransactionID: "t1"}, time.Hour)
	require.NoError(t, err)
	require.True(t, created)

	outcome := domain.PaymentOutcome{TransactionID: "t1", Status: domain.StatusCompleted, StatusCode: 200}
	require.NoError(t, repo.Complete(ctx, "k1", outcome, time.Hour))

	rec, err := repo.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.IdempotencyCompleted, rec.Status)
	assert.Equal(t, outcome, *rec.Outcome)

	now = now.Add(2 * time.Hour)
	rec, err = repo.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, created, err = repo.CreateIfAbsent(ctx, domain.IdempotencyRecord{Key: "k1", TransactionID: "t2"}, time.Hour)
	require.NoError(t, err)
	assert.True(t, created)
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

func TestLedger_Reserve_IdempotentPerTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := NewLedger(time.Minute)
	l.SetBalance("A", 1000)

	r1, err := l.Reserve(ctx, "txn-1", "A", 400)
	require.NoError(t, err)
	r2, err := l.Reserve(ctx, "txn-1", "A", 400)
	require.NoError(t, err)

	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, int64(400), l.Held("A"))
}

func TestLedger_Reserve_InsufficientFunds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := NewLedger(time.Minute)
	l.SetBalance("A", 500)

	_, err := l.Reserve(ctx, "txn-1", "A", 400)
	require.NoError(t, err)

	_, err = l.Reserve(ctx, "txn-2", "A", 200)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = l.Reserve(ctx, "txn-3", "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedger_CommitAndRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := NewLedger(time.Minute)
	l.SetBalance("A", 1000)

	r, err := l.Reserve(ctx, "txn-1", "A", 300)
	require.NoError(t, err)

	require.NoError(t, l.Commit(ctx, r.ID))
	require.NoError(t, l.Commit(ctx, r.ID), "commit is idempotent")
	assert.Equal(t, int64(700), l.Balance("A"))
	assert.ErrorIs(t, l.Release(ctx, r.ID), domain.ErrReservationCommitted)

	r2, err := l.Reserve(ctx, "txn-2", "A", 100)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, r2.ID))
	assert.ErrorIs(t, l.Commit(ctx, r2.ID), domain.ErrReservationReleased)
	assert.Equal(t, int64(0), l.Held("A"))
}

func TestLedger_ExpiredReservation_CannotCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedger(time.Second)
	l.Now = func() time.Time { return now }
	l.SetBalance("A", 1000)

	r, err := l.Reserve(ctx, "txn-1", "A", 300)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	assert.Equal(t, int64(0), l.Held("A"))
	assert.ErrorIs(t, l.Commit(ctx, r.ID), domain.ErrReservationReleased)
	assert.Equal(t, int64(1000), l.Balance("A"))
}

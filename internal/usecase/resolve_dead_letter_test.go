package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
)

type deadLetterFixture struct {
	uc      *DeadLetterUseCase
	repo    *memory.DeadLetterRepository
	idem    *memory.IdempotencyRepository
	records *memory.TransactionRepository
	audits  *memory.AuditRepository
}

func newDeadLetterFixture(t *testing.T) *deadLetterFixture {
	t.Helper()
	f := &deadLetterFixture{
		repo:    memory.NewDeadLetterRepository(),
		idem:    memory.NewIdempotencyRepository(),
		records: memory.NewTransactionRepository(),
		audits:  memory.NewAuditRepository(),
	}
	writer := audit.NewWriter(f.audits)
	manager := retry.NewManager(f.repo, memory.NewEventBus(), writer, retry.Policy{BaseDelay: time.Millisecond, MaxDelay: time.Second, MaxAttempts: 3})
	f.uc = NewDeadLetterUseCase(f.repo, manager, f.idem, f.records, writer, time.Hour)
	return f
}

func (f *deadLetterFixture) manualReview(t *testing.T, txnID, key string) *domain.DeadLetterEnvelope {
	t.Helper()
	ctx := context.Background()
	req := paymentRequest(txnID, key)
	_, _, err := f.idem.CreateIfAbsent(ctx, domain.IdempotencyRecord{Key: key, TransactionID: txnID, RequestHash: req.Fingerprint()}, time.Hour)
	require.NoError(t, err)

	env := &domain.DeadLetterEnvelope{
		ID:              retry.EnvelopeID(txnID),
		TransactionID:   txnID,
		OriginalRequest: req,
		FailureReason:   domain.FailureCommitExhausted,
		Attempt:         3,
		Status:          domain.DeadLetterManualReview,
	}
	require.NoError(t, f.repo.Save(ctx, env))
	return env
}

func TestDeadLetter_ResolveReleaseKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newDeadLetterFixture(t)
	env := f.manualReview(t, "txn-1", "k1")

	resolved, err := f.uc.Resolve(ctx, env.ID, ResolveReleaseKey)
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterResolved, resolved.Status)

	rec, err := f.idem.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	events, err := f.audits.ListByTransaction(ctx, "txn-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.AuditManualResolution, events[0].Type)

	_, err = f.uc.Resolve(ctx, env.ID, ResolveReleaseKey)
	assert.ErrorIs(t, err, ErrNotInManualReview)
}

func TestDeadLetter_ResolveCompleteUsesRecordedOutcome(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newDeadLetterFixture(t)
	env := f.manualReview(t, "txn-2", "k2")

	_, err := f.uc.Resolve(ctx, env.ID, ResolveComplete)
	require.ErrorIs(t, err, domain.ErrNotFound, "sem TransactionRecord não há desfecho para fixar")

	_, _, err = f.records.Create(ctx, &domain.TransactionRecord{
		TransactionID:  "txn-2",
		IdempotencyKey: "k2",
		FinalStatus:    domain.StatusFailed,
		Reason:         domain.ReasonLedgerCommitFailed,
	})
	require.NoError(t, err)

	_, err = f.uc.Resolve(ctx, env.ID, ResolveComplete)
	require.NoError(t, err)

	rec, err := f.idem.Get(ctx, "k2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.IdempotencyCompleted, rec.Status)
	assert.Equal(t, 502, rec.Outcome.StatusCode)
}

func TestDeadLetter_Requeue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newDeadLetterFixture(t)
	env := f.manualReview(t, "txn-3", "k3")
	env.FailureReason = domain.FailureDispatchTransport
	require.NoError(t, f.repo.Save(ctx, env))

	requeued, err := f.uc.Requeue(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterScheduled, requeued.Status)
	assert.Equal(t, 0, requeued.Attempt)

	list, err := f.uc.List(ctx, domain.DeadLetterScheduled)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeadLetter_RequeueAfterCommitFailureNeedsResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newDeadLetterFixture(t)
	env := f.manualReview(t, "txn-5", "k5")

	_, err := f.uc.Requeue(ctx, env.ID)
	require.ErrorIs(t, err, domain.ErrRequeueNotAllowed)

	stored, err := f.uc.Get(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterManualReview, stored.Status)
	assert.Equal(t, 3, stored.Attempt)

	_, err = f.uc.Resolve(ctx, env.ID, ResolveReleaseKey)
	assert.NoError(t, err)
}

func TestDeadLetter_UnknownAction(t *testing.T) {
	t.Parallel()
	f := newDeadLetterFixture(t)
	env := f.manualReview(t, "txn-4", "k4")

	_, err := f.uc.Resolve(context.Background(), env.ID, ResolveAction("delete"))
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
)

type fixture struct {
	deadLetters *memory.DeadLetterRepository
	idem        *memory.IdempotencyRepository
	audits      *memory.AuditRepository
	closed      bool
	load        loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		deadLetters: memory.NewDeadLetterRepository(),
		idem:        memory.NewIdempotencyRepository(),
		audits:      memory.NewAuditRepository(),
	}
	records := memory.NewTransactionRepository()
	accounts := memory.NewAccountRepository()
	writer := audit.NewWriter(f.audits)
	manager := retry.NewManager(f.deadLetters, nil, writer, retry.Policy{BaseDelay: time.Millisecond, MaxDelay: time.Second, MaxAttempts: 3})

	a := &app{
		deadLetters: usecase.NewDeadLetterUseCase(f.deadLetters, manager, f.idem, records, writer, time.Hour),
		payments:    usecase.NewGetPayment(records, memory.NewOrchestrationStateRepository(), writer),
		accounts:    usecase.NewAccounts(accounts, accounts, nil),
	}
	f.load = func(ctx context.Context) (*app, func(), error) {
		return a, func() { f.closed = true }, nil
	}
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, cleanup := newRootCmd(f.load)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	cleanup()
	return out.String(), err
}

func (f *fixture) manualReview(t *testing.T, txnID, key string) string {
	t.Helper()
	return f.manualReviewFor(t, txnID, key, domain.FailureCommitExhausted)
}

func (f *fixture) manualReviewFor(t *testing.T, txnID, key string, reason domain.FailureReason) string {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.idem.CreateIfAbsent(ctx, domain.IdempotencyRecord{Key: key, TransactionID: txnID}, time.Hour)
	require.NoError(t, err)

	env := &domain.DeadLetterEnvelope{
		ID:              retry.EnvelopeID(txnID),
		TransactionID:   txnID,
		OriginalRequest: domain.PaymentRequest{ID: txnID, IdempotencyKey: key, SourceAccount: "A", DestAccount: "B", Amount: 10, Currency: "USD"},
		FailureReason:   reason,
		Attempt:         5,
		Status:          domain.DeadLetterManualReview,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, f.deadLetters.Save(ctx, env))
	return env.ID
}

func TestDeadLetters_ListAndResolve(t *testing.T) {
	f := newFixture(t)
	id := f.manualReview(t, "txn-1", "k1")

	out, err := f.run(t, "deadletters", "list", "--status", "MANUAL_REVIEW")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "COMMIT_EXHAUSTED")
	assert.True(t, f.closed)

	_, err = f.run(t, "deadletters", "resolve", id)
	assert.ErrorContains(t, err, "exactly one")

	out, err = f.run(t, "dl", "resolve", id, "--release-key", "--json")
	require.NoError(t, err)

	var envs []domain.DeadLetterEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &envs))
	require.Len(t, envs, 1)
	assert.Equal(t, domain.DeadLetterResolved, envs[0].Status)

	rec, err := f.idem.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeadLetters_Requeue(t *testing.T) {
	f := newFixture(t)
	id := f.manualReviewFor(t, "txn-2", "k2", domain.FailureStateStore)

	out, err := f.run(t, "deadletters", "requeue", id)
	require.NoError(t, err)
	assert.Contains(t, out, "SCHEDULED")

	failed := f.manualReview(t, "txn-3", "k3")
	_, err = f.run(t, "deadletters", "requeue", failed)
	assert.ErrorIs(t, err, domain.ErrRequeueNotAllowed)

	_, err = f.run(t, "deadletters", "requeue", "dl-ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	writer := audit.NewWriter(f.audits)
	writer.Record(context.Background(), "txn-9", domain.AuditDispatch, map[string]any{"attempt_nonce": "n1"})

	out, err := f.run(t, "audit", "txn-9")
	require.NoError(t, err)
	assert.Contains(t, out, "dispatch")
	assert.Contains(t, out, `"attempt_nonce":"n1"`)

	_, err = f.run(t, "audit", "txn-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "accounts", "put", "A", "--balance", "10000", "--limit", "500")
	require.NoError(t, err)

	out, err := f.run(t, "accounts", "get", "A")
	require.NoError(t, err)

	var account usecase.AccountOutput
	require.NoError(t, json.Unmarshal([]byte(out), &account))
	assert.Equal(t, int64(500), account.PerTransactionLimit)
}

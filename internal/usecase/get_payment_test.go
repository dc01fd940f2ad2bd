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
)

func TestGetPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	records := memory.NewTransactionRepository()
	states := memory.NewOrchestrationStateRepository()
	audits := memory.NewAuditRepository()
	writer := audit.NewWriter(audits)
	uc := NewGetPayment(records, states, writer)

	now := time.Now()
	live := domain.NewOrchestrationState(paymentRequest("txn-live", "k1"), now)
	require.NoError(t, live.BeginAttempt("n1", now.Add(time.Second), now))
	require.NoError(t, states.Create(ctx, live))

	out, err := uc.Execute(ctx, "txn-live")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, out.Status)
	assert.Equal(t, domain.PhaseAwaitingValidations, out.Phase)
	assert.Nil(t, out.Record)

	_, _, err = records.Create(ctx, &domain.TransactionRecord{
		TransactionID: "txn-done",
		FinalStatus:   domain.StatusRejected,
		Reason:        domain.ReasonFraudDeclined,
	})
	require.NoError(t, err)

	out, err = uc.Execute(ctx, "txn-done")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusRejected), out.Status)
	assert.Equal(t, domain.PhaseRejected, out.Phase)
	assert.Equal(t, domain.ReasonFraudDeclined, out.Reason)

	_, err = uc.Execute(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetPayment_Audit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	writer := audit.NewWriter(memory.NewAuditRepository())
	uc := NewGetPayment(memory.NewTransactionRepository(), memory.NewOrchestrationStateRepository(), writer)

	writer.Record(ctx, "txn-1", domain.AuditDispatch, nil)
	writer.Record(ctx, "txn-1", domain.AuditDecision, map[string]any{"outcome": "PROCEED"})

	events, err := uc.Audit(ctx, "txn-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, domain.AuditDecision, events[1].Type)

	_, err = uc.Audit(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

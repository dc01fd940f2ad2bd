package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
)

// countingLedger conta chamadas e deixa o teste injetar falhas de commit.
type countingLedger struct {
	*memory.Ledger
	commits  atomic.Int32
	releases atomic.Int32

	mu         sync.Mutex
	commitHook func(ctx context.Context, call int) error
}

func (l *countingLedger) setCommitHook(fn func(ctx context.Context, call int) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commitHook = fn
}

func (l *countingLedger) Commit(ctx context.Context, reservationID string) error {
	n := int(l.commits.Add(1))
	l.mu.Lock()
	hook := l.commitHook
	l.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return err
		}
	}
	return l.Ledger.Commit(ctx, reservationID)
}

func (l *countingLedger) Release(ctx context.Context, reservationID string) error {
	l.releases.Add(1)
	return l.Ledger.Release(ctx, reservationID)
}

type failureCall struct {
	req    domain.PaymentRequest
	reason domain.FailureReason
	detail string
}

type recordingFailures struct {
	mu      sync.Mutex
	calls   []failureCall
	settled []string
}

func (f *recordingFailures) OnSettled(ctx context.Context, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, transactionID)
	return nil
}

func (f *recordingFailures) settledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.settled...)
}

func (f *recordingFailures) OnFailure(ctx context.Context, req domain.PaymentRequest, reason domain.FailureReason, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, failureCall{req: req, reason: reason, detail: detail})
	return nil
}

func (f *recordingFailures) reasons() []domain.FailureReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.FailureReason, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.reason
	}
	return out
}

type harness struct {
	ctx       context.Context
	bus       *memory.EventBus
	ledger    *countingLedger
	states    *memory.OrchestrationStateRepository
	records   *memory.TransactionRepository
	idem      *memory.IdempotencyRepository
	audits    *memory.AuditRepository
	failures  *recordingFailures
	committer *Committer
	orch      *Orchestrator
}

type harnessOption func(cfg *Config, ccfg *CommitterConfig)

func withDeadline(d time.Duration) harnessOption {
	return func(cfg *Config, _ *CommitterConfig) { cfg.AggregationDeadline = d }
}

func withCommitAttempts(n int) harnessOption {
	return func(_ *Config, ccfg *CommitterConfig) { ccfg.LedgerPolicy.MaxAttempts = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		ctx:      ctx,
		bus:      memory.NewEventBus(),
		ledger:   &countingLedger{Ledger: memory.NewLedger(time.Minute)},
		states:   memory.NewOrchestrationStateRepository(),
		records:  memory.NewTransactionRepository(),
		idem:     memory.NewIdempotencyRepository(),
		audits:   memory.NewAuditRepository(),
		failures: &recordingFailures{},
	}
	h.ledger.SetBalance("A", 10_000)

	cfg := Config{AggregationDeadline: 2 * time.Second}
	ccfg := CommitterConfig{
		LedgerPolicy:   retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3},
		IdempotencyTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg, &ccfg)
	}

	writer := audit.NewWriter(h.audits)
	h.committer = NewCommitter(h.ledger, h.records, h.states, h.idem, memory.NewUnitOfWork(), h.bus, writer, ccfg)
	h.orch = New(h.states, h.bus, h.committer, writer, h.failures, cfg)
	h.orch.NewNonce = func() string { return "n1" }

	require.NoError(t, h.orch.Start(ctx, nil))
	t.Cleanup(func() {
		cancel()
		h.orch.Wait()
	})
	return h
}

func paymentRequest(id string) domain.PaymentRequest {
	return domain.PaymentRequest{
		ID:             id,
		IdempotencyKey: "k-" + id,
		SourceAccount:  "A",
		DestAccount:    "B",
		Amount:         5000,
		Currency:       "USD",
		SubmittedAt:    time.Now(),
	}
}

func (h *harness) verdict(t *testing.T, txnID string, kind domain.ValidatorKind, decision domain.Decision) domain.Verdict {
	t.Helper()
	v := domain.Verdict{
		TransactionID: txnID,
		AttemptNonce:  "n1",
		Kind:          kind,
		Decision:      decision,
		ReceivedAt:    time.Now(),
	}
	if kind == domain.ValidatorLedger && decision == domain.DecisionApprove {
		res, err := h.ledger.Reserve(h.ctx, txnID, "A", 5000)
		require.NoError(t, err)
		v.ReservationID = res.ID
	}
	return v
}

func (h *harness) send(t *testing.T, verdicts ...domain.Verdict) {
	t.Helper()
	for _, v := range verdicts {
		require.NoError(t, h.orch.OnVerdict(h.ctx, v))
	}
}

func (h *harness) waitRecord(t *testing.T, txnID string) *domain.TransactionRecord {
	t.Helper()
	var rec *domain.TransactionRecord
	require.Eventually(t, func() bool {
		r, err := h.records.GetByID(h.ctx, txnID)
		if err != nil {
			return false
		}
		rec = r
		return true
	}, 3*time.Second, 5*time.Millisecond)
	return rec
}

func (h *harness) waitArchived(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		active, err := h.states.ListActive(h.ctx)
		return err == nil && len(active) == 0 && h.orch.ActiveCount() == 0
	}, 3*time.Second, 5*time.Millisecond)
}

func (h *harness) auditTypes(t *testing.T, txnID string) []domain.AuditEventType {
	t.Helper()
	events, err := h.audits.ListByTransaction(h.ctx, txnID)
	require.NoError(t, err)
	out := make([]domain.AuditEventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func countType(types []domain.AuditEventType, want domain.AuditEventType) int {
	n := 0
	for _, typ := range types {
		if typ == want {
			n++
		}
	}
	return n
}

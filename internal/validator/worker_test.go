package validator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
)

// flakyValidator falha com transporte nas primeiras `failures` chamadas.
type flakyValidator struct {
	kind     domain.ValidatorKind
	failures int32
	calls    atomic.Int32
}

func (v *flakyValidator) Kind() domain.ValidatorKind { return v.kind }

func (v *flakyValidator) Validate(ctx context.Context, req domain.ValidationRequest) (domain.Verdict, error) {
	n := v.calls.Add(1)
	if n <= v.failures {
		return domain.Verdict{}, domain.ErrTransport
	}
	return domain.Verdict{Decision: domain.DecisionApprove}, nil
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{TransportRetries: 2, RetryBaseDelay: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}
}

func TestWorker_Evaluate_RetriesTransportThenApproves(t *testing.T) {
	t.Parallel()
	v := &flakyValidator{kind: domain.ValidatorFraud, failures: 2}
	w := NewWorker(memory.NewEventBus(), testWorkerConfig(), v)

	verdict := w.Evaluate(context.Background(), request(domain.ValidatorFraud))

	assert.Equal(t, domain.DecisionApprove, verdict.Decision)
	assert.Equal(t, int32(3), v.calls.Load())
	assert.Equal(t, "txn-1", verdict.TransactionID)
	assert.Equal(t, "n1", verdict.AttemptNonce)
	assert.Equal(t, domain.ValidatorFraud, verdict.Kind)
	assert.False(t, verdict.ReceivedAt.IsZero())
}

func TestWorker_Evaluate_ExhaustedRetriesBecomeError(t *testing.T) {
	t.Parallel()
	v := &flakyValidator{kind: domain.ValidatorLimit, failures: 10}
	w := NewWorker(memory.NewEventBus(), testWorkerConfig(), v)

	verdict := w.Evaluate(context.Background(), request(domain.ValidatorLimit))

	assert.Equal(t, domain.DecisionError, verdict.Decision)
	assert.Equal(t, int32(3), v.calls.Load())
}

func TestWorker_Evaluate_DedupesSameAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := &flakyValidator{kind: domain.ValidatorLedger}
	w := NewWorker(memory.NewEventBus(), testWorkerConfig(), v)

	first := w.Evaluate(ctx, request(domain.ValidatorLedger))
	second := w.Evaluate(ctx, request(domain.ValidatorLedger))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), v.calls.Load())

	next := request(domain.ValidatorLedger)
	next.AttemptNonce = "n2"
	w.Evaluate(ctx, next)
	assert.Equal(t, int32(2), v.calls.Load(), "nonce novo é uma nova tentativa")
}

func TestWorker_Evaluate_UnhostedKind(t *testing.T) {
	t.Parallel()
	w := NewWorker(memory.NewEventBus(), testWorkerConfig())

	verdict := w.Evaluate(context.Background(), request(domain.ValidatorFraud))
	assert.Equal(t, domain.DecisionError, verdict.Decision)
}

func TestWorker_ConsumesEnvelopesAndPublishesVerdicts(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := memory.NewEventBus()
	ledger := memory.NewLedger(time.Minute)
	ledger.SetBalance("A", 10_000)
	w := NewWorker(bus, testWorkerConfig(),
		NewFraudValidator(FraudRules{}),
		NewLedgerValidator(ledger),
	)
	require.NoError(t, w.Start(ctx, bus))

	for _, kind := range []domain.ValidatorKind{domain.ValidatorFraud, domain.ValidatorLedger} {
		require.NoError(t, bus.Publish(ctx, gateway.ExchangePayments, gateway.RoutingValidationPrefix+string(kind), request(kind)))
	}

	require.Eventually(t, func() bool {
		return len(bus.Published("verdict.*")) == 2
	}, time.Second, 5*time.Millisecond)

	var ledgerVerdict domain.Verdict
	for _, d := range bus.Published("verdict.LEDGER") {
		require.NoError(t, json.Unmarshal(d.Body, &ledgerVerdict))
	}
	assert.Equal(t, domain.DecisionApprove, ledgerVerdict.Decision)
	assert.NotEmpty(t, ledgerVerdict.ReservationID)
}

func TestWorker_Handle_PublishFailureRequestsRedelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := memory.NewEventBus()
	bus.SetFailPublish(func(string) error { return errors.New("broker down") })
	w := NewWorker(bus, testWorkerConfig(), NewFraudValidator(FraudRules{}))

	body, err := json.Marshal(request(domain.ValidatorFraud))
	require.NoError(t, err)

	err = w.Handle(ctx, gateway.Delivery{RoutingKey: "validation.FRAUD", Body: body})
	assert.Error(t, err)

	assert.NoError(t, w.Handle(ctx, gateway.Delivery{RoutingKey: "validation.FRAUD", Body: []byte("{not json")}))
}

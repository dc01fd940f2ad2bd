package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/http/middleware"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []domain.PaymentRequest
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, req domain.PaymentRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type api struct {
	router     http.Handler
	idem       *memory.IdempotencyRepository
	records    *memory.TransactionRepository
	audits     *audit.Writer
	dispatcher *recordingDispatcher
}

func newAPI(t *testing.T, limiter *middleware.RateLimiter) *api {
	t.Helper()
	a := &api{
		idem:       memory.NewIdempotencyRepository(),
		records:    memory.NewTransactionRepository(),
		audits:     audit.NewWriter(memory.NewAuditRepository()),
		dispatcher: &recordingDispatcher{},
	}
	submit := usecase.NewSubmitPayment(usecase.NewIdempotencyGate(a.idem, time.Hour), a.dispatcher)
	get := usecase.NewGetPayment(a.records, memory.NewOrchestrationStateRepository(), a.audits)
	accounts := memory.NewAccountRepository()

	a.router = NewRouter(Routes{
		Payments: NewPaymentHandler(submit, get),
		Accounts: NewAccountHandler(usecase.NewAccounts(accounts, accounts, nil)),
		Limiter:  limiter,
	})
	return a
}

func (a *api) do(t *testing.T, method, target, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

const validPayment = `{"sourceAccount":"A","destAccount":"B","amount":5000,"currency":"USD"}`

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPaymentHandler_CreateAccepted(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/payments", "k1", validPayment)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[PaymentResponse](t, rec)
	assert.Equal(t, domain.StatusSubmitted, resp.Status)
	assert.NotEmpty(t, resp.TransactionID)
	assert.Equal(t, 1, a.dispatcher.count())
}

func TestPaymentHandler_KeyFromBody(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	body := `{"idempotencyKey":"k1","sourceAccount":"A","destAccount":"B","amount":5000,"currency":"BRL"}`
	rec := a.do(t, http.MethodPost, "/payments", "", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, 1, a.dispatcher.count())

	got := a.dispatcher.calls[0]
	assert.Equal(t, "k1", got.IdempotencyKey)
	assert.Equal(t, "A", got.SourceAccount)
	assert.Equal(t, "B", got.DestAccount)
	assert.Equal(t, int64(5000), got.Amount)
	assert.Equal(t, "BRL", got.Currency)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, got.ID, raw["transactionId"])
	assert.Equal(t, domain.StatusSubmitted, raw["status"])
}

func TestPaymentHandler_SnakeCaseAliases(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	body := `{"idempotency_key":"order:42","source_account":"A","dest_account":"B","amount":1,"currency":"usd"}`
	rec := a.do(t, http.MethodPost, "/payments", "", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, 1, a.dispatcher.count())
	assert.Equal(t, "order:42", a.dispatcher.calls[0].IdempotencyKey)
	assert.Equal(t, "A", a.dispatcher.calls[0].SourceAccount)
	assert.Equal(t, "USD", a.dispatcher.calls[0].Currency)
}

func TestPaymentHandler_InFlightDuplicate(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	first := decode[PaymentResponse](t, a.do(t, http.MethodPost, "/payments", "k1", validPayment))
	rec := a.do(t, http.MethodPost, "/payments", "k1", validPayment)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, first.TransactionID, decode[PaymentResponse](t, rec).TransactionID)
	assert.Equal(t, 1, a.dispatcher.count())
}

func TestPaymentHandler_CompletedReplay(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	first := decode[PaymentResponse](t, a.do(t, http.MethodPost, "/payments", "k1", validPayment))
	require.NoError(t, a.idem.Complete(context.Background(), "k1", domain.PaymentOutcome{
		TransactionID: first.TransactionID,
		Status:        domain.StatusRejected,
		Reason:        domain.ReasonFraudDeclined,
		StatusCode:    http.StatusUnprocessableEntity,
	}, time.Hour))

	rec := a.do(t, http.MethodPost, "/payments", "k1", validPayment)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Idempotency-Hit"))

	resp := decode[PaymentResponse](t, rec)
	assert.Equal(t, first.TransactionID, resp.TransactionID)
	assert.Equal(t, string(domain.StatusRejected), resp.Status)
	assert.Equal(t, domain.ReasonFraudDeclined, resp.Reason)
	assert.Equal(t, 1, a.dispatcher.count())
}

func TestPaymentHandler_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		key    string
		body   string
		status int
	}{
		{"missing key", "", validPayment, http.StatusBadRequest},
		{"invalid key", "bad key!", validPayment, http.StatusBadRequest},
		{"header and body disagree", "k1", `{"idempotencyKey":"k2","sourceAccount":"A","destAccount":"B","amount":1,"currency":"USD"}`, http.StatusBadRequest},
		{"amount as string", "k1", `{"sourceAccount":"A","destAccount":"B","amount":"10","currency":"USD"}`, http.StatusBadRequest},
		{"zero amount", "k1", `{"sourceAccount":"A","destAccount":"B","amount":0,"currency":"USD"}`, http.StatusBadRequest},
		{"unknown field", "k1", `{"sourceAccount":"A","destAccount":"B","amount":1,"currency":"USD","memo":"x"}`, http.StatusBadRequest},
		{"same account", "k1", `{"sourceAccount":"A","destAccount":"A","amount":1,"currency":"USD"}`, http.StatusBadRequest},
		{"missing destination", "k1", `{"sourceAccount":"A","amount":1,"currency":"USD"}`, http.StatusBadRequest},
		{"alias disagrees with canonical name", "k1", `{"sourceAccount":"A","source_account":"C","destAccount":"B","amount":1,"currency":"USD"}`, http.StatusBadRequest},
		{"not json", "k1", `amount=1`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newAPI(t, nil)
			rec := a.do(t, http.MethodPost, "/payments", tt.key, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, domain.ReasonMalformedRequest, decode[ErrorResponse](t, rec).Reason)
			assert.Zero(t, a.dispatcher.count())
		})
	}
}

func TestPaymentHandler_KeyReusedWithDifferentBody(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	require.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/payments", "k1", validPayment).Code)
	rec := a.do(t, http.MethodPost, "/payments", "k1", `{"sourceAccount":"A","destAccount":"B","amount":7000,"currency":"USD"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPaymentHandler_StoreUnavailable(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)
	a.idem.FailWith = errors.New("redis down")

	rec := a.do(t, http.MethodPost, "/payments", "k1", validPayment)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, a.dispatcher.count())
}

func TestPaymentHandler_GetAndAudit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAPI(t, nil)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/payments/ghost", "", "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/payments/ghost/audit", "", "").Code)

	_, _, err := a.records.Create(ctx, &domain.TransactionRecord{
		TransactionID: "txn-1",
		FinalStatus:   domain.StatusCompleted,
		Amount:        5000,
		Fee:           25,
	})
	require.NoError(t, err)
	a.audits.Record(ctx, "txn-1", domain.AuditDispatch, nil)
	a.audits.Record(ctx, "txn-1", domain.AuditCommitted, map[string]any{"reservation_id": "r1"})

	rec := a.do(t, http.MethodGet, "/payments/txn-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[PaymentStatusResponse](t, rec)
	assert.Equal(t, "COMPLETED", status.Status)
	assert.Equal(t, domain.PhaseCompleted, status.Phase)
	require.NotNil(t, status.Record)
	assert.Equal(t, int64(25), status.Record.Fee)

	rec = a.do(t, http.MethodGet, "/payments/txn-1/audit", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	trail := decode[AuditResponse](t, rec)
	require.Len(t, trail.Events, 2)
	assert.Equal(t, domain.AuditCommitted, trail.Events[1].Type)
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()
	a := newAPI(t, middleware.NewRateLimiter(0.001, 1))

	assert.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/payments", "k1", validPayment).Code)
	rec := a.do(t, http.MethodPost, "/payments", "k2", validPayment)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, a.dispatcher.count())
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)
	rec := a.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAccountHandler(t *testing.T) {
	t.Parallel()
	a := newAPI(t, nil)

	rec := a.do(t, http.MethodPut, "/accounts", "", `{"id":"A","balance":10000,"per_transaction_limit":2500}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/accounts/A", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	account := decode[usecase.AccountOutput](t, rec)
	assert.Equal(t, int64(2500), account.PerTransactionLimit)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/accounts/ghost", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPut, "/accounts", "", `{"id":"A","balance":-1}`).Code)
}

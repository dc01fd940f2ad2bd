package domain

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFeeSchedule_FeeFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		bps    int64
		amount int64
		want   int64
	}{
		{"sem taxa", 0, 5000, 0},
		{"1%", 100, 5000, 50},
		{"0.5 arredonda para 0", 50, 100, 0},
		{"1.5 arredonda para 2", 50, 300, 2},
		{"0.75 arredonda para 1", 30, 250, 1},
		{"valor inválido", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FeeSchedule{BasisPoints: tt.bps}.FeeFor(tt.amount))
		})
	}
}

func TestConfirmationFromRecord(t *testing.T) {
	t.Parallel()
	rec := TransactionRecord{
		TransactionID: "txn-1",
		FinalStatus:   StatusRejected,
		Reason:        ReasonLimitDeclined,
		SourceAccount: "A",
		DestAccount:   "B",
		Amount:        5000,
		Currency:      "USD",
		CompletedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	event := ConfirmationFromRecord(rec)
	assert.Equal(t, "txn-1", event.TransactionID)
	assert.Equal(t, StatusRejected, event.FinalStatus)
	assert.Equal(t, ReasonLimitDeclined, event.Reason)

	outcome := OutcomeFromRecord(rec)
	assert.Equal(t, http.StatusUnprocessableEntity, outcome.StatusCode)
}

func TestFinalStatus_HTTPStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusOK, StatusCompleted.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, StatusRejected.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, StatusFailed.HTTPStatus())
}

func TestAccount_CanSpend(t *testing.T) {
	t.Parallel()
	acc := Account{ID: "A", Balance: 1000, PerTransactionLimit: 500}

	assert.NoError(t, acc.CanSpend(500))
	assert.ErrorIs(t, acc.CanSpend(501), ErrLimitExceeded)
	assert.ErrorIs(t, acc.CanSpend(0), ErrInvalidAmount)

	acc.PerTransactionLimit = 0
	assert.ErrorIs(t, acc.CanSpend(1001), ErrInsufficientFunds)

	acc.Frozen = true
	assert.ErrorIs(t, acc.CanSpend(10), ErrAccountFrozen)
}

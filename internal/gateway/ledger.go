package gateway

import (
	"context"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// LedgerClient é o contrato estreito com o ledger externo (reserve -> commit|release).
type LedgerClient interface {
	Reserve(ctx context.Context, transactionID, sourceAccount string, amount int64) (domain.Reservation, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

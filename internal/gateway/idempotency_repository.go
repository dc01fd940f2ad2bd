package gateway

import (
	"context"
	"time"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type IdempotencyRepository interface {
	// CreateIfAbsent é o compare-and-set do gate.
	// created=true quando o registro foi criado agora; caso contrário devolve o registro existente.
	// Registros expirados contam como ausentes.
	CreateIfAbsent(ctx context.Context, record domain.IdempotencyRecord, ttl time.Duration) (*domain.IdempotencyRecord, bool, error)

	// Get retorna nil, nil se a chave não existir.
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	// Complete move PENDING -> COMPLETED guardando o outcome; o TTL recomeça a contar.
	Complete(ctx context.Context, key string, outcome domain.PaymentOutcome, ttl time.Duration) error

	// Release apaga a chave (resolução manual), liberando o cliente para tentar de novo.
	Release(ctx context.Context, key string) error
}

// IdempotencyTxParticipant é implementado pelos stores que conseguem completar a chave
// na mesma transação do TransactionRecord (Postgres).
type IdempotencyTxParticipant interface {
	WithTx(tx TransactionObject) IdempotencyRepository
}

// IdempotencyPurger remove registros expirados; nem todo backend precisa (Redis usa TTL nativo).
type IdempotencyPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

type AdmitResult string

const (
	AdmitNew                AdmitResult = "NEW"
	AdmitDuplicateInFlight  AdmitResult = "DUPLICATE_IN_FLIGHT"
	AdmitDuplicateCompleted AdmitResult = "DUPLICATE_COMPLETED"
)

// Admission é a resposta do gate. Em duplicatas, TransactionID é o da primeira submissão.
type Admission struct {
	Result        AdmitResult
	TransactionID string
	Outcome       *domain.PaymentOutcome
}

// IdempotencyGate decide se uma submissão é nova, duplicata em voo ou duplicata concluída.
// Store fora do ar fecha o gate (domain.ErrIdempotencyUnavailable).
type IdempotencyGate struct {
	store gateway.IdempotencyRepository
	ttl   time.Duration
}

func NewIdempotencyGate(store gateway.IdempotencyRepository, ttl time.Duration) *IdempotencyGate {
	return &IdempotencyGate{store: store, ttl: ttl}
}

func (g *IdempotencyGate) Admit(ctx context.Context, req domain.PaymentRequest) (Admission, error) {
	candidate := domain.IdempotencyRecord{
		Key:           req.IdempotencyKey,
		TransactionID: req.ID,
		RequestHash:   req.Fingerprint(),
	}

	stored, created, err := g.store.CreateIfAbsent(ctx, candidate, g.ttl)
	if err != nil {
		return Admission{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyUnavailable, err)
	}
	if created {
		return Admission{Result: AdmitNew, TransactionID: req.ID}, nil
	}

	if stored.RequestHash != "" && stored.RequestHash != candidate.RequestHash {
		return Admission{TransactionID: stored.TransactionID}, domain.ErrIdempotencyKeyReused
	}

	if stored.Status == domain.IdempotencyCompleted && stored.Outcome != nil {
		return Admission{
			Result:        AdmitDuplicateCompleted,
			TransactionID: stored.TransactionID,
			Outcome:       stored.Outcome,
		}, nil
	}
	return Admission{Result: AdmitDuplicateInFlight, TransactionID: stored.TransactionID}, nil
}

// Release apaga a chave para que o cliente possa reenviar (falha antes do despacho ou resolução manual).
func (g *IdempotencyGate) Release(ctx context.Context, key string) error {
	if err := g.store.Release(ctx, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// RunJanitor remove registros expirados em stores sem TTL nativo.
func (g *IdempotencyGate) RunJanitor(ctx context.Context, interval time.Duration) {
	purger, ok := g.store.(gateway.IdempotencyPurger)
	if !ok {
		log.Debug().Msg("Store de idempotência expira chaves sozinho, janitor desligado")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purged, err := purger.PurgeExpired(ctx, now)
			if err != nil {
				log.Error().Err(err).Msg("Falha ao limpar chaves de idempotência expiradas")
				continue
			}
			if purged > 0 {
				log.Info().Int64("purged", purged).Msg("Chaves de idempotência expiradas removidas")
			}
		}
	}
}

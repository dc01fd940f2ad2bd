package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
)

type CommitterConfig struct {
	// LedgerPolicy controla os retries de commit/release no ledger
	LedgerPolicy   retry.Policy
	IdempotencyTTL time.Duration
	Fees           domain.FeeSchedule
}

// Committer fala com o ledger e grava o desfecho final:
// TransactionRecord (uma vez), estado arquivado, chave de idempotência e confirmação.
type Committer struct {
	ledger      gateway.LedgerClient
	records     gateway.TransactionRepository
	states      gateway.OrchestrationStateRepository
	idempotency gateway.IdempotencyRepository
	uow         gateway.TransactionManager
	publisher   gateway.EventPublisher
	audit       *audit.Writer
	cfg         CommitterConfig
	Now         func() time.Time
}

func NewCommitter(
	ledger gateway.LedgerClient,
	records gateway.TransactionRepository,
	states gateway.OrchestrationStateRepository,
	idempotency gateway.IdempotencyRepository,
	uow gateway.TransactionManager,
	publisher gateway.EventPublisher,
	auditWriter *audit.Writer,
	cfg CommitterConfig,
) *Committer {
	return &Committer{
		ledger:      ledger,
		records:     records,
		states:      states,
		idempotency: idempotency,
		uow:         uow,
		publisher:   publisher,
		audit:       auditWriter,
		cfg:         cfg,
		Now:         time.Now,
	}
}

// Respostas definitivas do ledger: não adianta tentar de novo.
func retryableLedgerError(err error) bool {
	return !errors.Is(err, domain.ErrReservationNotFound) &&
		!errors.Is(err, domain.ErrReservationExpired) &&
		!errors.Is(err, domain.ErrReservationReleased) &&
		!errors.Is(err, domain.ErrReservationCommitted)
}

// CommitLedger confirma a reserva com backoff. Commit repetido da mesma reserva é aceito pelo ledger.
func (c *Committer) CommitLedger(ctx context.Context, transactionID, reservationID string) error {
	attempt := 0
	err := retry.Do(ctx, c.cfg.LedgerPolicy, retryableLedgerError, func(ctx context.Context) error {
		attempt++
		err := c.ledger.Commit(ctx, reservationID)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).
				Str("transaction_id", transactionID).
				Str("reservation_id", reservationID).
				Int("attempt", attempt).
				Msg("Commit no ledger falhou")
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger commit of %s: %w", reservationID, err)
	}
	return nil
}

// Release libera a reserva. Reserva já liberada, expirada ou inexistente conta como liberada;
// reserva já confirmada devolve domain.ErrReservationCommitted.
func (c *Committer) Release(ctx context.Context, transactionID, reservationID string) error {
	err := retry.Do(ctx, c.cfg.LedgerPolicy, retryableLedgerError, func(ctx context.Context) error {
		return c.ledger.Release(ctx, reservationID)
	})
	switch {
	case err == nil,
		errors.Is(err, domain.ErrReservationReleased),
		errors.Is(err, domain.ErrReservationExpired),
		errors.Is(err, domain.ErrReservationNotFound):
		return nil
	case errors.Is(err, domain.ErrReservationCommitted):
		return err
	default:
		return fmt.Errorf("ledger release of %s: %w", reservationID, err)
	}
}

// ReleaseAll libera todas as reservas conhecidas da transação. Falhas ficam para a expiração do ledger.
func (c *Committer) ReleaseAll(ctx context.Context, state *domain.OrchestrationState) {
	c.releaseEach(ctx, state.TransactionID, state.Reservations())
}

// ReleaseOrphans libera só as reservas substituídas; a viva segue para o commit.
func (c *Committer) ReleaseOrphans(ctx context.Context, state *domain.OrchestrationState) {
	c.releaseEach(ctx, state.TransactionID, state.OrphanReservations)
}

func (c *Committer) releaseEach(ctx context.Context, transactionID string, reservationIDs []string) {
	for _, id := range reservationIDs {
		err := c.Release(ctx, transactionID, id)
		payload := map[string]any{"reservation_id": id, "released": err == nil}
		if err != nil {
			payload["error"] = err.Error()
			log.Error().Err(err).
				Str("transaction_id", transactionID).
				Str("reservation_id", id).
				Msg("Falha ao liberar reserva, ela vai expirar no ledger")
		}
		c.audit.Record(ctx, transactionID, domain.AuditReleased, payload)
	}
}

// Finalize leva o estado ao status final e grava tudo o que depende dele.
// Pode ser chamado de novo depois de uma falha parcial: cada passo é idempotente.
func (c *Committer) Finalize(ctx context.Context, state *domain.OrchestrationState, status domain.FinalStatus) (*domain.TransactionRecord, error) {
	now := c.Now()

	if !state.Phase.Terminal() {
		if err := state.Transition(phaseFor(status), now); err != nil {
			return nil, err
		}
		state.FinalStatus = status
	}

	rec := &domain.TransactionRecord{
		TransactionID:  state.TransactionID,
		IdempotencyKey: state.Request.IdempotencyKey,
		FinalStatus:    state.FinalStatus,
		Reason:         reasonFor(state),
		SourceAccount:  state.Request.SourceAccount,
		DestAccount:    state.Request.DestAccount,
		Amount:         state.Request.Amount,
		Currency:       state.Request.Currency,
		CompletedAt:    now,
	}
	if rec.FinalStatus == domain.StatusCompleted {
		rec.LedgerReservationID = state.ReservationID
		rec.Fee = c.cfg.Fees.FeeFor(rec.Amount)
	}

	participant, inTx := c.idempotency.(gateway.IdempotencyTxParticipant)
	version := state.Version

	err := c.uow.Run(ctx, func(txCtx context.Context) error {
		tx := gateway.TxFromContext(txCtx)

		stored, _, err := c.records.WithTx(tx).Create(txCtx, rec)
		if err != nil {
			return err
		}
		rec = stored

		if err := c.states.WithTx(tx).Save(txCtx, state); err != nil {
			return fmt.Errorf("failed to save final state: %w", err)
		}

		// FAILED mantém a chave PENDING até a resolução manual
		if inTx && rec.FinalStatus != domain.StatusFailed {
			if err := participant.WithTx(tx).Complete(txCtx, rec.IdempotencyKey, domain.OutcomeFromRecord(*rec), c.cfg.IdempotencyTTL); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("failed to complete idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		state.Version = version
		return nil, fmt.Errorf("failed to persist outcome of %s: %w", state.TransactionID, err)
	}

	if !inTx && rec.FinalStatus != domain.StatusFailed {
		if err := c.idempotency.Complete(ctx, rec.IdempotencyKey, domain.OutcomeFromRecord(*rec), c.cfg.IdempotencyTTL); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to complete idempotency key: %w", err)
		}
	}

	if !state.Confirmed {
		if err := c.confirm(ctx, state, rec); err != nil {
			return nil, err
		}
	}

	if err := c.states.Archive(ctx, state.TransactionID); err != nil {
		return nil, fmt.Errorf("failed to archive orchestration state: %w", err)
	}

	log.Info().
		Str("transaction_id", rec.TransactionID).
		Str("status", string(rec.FinalStatus)).
		Str("reason", string(rec.Reason)).
		Msg("Transação finalizada")
	return rec, nil
}

func (c *Committer) confirm(ctx context.Context, state *domain.OrchestrationState, rec *domain.TransactionRecord) error {
	event := domain.ConfirmationFromRecord(*rec)
	routingKey := gateway.RoutingPaymentPrefix + string(rec.FinalStatus)
	if err := c.publisher.Publish(ctx, gateway.ExchangePayments, routingKey, event); err != nil {
		return fmt.Errorf("%w: failed to publish confirmation: %v", domain.ErrTransport, err)
	}

	state.Confirmed = true
	state.UpdatedAt = c.Now()
	if err := c.states.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to mark confirmation as published: %w", err)
	}

	switch rec.FinalStatus {
	case domain.StatusCompleted:
		c.audit.Record(ctx, rec.TransactionID, domain.AuditCommitted, map[string]any{
			"reservation_id":         rec.LedgerReservationID,
			"fee":                    rec.Fee,
			"confirmation_published": true,
		})
	case domain.StatusRejected:
		c.audit.Record(ctx, rec.TransactionID, domain.AuditRejected, map[string]any{
			"reason":                 string(rec.Reason),
			"confirmation_published": true,
		})
	default:
		c.audit.Record(ctx, rec.TransactionID, domain.AuditFailed, map[string]any{
			"reason":                 string(rec.Reason),
			"confirmation_published": true,
		})
	}
	return nil
}

func phaseFor(status domain.FinalStatus) domain.Phase {
	switch status {
	case domain.StatusCompleted:
		return domain.PhaseCompleted
	case domain.StatusRejected:
		return domain.PhaseRejected
	default:
		return domain.PhaseFailed
	}
}

func reasonFor(state *domain.OrchestrationState) domain.ReasonCode {
	switch state.FinalStatus {
	case domain.StatusRejected:
		if state.Decision != nil && state.Decision.Reason != domain.ReasonNone {
			return state.Decision.Reason
		}
		return domain.ReasonValidatorUnavailable
	case domain.StatusFailed:
		return domain.ReasonLedgerCommitFailed
	default:
		return domain.ReasonNone
	}
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// Dispatcher recoloca uma requisição no fluxo de despacho e devolve o resultado do despacho.
type Dispatcher interface {
	Redispatch(ctx context.Context, req domain.PaymentRequest) error
}

type Manager struct {
	repo      gateway.DeadLetterRepository
	publisher gateway.EventPublisher
	audit     *audit.Writer
	policy    Policy
	batchSize int
	Now       func() time.Time
}

func NewManager(repo gateway.DeadLetterRepository, publisher gateway.EventPublisher, auditWriter *audit.Writer, policy Policy) *Manager {
	return &Manager{
		repo:      repo,
		publisher: publisher,
		audit:     auditWriter,
		policy:    policy,
		batchSize: 32,
		Now:       time.Now,
	}
}

// EnvelopeID é determinístico: existe no máximo um envelope vivo por transação,
// e as tentativas se acumulam nele independente de onde a falha veio.
func EnvelopeID(transactionID string) string {
	return "dl-" + transactionID
}

// OnFailure registra a falha: transitória => agenda retry; estrutural => revisão manual direto.
func (m *Manager) OnFailure(ctx context.Context, req domain.PaymentRequest, reason domain.FailureReason, detail string) error {
	now := m.Now()

	env, err := m.repo.Get(ctx, EnvelopeID(req.ID))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		env = &domain.DeadLetterEnvelope{
			ID:              EnvelopeID(req.ID),
			TransactionID:   req.ID,
			OriginalRequest: req,
			CreatedAt:       now,
		}
	case err != nil:
		return fmt.Errorf("failed to load dead letter: %w", err)
	case env.Status == domain.DeadLetterManualReview:
		log.Warn().Str("transaction_id", req.ID).Str("reason", string(reason)).Msg("Transação já está em revisão manual")
		return nil
	case env.Status == domain.DeadLetterResolved:
		env.Attempt = 0
	}

	env.FailureReason = reason
	env.Detail = detail
	env.UpdatedAt = now

	log.Warn().
		Str("transaction_id", req.ID).
		Str("reason", string(reason)).
		Int("attempt", env.Attempt).
		Str("detail", detail).
		Msg("Falha enviada para a dead-letter")

	if !reason.Transient() {
		return m.escalate(ctx, env)
	}
	return m.ScheduleRetry(ctx, env)
}

// ScheduleRetry agenda a próxima tentativa ou escala quando as tentativas acabaram.
func (m *Manager) ScheduleRetry(ctx context.Context, env *domain.DeadLetterEnvelope) error {
	if env.Attempt >= m.policy.MaxAttempts {
		return m.escalate(ctx, env)
	}

	now := m.Now()
	env.NextRetryAt = now.Add(m.policy.Backoff(env.Attempt))
	env.Attempt++
	env.Status = domain.DeadLetterScheduled
	env.UpdatedAt = now

	if err := m.repo.Save(ctx, env); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

func (m *Manager) escalate(ctx context.Context, env *domain.DeadLetterEnvelope) error {
	now := m.Now()
	env.Status = domain.DeadLetterManualReview
	env.UpdatedAt = now

	if err := m.repo.Save(ctx, env); err != nil {
		return fmt.Errorf("failed to move dead letter to manual review: %w", err)
	}

	log.Error().
		Str("transaction_id", env.TransactionID).
		Str("reason", string(env.FailureReason)).
		Int("attempt", env.Attempt).
		Msg("🔴 Transação enviada para revisão manual")

	signal := domain.ManualReviewSignal{
		EnvelopeID:    env.ID,
		TransactionID: env.TransactionID,
		FailureReason: env.FailureReason,
		Detail:        env.Detail,
		Attempt:       env.Attempt,
		RaisedAt:      now,
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, gateway.ExchangePayments, gateway.RoutingManualReview, signal); err != nil {
			log.Error().Err(err).Str("transaction_id", env.TransactionID).Msg("Falha ao publicar sinal de revisão manual")
		}
	}
	return nil
}

// Requeue recoloca um envelope (de revisão manual) para tentar de novo imediatamente.
// Falhas de commit não voltam para a fila: a transação já terminou como FAILED.
func (m *Manager) Requeue(ctx context.Context, id string) (*domain.DeadLetterEnvelope, error) {
	env, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if env.Status == domain.DeadLetterResolved {
		return nil, fmt.Errorf("%w: envelope %s already resolved", domain.ErrInvalidTransition, id)
	}
	// O TransactionRecord FAILED já foi gravado e não muda: só resta resolver a chave.
	if env.FailureReason == domain.FailureCommitExhausted {
		return nil, fmt.Errorf("%w: %s failed after the ledger commit was exhausted, use resolve", domain.ErrRequeueNotAllowed, id)
	}

	now := m.Now()
	env.Attempt = 0
	env.Status = domain.DeadLetterScheduled
	env.NextRetryAt = now
	env.UpdatedAt = now
	if err := m.repo.Save(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to requeue dead letter: %w", err)
	}
	m.audit.Record(ctx, env.TransactionID, domain.AuditManualResolution, map[string]any{
		"action":      "requeue",
		"envelope_id": env.ID,
	})
	return env, nil
}

// ProcessDue despacha de novo os envelopes vencidos.
// Redespacho aceito deixa o envelope em RETRYING com as tentativas acumuladas:
// a próxima falha da mesma transação continua a contagem, e OnSettled o apaga no desfecho.
func (m *Manager) ProcessDue(ctx context.Context, dispatcher Dispatcher) (int, error) {
	due, err := m.repo.ClaimDue(ctx, m.Now(), m.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due dead letters: %w", err)
	}

	for _, env := range due {
		logger := log.With().Str("transaction_id", env.TransactionID).Int("attempt", env.Attempt).Logger()

		if err := dispatcher.Redispatch(ctx, env.OriginalRequest); err != nil {
			logger.Warn().Err(err).Msg("Redespacho falhou")
			env.Detail = err.Error()
			if domain.IsStructural(err) {
				env.FailureReason = domain.FailureMalformedRequest
				if err := m.escalate(ctx, env); err != nil {
					logger.Error().Err(err).Msg("Falha ao escalar envelope")
				}
				continue
			}
			if err := m.ScheduleRetry(ctx, env); err != nil {
				logger.Error().Err(err).Msg("Falha ao reagendar envelope")
			}
			continue
		}
		logger.Info().Msg("Transação redespachada")
	}
	return len(due), nil
}

// OnSettled é chamado quando a transação chega a COMPLETED ou REJECTED.
// O envelope em andamento é apagado; um em revisão manual fica para o operador.
func (m *Manager) OnSettled(ctx context.Context, transactionID string) error {
	env, err := m.repo.Get(ctx, EnvelopeID(transactionID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load dead letter: %w", err)
	}
	if env.Status != domain.DeadLetterRetrying && env.Status != domain.DeadLetterScheduled {
		return nil
	}
	if err := m.repo.Delete(ctx, env.ID); err != nil {
		return fmt.Errorf("failed to delete settled dead letter: %w", err)
	}
	log.Info().Str("transaction_id", transactionID).Int("attempt", env.Attempt).Msg("Dead-letter encerrada com o desfecho da transação")
	return nil
}

// Run é o poller da dead-letter; bloqueia até ctx ser cancelado.
func (m *Manager) Run(ctx context.Context, dispatcher Dispatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ProcessDue(ctx, dispatcher); err != nil {
				log.Error().Err(err).Msg("Falha no ciclo da dead-letter")
			}
		}
	}
}

package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// Writer grava a trilha de auditoria. Falhas só são logadas: auditoria nunca muda o fluxo.
type Writer struct {
	repo gateway.AuditRepository
	Now  func() time.Time
}

func NewWriter(repo gateway.AuditRepository) *Writer {
	return &Writer{repo: repo, Now: time.Now}
}

func (w *Writer) Record(ctx context.Context, transactionID string, eventType domain.AuditEventType, payload map[string]any) {
	if w == nil || w.repo == nil {
		return
	}

	event := &domain.AuditEvent{
		TransactionID: transactionID,
		Type:          eventType,
		Payload:       payload,
		Timestamp:     w.Now(),
	}
	if err := w.repo.Append(ctx, event); err != nil {
		log.Error().Err(err).
			Str("transaction_id", transactionID).
			Str("event_type", string(eventType)).
			Msg("Falha ao gravar evento de auditoria")
	}
}

func (w *Writer) List(ctx context.Context, transactionID string) ([]domain.AuditEvent, error) {
	return w.repo.ListByTransaction(ctx, transactionID)
}

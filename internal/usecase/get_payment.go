package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// PaymentStatusOutput mostra o registro final ou, enquanto ele não existe, a fase atual.
type PaymentStatusOutput struct {
	TransactionID string
	Status        string
	Phase         domain.Phase
	Reason        domain.ReasonCode
	Record        *domain.TransactionRecord
}

type GetPaymentUseCase struct {
	records gateway.TransactionRepository
	states  gateway.OrchestrationStateRepository
	audit   *audit.Writer
}

func NewGetPayment(records gateway.TransactionRepository, states gateway.OrchestrationStateRepository, auditWriter *audit.Writer) *GetPaymentUseCase {
	return &GetPaymentUseCase{records: records, states: states, audit: auditWriter}
}

func (u *GetPaymentUseCase) Execute(ctx context.Context, transactionID string) (*PaymentStatusOutput, error) {
	rec, err := u.records.GetByID(ctx, transactionID)
	switch {
	case err == nil:
		return &PaymentStatusOutput{
			TransactionID: rec.TransactionID,
			Status:        string(rec.FinalStatus),
			Phase:         phaseOf(rec.FinalStatus),
			Reason:        rec.Reason,
			Record:        rec,
		}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to load transaction record: %w", err)
	}

	state, err := u.states.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load orchestration state: %w", err)
	}
	return &PaymentStatusOutput{
		TransactionID: state.TransactionID,
		Status:        domain.StatusSubmitted,
		Phase:         state.Phase,
	}, nil
}

// Audit devolve a trilha ordenada. Transação sem nenhum evento é tratada como inexistente.
func (u *GetPaymentUseCase) Audit(ctx context.Context, transactionID string) ([]domain.AuditEvent, error) {
	events, err := u.audit.List(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound
	}
	return events, nil
}

func phaseOf(status domain.FinalStatus) domain.Phase {
	switch status {
	case domain.StatusCompleted:
		return domain.PhaseCompleted
	case domain.StatusRejected:
		return domain.PhaseRejected
	default:
		return domain.PhaseFailed
	}
}

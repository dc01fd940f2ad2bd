package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// PaymentDispatcher é a porta de entrada do roteador de despacho.
type PaymentDispatcher interface {
	Dispatch(ctx context.Context, req domain.PaymentRequest) error
}

// SubmitPaymentInput vem do handler HTTP já decodificado.
type SubmitPaymentInput struct {
	IdempotencyKey string
	SourceAccount  string
	DestAccount    string
	Amount         int64 // Valor em centavos
	Currency       string
}

type SubmitPaymentOutput struct {
	TransactionID string
	Admission     AdmitResult
	Status        string
	Reason        domain.ReasonCode
	StatusCode    int
}

type SubmitPaymentUseCase struct {
	gate       *IdempotencyGate
	dispatcher PaymentDispatcher
	Now        func() time.Time
	NewID      func() string
}

func NewSubmitPayment(gate *IdempotencyGate, dispatcher PaymentDispatcher) *SubmitPaymentUseCase {
	return &SubmitPaymentUseCase{
		gate:       gate,
		dispatcher: dispatcher,
		Now:        time.Now,
		NewID:      func() string { return uuid.New().String() },
	}
}

// Execute valida, passa pelo gate e enfileira o despacho. Não espera a decisão:
// a resposta de uma submissão nova é sempre 202 SUBMITTED.
func (u *SubmitPaymentUseCase) Execute(ctx context.Context, input SubmitPaymentInput) (*SubmitPaymentOutput, error) {
	req := domain.PaymentRequest{
		ID:             u.NewID(),
		IdempotencyKey: input.IdempotencyKey,
		SourceAccount:  input.SourceAccount,
		DestAccount:    input.DestAccount,
		Amount:         input.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		SubmittedAt:    u.Now(),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	admission, err := u.gate.Admit(ctx, req)
	if err != nil {
		return nil, err
	}

	switch admission.Result {
	case AdmitDuplicateCompleted:
		return &SubmitPaymentOutput{
			TransactionID: admission.TransactionID,
			Admission:     admission.Result,
			Status:        string(admission.Outcome.Status),
			Reason:        admission.Outcome.Reason,
			StatusCode:    admission.Outcome.StatusCode,
		}, nil
	case AdmitDuplicateInFlight:
		return &SubmitPaymentOutput{
			TransactionID: admission.TransactionID,
			Admission:     admission.Result,
			Status:        domain.StatusSubmitted,
			StatusCode:    http.StatusConflict,
		}, nil
	}

	if err := u.dispatcher.Dispatch(ctx, req); err != nil {
		// Nada foi despachado: a chave volta a ficar livre para o cliente tentar de novo
		if rerr := u.gate.Release(ctx, req.IdempotencyKey); rerr != nil {
			log.Error().Err(rerr).Str("idempotency_key", req.IdempotencyKey).Msg("Falha ao liberar chave após erro de despacho")
		}
		return nil, fmt.Errorf("failed to enqueue payment: %w", err)
	}

	log.Info().
		Str("transaction_id", req.ID).
		Str("source_account", req.SourceAccount).
		Int64("amount", req.Amount).
		Msg("Pagamento aceito")

	return &SubmitPaymentOutput{
		TransactionID: req.ID,
		Admission:     AdmitNew,
		Status:        domain.StatusSubmitted,
		StatusCode:    http.StatusAccepted,
	}, nil
}

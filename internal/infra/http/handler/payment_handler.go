package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/http/middleware"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
)

const maxBodyBytes = 1 << 20

// PaymentHandler expõe a submissão e a consulta de pagamentos via HTTP
type PaymentHandler struct {
	submit *usecase.SubmitPaymentUseCase
	get    *usecase.GetPaymentUseCase
}

func NewPaymentHandler(submit *usecase.SubmitPaymentUseCase, get *usecase.GetPaymentUseCase) *PaymentHandler {
	return &PaymentHandler{submit: submit, get: get}
}

// CreatePaymentRequest segue o contrato do gateway (camelCase). O valor é sempre em centavos.
type CreatePaymentRequest struct {
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	SourceAccount  string `json:"sourceAccount,omitempty"`
	DestAccount    string `json:"destAccount,omitempty"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`

	// Aliases em snake_case, o mesmo formato das mensagens internas
	IdempotencyKeyAlias string `json:"idempotency_key,omitempty"`
	SourceAccountAlias  string `json:"source_account,omitempty"`
	DestAccountAlias    string `json:"dest_account,omitempty"`
}

// normalize resolve os aliases: o mesmo campo com dois valores diferentes é payload inválido.
func (r *CreatePaymentRequest) normalize() error {
	var err error
	if r.IdempotencyKey, err = pickAlias("idempotencyKey", r.IdempotencyKey, r.IdempotencyKeyAlias); err != nil {
		return err
	}
	if r.SourceAccount, err = pickAlias("sourceAccount", r.SourceAccount, r.SourceAccountAlias); err != nil {
		return err
	}
	if r.DestAccount, err = pickAlias("destAccount", r.DestAccount, r.DestAccountAlias); err != nil {
		return err
	}
	return nil
}

func pickAlias(field, canonical, alias string) (string, error) {
	switch {
	case canonical == "":
		return alias, nil
	case alias != "" && alias != canonical:
		return "", fmt.Errorf("%s sent twice with different values", field)
	default:
		return canonical, nil
	}
}

type PaymentResponse struct {
	TransactionID string            `json:"transactionId"`
	Status        string            `json:"status"`
	Reason        domain.ReasonCode `json:"reason,omitempty"`
}

type PaymentStatusResponse struct {
	TransactionID string                    `json:"transactionId"`
	Status        string                    `json:"status"`
	Phase         domain.Phase              `json:"phase"`
	Reason        domain.ReasonCode         `json:"reason,omitempty"`
	Record        *domain.TransactionRecord `json:"record,omitempty"`
}

type AuditResponse struct {
	TransactionID string              `json:"transactionId"`
	Events        []domain.AuditEvent `json:"events"`
}

// Create aceita o pagamento e responde sem esperar a decisão.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondReason(w, http.StatusBadRequest, "Payload inválido", domain.ReasonMalformedRequest)
		return
	}
	if err := validateJSONSchema(createPaymentLoader, body); err != nil {
		respondReason(w, http.StatusBadRequest, err.Error(), domain.ReasonMalformedRequest)
		return
	}

	var req CreatePaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondReason(w, http.StatusBadRequest, "Payload inválido", domain.ReasonMalformedRequest)
		return
	}
	if err := req.normalize(); err != nil {
		respondReason(w, http.StatusBadRequest, err.Error(), domain.ReasonMalformedRequest)
		return
	}

	output, err := h.submit.Execute(ctx, usecase.SubmitPaymentInput{
		IdempotencyKey: middleware.IdempotencyKeyFromContext(ctx),
		SourceAccount:  req.SourceAccount,
		DestAccount:    req.DestAccount,
		Amount:         req.Amount,
		Currency:       req.Currency,
	})
	if err != nil {
		// Mapeamento de Erros de Domínio -> HTTP Status Code
		switch {
		case domain.IsStructural(err):
			respondReason(w, http.StatusBadRequest, err.Error(), domain.ReasonMalformedRequest)
		case errors.Is(err, domain.ErrIdempotencyKeyReused):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrIdempotencyUnavailable):
			log.Error().Err(err).Msg("Store de idempotência indisponível, recusando pagamento")
			respondError(w, http.StatusServiceUnavailable, "Serviço temporariamente indisponível")
		default:
			log.Error().Err(err).Msg("Erro interno ao processar pagamento")
			respondError(w, http.StatusInternalServerError, "Erro interno do servidor")
		}
		return
	}

	switch output.Admission {
	case usecase.AdmitDuplicateInFlight:
		w.Header().Set("Retry-After", "1")
		w.Header().Set("X-Idempotency-Hit", "true")
	case usecase.AdmitDuplicateCompleted:
		w.Header().Set("X-Idempotency-Hit", "true")
	}

	respondJSON(w, output.StatusCode, PaymentResponse{
		TransactionID: output.TransactionID,
		Status:        output.Status,
		Reason:        output.Reason,
	})
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	output, err := h.get.Execute(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Pagamento não encontrado")
			return
		}
		log.Error().Err(err).Str("transaction_id", id).Msg("Erro interno ao consultar pagamento")
		respondError(w, http.StatusInternalServerError, "Erro interno do servidor")
		return
	}

	respondJSON(w, http.StatusOK, PaymentStatusResponse{
		TransactionID: output.TransactionID,
		Status:        output.Status,
		Phase:         output.Phase,
		Reason:        output.Reason,
		Record:        output.Record,
	})
}

func (h *PaymentHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.get.Audit(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Nenhum evento de auditoria para este pagamento")
			return
		}
		log.Error().Err(err).Str("transaction_id", id).Msg("Erro interno ao listar auditoria")
		respondError(w, http.StatusInternalServerError, "Erro interno do servidor")
		return
	}

	respondJSON(w, http.StatusOK, AuditResponse{TransactionID: id, Events: events})
}

package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
)

// AccountHandler mantém o perfil de limites consultado pelo validador LIMIT.
type AccountHandler struct {
	accounts *usecase.AccountsUseCase
}

func NewAccountHandler(accounts *usecase.AccountsUseCase) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Put(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Payload inválido")
		return
	}
	if err := validateJSONSchema(registerAccountLoader, body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		ID                  string `json:"id"`
		Balance             int64  `json:"balance"`
		PerTransactionLimit int64  `json:"per_transaction_limit"`
		Frozen              bool   `json:"frozen"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Payload inválido")
		return
	}

	output, err := h.accounts.Register(r.Context(), usecase.RegisterAccountInput{
		ID:                  req.ID,
		Balance:             req.Balance,
		PerTransactionLimit: req.PerTransactionLimit,
		Frozen:              req.Frozen,
	})
	if err != nil {
		if domain.IsStructural(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("Falha ao registrar conta")
		respondError(w, http.StatusInternalServerError, "Erro interno")
		return
	}

	respondJSON(w, http.StatusCreated, output)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	output, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "Conta não encontrada")
			return
		}
		log.Error().Err(err).Msg("Falha ao consultar conta")
		respondError(w, http.StatusInternalServerError, "Erro interno")
		return
	}
	respondJSON(w, http.StatusOK, output)
}

package handler

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// ErrorResponse expõe só a mensagem e o reason code; detalhes internos ficam no log.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Reason domain.ReasonCode `json:"reason,omitempty"`
}

// Helpers para resposta JSON
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Falha ao codificar resposta JSON")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func respondReason(w http.ResponseWriter, status int, message string, reason domain.ReasonCode) {
	respondJSON(w, status, ErrorResponse{Error: message, Reason: reason})
}

package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	maxPeekBytes      = 1 << 20
)

type contextKey string

const idempotencyKeyCtx contextKey = "idempotency_key"

// IdempotencyKeyFromContext devolve a chave já validada pelo middleware.
func IdempotencyKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx).(string)
	return key
}

// IdempotencyKey extrai a chave do header ou, na falta dele, do campo idempotencyKey
// (ou do alias idempotency_key) do corpo.
// O corpo é relido e devolvido intacto para o handler.
// A decisão de duplicata fica no IdempotencyGate; aqui só garantimos que a chave existe e é válida.
func IdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerKey := r.Header.Get(IdempotencyHeader)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPeekBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Payload inválido", domain.ReasonMalformedRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var peek struct {
			IdempotencyKey      string `json:"idempotencyKey"`
			IdempotencyKeyAlias string `json:"idempotency_key"`
		}
		// Corpo inválido é problema do handler (validação de schema), não nosso
		_ = json.Unmarshal(body, &peek)

		bodyKey := peek.IdempotencyKey
		if bodyKey == "" {
			bodyKey = peek.IdempotencyKeyAlias
		} else if peek.IdempotencyKeyAlias != "" && peek.IdempotencyKeyAlias != bodyKey {
			writeError(w, http.StatusBadRequest, "Chave de idempotência enviada duas vezes no corpo com valores diferentes", domain.ReasonMalformedRequest)
			return
		}

		key := headerKey
		switch {
		case key == "":
			key = bodyKey
		case bodyKey != "" && bodyKey != headerKey:
			writeError(w, http.StatusBadRequest, "Chave de idempotência do header difere da do corpo", domain.ReasonMalformedRequest)
			return
		}

		if key == "" {
			writeError(w, http.StatusBadRequest, domain.ErrMissingIdempotencyKey.Error(), domain.ReasonMalformedRequest)
			return
		}
		if !domain.ValidIdempotencyKey(key) {
			log.Debug().Str("key", key).Msg("Chave de idempotência rejeitada")
			writeError(w, http.StatusBadRequest, domain.ErrInvalidIdempotencyKey.Error(), domain.ReasonMalformedRequest)
			return
		}

		ctx := context.WithValue(r.Context(), idempotencyKeyCtx, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, message string, reason domain.ReasonCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]string{"error": message}
	if reason != domain.ReasonNone {
		payload["reason"] = string(reason)
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Falha ao codificar resposta JSON")
	}
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// PaymentRequest é imutável depois da entrada no gateway.
// Amount sempre em unidades menores (centavos).
type PaymentRequest struct {
	ID             string    `json:"id" bson:"id"`
	IdempotencyKey string    `json:"idempotency_key" bson:"idempotency_key"`
	SourceAccount  string    `json:"source_account" bson:"source_account"`
	DestAccount    string    `json:"dest_account" bson:"dest_account"`
	Amount         int64     `json:"amount" bson:"amount"`
	Currency       string    `json:"currency" bson:"currency"`
	SubmittedAt    time.Time `json:"submitted_at" bson:"submitted_at"`
}

func (r PaymentRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return ErrMissingIdempotencyKey
	}
	if !ValidIdempotencyKey(r.IdempotencyKey) {
		return ErrInvalidIdempotencyKey
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if r.SourceAccount == "" || r.DestAccount == "" {
		return ErrInvalidAccount
	}
	if r.SourceAccount == r.DestAccount {
		return ErrSameAccount
	}
	if !validCurrency(r.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// Fingerprint identifica o conteúdo lógico da requisição, independente do transactionId.
// Reutilizar a mesma chave com outro fingerprint é rejeitado.
func (r PaymentRequest) Fingerprint() string {
	normalized := fmt.Sprintf("%s|%s|%d|%s",
		r.SourceAccount, r.DestAccount, r.Amount, strings.ToUpper(r.Currency))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ValidIdempotencyKey aceita UUIDs, hashes e chaves determinísticas do tipo "order:user:123".
func ValidIdempotencyKey(key string) bool {
	if key == "" || len(key) > 256 {
		return false
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == ':', c == '.':
		default:
			return false
		}
	}
	return true
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

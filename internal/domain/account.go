package domain

import (
	"time"
)

// Account é a visão que o validador de limites tem da conta de origem.
// Não representa o ledger: o saldo aqui é apenas o disponível para avaliação.
type Account struct {
	ID                  string
	Balance             int64
	PerTransactionLimit int64 // 0 = sem limite
	Frozen              bool
	UpdatedAt           time.Time
}

func (a *Account) HasSufficientFunds(amount int64) bool {
	return a.Balance >= amount
}

// CanSpend valida se a conta pode originar um pagamento deste valor.
func (a *Account) CanSpend(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Frozen {
		return ErrAccountFrozen
	}
	if a.PerTransactionLimit > 0 && amount > a.PerTransactionLimit {
		return ErrLimitExceeded
	}
	if !a.HasSufficientFunds(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// BalanceSeeder é implementado pelo ledger em memória do ambiente local.
type BalanceSeeder interface {
	SetBalance(account string, amount int64)
}

type RegisterAccountInput struct {
	ID                  string
	Balance             int64
	PerTransactionLimit int64
	Frozen              bool
}

type AccountOutput struct {
	ID                  string `json:"id"`
	Balance             int64  `json:"balance"`
	PerTransactionLimit int64  `json:"per_transaction_limit"`
	Frozen              bool   `json:"frozen"`
	UpdatedAt           string `json:"updated_at"`
}

// AccountsUseCase mantém o perfil de limites que o validador LIMIT consulta.
type AccountsUseCase struct {
	reader gateway.AccountRepository
	writer gateway.AccountWriter
	ledger BalanceSeeder
	Now    func() time.Time
}

// NewAccounts recebe o ledger só no modo local; com ledger externo passe nil.
func NewAccounts(reader gateway.AccountRepository, writer gateway.AccountWriter, ledger BalanceSeeder) *AccountsUseCase {
	return &AccountsUseCase{reader: reader, writer: writer, ledger: ledger, Now: time.Now}
}

func (u *AccountsUseCase) Register(ctx context.Context, input RegisterAccountInput) (*AccountOutput, error) {
	if input.ID == "" {
		return nil, domain.ErrInvalidAccount
	}
	if input.Balance < 0 || input.PerTransactionLimit < 0 {
		return nil, domain.ErrInvalidAmount
	}

	account := domain.Account{
		ID:                  input.ID,
		Balance:             input.Balance,
		PerTransactionLimit: input.PerTransactionLimit,
		Frozen:              input.Frozen,
		UpdatedAt:           u.Now(),
	}
	// Operação atômica simples (um upsert), sem Unit of Work
	if err := u.writer.Upsert(ctx, account); err != nil {
		return nil, err
	}
	if u.ledger != nil {
		u.ledger.SetBalance(account.ID, account.Balance)
	}
	return toAccountOutput(&account), nil
}

func (u *AccountsUseCase) Get(ctx context.Context, id string) (*AccountOutput, error) {
	account, err := u.reader.GetByID(ctx, id)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return toAccountOutput(account), nil
}

func toAccountOutput(a *domain.Account) *AccountOutput {
	return &AccountOutput{
		ID:                  a.ID,
		Balance:             a.Balance,
		PerTransactionLimit: a.PerTransactionLimit,
		Frozen:              a.Frozen,
		UpdatedAt:           a.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

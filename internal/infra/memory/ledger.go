package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

type reservationState int

const (
	reservationHeld reservationState = iota
	reservationCommitted
	reservationReleased
)

type reservation struct {
	domain.Reservation
	state reservationState
}

// Ledger é um ledger de reservas em memória: reserve -> commit|release, com expiração.
// Reserve é idempotente por transactionId enquanto a reserva estiver viva.
type Ledger struct {
	mu           sync.Mutex
	balances     map[string]int64
	reservations map[string]*reservation
	byTxn        map[string]string
	expiry       time.Duration
	Now          func() time.Time
}

func NewLedger(expiry time.Duration) *Ledger {
	return &Ledger{
		balances:     make(map[string]int64),
		reservations: make(map[string]*reservation),
		byTxn:        make(map[string]string),
		expiry:       expiry,
		Now:          time.Now,
	}
}

func (l *Ledger) SetBalance(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = amount
}

func (l *Ledger) Balance(account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (l *Ledger) Reserve(ctx context.Context, transactionID, sourceAccount string, amount int64) (domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	l.sweepLocked(now)

	if id, ok := l.byTxn[transactionID]; ok {
		if r := l.reservations[id]; r.state == reservationHeld {
			return r.Reservation, nil
		}
	}

	balance, ok := l.balances[sourceAccount]
	if !ok {
		return domain.Reservation{}, domain.ErrAccountNotFound
	}
	if balance-l.heldLocked(sourceAccount) < amount {
		return domain.Reservation{}, domain.ErrInsufficientFunds
	}

	r := &reservation{
		Reservation: domain.Reservation{
			ID:            uuid.New().String(),
			TransactionID: transactionID,
			Account:       sourceAccount,
			Amount:        amount,
			ExpiresAt:     now.Add(l.expiry),
		},
	}
	l.reservations[r.ID] = r
	l.byTxn[transactionID] = r.ID
	return r.Reservation, nil
}

func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	switch r.state {
	case reservationCommitted:
		return nil
	case reservationReleased:
		return domain.ErrReservationReleased
	}
	if !l.Now().Before(r.ExpiresAt) {
		r.state = reservationReleased
		return domain.ErrReservationExpired
	}

	r.state = reservationCommitted
	l.balances[r.Account] -= r.Amount
	return nil
}

func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if r.state == reservationCommitted {
		return domain.ErrReservationCommitted
	}
	r.state = reservationReleased
	return nil
}

// Held soma o que está reservado (e não expirado) para a conta.
func (l *Ledger) Held(account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.Now())
	return l.heldLocked(account)
}

// RunExpirySweeper libera periodicamente reservas vencidas até ctx ser cancelado.
func (l *Ledger) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			released := l.sweepLocked(l.Now())
			l.mu.Unlock()
			if released > 0 {
				log.Info().Int("released", released).Msg("reservas expiradas liberadas")
			}
		}
	}
}

func (l *Ledger) sweepLocked(now time.Time) int {
	released := 0
	for _, r := range l.reservations {
		if r.state == reservationHeld && !now.Before(r.ExpiresAt) {
			r.state = reservationReleased
			released++
		}
	}
	return released
}

func (l *Ledger) heldLocked(account string) int64 {
	var held int64
	for _, r := range l.reservations {
		if r.state == reservationHeld && r.Account == account {
			held += r.Amount
		}
	}
	return held
}

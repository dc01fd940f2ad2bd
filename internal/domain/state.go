package domain

import (
	"fmt"
	"time"
)

type Phase string

const (
	PhasePending             Phase = "PENDING"
	PhaseAwaitingValidations Phase = "AWAITING_VALIDATIONS"
	PhaseTimedOut            Phase = "TIMED_OUT"
	PhaseDecided             Phase = "DECIDED"
	PhaseExecuting           Phase = "EXECUTING"
	PhaseCompleted           Phase = "COMPLETED"
	PhaseRejected            Phase = "REJECTED"
	PhaseFailed              Phase = "FAILED"
)

// allowedTransitions: chave é a fase atual, valor são as fases de destino válidas.
// AWAITING_VALIDATIONS -> PENDING acontece quando a tentativa é abandonada por falha de transporte.
var allowedTransitions = map[Phase][]Phase{
	PhasePending:             {PhaseAwaitingValidations},
	PhaseAwaitingValidations: {PhaseDecided, PhaseTimedOut, PhasePending},
	PhaseTimedOut:            {PhaseDecided},
	PhaseDecided:             {PhaseExecuting, PhaseRejected},
	PhaseExecuting:           {PhaseCompleted, PhaseRejected, PhaseFailed},
	PhaseCompleted:           {},
	PhaseRejected:            {},
	PhaseFailed:              {},
}

func CanTransition(from, to Phase) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseRejected || p == PhaseFailed
}

// Decided indica que a decisão já foi tomada; vereditos depois disso são tardios.
func (p Phase) Decided() bool {
	switch p {
	case PhaseDecided, PhaseExecuting, PhaseCompleted, PhaseRejected, PhaseFailed:
		return true
	}
	return false
}

// OrchestrationState pertence exclusivamente ao orquestrador.
type OrchestrationState struct {
	TransactionID string                    `json:"transaction_id" bson:"transaction_id"`
	Request       PaymentRequest            `json:"request" bson:"request"`
	Phase         Phase                     `json:"phase" bson:"phase"`
	Verdicts      map[ValidatorKind]Verdict `json:"verdicts" bson:"verdicts"`
	AttemptNonce  string                    `json:"attempt_nonce" bson:"attempt_nonce"`
	Attempt       int                       `json:"attempt" bson:"attempt"`
	Deadline      time.Time                 `json:"deadline" bson:"deadline"`
	Decision      *DecisionResult           `json:"decision,omitempty" bson:"decision,omitempty"`
	ReservationID string                    `json:"reservation_id,omitempty" bson:"reservation_id,omitempty"`
	// Reservas de vereditos substituídos que ainda precisam ser liberadas.
	OrphanReservations []string   `json:"orphan_reservations,omitempty" bson:"orphan_reservations,omitempty"`
	FinalStatus        FinalStatus `json:"final_status,omitempty" bson:"final_status,omitempty"`
	Confirmed          bool        `json:"confirmed" bson:"confirmed"`
	Version            int64       `json:"version" bson:"version"`
	CreatedAt          time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" bson:"updated_at"`
}

func NewOrchestrationState(req PaymentRequest, now time.Time) *OrchestrationState {
	return &OrchestrationState{
		TransactionID: req.ID,
		Request:       req,
		Phase:         PhasePending,
		Verdicts:      make(map[ValidatorKind]Verdict),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *OrchestrationState) Transition(to Phase, now time.Time) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, to)
	}
	s.Phase = to
	s.UpdatedAt = now
	return nil
}

// BeginAttempt prepara uma nova tentativa de despacho com nonce novo.
func (s *OrchestrationState) BeginAttempt(nonce string, deadline, now time.Time) error {
	if err := s.Transition(PhaseAwaitingValidations, now); err != nil {
		return err
	}
	s.Attempt++
	s.AttemptNonce = nonce
	s.Deadline = deadline
	s.Verdicts = make(map[ValidatorKind]Verdict)
	return nil
}

// RecordVerdict guarda o veredito se for o mais recente do seu tipo.
// Vereditos com ReceivedAt igual ou mais antigo são descartados.
func (s *OrchestrationState) RecordVerdict(v Verdict) bool {
	if s.Verdicts == nil {
		s.Verdicts = make(map[ValidatorKind]Verdict)
	}
	if current, ok := s.Verdicts[v.Kind]; ok && !v.ReceivedAt.After(current.ReceivedAt) {
		return false
	}
	s.Verdicts[v.Kind] = v

	// Um DECLINE do ledger não carrega reserva e não apaga a viva: ela é liberada na rejeição.
	if v.HoldsReservation() {
		if s.ReservationID != "" && s.ReservationID != v.ReservationID {
			s.OrphanReservations = append(s.OrphanReservations, s.ReservationID)
		}
		s.ReservationID = v.ReservationID
	}
	return true
}

// Reservations retorna todas as reservas conhecidas, a viva primeiro.
func (s *OrchestrationState) Reservations() []string {
	var out []string
	if s.ReservationID != "" {
		out = append(out, s.ReservationID)
	}
	return append(out, s.OrphanReservations...)
}

func (s *OrchestrationState) Clone() *OrchestrationState {
	c := *s
	c.Verdicts = make(map[ValidatorKind]Verdict, len(s.Verdicts))
	for k, v := range s.Verdicts {
		c.Verdicts[k] = v
	}
	if s.Decision != nil {
		d := *s.Decision
		d.Missing = append([]ValidatorKind(nil), s.Decision.Missing...)
		c.Decision = &d
	}
	c.OrphanReservations = append([]string(nil), s.OrphanReservations...)
	return &c
}

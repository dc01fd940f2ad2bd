package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newState() *OrchestrationState {
	return NewOrchestrationState(PaymentRequest{
		ID:             "txn-1",
		IdempotencyKey: "k1",
		SourceAccount:  "A",
		DestAccount:    "B",
		Amount:         5000,
		Currency:       "USD",
	}, t0)
}

func TestCanTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{PhasePending, PhaseAwaitingValidations, true},
		{PhaseAwaitingValidations, PhaseDecided, true},
		{PhaseAwaitingValidations, PhaseTimedOut, true},
		{PhaseAwaitingValidations, PhasePending, true},
		{PhaseTimedOut, PhaseDecided, true},
		{PhaseDecided, PhaseExecuting, true},
		{PhaseDecided, PhaseRejected, true},
		{PhaseExecuting, PhaseCompleted, true},
		{PhaseExecuting, PhaseRejected, true},
		{PhaseExecuting, PhaseFailed, true},

		{PhasePending, PhaseDecided, false},
		{PhaseTimedOut, PhaseExecuting, false},
		{PhaseDecided, PhaseCompleted, false},
		{PhaseCompleted, PhaseRejected, false},
		{PhaseRejected, PhaseCompleted, false},
		{PhaseFailed, PhaseAwaitingValidations, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPhase_TerminalAndDecided(t *testing.T) {
	t.Parallel()
	for _, p := range []Phase{PhaseCompleted, PhaseRejected, PhaseFailed} {
		assert.True(t, p.Terminal(), p)
		assert.True(t, p.Decided(), p)
	}
	for _, p := range []Phase{PhasePending, PhaseAwaitingValidations, PhaseTimedOut} {
		assert.False(t, p.Terminal(), p)
		assert.False(t, p.Decided(), p)
	}
	assert.True(t, PhaseExecuting.Decided())
	assert.False(t, PhaseExecuting.Terminal())
}

func TestOrchestrationState_Transition_RejectsInvalid(t *testing.T) {
	t.Parallel()
	s := newState()

	err := s.Transition(PhaseCompleted, t0)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, PhasePending, s.Phase)
}

func TestOrchestrationState_BeginAttempt_ResetsVerdicts(t *testing.T) {
	t.Parallel()
	s := newState()

	require.NoError(t, s.BeginAttempt("n1", t0.Add(2*time.Second), t0))
	s.RecordVerdict(Verdict{Kind: ValidatorFraud, Decision: DecisionApprove, ReceivedAt: t0})
	require.NoError(t, s.Transition(PhasePending, t0))

	require.NoError(t, s.BeginAttempt("n2", t0.Add(4*time.Second), t0))
	assert.Equal(t, 2, s.Attempt)
	assert.Equal(t, "n2", s.AttemptNonce)
	assert.Empty(t, s.Verdicts)
}

func TestOrchestrationState_RecordVerdict_NewestWins(t *testing.T) {
	t.Parallel()
	s := newState()

	first := Verdict{Kind: ValidatorFraud, Decision: DecisionApprove, ReceivedAt: t0.Add(time.Second)}
	older := Verdict{Kind: ValidatorFraud, Decision: DecisionDecline, ReceivedAt: t0}
	same := Verdict{Kind: ValidatorFraud, Decision: DecisionDecline, ReceivedAt: t0.Add(time.Second)}
	newer := Verdict{Kind: ValidatorFraud, Decision: DecisionDecline, ReceivedAt: t0.Add(2 * time.Second)}

	assert.True(t, s.RecordVerdict(first))
	assert.False(t, s.RecordVerdict(older))
	assert.False(t, s.RecordVerdict(same))
	assert.Equal(t, DecisionApprove, s.Verdicts[ValidatorFraud].Decision)

	assert.True(t, s.RecordVerdict(newer))
	assert.Equal(t, DecisionDecline, s.Verdicts[ValidatorFraud].Decision)
}

func TestOrchestrationState_RecordVerdict_TracksOrphanReservations(t *testing.T) {
	t.Parallel()
	s := newState()

	s.RecordVerdict(Verdict{Kind: ValidatorLedger, Decision: DecisionApprove, ReservationID: "r1", ReceivedAt: t0})
	s.RecordVerdict(Verdict{Kind: ValidatorLedger, Decision: DecisionApprove, ReservationID: "r2", ReceivedAt: t0.Add(time.Second)})

	assert.Equal(t, "r2", s.ReservationID)
	assert.Equal(t, []string{"r1"}, s.OrphanReservations)
	assert.Equal(t, []string{"r2", "r1"}, s.Reservations())
}

func TestOrchestrationState_RecordVerdict_LedgerDeclineKeepsLiveReservation(t *testing.T) {
	t.Parallel()
	s := newState()

	s.RecordVerdict(Verdict{Kind: ValidatorLedger, Decision: DecisionApprove, ReservationID: "r1", ReceivedAt: t0})
	s.RecordVerdict(Verdict{Kind: ValidatorLedger, Decision: DecisionDecline, ReceivedAt: t0.Add(time.Second)})

	assert.Equal(t, DecisionDecline, s.Verdicts[ValidatorLedger].Decision)
	assert.Equal(t, "r1", s.ReservationID)
	assert.Empty(t, s.OrphanReservations)
}

func TestOrchestrationState_Clone_IsDeep(t *testing.T) {
	t.Parallel()
	s := newState()
	s.RecordVerdict(Verdict{Kind: ValidatorFraud, Decision: DecisionApprove, ReceivedAt: t0})
	s.Decision = &DecisionResult{Outcome: OutcomeReject, Missing: []ValidatorKind{ValidatorLimit}}
	s.OrphanReservations = []string{"r0"}

	c := s.Clone()
	c.Verdicts[ValidatorLimit] = Verdict{Kind: ValidatorLimit}
	c.Decision.Missing[0] = ValidatorLedger
	c.OrphanReservations[0] = "changed"

	assert.Len(t, s.Verdicts, 1)
	assert.Equal(t, ValidatorLimit, s.Decision.Missing[0])
	assert.Equal(t, "r0", s.OrphanReservations[0])
}

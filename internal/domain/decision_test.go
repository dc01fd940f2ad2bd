package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func verdictsFor(fraud, limit, ledger Decision) map[ValidatorKind]Verdict {
	return map[ValidatorKind]Verdict{
		ValidatorFraud:  {Kind: ValidatorFraud, Decision: fraud},
		ValidatorLimit:  {Kind: ValidatorLimit, Decision: limit},
		ValidatorLedger: {Kind: ValidatorLedger, Decision: ledger},
	}
}

func expectedReason(kind ValidatorKind, d Decision) ReasonCode {
	if d == DecisionError {
		return ReasonValidatorUnavailable
	}
	return declineReason(kind)
}

func TestDecide_AllCombinations(t *testing.T) {
	t.Parallel()
	decisions := []Decision{DecisionApprove, DecisionDecline, DecisionError}

	for _, f := range decisions {
		for _, l := range decisions {
			for _, g := range decisions {
				f, l, g := f, l, g
				t.Run(fmt.Sprintf("%s_%s_%s", f, l, g), func(t *testing.T) {
					t.Parallel()
					result := Decide(verdictsFor(f, l, g))

					if f == DecisionApprove && l == DecisionApprove && g == DecisionApprove {
						assert.Equal(t, OutcomeProceed, result.Outcome)
						assert.Equal(t, ReasonNone, result.Reason)
						return
					}

					assert.Equal(t, OutcomeReject, result.Outcome)
					assert.Empty(t, result.Missing)
					switch {
					case f != DecisionApprove:
						assert.Equal(t, expectedReason(ValidatorFraud, f), result.Reason)
					case l != DecisionApprove:
						assert.Equal(t, expectedReason(ValidatorLimit, l), result.Reason)
					default:
						assert.Equal(t, expectedReason(ValidatorLedger, g), result.Reason)
					}
				})
			}
		}
	}
}

func TestDecide_MissingVerdictsCountAsTimeout(t *testing.T) {
	t.Parallel()
	verdicts := map[ValidatorKind]Verdict{
		ValidatorFraud:  {Kind: ValidatorFraud, Decision: DecisionApprove},
		ValidatorLedger: {Kind: ValidatorLedger, Decision: DecisionApprove, ReservationID: "r1"},
	}

	assert.False(t, Ready(verdicts))
	result := Decide(verdicts)
	assert.Equal(t, OutcomeReject, result.Outcome)
	assert.Equal(t, ReasonValidationTimeout, result.Reason)
	assert.Equal(t, []ValidatorKind{ValidatorLimit}, result.Missing)
}

func TestDecide_PriorityFollowsFraudLimitLedger(t *testing.T) {
	t.Parallel()
	verdicts := map[ValidatorKind]Verdict{
		ValidatorLimit:  {Kind: ValidatorLimit, Decision: DecisionDecline},
		ValidatorLedger: {Kind: ValidatorLedger, Decision: DecisionError},
	}

	result := Decide(verdicts)
	assert.Equal(t, ReasonValidationTimeout, result.Reason, "fraud ausente vem antes de limit")
	assert.Equal(t, []ValidatorKind{ValidatorFraud}, result.Missing)
}

func TestReady(t *testing.T) {
	t.Parallel()
	assert.True(t, Ready(verdictsFor(DecisionError, DecisionDecline, DecisionApprove)))
	assert.False(t, Ready(map[ValidatorKind]Verdict{}))
}

func TestFailureReason_Transient(t *testing.T) {
	t.Parallel()
	assert.True(t, FailureDispatchTransport.Transient())
	assert.True(t, FailureStateStore.Transient())
	assert.False(t, FailureMalformedRequest.Transient())
	assert.False(t, FailureCommitExhausted.Transient())
}

func TestIdempotencyRecord_Expired(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.False(t, IdempotencyRecord{}.Expired(now))
	assert.True(t, IdempotencyRecord{ExpiresAt: now}.Expired(now))
	assert.False(t, IdempotencyRecord{ExpiresAt: now.Add(time.Second)}.Expired(now))
}

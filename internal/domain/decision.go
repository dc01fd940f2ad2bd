package domain

type DecisionOutcome string

const (
	OutcomeProceed DecisionOutcome = "PROCEED"
	OutcomeReject  DecisionOutcome = "REJECT"
)

type ReasonCode string

const (
	ReasonNone                 ReasonCode = ""
	ReasonFraudDeclined        ReasonCode = "FRAUD_DECLINED"
	ReasonLimitDeclined        ReasonCode = "LIMIT_DECLINED"
	ReasonLedgerDeclined       ReasonCode = "LEDGER_DECLINED"
	ReasonValidatorUnavailable ReasonCode = "VALIDATOR_UNAVAILABLE"
	ReasonValidationTimeout    ReasonCode = "VALIDATION_TIMEOUT"
	ReasonLedgerCommitFailed   ReasonCode = "LEDGER_COMMIT_FAILED"
	ReasonMalformedRequest     ReasonCode = "MALFORMED_REQUEST"
	ReasonDispatchFailed       ReasonCode = "DISPATCH_FAILED"
)

type DecisionResult struct {
	Outcome DecisionOutcome `json:"outcome" bson:"outcome"`
	Reason  ReasonCode      `json:"reason,omitempty" bson:"reason,omitempty"`
	Missing []ValidatorKind `json:"missing,omitempty" bson:"missing,omitempty"`
}

// Ready retorna true quando os três validadores já têm veredito vivo.
func Ready(verdicts map[ValidatorKind]Verdict) bool {
	for _, kind := range ValidatorKinds {
		if _, ok := verdicts[kind]; !ok {
			return false
		}
	}
	return true
}

// Decide aplica a matriz de decisão. ERROR e ausência contam como DECLINE.
// O motivo reportado é o do primeiro validador (Fraud, Limit, Ledger) que não aprovou.
func Decide(verdicts map[ValidatorKind]Verdict) DecisionResult {
	result := DecisionResult{Outcome: OutcomeProceed}

	for _, kind := range ValidatorKinds {
		v, ok := verdicts[kind]
		var reason ReasonCode
		switch {
		case !ok:
			result.Missing = append(result.Missing, kind)
			reason = ReasonValidationTimeout
		case v.Decision == DecisionApprove:
			continue
		case v.Decision == DecisionDecline:
			reason = declineReason(kind)
		default:
			reason = ReasonValidatorUnavailable
		}

		if result.Outcome == OutcomeProceed {
			result.Outcome = OutcomeReject
			result.Reason = reason
		}
	}
	return result
}

func declineReason(kind ValidatorKind) ReasonCode {
	switch kind {
	case ValidatorFraud:
		return ReasonFraudDeclined
	case ValidatorLimit:
		return ReasonLimitDeclined
	default:
		return ReasonLedgerDeclined
	}
}

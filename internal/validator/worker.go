package validator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
)

const (
	defaultDedupeTTL = 10 * time.Minute
	sweepThreshold   = 4096
)

type WorkerConfig struct {
	// TransportRetries é quantas vezes uma falha de transporte é re-tentada antes de virar ERROR.
	TransportRetries int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	DedupeTTL        time.Duration
}

type cachedVerdict struct {
	verdict domain.Verdict
	expires time.Time
}

// Worker hospeda os adaptadores no bus: consome validation.<kind> e publica verdict.<kind>.
// Reentregas do mesmo (transactionId, attemptNonce) devolvem o veredito já calculado,
// assim o ledger não reserva duas vezes para a mesma tentativa.
type Worker struct {
	validators map[domain.ValidatorKind]gateway.Validator
	publisher  gateway.EventPublisher
	cfg        WorkerConfig

	mu   sync.Mutex
	seen map[string]cachedVerdict

	Now func() time.Time
}

func NewWorker(publisher gateway.EventPublisher, cfg WorkerConfig, validators ...gateway.Validator) *Worker {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	byKind := make(map[domain.ValidatorKind]gateway.Validator, len(validators))
	for _, v := range validators {
		byKind[v.Kind()] = v
	}
	return &Worker{
		validators: byKind,
		publisher:  publisher,
		cfg:        cfg,
		seen:       make(map[string]cachedVerdict),
		Now:        time.Now,
	}
}

// QueueFor devolve o nome da fila de um tipo de validador ("validator.fraud").
func QueueFor(kind domain.ValidatorKind) string {
	return "validator." + strings.ToLower(string(kind))
}

// Start assina uma fila por validador hospedado.
func (w *Worker) Start(ctx context.Context, subscriber gateway.EventSubscriber) error {
	for kind := range w.validators {
		binding := gateway.RoutingValidationPrefix + string(kind)
		if err := subscriber.Subscribe(ctx, QueueFor(kind), []string{binding}, w.Handle); err != nil {
			return fmt.Errorf("failed to subscribe validator %s: %w", kind, err)
		}
		log.Info().Str("validator", string(kind)).Str("queue", QueueFor(kind)).Msg("Validador escutando")
	}
	return nil
}

// Handle é o gateway.MessageHandler das filas de validação.
func (w *Worker) Handle(ctx context.Context, d gateway.Delivery) error {
	var req domain.ValidationRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		log.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("Envelope de validação malformado descartado")
		return nil
	}
	if req.TransactionID == "" || !req.ValidatorKind.Valid() {
		log.Error().Str("routing_key", d.RoutingKey).Msg("Envelope de validação incompleto descartado")
		return nil
	}

	verdict := w.Evaluate(ctx, req)

	routingKey := gateway.RoutingVerdictPrefix + string(verdict.Kind)
	if err := w.publisher.Publish(ctx, gateway.ExchangePayments, routingKey, verdict); err != nil {
		return fmt.Errorf("failed to publish verdict: %w", err)
	}
	return nil
}

// Evaluate roda o validador com re-tentativas de transporte e nunca devolve erro:
// esgotadas as tentativas, o veredito é ERROR.
func (w *Worker) Evaluate(ctx context.Context, req domain.ValidationRequest) domain.Verdict {
	key := req.TransactionID + "|" + req.AttemptNonce + "|" + string(req.ValidatorKind)
	if v, ok := w.cached(key); ok {
		log.Debug().
			Str("transaction_id", req.TransactionID).
			Str("validator", string(req.ValidatorKind)).
			Msg("Reentrega: devolvendo veredito já calculado")
		return v
	}

	verdict := w.run(ctx, req)
	verdict.TransactionID = req.TransactionID
	verdict.AttemptNonce = req.AttemptNonce
	verdict.Kind = req.ValidatorKind
	verdict.ReceivedAt = w.Now()

	w.remember(key, verdict)
	return verdict
}

func (w *Worker) run(ctx context.Context, req domain.ValidationRequest) domain.Verdict {
	validator, ok := w.validators[req.ValidatorKind]
	if !ok {
		return domain.Verdict{Decision: domain.DecisionError, Detail: "validator not hosted here"}
	}

	policy := retry.Policy{
		BaseDelay:   w.cfg.RetryBaseDelay,
		MaxDelay:    w.cfg.RetryMaxDelay,
		MaxAttempts: w.cfg.TransportRetries + 1,
	}

	var verdict domain.Verdict
	attempt := 0
	err := retry.Do(ctx, policy, nil, func(ctx context.Context) error {
		attempt++
		v, err := validator.Validate(ctx, req)
		if err != nil {
			log.Warn().Err(err).
				Str("transaction_id", req.TransactionID).
				Str("validator", string(req.ValidatorKind)).
				Int("attempt", attempt).
				Msg("Falha de transporte no validador")
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return domain.Verdict{Decision: domain.DecisionError, Detail: err.Error()}
	}
	return verdict
}

func (w *Worker) cached(key string) (domain.Verdict, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.seen[key]
	if !ok || !w.Now().Before(c.expires) {
		return domain.Verdict{}, false
	}
	return c.verdict, true
}

func (w *Worker) remember(key string, v domain.Verdict) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.Now()
	if len(w.seen) >= sweepThreshold {
		for k, c := range w.seen {
			if !now.Before(c.expires) {
				delete(w.seen, k)
			}
		}
	}
	w.seen[key] = cachedVerdict{verdict: v, expires: now.Add(w.cfg.DedupeTTL)}
}

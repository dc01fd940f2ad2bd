package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// FailureHandler recebe as falhas que tiram uma transação do caminho feliz (dead-letter)
// e o aviso de que ela chegou a COMPLETED ou REJECTED.
type FailureHandler interface {
	OnFailure(ctx context.Context, req domain.PaymentRequest, reason domain.FailureReason, detail string) error
	OnSettled(ctx context.Context, transactionID string) error
}

// verdictBuffer é quantos vereditos um coordenador aceita antes de pedir reentrega.
const verdictBuffer = 32

type Config struct {
	AggregationDeadline time.Duration
}

// Orchestrator é dono do OrchestrationState: uma goroutine coordenadora por transação em voo.
type Orchestrator struct {
	states    gateway.OrchestrationStateRepository
	publisher gateway.EventPublisher
	committer *Committer
	audit     *audit.Writer
	failures  FailureHandler
	cfg       Config

	Now      func() time.Time
	NewNonce func() string

	ctx    context.Context
	mu     sync.Mutex
	active map[string]*coordinator
	wg     sync.WaitGroup
}

type coordinator struct {
	transactionID string
	verdicts      chan domain.Verdict
}

func New(
	states gateway.OrchestrationStateRepository,
	publisher gateway.EventPublisher,
	committer *Committer,
	auditWriter *audit.Writer,
	failures FailureHandler,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		states:    states,
		publisher: publisher,
		committer: committer,
		audit:     auditWriter,
		failures:  failures,
		cfg:       cfg,
		Now:       time.Now,
		NewNonce:  func() string { return uuid.New().String() },
		active:    make(map[string]*coordinator),
	}
}

// Start retoma as orquestrações pendentes e passa a consumir vereditos.
// Coordenadores vivem até ctx ser cancelado; o estado durável permite retomar depois.
func (o *Orchestrator) Start(ctx context.Context, subscriber gateway.EventSubscriber) error {
	o.ctx = ctx

	if err := o.Recover(ctx); err != nil {
		return err
	}

	if subscriber != nil {
		bindings := []string{gateway.RoutingVerdictPrefix + "*"}
		if err := subscriber.Subscribe(ctx, gateway.QueueVerdicts, bindings, o.HandleVerdict); err != nil {
			return fmt.Errorf("failed to subscribe to verdicts: %w", err)
		}
	}
	return nil
}

// Wait bloqueia até todos os coordenadores terminarem.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ActiveCount devolve quantas transações têm coordenador vivo.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Accept grava o estado PENDING (tentativa 0) antes da resposta ao cliente.
// A partir daqui Recover encontra a transação mesmo que o processo caia antes do despacho.
// Estado já existente é aceito: a submissão é a mesma transação.
func (o *Orchestrator) Accept(ctx context.Context, req domain.PaymentRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	err := o.states.Create(ctx, domain.NewOrchestrationState(req, o.Now()))
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("failed to create orchestration state: %w", err)
	}
	return nil
}

// Dispatch cria o estado (ou reaproveita um PENDING), abre uma tentativa com nonce novo
// e publica um envelope por validador. Um estado já em andamento é apenas retomado.
func (o *Orchestrator) Dispatch(ctx context.Context, req domain.PaymentRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	state := domain.NewOrchestrationState(req, o.Now())
	err := o.states.Create(ctx, state)
	if errors.Is(err, domain.ErrAlreadyExists) {
		state, err = o.states.Get(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("failed to load orchestration state: %w", err)
		}
		if state.Phase != domain.PhasePending {
			o.adopt(state)
			return nil
		}
	} else if err != nil {
		return fmt.Errorf("failed to create orchestration state: %w", err)
	}

	return o.dispatchAttempt(ctx, state)
}

func (o *Orchestrator) dispatchAttempt(ctx context.Context, state *domain.OrchestrationState) error {
	now := o.Now()
	nonce := o.NewNonce()
	if err := state.BeginAttempt(nonce, now.Add(o.cfg.AggregationDeadline), now); err != nil {
		return err
	}
	if err := o.states.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save orchestration state: %w", err)
	}

	c, ok := o.register(state.TransactionID)
	if !ok {
		return nil
	}

	for _, kind := range domain.ValidatorKinds {
		envelope := domain.ValidationRequest{
			TransactionID: state.TransactionID,
			AttemptNonce:  nonce,
			ValidatorKind: kind,
			SourceAccount: state.Request.SourceAccount,
			DestAccount:   state.Request.DestAccount,
			Amount:        state.Request.Amount,
			Currency:      state.Request.Currency,
			PartitionKey:  state.Request.SourceAccount,
		}
		routingKey := gateway.RoutingValidationPrefix + string(kind)
		if err := o.publisher.Publish(ctx, gateway.ExchangePayments, routingKey, envelope); err != nil {
			o.abandon(ctx, c, state, err)
			return fmt.Errorf("%w: dispatch to %s: %v", domain.ErrTransport, kind, err)
		}
	}

	o.audit.Record(ctx, state.TransactionID, domain.AuditDispatch, map[string]any{
		"attempt":       state.Attempt,
		"attempt_nonce": nonce,
		"deadline":      state.Deadline,
	})
	log.Info().
		Str("transaction_id", state.TransactionID).
		Int("attempt", state.Attempt).
		Msg("Validações despachadas")

	o.spawn(c, state)
	return nil
}

// abandon desfaz uma tentativa cujo despacho falhou no meio: o estado volta para PENDING,
// de onde a dead-letter faz um novo despacho, e reservas já feitas são liberadas.
// O estado é salvo antes de aposentar o coordenador para que vereditos seguintes já o vejam como velho.
func (o *Orchestrator) abandon(ctx context.Context, c *coordinator, state *domain.OrchestrationState, cause error) {
	if err := state.Transition(domain.PhasePending, o.Now()); err != nil {
		log.Error().Err(err).Str("transaction_id", state.TransactionID).Msg("Falha ao abandonar tentativa")
	} else if err := o.states.Save(ctx, state); err != nil {
		log.Error().Err(err).Str("transaction_id", state.TransactionID).Msg("Falha ao salvar tentativa abandonada")
	}

	o.audit.Record(ctx, state.TransactionID, domain.AuditAttemptAbandoned, map[string]any{
		"attempt":       state.Attempt,
		"attempt_nonce": state.AttemptNonce,
		"error":         cause.Error(),
	})

	for _, v := range o.retire(c) {
		o.stale(ctx, state.TransactionID, v)
	}
}

// OnVerdict entrega o veredito ao coordenador da transação.
// Sem coordenador vivo, o veredito é tardio (ou de tentativa velha) e é tratado contra o estado persistido.
// Um erro devolvido faz o transporte reentregar a mensagem.
func (o *Orchestrator) OnVerdict(ctx context.Context, v domain.Verdict) error {
	if !v.Kind.Valid() {
		log.Warn().Str("transaction_id", v.TransactionID).Str("validator", string(v.Kind)).Msg("Veredito com tipo de validador desconhecido descartado")
		return nil
	}
	if v.ReceivedAt.IsZero() {
		v.ReceivedAt = o.Now()
	}

	if delivered, err := o.deliver(v); delivered || err != nil {
		return err
	}

	state, err := o.states.Get(ctx, v.TransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("transaction_id", v.TransactionID).Msg("Veredito para transação desconhecida descartado")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load orchestration state: %w", err)
	}

	if state.Phase == domain.PhasePending || v.AttemptNonce != state.AttemptNonce {
		o.stale(ctx, state.TransactionID, v)
		return nil
	}

	if !state.Phase.Decided() {
		// Tentativa viva sem coordenador (ele caiu numa falha de store): retoma e entrega.
		o.adopt(state)
		if _, err := o.deliver(v); err != nil {
			return err
		}
		return nil
	}

	o.late(ctx, state, v)
	return nil
}

func (o *Orchestrator) deliver(v domain.Verdict) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.active[v.TransactionID]
	if !ok {
		return false, nil
	}
	select {
	case c.verdicts <- v:
		return true, nil
	default:
		return false, fmt.Errorf("coordinator for %s is saturated", v.TransactionID)
	}
}

// Recover retoma todos os estados não arquivados.
func (o *Orchestrator) Recover(ctx context.Context) error {
	states, err := o.states.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active orchestrations: %w", err)
	}

	resumed := 0
	for _, state := range states {
		if state.Phase == domain.PhasePending {
			// Tentativa abandonada: quem redespacha é a dead-letter
			if state.Attempt > 0 {
				continue
			}
			if err := o.dispatchAttempt(ctx, state); err != nil {
				o.reportFailure(ctx, state.Request, err)
			}
			resumed++
			continue
		}
		o.adopt(state)
		resumed++
	}

	if resumed > 0 {
		log.Info().Int("resumed", resumed).Msg("Orquestrações retomadas")
	}
	return nil
}

func (o *Orchestrator) register(transactionID string) (*coordinator, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[transactionID]; exists {
		return nil, false
	}
	c := &coordinator{
		transactionID: transactionID,
		verdicts:      make(chan domain.Verdict, verdictBuffer),
	}
	o.active[transactionID] = c
	return c, true
}

// adopt cria um coordenador para um estado persistido, se ainda não houver um.
func (o *Orchestrator) adopt(state *domain.OrchestrationState) {
	if c, ok := o.register(state.TransactionID); ok {
		o.spawn(c, state)
	}
}

// retire remove o coordenador e devolve os vereditos que ficaram no buffer.
// Depois disso nenhum envio chega ao canal: deliver só envia segurando o mesmo lock.
func (o *Orchestrator) retire(c *coordinator) []domain.Verdict {
	o.mu.Lock()
	delete(o.active, c.transactionID)
	o.mu.Unlock()

	var pending []domain.Verdict
	for {
		select {
		case v := <-c.verdicts:
			pending = append(pending, v)
		default:
			return pending
		}
	}
}

func (o *Orchestrator) spawn(c *coordinator, state *domain.OrchestrationState) {
	ctx := o.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx, c, state)
	}()
}

func (o *Orchestrator) run(ctx context.Context, c *coordinator, state *domain.OrchestrationState) {
	err := o.drive(ctx, c, state)
	residual := o.retire(c)

	if ctx.Err() != nil {
		return
	}
	if err == nil {
		for _, v := range residual {
			if err := o.OnVerdict(ctx, v); err != nil {
				log.Error().Err(err).Str("transaction_id", v.TransactionID).Msg("Falha ao tratar veredito residual")
			}
		}
		return
	}

	if len(residual) > 0 {
		log.Warn().Str("transaction_id", state.TransactionID).Int("verdicts", len(residual)).Msg("Vereditos descartados com o coordenador")
	}
	log.Error().Err(err).
		Str("transaction_id", state.TransactionID).
		Str("phase", string(state.Phase)).
		Msg("Coordenador interrompido")
	o.reportFailure(ctx, state.Request, err)
}

func (o *Orchestrator) reportFailure(ctx context.Context, req domain.PaymentRequest, err error) {
	if o.failures == nil {
		return
	}
	if ferr := o.failures.OnFailure(ctx, req, Classify(err), err.Error()); ferr != nil {
		log.Error().Err(ferr).Str("transaction_id", req.ID).Msg("Falha ao registrar dead-letter")
	}
}

// Classify traduz um erro de despacho/coordenação no motivo da dead-letter.
func Classify(err error) domain.FailureReason {
	switch {
	case domain.IsStructural(err):
		return domain.FailureMalformedRequest
	case errors.Is(err, domain.ErrTransport):
		return domain.FailureDispatchTransport
	default:
		return domain.FailureStateStore
	}
}

// drive avança o estado a partir da fase em que ele está (início normal ou recuperação).
func (o *Orchestrator) drive(ctx context.Context, c *coordinator, state *domain.OrchestrationState) error {
	switch state.Phase {
	case domain.PhaseAwaitingValidations, domain.PhaseTimedOut:
		if err := o.await(ctx, c, state); err != nil {
			return err
		}
	}

	switch state.Phase {
	case domain.PhaseDecided:
		if state.Decision != nil && state.Decision.Outcome == domain.OutcomeProceed {
			return o.execute(ctx, c, state)
		}
		return o.reject(ctx, state)
	case domain.PhaseExecuting:
		return o.execute(ctx, c, state)
	case domain.PhaseCompleted:
		return o.complete(ctx, state)
	case domain.PhaseRejected:
		return o.finish(ctx, state, domain.StatusRejected)
	case domain.PhaseFailed:
		return o.fail(ctx, state, errors.New("resuming failed transaction"))
	}
	return nil
}

func (o *Orchestrator) await(ctx context.Context, c *coordinator, state *domain.OrchestrationState) error {
	if state.Phase == domain.PhaseTimedOut || domain.Ready(state.Verdicts) {
		return o.decide(ctx, state)
	}

	timer := time.NewTimer(state.Deadline.Sub(o.Now()))
	defer timer.Stop()

	for {
		select {
		case v := <-c.verdicts:
			recorded, err := o.absorb(ctx, state, v)
			if err != nil {
				return err
			}
			if recorded && domain.Ready(state.Verdicts) {
				return o.decide(ctx, state)
			}
		case <-timer.C:
			if err := state.Transition(domain.PhaseTimedOut, o.Now()); err != nil {
				return err
			}
			log.Warn().
				Str("transaction_id", state.TransactionID).
				Int("verdicts", len(state.Verdicts)).
				Msg("Prazo de agregação esgotado")
			return o.decide(ctx, state)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// absorb registra um veredito durante AWAITING_VALIDATIONS.
func (o *Orchestrator) absorb(ctx context.Context, state *domain.OrchestrationState, v domain.Verdict) (bool, error) {
	if v.AttemptNonce != state.AttemptNonce {
		o.stale(ctx, state.TransactionID, v)
		return false, nil
	}
	if !state.RecordVerdict(v) {
		log.Debug().Str("transaction_id", v.TransactionID).Str("validator", string(v.Kind)).Msg("Veredito duplicado ignorado")
		return false, nil
	}

	o.audit.Record(ctx, state.TransactionID, domain.AuditVerdictReceived, verdictPayload(v))

	state.UpdatedAt = o.Now()
	if err := o.states.Save(ctx, state); err != nil {
		return false, fmt.Errorf("failed to save verdict: %w", err)
	}
	return true, nil
}

func (o *Orchestrator) decide(ctx context.Context, state *domain.OrchestrationState) error {
	result := domain.Decide(state.Verdicts)
	state.Decision = &result
	if err := state.Transition(domain.PhaseDecided, o.Now()); err != nil {
		return err
	}
	if err := o.states.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	o.audit.Record(ctx, state.TransactionID, domain.AuditDecision, decisionPayload(result, false))
	log.Info().
		Str("transaction_id", state.TransactionID).
		Str("outcome", string(result.Outcome)).
		Str("reason", string(result.Reason)).
		Msg("Decisão tomada")
	return nil
}

// execute confirma a reserva no ledger. Enquanto o commit não é reconhecido,
// um DECLINE/ERROR mais novo da mesma tentativa (antes do prazo) revoga o PROCEED.
func (o *Orchestrator) execute(ctx context.Context, c *coordinator, state *domain.OrchestrationState) error {
	if state.Phase == domain.PhaseDecided {
		if err := state.Transition(domain.PhaseExecuting, o.Now()); err != nil {
			return err
		}
		if err := o.states.Save(ctx, state); err != nil {
			return fmt.Errorf("failed to save executing phase: %w", err)
		}
	}

	reservationID := state.ReservationID
	if reservationID == "" {
		return o.fail(ctx, state, errors.New("approved transaction has no ledger reservation"))
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- o.committer.CommitLedger(execCtx, state.TransactionID, reservationID)
	}()

	revoked := false
	for {
		select {
		case v := <-c.verdicts:
			if !revoked && o.revokes(state, v) {
				revoked = true
				cancel()
				payload := verdictPayload(v)
				payload["revokes_decision"] = true
				o.audit.Record(ctx, state.TransactionID, domain.AuditVerdictReceived, payload)
				log.Warn().
					Str("transaction_id", state.TransactionID).
					Str("validator", string(v.Kind)).
					Msg("Veredito revoga a aprovação, abortando commit")
				continue
			}
			o.late(ctx, state, v)
		case err := <-done:
			return o.settle(ctx, state, reservationID, revoked, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) revokes(state *domain.OrchestrationState, v domain.Verdict) bool {
	if v.AttemptNonce != state.AttemptNonce || v.Approved() {
		return false
	}
	if !o.Now().Before(state.Deadline) {
		return false
	}
	return state.RecordVerdict(v)
}

func (o *Orchestrator) settle(ctx context.Context, state *domain.OrchestrationState, reservationID string, revoked bool, commitErr error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if commitErr == nil {
		if revoked {
			o.audit.Record(ctx, state.TransactionID, domain.AuditVerdictIgnored, map[string]any{
				"reason": "ledger commit already acknowledged",
			})
		}
		return o.complete(ctx, state)
	}

	if !revoked {
		return o.fail(ctx, state, commitErr)
	}

	// Commit abortado: a reserva só pode ser liberada se o ledger ainda não a confirmou.
	err := o.committer.Release(ctx, state.TransactionID, reservationID)
	switch {
	case errors.Is(err, domain.ErrReservationCommitted):
		o.audit.Record(ctx, state.TransactionID, domain.AuditVerdictIgnored, map[string]any{
			"reason": "ledger commit already acknowledged",
		})
		return o.complete(ctx, state)
	case err != nil:
		return o.fail(ctx, state, err)
	}

	result := domain.Decide(state.Verdicts)
	state.Decision = &result
	o.audit.Record(ctx, state.TransactionID, domain.AuditDecision, decisionPayload(result, true))
	return o.reject(ctx, state)
}

func (o *Orchestrator) reject(ctx context.Context, state *domain.OrchestrationState) error {
	o.committer.ReleaseAll(ctx, state)
	return o.finish(ctx, state, domain.StatusRejected)
}

// complete devolve ao saldo as reservas que um veredito LEDGER mais novo substituiu
// e grava o desfecho; a reserva viva é a que foi confirmada.
func (o *Orchestrator) complete(ctx context.Context, state *domain.OrchestrationState) error {
	o.committer.ReleaseOrphans(ctx, state)
	return o.finish(ctx, state, domain.StatusCompleted)
}

func (o *Orchestrator) finish(ctx context.Context, state *domain.OrchestrationState, status domain.FinalStatus) error {
	if _, err := o.committer.Finalize(ctx, state, status); err != nil {
		return err
	}
	if o.failures != nil {
		if err := o.failures.OnSettled(ctx, state.TransactionID); err != nil {
			log.Error().Err(err).Str("transaction_id", state.TransactionID).Msg("Falha ao encerrar dead-letter")
		}
	}
	return nil
}

// fail grava FAILED e manda a transação para revisão manual; a reserva expira no ledger.
func (o *Orchestrator) fail(ctx context.Context, state *domain.OrchestrationState, cause error) error {
	log.Error().Err(cause).Str("transaction_id", state.TransactionID).Msg("🔴 Commit no ledger esgotado")

	if _, err := o.committer.Finalize(ctx, state, domain.StatusFailed); err != nil {
		return err
	}
	if o.failures != nil {
		if err := o.failures.OnFailure(ctx, state.Request, domain.FailureCommitExhausted, cause.Error()); err != nil {
			log.Error().Err(err).Str("transaction_id", state.TransactionID).Msg("Falha ao registrar dead-letter")
		}
	}
	return nil
}

// late trata veredito da tentativa atual que chegou depois da decisão: auditado e descartado.
func (o *Orchestrator) late(ctx context.Context, state *domain.OrchestrationState, v domain.Verdict) {
	if v.AttemptNonce != state.AttemptNonce {
		o.stale(ctx, state.TransactionID, v)
		return
	}

	payload := verdictPayload(v)
	payload["phase"] = string(state.Phase)
	o.audit.Record(ctx, state.TransactionID, domain.AuditVerdictIgnored, payload)

	if v.HoldsReservation() && v.ReservationID != state.ReservationID {
		o.releaseStray(ctx, state.TransactionID, v.ReservationID)
	}
}

// stale trata veredito de uma tentativa substituída: qualquer reserva que ele carregue é liberada.
func (o *Orchestrator) stale(ctx context.Context, transactionID string, v domain.Verdict) {
	payload := verdictPayload(v)
	payload["attempt_nonce"] = v.AttemptNonce
	o.audit.Record(ctx, transactionID, domain.AuditVerdictStale, payload)

	if v.HoldsReservation() {
		o.releaseStray(ctx, transactionID, v.ReservationID)
	}
}

func (o *Orchestrator) releaseStray(ctx context.Context, transactionID, reservationID string) {
	err := o.committer.Release(ctx, transactionID, reservationID)
	payload := map[string]any{"reservation_id": reservationID, "released": err == nil}
	if err != nil {
		payload["error"] = err.Error()
		log.Error().Err(err).Str("transaction_id", transactionID).Str("reservation_id", reservationID).Msg("Falha ao liberar reserva órfã")
	}
	o.audit.Record(ctx, transactionID, domain.AuditReleased, payload)
}

func verdictPayload(v domain.Verdict) map[string]any {
	payload := map[string]any{
		"validator":   string(v.Kind),
		"decision":    string(v.Decision),
		"received_at": v.ReceivedAt,
	}
	if v.Detail != "" {
		payload["detail"] = v.Detail
	}
	if v.ReservationID != "" {
		payload["reservation_id"] = v.ReservationID
	}
	return payload
}

func decisionPayload(result domain.DecisionResult, recomputed bool) map[string]any {
	payload := map[string]any{"outcome": string(result.Outcome)}
	if result.Reason != domain.ReasonNone {
		payload["reason"] = string(result.Reason)
	}
	if len(result.Missing) > 0 {
		missing := make([]string, len(result.Missing))
		for i, k := range result.Missing {
			missing[i] = string(k)
		}
		payload["missing"] = missing
	}
	if recomputed {
		payload["recomputed"] = true
	}
	return payload
}

package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

const laneBuffer = 256

// Dispatcher é o lado do orquestrador que o Router alimenta.
// Accept grava o estado PENDING de forma síncrona; Dispatch abre a tentativa.
type Dispatcher interface {
	Accept(ctx context.Context, req domain.PaymentRequest) error
	Dispatch(ctx context.Context, req domain.PaymentRequest) error
}

type job struct {
	req    domain.PaymentRequest
	result chan error
}

// Router particiona por conta de origem: cada lane despacha em série,
// então duas requisições da mesma conta são despachadas na ordem de chegada.
type Router struct {
	dispatcher Dispatcher
	failures   FailureHandler
	lanes      []chan job
}

func NewRouter(dispatcher Dispatcher, failures FailureHandler, lanes int) *Router {
	if lanes <= 0 {
		lanes = 1
	}
	r := &Router{
		dispatcher: dispatcher,
		failures:   failures,
		lanes:      make([]chan job, lanes),
	}
	for i := range r.lanes {
		r.lanes[i] = make(chan job, laneBuffer)
	}
	return r
}

// Start sobe uma goroutine por lane; elas param quando ctx é cancelado.
func (r *Router) Start(ctx context.Context) {
	for i, lane := range r.lanes {
		go r.runLane(ctx, i, lane)
	}
}

// Lane devolve a partição da chave (FNV-32a).
func (r *Router) Lane(partitionKey string) int {
	h := fnv.New32a()
	h.Write([]byte(partitionKey))
	return int(h.Sum32() % uint32(len(r.lanes)))
}

// Dispatch grava o estado PENDING, enfileira a requisição na lane da conta de origem
// e retorna sem esperar o despacho. Falhas de despacho vão para o FailureHandler.
// Só um erro de Accept chega ao chamador: depois dele a transação já é recuperável.
func (r *Router) Dispatch(ctx context.Context, req domain.PaymentRequest) error {
	if err := r.dispatcher.Accept(ctx, req); err != nil {
		return err
	}
	if err := r.enqueue(ctx, job{req: req}); err != nil {
		log.Warn().Err(err).Str("transaction_id", req.ID).Msg("Lane indisponível, transação fica para a dead-letter")
		r.reportFailure(ctx, req, fmt.Errorf("%w: enqueue: %v", domain.ErrTransport, err))
	}
	return nil
}

// Redispatch passa pela mesma lane, mas espera o resultado (usado pela dead-letter).
func (r *Router) Redispatch(ctx context.Context, req domain.PaymentRequest) error {
	result := make(chan error, 1)
	if err := r.enqueue(ctx, job{req: req, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) enqueue(ctx context.Context, j job) error {
	select {
	case r.lanes[r.Lane(j.req.SourceAccount)] <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) runLane(ctx context.Context, index int, lane <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-lane:
			err := r.dispatcher.Dispatch(ctx, j.req)
			if j.result != nil {
				j.result <- err
				continue
			}
			if err == nil {
				continue
			}

			log.Error().Err(err).
				Str("transaction_id", j.req.ID).
				Int("lane", index).
				Msg("Falha no despacho")
			r.reportFailure(ctx, j.req, err)
		}
	}
}

func (r *Router) reportFailure(ctx context.Context, req domain.PaymentRequest, err error) {
	if r.failures == nil {
		return
	}
	// O contexto da requisição pode já ter acabado; o registro na dead-letter não depende dele.
	ctx = context.WithoutCancel(ctx)
	if ferr := r.failures.OnFailure(ctx, req, Classify(err), err.Error()); ferr != nil {
		log.Error().Err(ferr).Str("transaction_id", req.ID).Msg("Falha ao registrar dead-letter")
	}
}

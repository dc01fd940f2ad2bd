package gateway

import "context"

// Topologia: um exchange topic para tudo que o orquestrador troca com o mundo.
const (
	ExchangePayments = "payment_events"

	RoutingValidationPrefix = "validation."
	RoutingVerdictPrefix    = "verdict."
	RoutingPaymentPrefix    = "payment."
	RoutingManualReview     = "payment.manual_review"

	QueueVerdicts = "orchestrator.verdicts"
)

type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

type Delivery struct {
	RoutingKey  string
	Body        []byte
	Redelivered bool
}

// MessageHandler devolvendo erro faz a mensagem ser reentregue (at-least-once).
type MessageHandler func(ctx context.Context, d Delivery) error

type EventSubscriber interface {
	// Subscribe declara a fila, faz o bind nas routing keys e começa a consumir em background.
	// Retorna assim que o consumo está pronto; o consumo para quando ctx é cancelado.
	Subscribe(ctx context.Context, queue string, bindings []string, handler MessageHandler) error
}

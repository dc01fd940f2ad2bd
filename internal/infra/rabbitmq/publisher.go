package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

var ErrNacked = errors.New("broker rejected the message")

// Publisher publica envelopes JSON com publisher confirms: Publish só devolve nil depois do ack do broker.
// Um erro quer dizer que o envelope pode não ter chegado, e quem chamou decide se tenta de novo.
type Publisher struct {
	channel *amqp.Channel
	appID   string
}

// NewPublisher coloca o canal em modo confirm. O canal passa a ser exclusivo de publicação.
func NewPublisher(ch *amqp.Channel, appID string) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return &Publisher{channel: ch, appID: appID}, nil
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", routingKey, err)
	}

	confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now().UTC(),
			AppId:        p.appID,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for broker confirmation of %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNacked, routingKey)
	}

	log.Debug().Str("routing_key", routingKey).Uint64("delivery_tag", confirmation.DeliveryTag).Msg("Envelope confirmado pelo RabbitMQ")
	return nil
}

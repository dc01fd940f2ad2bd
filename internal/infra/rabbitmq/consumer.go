package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// Consumer implementa gateway.EventSubscriber com ack manual:
// handler com erro => Nack com requeue (at-least-once).
type Consumer struct {
	channel  *amqp.Channel
	prefetch int
	tag      string
}

func NewConsumer(ch *amqp.Channel, prefetch int, tag string) *Consumer {
	return &Consumer{channel: ch, prefetch: prefetch, tag: tag}
}

func (c *Consumer) Subscribe(ctx context.Context, queue string, bindings []string, handler gateway.MessageHandler) error {
	// QoS: o RabbitMQ só manda `prefetch` mensagens sem Ack por vez
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	q, err := c.channel.QueueDeclare(
		queue, // name
		true,  // durable (sobrevive a restart do server)
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	for _, key := range bindings {
		if err := c.channel.QueueBind(q.Name, key, gateway.ExchangePayments, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, key, err)
		}
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		c.tag,  // consumer tag
		false,  // auto-ack: ack manual depois do handler
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					log.Error().Str("queue", q.Name).Msg("🔴 Canal de mensagens fechado")
					return
				}
				c.handle(ctx, q.Name, d, handler)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Strs("bindings", bindings).Msg("Consumidor registrado")
	return nil
}

func (c *Consumer) handle(ctx context.Context, queue string, d amqp.Delivery, handler gateway.MessageHandler) {
	err := handler(ctx, gateway.Delivery{
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Redelivered: d.Redelivered,
	})
	if err != nil {
		log.Warn().Err(err).Str("queue", queue).Str("routing_key", d.RoutingKey).Msg("Falha ao processar mensagem, devolvendo para a fila")
		if err := d.Nack(false, true); err != nil {
			log.Error().Err(err).Msg("Erro ao enviar Nack")
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Msg("Erro ao enviar Ack")
	}
}

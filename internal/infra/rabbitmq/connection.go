package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// Dial conecta com um connection_name legível no painel do RabbitMQ.
func Dial(url, connectionName string) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Properties: amqp.Table{
			"connection_name": connectionName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// DeclareTopology declara o exchange topic de pagamentos (idempotente).
// As filas são declaradas por quem consome, junto com os bindings.
func DeclareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		gateway.ExchangePayments, // name
		"topic",                  // type
		true,                     // durable
		false,                    // auto-deleted
		false,                    // internal
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

const queueBuffer = 1024

type queue struct {
	name     string
	bindings []string
	ch       chan gateway.Delivery
}

// EventBus imita um exchange topic do RabbitMQ dentro do processo.
// Entrega é at-least-once: handler com erro faz a mensagem voltar para a fila.
type EventBus struct {
	mu     sync.RWMutex
	queues map[string]*queue

	RedeliveryDelay time.Duration

	// published guarda tudo o que passou pelo bus, para inspeção.
	pubMu     sync.Mutex
	published []gateway.Delivery
	// FailPublish, se definido, decide quais publicações falham.
	FailPublish func(routingKey string) error
}

func NewEventBus() *EventBus {
	return &EventBus{
		queues:          make(map[string]*queue),
		RedeliveryDelay: 10 * time.Millisecond,
	}
}

func (b *EventBus) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	b.pubMu.Lock()
	fail := b.FailPublish
	b.pubMu.Unlock()
	if fail != nil {
		if err := fail(routingKey); err != nil {
			return fmt.Errorf("failed to publish message: %w", err)
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message body: %w", err)
	}
	d := gateway.Delivery{RoutingKey: routingKey, Body: data}

	b.pubMu.Lock()
	b.published = append(b.published, d)
	b.pubMu.Unlock()

	b.mu.RLock()
	var targets []*queue
	for _, q := range b.queues {
		if q.matches(routingKey) {
			targets = append(targets, q)
		}
	}
	b.mu.RUnlock()

	for _, q := range targets {
		select {
		case q.ch <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *EventBus) Subscribe(ctx context.Context, queueName string, bindings []string, handler gateway.MessageHandler) error {
	q := b.declare(queueName, bindings)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-q.ch:
				if err := handler(ctx, d); err != nil {
					log.Warn().Err(err).Str("queue", q.name).Str("routing_key", d.RoutingKey).Msg("mensagem devolvida para a fila")
					b.requeue(ctx, q, d)
				}
			}
		}
	}()
	return nil
}

// Published devolve as mensagens publicadas cuja routing key casa com o padrão.
func (b *EventBus) Published(pattern string) []gateway.Delivery {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	var out []gateway.Delivery
	for _, d := range b.published {
		if TopicMatches(pattern, d.RoutingKey) {
			out = append(out, d)
		}
	}
	return out
}

func (b *EventBus) SetFailPublish(fn func(routingKey string) error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.FailPublish = fn
}

func (b *EventBus) declare(name string, bindings []string) *queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name, ch: make(chan gateway.Delivery, queueBuffer)}
		b.queues[name] = q
	}
	q.bindings = append(q.bindings, bindings...)
	return q
}

func (b *EventBus) requeue(ctx context.Context, q *queue, d gateway.Delivery) {
	d.Redelivered = true
	go func() {
		select {
		case <-time.After(b.RedeliveryDelay):
		case <-ctx.Done():
			return
		}
		select {
		case q.ch <- d:
		case <-ctx.Done():
		}
	}()
}

func (q *queue) matches(routingKey string) bool {
	for _, pattern := range q.bindings {
		if TopicMatches(pattern, routingKey) {
			return true
		}
	}
	return false
}

// TopicMatches segue a semântica de binding do exchange topic:
// "*" casa exatamente uma palavra e "#" casa zero ou mais.
func TopicMatches(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}

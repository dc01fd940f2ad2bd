package orchestrator

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

// HandleVerdict é o gateway.MessageHandler da fila de vereditos.
// Mensagem que não decodifica é descartada (reentregar não a conserta).
func (o *Orchestrator) HandleVerdict(ctx context.Context, d gateway.Delivery) error {
	var v domain.Verdict
	if err := json.Unmarshal(d.Body, &v); err != nil {
		log.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("Veredito malformado descartado")
		return nil
	}
	if v.TransactionID == "" {
		log.Error().Str("routing_key", d.RoutingKey).Msg("Veredito sem transaction_id descartado")
		return nil
	}
	return o.OnVerdict(ctx, v)
}

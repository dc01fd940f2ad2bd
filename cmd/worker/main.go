package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/config"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/postgres"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/rabbitmq"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/validator"
)

// Worker de validação: consome validation.<KIND>, avalia e publica verdict.<KIND>.
// Vários workers podem rodar lado a lado; a fila de cada tipo é compartilhada.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuração inválida")
	}
	if cfg.Transport != config.BackendRabbitMQ {
		log.Fatal().Str("transport", cfg.Transport).Msg("O worker só faz sentido com TRANSPORT=rabbitmq")
	}
	if cfg.LedgerURL == "" {
		log.Fatal().Msg("LEDGER_URL é obrigatório: o ledger precisa ser compartilhado com a API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validators := []gateway.Validator{
		validator.NewLedgerValidator(validator.NewHTTPLedgerClient(cfg.LedgerURL, nil)),
	}

	if cfg.FraudURL != "" {
		validators = append(validators, validator.NewHTTPValidator(domain.ValidatorFraud, cfg.FraudURL, nil))
	} else {
		validators = append(validators, validator.NewFraudValidator(validator.FraudRules{
			MaxAmount:       cfg.FraudMaxAmount,
			BlockedAccounts: cfg.BlockedAccounts(),
		}))
	}

	switch {
	case cfg.LimitURL != "":
		validators = append(validators, validator.NewHTTPValidator(domain.ValidatorLimit, cfg.LimitURL, nil))
	case cfg.StoreBackend == config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL())
		if err != nil {
			log.Fatal().Err(err).Msg("Não foi possível conectar ao banco de dados")
		}
		defer pool.Close()
		log.Info().Msg("✅ Conectado ao PostgreSQL (limites de conta)")
		validators = append(validators, validator.NewLimitValidator(postgres.NewAccountRepository(pool)))
	default:
		log.Fatal().Msg("LIMIT precisa de LIMIT_URL ou STORE_BACKEND=postgres")
	}

	conn, err := rabbitmq.Dial(cfg.RabbitMQURL(), "ValidatorWorker_Consumer")
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao conectar no RabbitMQ")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("Erro ao fechar conexão RabbitMQ")
		}
	}()

	pubCh, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao abrir canal")
	}
	if err := rabbitmq.DeclareTopology(pubCh); err != nil {
		log.Fatal().Err(err).Msg("Erro ao declarar exchange")
	}
	consumeCh, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao abrir canal de consumo")
	}

	publisher, err := rabbitmq.NewPublisher(pubCh, "validator-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao ativar confirmações de publicação")
	}

	worker := validator.NewWorker(publisher, validator.WorkerConfig{
		TransportRetries: cfg.ValidatorTransportRetries,
		RetryBaseDelay:   cfg.RetryBaseDelay(),
		RetryMaxDelay:    cfg.RetryMaxDelay(),
	}, validators...)

	// Prefetch baixo: cada validador pode levar até o timeout HTTP
	if err := worker.Start(ctx, rabbitmq.NewConsumer(consumeCh, 8, "validator_worker")); err != nil {
		log.Fatal().Err(err).Msg("Erro ao registrar consumidores")
	}

	// Monitoramento de queda de conexão
	notifyClose := make(chan *amqp.Error, 1)
	consumeCh.NotifyClose(notifyClose)

	log.Info().Int("validators", len(validators)).Msg(" [*] Worker iniciado. Aguardando envelopes de validação...")

	select {
	case err := <-notifyClose:
		// Força o worker a cair para o orquestrador de containers subir outro
		log.Error().Err(err).Msg("🔴 Canal RabbitMQ fechado")
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down worker...")
}

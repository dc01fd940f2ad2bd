package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/config"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/http/handler"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/http/middleware"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/mongodb"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/postgres"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/rabbitmq"
	redisInfra "github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/redis"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/orchestrator"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/validator"
)

type accountStore interface {
	gateway.AccountRepository
	gateway.AccountWriter
}

// stores agrupa as implementações escolhidas pela configuração
type stores struct {
	states      gateway.OrchestrationStateRepository
	records     gateway.TransactionRepository
	deadLetters gateway.DeadLetterRepository
	accounts    accountStore
	idempotency gateway.IdempotencyRepository
	uow         gateway.TransactionManager
	audit       gateway.AuditRepository
}

func main() {
	// 1. Configuração de Logs (Zerolog - estruturado e rápido)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}) // Log bonito no terminal

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuração inválida")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := stores{
		states:      memory.NewOrchestrationStateRepository(),
		records:     memory.NewTransactionRepository(),
		deadLetters: memory.NewDeadLetterRepository(),
		accounts:    memory.NewAccountRepository(),
		idempotency: memory.NewIdempotencyRepository(),
		uow:         memory.NewUnitOfWork(),
		audit:       memory.NewAuditRepository(),
	}

	// 2. PostgreSQL (estado durável, registros, dead-letter, contas)
	var dbPool *pgxpool.Pool
	if cfg.StoreBackend == config.BackendPostgres || cfg.IdempotencyBackend == config.BackendPostgres {
		dbPool, err = postgres.Connect(ctx, cfg.PostgresURL())
		if err != nil {
			log.Fatal().Err(err).Msg("Não foi possível conectar ao banco de dados")
		}
		defer dbPool.Close()
		if err := postgres.Migrate(ctx, dbPool); err != nil {
			log.Fatal().Err(err).Msg("Falha ao aplicar schema")
		}
		log.Info().Msg("✅ Conectado ao PostgreSQL com sucesso!")
	}
	if cfg.StoreBackend == config.BackendPostgres {
		s.states = postgres.NewOrchestrationStateRepository(dbPool)
		s.records = postgres.NewTransactionRepository(dbPool)
		s.deadLetters = postgres.NewDeadLetterRepository(dbPool)
		s.accounts = postgres.NewAccountRepository(dbPool)
		//  Unit of Work (Gerenciador de Transações)
		s.uow = postgres.NewUow(dbPool)
	}

	// 3. Store de idempotência
	switch cfg.IdempotencyBackend {
	case config.BackendRedis:
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr()})
		// Sem Redis não há como garantir idempotência: fail closed já na subida
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Não foi possível conectar ao Redis")
		}
		defer redisClient.Close()
		s.idempotency = redisInfra.NewIdempotencyRepository(redisClient)
		log.Info().Msg("✅ Conectado ao Redis!")
	case config.BackendPostgres:
		s.idempotency = postgres.NewIdempotencyRepository(dbPool)
	}

	// 4. Auditoria
	if cfg.AuditBackend == config.BackendMongoDB {
		mongoClient, err := mongodb.Connect(ctx, cfg.MongoURL())
		if err != nil {
			log.Fatal().Err(err).Msg("Não foi possível conectar ao MongoDB")
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				log.Error().Err(err).Msg("Erro ao desconectar Mongo")
			}
		}()
		auditRepo := mongodb.NewAuditRepository(mongoClient, cfg.MongoDB)
		if err := auditRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("Falha ao criar índices de auditoria")
		}
		s.audit = auditRepo
		log.Info().Msg("✅ Conectado ao MongoDB!")
	}

	// 5. Barramento de mensagens
	var (
		publisher  gateway.EventPublisher
		subscriber gateway.EventSubscriber
	)
	switch cfg.Transport {
	case config.BackendRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.RabbitMQURL(), "PaymentOrchestrator_API")
		if err != nil {
			log.Fatal().Err(err).Msg("Falha ao conectar no RabbitMQ")
		}
		defer conn.Close()

		pubCh, err := conn.Channel()
		if err != nil {
			log.Fatal().Err(err).Msg("Falha ao abrir canal RabbitMQ")
		}
		defer pubCh.Close()
		if err := rabbitmq.DeclareTopology(pubCh); err != nil {
			log.Fatal().Err(err).Msg("Falha ao declarar Exchange")
		}

		consumeCh, err := conn.Channel()
		if err != nil {
			log.Fatal().Err(err).Msg("Falha ao abrir canal de consumo")
		}
		defer consumeCh.Close()

		confirmed, err := rabbitmq.NewPublisher(pubCh, "payment-orchestrator-api")
		if err != nil {
			log.Fatal().Err(err).Msg("Falha ao ativar confirmações de publicação")
		}
		publisher = confirmed
		subscriber = rabbitmq.NewConsumer(consumeCh, 32, "orchestrator")
		log.Info().Msg("✅ Conectado ao RabbitMQ!")
	default:
		bus := memory.NewEventBus()
		publisher, subscriber = bus, bus
	}

	// 6. Ledger: externo via HTTP ou em memória (desenvolvimento)
	var (
		ledger    gateway.LedgerClient
		memLedger *memory.Ledger
	)
	if cfg.LedgerURL != "" {
		ledger = validator.NewHTTPLedgerClient(cfg.LedgerURL, nil)
	} else {
		memLedger = memory.NewLedger(cfg.ReservationExpiry())
		go memLedger.RunExpirySweeper(ctx, time.Second)
		ledger = memLedger
		log.Warn().Msg("LEDGER_URL vazio, usando ledger em memória")
	}

	// 7. Orquestração
	writer := audit.NewWriter(s.audit)
	manager := retry.NewManager(s.deadLetters, publisher, writer, retry.Policy{
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		MaxAttempts: cfg.MaxRetryAttempts,
	})
	committer := orchestrator.NewCommitter(ledger, s.records, s.states, s.idempotency, s.uow, publisher, writer, orchestrator.CommitterConfig{
		LedgerPolicy: retry.Policy{
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
			MaxAttempts: cfg.CommitMaxAttempts,
		},
		IdempotencyTTL: cfg.IdempotencyRecordTTL,
		Fees:           domain.FeeSchedule{BasisPoints: cfg.FeeBps},
	})
	orch := orchestrator.New(s.states, publisher, committer, writer, manager, orchestrator.Config{
		AggregationDeadline: cfg.AggregationDeadline(),
	})
	router := orchestrator.NewRouter(orch, manager, cfg.PartitionLanes)
	router.Start(ctx)

	// Com ledger em memória os validadores precisam rodar neste processo
	if memLedger != nil {
		worker := validator.NewWorker(publisher, validator.WorkerConfig{
			TransportRetries: cfg.ValidatorTransportRetries,
			RetryBaseDelay:   cfg.RetryBaseDelay(),
			RetryMaxDelay:    cfg.RetryMaxDelay(),
		},
			validator.NewFraudValidator(validator.FraudRules{
				MaxAmount:       cfg.FraudMaxAmount,
				BlockedAccounts: cfg.BlockedAccounts(),
			}),
			validator.NewLimitValidator(s.accounts),
			validator.NewLedgerValidator(memLedger),
		)
		if err := worker.Start(ctx, subscriber); err != nil {
			log.Fatal().Err(err).Msg("Falha ao iniciar validadores embutidos")
		}
		log.Info().Msg("Validadores FRAUD/LIMIT/LEDGER rodando no processo da API")
	}

	if err := orch.Start(ctx, subscriber); err != nil {
		log.Fatal().Err(err).Msg("Falha ao iniciar orquestrador")
	}
	go manager.Run(ctx, router, cfg.DLQPollInterval())

	gate := usecase.NewIdempotencyGate(s.idempotency, cfg.IdempotencyRecordTTL)
	go gate.RunJanitor(ctx, time.Minute)

	// 8. Camada HTTP
	var seeder usecase.BalanceSeeder
	if memLedger != nil {
		seeder = memLedger
	}
	limiter := middleware.NewRateLimiter(cfg.IngressRateRPS, cfg.IngressRateBurst)
	go limiter.RunCleanup(ctx, 5*time.Minute)

	routes := handler.NewRouter(handler.Routes{
		Payments: handler.NewPaymentHandler(
			usecase.NewSubmitPayment(gate, router),
			usecase.NewGetPayment(s.records, s.states, writer),
		),
		Accounts: handler.NewAccountHandler(usecase.NewAccounts(s.accounts, s.accounts, seeder)),
		Limiter:  limiter,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Msgf("🚀 Servidor rodando em %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Falha ao iniciar servidor HTTP")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Desligando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Falha no shutdown do servidor HTTP")
	}
	// Coordenadores param com ctx; o estado durável é retomado no próximo start
	orch.Wait()
	log.Info().Int("active", orch.ActiveCount()).Msg("Orquestrador parado")
}

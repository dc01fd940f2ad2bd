package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/audit"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/config"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/memory"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/mongodb"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/postgres"
	redisInfra "github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/redis"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/retry"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
)

// app reúne os casos de uso que o CLI opera.
type app struct {
	deadLetters *usecase.DeadLetterUseCase
	payments    *usecase.GetPaymentUseCase
	accounts    *usecase.AccountsUseCase
}

type loader func(ctx context.Context) (*app, func(), error)

// openApp conecta nos mesmos stores duráveis da API. Os stores em memória
// vivem dentro do processo da API, por isso o CLI exige STORE_BACKEND=postgres.
func openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreBackend != config.BackendPostgres {
		return nil, nil, fmt.Errorf("paymentctl needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, pool.Close)

	var idempotency gateway.IdempotencyRepository
	switch cfg.IdempotencyBackend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr()})
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		idempotency = redisInfra.NewIdempotencyRepository(client)
	case config.BackendPostgres:
		idempotency = postgres.NewIdempotencyRepository(pool)
	default:
		closeAll()
		return nil, nil, fmt.Errorf("paymentctl needs a shared idempotency store, got %q", cfg.IdempotencyBackend)
	}

	var auditRepo gateway.AuditRepository = memory.NewAuditRepository()
	if cfg.AuditBackend == config.BackendMongoDB {
		client, err := mongodb.Connect(ctx, cfg.MongoURL())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		auditRepo = mongodb.NewAuditRepository(client, cfg.MongoDB)
	} else {
		log.Warn().Msg("AUDIT_BACKEND=memory: resoluções manuais não ficarão na trilha de auditoria")
	}

	writer := audit.NewWriter(auditRepo)
	deadLetters := postgres.NewDeadLetterRepository(pool)
	records := postgres.NewTransactionRepository(pool)
	accounts := postgres.NewAccountRepository(pool)

	// Requeue só regrava o envelope; o poller da API faz o redespacho
	manager := retry.NewManager(deadLetters, nil, writer, retry.Policy{
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		MaxAttempts: cfg.MaxRetryAttempts,
	})

	return &app{
		deadLetters: usecase.NewDeadLetterUseCase(deadLetters, manager, idempotency, records, writer, cfg.IdempotencyRecordTTL),
		payments:    usecase.NewGetPayment(records, postgres.NewOrchestrationStateRepository(pool), writer),
		accounts:    usecase.NewAccounts(accounts, accounts, nil),
	}, closeAll, nil
}

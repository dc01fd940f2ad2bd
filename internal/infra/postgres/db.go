package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

//go:embed schema.sql
var schema string

// DBTX é satisfeito tanto por *pgxpool.Pool quanto por pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Migrate aplica o schema (idempotente, CREATE ... IF NOT EXISTS)
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// txOr devolve a transação da UoW, se houver, ou o fallback
func txOr(fallback DBTX, tx gateway.TransactionObject) DBTX {
	if pgTx, ok := tx.(pgx.Tx); ok {
		return pgTx
	}
	return fallback
}

// Connect abre o pool e confirma que o banco está respondendo
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database is not responding: %w", err)
	}
	return pool, nil
}

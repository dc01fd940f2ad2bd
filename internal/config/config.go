package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config reúne as opções de execução; todos os campos podem vir do ambiente (mesmo nome em maiúsculas).
type Config struct {
	AggregationDeadlineMs     int           `mapstructure:"aggregation_deadline_ms"`
	MaxRetryAttempts          int           `mapstructure:"max_retry_attempts"`
	RetryBaseDelayMs          int           `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs           int           `mapstructure:"retry_max_delay_ms"`
	IdempotencyRecordTTL      time.Duration `mapstructure:"idempotency_record_ttl"`
	ReservationExpiryMs       int           `mapstructure:"reservation_expiry_ms"`
	CommitMaxAttempts         int           `mapstructure:"commit_max_attempts"`
	ValidatorTransportRetries int           `mapstructure:"validator_transport_retries"`
	PartitionLanes            int           `mapstructure:"partition_lanes"`
	DLQPollIntervalMs         int           `mapstructure:"dlq_poll_interval_ms"`
	FeeBps                    int64         `mapstructure:"fee_bps"`

	HTTPAddr         string  `mapstructure:"http_addr"`
	IngressRateRPS   float64 `mapstructure:"ingress_rate_rps"`
	IngressRateBurst int     `mapstructure:"ingress_rate_burst"`

	StoreBackend       string `mapstructure:"store_backend"`
	IdempotencyBackend string `mapstructure:"idempotency_backend"`
	Transport          string `mapstructure:"transport"`
	AuditBackend       string `mapstructure:"audit_backend"`

	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBHost     string `mapstructure:"db_host"`
	DBName     string `mapstructure:"db_name"`

	RedisHost string `mapstructure:"redis_host"`

	RabbitMQUser string `mapstructure:"rabbitmq_user"`
	RabbitMQPass string `mapstructure:"rabbitmq_pass"`
	RabbitMQHost string `mapstructure:"rabbitmq_host"`

	MongoUser string `mapstructure:"mongo_user"`
	MongoPass string `mapstructure:"mongo_pass"`
	MongoHost string `mapstructure:"mongo_host"`
	MongoDB   string `mapstructure:"mongo_db"`

	LedgerURL string `mapstructure:"ledger_url"`
	FraudURL  string `mapstructure:"fraud_url"`
	LimitURL  string `mapstructure:"limit_url"`

	// Regras do validador de fraude embutido (quando FRAUD_URL está vazio).
	FraudMaxAmount       int64  `mapstructure:"fraud_max_amount"`
	FraudBlockedAccounts string `mapstructure:"fraud_blocked_accounts"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
	BackendMongoDB  = "mongodb"
)

// DefaultConfig devolve os valores usados quando nada é configurado.
func DefaultConfig() *Config {
	return &Config{
		AggregationDeadlineMs:     2000,
		MaxRetryAttempts:          3,
		RetryBaseDelayMs:          200,
		RetryMaxDelayMs:           10_000,
		IdempotencyRecordTTL:      24 * time.Hour,
		ReservationExpiryMs:       300_000,
		CommitMaxAttempts:         5,
		ValidatorTransportRetries: 2,
		PartitionLanes:            16,
		DLQPollIntervalMs:         500,
		FeeBps:                    0,

		HTTPAddr:         ":8080",
		IngressRateRPS:   100,
		IngressRateBurst: 200,

		StoreBackend:       BackendMemory,
		IdempotencyBackend: BackendMemory,
		Transport:          BackendMemory,
		AuditBackend:       BackendMemory,

		DBHost:       "localhost",
		RedisHost:    "localhost",
		RabbitMQHost: "localhost",
		MongoHost:    "localhost",
		MongoDB:      "ledgerflow_audit",

		FraudMaxAmount: 100_000_000,
	}
}

// Load aplica, em ordem: defaults, arquivo YAML opcional (CONFIG_FILE) e variáveis de ambiente.
func Load() (*Config, error) {
	// Em Produção (Docker/K8s) não usamos arquivo .env, usamos variáveis reais do sistema.
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Arquivo .env não encontrado, usando variáveis de ambiente do sistema")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AutomaticEnv só enxerga chaves que o viper já conhece, por isso todo campo ganha um default.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("aggregation_deadline_ms", d.AggregationDeadlineMs)
	v.SetDefault("max_retry_attempts", d.MaxRetryAttempts)
	v.SetDefault("retry_base_delay_ms", d.RetryBaseDelayMs)
	v.SetDefault("retry_max_delay_ms", d.RetryMaxDelayMs)
	v.SetDefault("idempotency_record_ttl", d.IdempotencyRecordTTL)
	v.SetDefault("reservation_expiry_ms", d.ReservationExpiryMs)
	v.SetDefault("commit_max_attempts", d.CommitMaxAttempts)
	v.SetDefault("validator_transport_retries", d.ValidatorTransportRetries)
	v.SetDefault("partition_lanes", d.PartitionLanes)
	v.SetDefault("dlq_poll_interval_ms", d.DLQPollIntervalMs)
	v.SetDefault("fee_bps", d.FeeBps)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("ingress_rate_rps", d.IngressRateRPS)
	v.SetDefault("ingress_rate_burst", d.IngressRateBurst)
	v.SetDefault("store_backend", d.StoreBackend)
	v.SetDefault("idempotency_backend", d.IdempotencyBackend)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("audit_backend", d.AuditBackend)
	v.SetDefault("db_user", d.DBUser)
	v.SetDefault("db_password", d.DBPassword)
	v.SetDefault("db_host", d.DBHost)
	v.SetDefault("db_name", d.DBName)
	v.SetDefault("redis_host", d.RedisHost)
	v.SetDefault("rabbitmq_user", d.RabbitMQUser)
	v.SetDefault("rabbitmq_pass", d.RabbitMQPass)
	v.SetDefault("rabbitmq_host", d.RabbitMQHost)
	v.SetDefault("mongo_user", d.MongoUser)
	v.SetDefault("mongo_pass", d.MongoPass)
	v.SetDefault("mongo_host", d.MongoHost)
	v.SetDefault("mongo_db", d.MongoDB)
	v.SetDefault("ledger_url", d.LedgerURL)
	v.SetDefault("fraud_url", d.FraudURL)
	v.SetDefault("limit_url", d.LimitURL)
	v.SetDefault("fraud_max_amount", d.FraudMaxAmount)
	v.SetDefault("fraud_blocked_accounts", d.FraudBlockedAccounts)
}

func (c *Config) Validate() error {
	if c.AggregationDeadlineMs <= 0 {
		return fmt.Errorf("aggregation_deadline_ms must be positive, got %d", c.AggregationDeadlineMs)
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must not be negative, got %d", c.MaxRetryAttempts)
	}
	if c.RetryBaseDelayMs <= 0 || c.RetryMaxDelayMs < c.RetryBaseDelayMs {
		return fmt.Errorf("retry delays must satisfy 0 < base (%d) <= max (%d)", c.RetryBaseDelayMs, c.RetryMaxDelayMs)
	}
	if c.IdempotencyRecordTTL <= 0 {
		return fmt.Errorf("idempotency_record_ttl must be positive")
	}
	if c.ReservationExpiryMs <= c.AggregationDeadlineMs {
		return fmt.Errorf("reservation_expiry_ms (%d) must exceed aggregation_deadline_ms (%d)", c.ReservationExpiryMs, c.AggregationDeadlineMs)
	}
	if c.CommitMaxAttempts <= 0 {
		return fmt.Errorf("commit_max_attempts must be positive")
	}
	if c.PartitionLanes <= 0 {
		return fmt.Errorf("partition_lanes must be positive")
	}
	if c.FeeBps < 0 {
		return fmt.Errorf("fee_bps must not be negative")
	}
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	switch c.IdempotencyBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown idempotency_backend %q", c.IdempotencyBackend)
	}
	switch c.Transport {
	case BackendMemory, BackendRabbitMQ:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.AuditBackend {
	case BackendMemory, BackendMongoDB:
	default:
		return fmt.Errorf("unknown audit_backend %q", c.AuditBackend)
	}
	return nil
}

func (c *Config) AggregationDeadline() time.Duration {
	return time.Duration(c.AggregationDeadlineMs) * time.Millisecond
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func (c *Config) ReservationExpiry() time.Duration {
	return time.Duration(c.ReservationExpiryMs) * time.Millisecond
}

func (c *Config) DLQPollInterval() time.Duration {
	return time.Duration(c.DLQPollIntervalMs) * time.Millisecond
}

// BlockedAccounts interpreta FRAUD_BLOCKED_ACCOUNTS como lista separada por vírgulas.
func (c *Config) BlockedAccounts() []string {
	var out []string
	for _, a := range strings.Split(c.FraudBlockedAccounts, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBName)
}

func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:5672/", c.RabbitMQUser, c.RabbitMQPass, c.RabbitMQHost)
}

func (c *Config) MongoURI() string {
	if c.MongoUser == "" {
		return "mongodb://" + c.MongoHost + ":27017"
	}
	return "mongodb://" + c.MongoUser + ":" + c.MongoPass + "@" + c.MongoHost + ":27017"
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":6379"
}

func (c *Config) MongoURL() string {
	if c.MongoUser == "" {
		return fmt.Sprintf("mongodb://%s:27017", c.MongoHost)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:27017", c.MongoUser, c.MongoPass, c.MongoHost)
}

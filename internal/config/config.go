package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type LedgerConfig struct {
	OperationTimeout time.Duration
	MaxRetries       int
	Currency         string
	SettlementQueue  string
	BankBIC          string
}

type Config struct {
	Port          string
	LogLevel      string
	LogFormat     string
	StorageDriver string
	JWTSecretKey  string
	Ledger        LedgerConfig
}

// Load reads the .env file when present, lets environment variables override it
// and fills in the defaults.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	bindings := map[string]string{
		"database.host":     "DATABASE_HOST",
		"database.port":     "DATABASE_PORT",
		"database.user":     "DATABASE_USER",
		"database.password": "DATABASE_PASSWORD",
		"database.name":     "DATABASE_NAME",
		"database.ssl_mode": "DATABASE_SSL_MODE",

		"redis.host":     "REDIS_HOST",
		"redis.port":     "REDIS_PORT",
		"redis.password": "REDIS_PASSWORD",
		"redis.db":       "REDIS_DB",

		"jwt.secret_key": "JWT_SECRET_KEY",

		"ledger.operation_timeout": "LEDGER_OPERATION_TIMEOUT",
		"ledger.max_retries":       "LEDGER_MAX_RETRIES",
		"ledger.currency":          "LEDGER_CURRENCY",
		"ledger.settlement_queue":  "LEDGER_SETTLEMENT_QUEUE",
		"ledger.bank_bic":          "LEDGER_BANK_BIC",

		"storage.driver": "STORAGE_DRIVER",
		"log.level":      "LOG_LEVEL",
		"log.format":     "LOG_FORMAT",
		"port":           "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	v.SetDefault("ledger.operation_timeout", 5*time.Second)
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.currency", "EUR")
	v.SetDefault("ledger.settlement_queue", "ledger:settlement")
	v.SetDefault("ledger.bank_bic", "RURALPAY")
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("port", "8080")

	// a missing .env file is fine, the environment and defaults still apply
	_ = v.ReadInConfig()

	cfg := &Config{
		Port:          v.GetString("port"),
		LogLevel:      v.GetString("log.level"),
		LogFormat:     v.GetString("log.format"),
		StorageDriver: v.GetString("storage.driver"),
		JWTSecretKey:  v.GetString("jwt.secret_key"),
		Ledger: LedgerConfig{
			OperationTimeout: v.GetDuration("ledger.operation_timeout"),
			MaxRetries:       v.GetInt("ledger.max_retries"),
			Currency:         v.GetString("ledger.currency"),
			SettlementQueue:  v.GetString("ledger.settlement_queue"),
			BankBIC:          v.GetString("ledger.bank_bic"),
		},
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.JWTSecretKey == "" {
		return fmt.Errorf("jwt.secret_key must be set")
	}
	if c.Ledger.OperationTimeout <= 0 {
		return fmt.Errorf("ledger.operation_timeout must be positive, got %s", c.Ledger.OperationTimeout)
	}
	if c.Ledger.MaxRetries < 1 {
		return fmt.Errorf("ledger.max_retries must be at least 1, got %d", c.Ledger.MaxRetries)
	}
	return nil
}

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Splitledger"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		// Driver is either "pgx" (Postgres) or "sqlite".
		Driver   string `envconfig:"DB_DRIVER" default:"pgx"`
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"splitledger"`
		Path     string `envconfig:"DB_PATH" default:"data/splitledger.db"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	}

	Auth struct {
		JWTSecret string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
		TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	}

	Redis struct {
		URL        string        `envconfig:"REDIS_URL"`
		BalanceTTL time.Duration `envconfig:"REDIS_BALANCE_TTL" default:"10m"`
	}

	Kafka struct {
		Brokers []string `envconfig:"KAFKA_BROKERS"`
		Topic   string   `envconfig:"KAFKA_TOPIC" default:"settlement-events"`
	}

	Settlement struct {
		MaxRetries          int           `envconfig:"SETTLEMENT_MAX_RETRIES" default:"3"`
		OverdueScanInterval time.Duration `envconfig:"SETTLEMENT_OVERDUE_SCAN_INTERVAL" default:"0"`
		NotifyTimeout       time.Duration `envconfig:"SETTLEMENT_NOTIFY_TIMEOUT" default:"5s"`
	}

	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info"`
	}

	TUI struct {
		UserID  string `envconfig:"TUI_USER_ID"`
		GroupID string `envconfig:"TUI_GROUP_ID"`
		// LogFile receives logs while the terminal is taken by the UI.
		LogFile string `envconfig:"TUI_LOG_FILE" default:"splitledger-tui.log"`
	}
}

// DataSource returns the driver-specific data source name.
func (c *Config) DataSource() string {
	if c.DB.Driver == "sqlite" {
		return c.DB.Path
	}

	return c.ConnectionString()
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.DB.Driver != "pgx" && cfg.DB.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	if cfg.Settlement.MaxRetries < 1 {
		return nil, fmt.Errorf("SETTLEMENT_MAX_RETRIES must be at least 1, got %d", cfg.Settlement.MaxRetries)
	}

	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	gerrors "github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type DatabaseOptions struct {
	Driver   string `env:"DB_DRIVER" envDefault:"mysql"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"compensation"`
}

// DSN builds the driver specific connection string.
func (d DatabaseOptions) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf(
			"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
			d.Host, d.Port, d.User, d.Name, d.Password,
		)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type KafkaOptions struct {
	Brokers         string `env:"KAFKA_BROKERS"`
	CommissionTopic string `env:"KAFKA_COMMISSION_TOPIC" envDefault:"commission.created"`
	TierTopic       string `env:"KAFKA_TIER_TOPIC" envDefault:"tier.upgraded"`
}

// BrokerList splits the comma separated broker list. Empty means publishing is disabled.
func (k KafkaOptions) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type CompensationOptions struct {
	MatrixMaxDepth       int    `env:"MATRIX_MAX_DEPTH" envDefault:"10"`
	MinCommission        string `env:"MIN_COMMISSION" envDefault:"0"`
	CommissionAutoSettle bool   `env:"COMMISSION_AUTO_SETTLE" envDefault:"true"`
	Currency             string `env:"CURRENCY" envDefault:"USD"`
}

// MinCommissionAmount parses the configured floor.
func (c CompensationOptions) MinCommissionAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(c.MinCommission)
}

type WorkerOptions struct {
	Concurrency   int    `env:"WORKER_CONCURRENCY" envDefault:"10"`
	SweepPageSize int    `env:"SWEEP_PAGE_SIZE" envDefault:"200"`
	SweepCron     string `env:"SWEEP_CRON" envDefault:"0 * * * *"`
}

type Configuration struct {
	Database     DatabaseOptions
	Kafka        KafkaOptions
	Compensation CompensationOptions
	Worker       WorkerOptions

	RedisURL  string `env:"REDIS_URL" envDefault:"localhost:6379"`
	Port      string `env:"PORT" envDefault:"8080"`
	GinMode   string `env:"GIN_MODE"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Validate rejects settings the engines cannot run with.
func (c *Configuration) Validate() error {
	if c.Compensation.MatrixMaxDepth < 1 {
		return gerrors.Errorf("MATRIX_MAX_DEPTH must be at least 1, got %d", c.Compensation.MatrixMaxDepth)
	}
	floor, err := c.Compensation.MinCommissionAmount()
	if err != nil {
		return gerrors.Wrap(err, "MIN_COMMISSION is not a decimal")
	}
	if floor.IsNegative() {
		return gerrors.Errorf("MIN_COMMISSION must be non-negative, got %s", floor)
	}
	if c.Worker.SweepPageSize < 1 {
		return gerrors.Errorf("SWEEP_PAGE_SIZE must be positive, got %d", c.Worker.SweepPageSize)
	}
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return gerrors.Errorf("DB_DRIVER must be 'mysql' or 'postgres', got '%s'", c.Database.Driver)
	}
	return nil
}

// LoadEnv loads the first .env file it finds, walking the same lookup order the
// binaries have always used. Missing files are not an error.
func LoadEnv(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return p
		}
	}
	return ""
}

// Load parses the environment into a validated Configuration.
func Load() (*Configuration, error) {
	cfg := &Configuration{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

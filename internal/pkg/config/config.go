package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (DB connection, etc.)
// - default: Values common across all environments (intervals, timeouts, etc.)
// -----------------------------------------------------------------------------

type Config struct {
	DB      DBConfig
	Log     LogConfig
	Sweeper SweeperConfig
	Booking BookingConfig
	Metrics MetricsConfig
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	DBName   string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

type SweeperConfig struct {
	Interval  time.Duration `envconfig:"SWEEPER_INTERVAL" default:"30s"`
	BatchSize int           `envconfig:"SWEEPER_BATCH_SIZE" default:"200"`
}

type BookingConfig struct {
	DefaultHold     time.Duration `envconfig:"BOOKING_DEFAULT_HOLD" default:"15m"`
	ReferencePrefix string        `envconfig:"BOOKING_REFERENCE_PREFIX" default:"BK"`
}

type MetricsConfig struct {
	ListenAddr string `envconfig:"METRICS_LISTEN_ADDR" default:":9464"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Log: LogConfig{
			Level: "error", // Error level only for tests
		},
		Sweeper: SweeperConfig{
			Interval:  50 * time.Millisecond,
			BatchSize: 50,
		},
		Booking: BookingConfig{
			DefaultHold:     15 * time.Minute,
			ReferencePrefix: "BK",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":0",
		},
	}
}

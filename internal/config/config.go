package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	Database  DatabaseConfig
	Queue     QueueConfig
	API       APIConfig
	Worker    WorkerConfig
	Transport TransportConfig
	Store     StoreConfig
	Notify    NotifyConfig
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"drip"`
	Password        string        `env:"DB_PASSWORD" envDefault:"drip"`
	DBName          string        `env:"DB_NAME" envDefault:"drip_campaigns"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// QueueConfig holds queue configuration (Redis)
type QueueConfig struct {
	RedisURL   string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	QueueName  string        `env:"QUEUE_NAME" envDefault:"campaign_passes"`
	LockPrefix string        `env:"LOCK_PREFIX" envDefault:"drip:lock:"`
	LockTTL    time.Duration `env:"LOCK_TTL" envDefault:"30m"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Port           int           `env:"API_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"30s"`
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Schedule        string        `env:"WORKER_SCHEDULE" envDefault:"0 * * * *"`
	Concurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"2"`
	RunOnStart      bool          `env:"WORKER_RUN_ON_START" envDefault:"false"`
	MetricsPort     int           `env:"WORKER_METRICS_PORT" envDefault:"9091"`
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// TransportConfig selects and configures the outbound providers
type TransportConfig struct {
	SMSDriver   string        `env:"SMS_DRIVER" envDefault:"log"`
	EmailDriver string        `env:"EMAIL_DRIVER" envDefault:"log"`
	Timeout     time.Duration `env:"TRANSPORT_TIMEOUT" envDefault:"10s"`
	RateLimit   float64       `env:"TRANSPORT_RATE_LIMIT" envDefault:"10"`
	RateBurst   int           `env:"TRANSPORT_RATE_BURST" envDefault:"5"`

	// Only used by the simulated driver
	SimulatedSuccessRate float64 `env:"SIMULATED_SUCCESS_RATE" envDefault:"0.95"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`

	// Public origin Twilio posts webhooks to; empty rebuilds it per request
	TwilioWebhookBaseURL string `env:"TWILIO_WEBHOOK_BASE_URL"`

	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `env:"SENDGRID_FROM_NAME"`
}

// StoreConfig identifies the practice in rendered messages
type StoreConfig struct {
	Name          string `env:"STORE_NAME" envDefault:"Our Optical Store"`
	Phone         string `env:"STORE_PHONE"`
	DefaultRegion string `env:"DEFAULT_PHONE_REGION" envDefault:"US"`
}

// NotifyConfig configures pass summary delivery
type NotifyConfig struct {
	WebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
}

// Transport drivers
const (
	DriverLog       = "log"
	DriverSimulated = "simulated"
	DriverTwilio    = "twilio"
	DriverSendGrid  = "sendgrid"
)

// Load reads an optional .env file, then configuration from environment
// variables. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	return Parse()
}

// Parse reads configuration from environment variables only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express
func (c *Config) Validate() error {
	switch c.Transport.SMSDriver {
	case DriverLog, DriverSimulated:
	case DriverTwilio:
		if c.Transport.TwilioAccountSID == "" || c.Transport.TwilioAuthToken == "" || c.Transport.TwilioFromNumber == "" {
			return errors.New("twilio driver requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
		}
	default:
		return fmt.Errorf("invalid SMS_DRIVER %q (must be log, simulated or twilio)", c.Transport.SMSDriver)
	}

	switch c.Transport.EmailDriver {
	case DriverLog, DriverSimulated:
	case DriverSendGrid:
		if c.Transport.SendGridAPIKey == "" || c.Transport.SendGridFromEmail == "" {
			return errors.New("sendgrid driver requires SENDGRID_API_KEY and SENDGRID_FROM_EMAIL")
		}
	default:
		return fmt.Errorf("invalid EMAIL_DRIVER %q (must be log, simulated or sendgrid)", c.Transport.EmailDriver)
	}

	if c.Transport.SimulatedSuccessRate < 0 || c.Transport.SimulatedSuccessRate > 1 {
		return fmt.Errorf("SIMULATED_SUCCESS_RATE must be between 0 and 1, got %v", c.Transport.SimulatedSuccessRate)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}

	return nil
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

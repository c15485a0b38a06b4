package config

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NewRelic     NewRelicConfig
	Log          LogConfig
	RabbitMQ     RabbitMQConfig
	Stripe       StripeConfig
	Settlement   SettlementConfig
	Retry        RetryConfig
	Connectivity ConnectivityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AdminToken   string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// RabbitMQConfig holds event publishing configuration.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// StripeConfig holds payment processor configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// SettlementConfig holds the money-split rules.
type SettlementConfig struct {
	CommissionRate    decimal.Decimal // platform share of a fare
	CancellationFee   decimal.Decimal // zero disables late-cancellation fees
	CancellationShare decimal.Decimal // driver share of a cancellation fee
	SettlementLockTTL time.Duration
	RedriveBatchSize  int
	VerificationTTL   time.Duration
}

// RetryConfig holds the remote call retry policy.
type RetryConfig struct {
	BaseDelay      time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
	MaxRetries     int
}

// ConnectivityConfig holds connectivity monitor settings.
type ConnectivityConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

var defaults = map[string]any{
	"SERVER_PORT":          "8080",
	"SERVER_READ_TIMEOUT":  "10s",
	"SERVER_WRITE_TIMEOUT": "10s",
	"ADMIN_TOKEN":          "",

	"DB_HOST":         "localhost",
	"DB_PORT":         "5432",
	"DB_USER":         "postgres",
	"DB_PASSWORD":     "postgres",
	"DB_NAME":         "ride_hailing",
	"DB_SSLMODE":      "disable",
	"DB_AUTO_MIGRATE": true,

	"REDIS_ADDR":     "localhost:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"NEW_RELIC_APP_NAME":    "ridecore",
	"NEW_RELIC_LICENSE_KEY": "",
	"NEW_RELIC_ENABLED":     false,

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "json",
	"LOG_OUTPUT": "stdout",

	"RABBITMQ_URL":      "",
	"RABBITMQ_EXCHANGE": "ride_events",

	"STRIPE_SECRET_KEY":     "",
	"STRIPE_WEBHOOK_SECRET": "",
	"STRIPE_CURRENCY":       "ars",
	"STRIPE_SUCCESS_URL":    "https://example.com/payments/success",
	"STRIPE_CANCEL_URL":     "https://example.com/payments/cancel",

	"SETTLEMENT_COMMISSION_RATE":    "0.20",
	"SETTLEMENT_CANCELLATION_FEE":   "0",
	"SETTLEMENT_CANCELLATION_SHARE": "0.50",
	"SETTLEMENT_LOCK_TTL":           "30s",
	"SETTLEMENT_REDRIVE_BATCH_SIZE": 100,
	"VERIFICATION_DEFAULT_TTL":      "15m",

	"RETRY_BASE_DELAY":      "200ms",
	"RETRY_MULTIPLIER":      2.0,
	"RETRY_ATTEMPT_TIMEOUT": "5s",
	"RETRY_MAX_RETRIES":     5,

	"CONNECTIVITY_PROBE_INTERVAL": "10s",
	"CONNECTIVITY_PROBE_TIMEOUT":  "3s",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	commission, err := decimal.NewFromString(v.GetString("SETTLEMENT_COMMISSION_RATE"))
	if err != nil {
		return nil, errors.New("SETTLEMENT_COMMISSION_RATE must be a decimal")
	}
	fee, err := decimal.NewFromString(v.GetString("SETTLEMENT_CANCELLATION_FEE"))
	if err != nil {
		return nil, errors.New("SETTLEMENT_CANCELLATION_FEE must be a decimal")
	}
	share, err := decimal.NewFromString(v.GetString("SETTLEMENT_CANCELLATION_SHARE"))
	if err != nil {
		return nil, errors.New("SETTLEMENT_CANCELLATION_SHARE must be a decimal")
	}
	if commission.IsNegative() || commission.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.New("SETTLEMENT_COMMISSION_RATE must be between 0 and 1")
	}
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.New("SETTLEMENT_CANCELLATION_SHARE must be between 0 and 1")
	}

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
			AdminToken:   v.GetString("ADMIN_TOKEN"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("NEW_RELIC_APP_NAME"),
			LicenseKey: v.GetString("NEW_RELIC_LICENSE_KEY"),
			Enabled:    v.GetBool("NEW_RELIC_ENABLED"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:      v.GetString("STRIPE_CURRENCY"),
			SuccessURL:    v.GetString("STRIPE_SUCCESS_URL"),
			CancelURL:     v.GetString("STRIPE_CANCEL_URL"),
		},
		Settlement: SettlementConfig{
			CommissionRate:    commission,
			CancellationFee:   fee,
			CancellationShare: share,
			SettlementLockTTL: v.GetDuration("SETTLEMENT_LOCK_TTL"),
			RedriveBatchSize:  v.GetInt("SETTLEMENT_REDRIVE_BATCH_SIZE"),
			VerificationTTL:   v.GetDuration("VERIFICATION_DEFAULT_TTL"),
		},
		Retry: RetryConfig{
			BaseDelay:      v.GetDuration("RETRY_BASE_DELAY"),
			Multiplier:     v.GetFloat64("RETRY_MULTIPLIER"),
			AttemptTimeout: v.GetDuration("RETRY_ATTEMPT_TIMEOUT"),
			MaxRetries:     v.GetInt("RETRY_MAX_RETRIES"),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: v.GetDuration("CONNECTIVITY_PROBE_INTERVAL"),
			ProbeTimeout:  v.GetDuration("CONNECTIVITY_PROBE_TIMEOUT"),
		},
	}, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string   `env:"APP_PORT" envDefault:"3000"`
	AppEnv         string   `env:"APP_ENV" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-Ip. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	UsersTable     string `env:"DYNAMO_TABLE_USERS" envDefault:"users"`

	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry         time.Duration `env:"JWT_EXPIRY" envDefault:"360h"`

	OTPTTL               time.Duration `env:"OTP_TTL" envDefault:"300s"`
	OTPRateLimitTTL      time.Duration `env:"OTP_RATE_LIMIT_TTL" envDefault:"60s"`
	OTPMaxVerifyAttempts int           `env:"OTP_MAX_VERIFY_ATTEMPTS" envDefault:"5"`
	OperationTimeout     time.Duration `env:"OPERATION_TIMEOUT" envDefault:"3s"`

	QueueBackend   string        `env:"QUEUE_BACKEND" envDefault:"redis"` // "redis" | "sns"
	QueueName      string        `env:"QUEUE_NAME" envDefault:"send-otp"`
	SNSTopicARN    string        `env:"SNS_TOPIC_ARN"`
	OutboxInterval time.Duration `env:"OUTBOX_INTERVAL" envDefault:"15s"`

	SMTPHost       string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort       string `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom       string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPUsername   string `env:"SMTP_USERNAME"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	MailerGroup    string `env:"MAILER_GROUP" envDefault:"mailer"`
	MailerConsumer string `env:"MAILER_CONSUMER" envDefault:"mailer-1"`
}

const (
	QueueBackendRedis = "redis"
	QueueBackendSNS   = "sns"
)

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.QueueBackend {
	case QueueBackendRedis:
	case QueueBackendSNS:
		if c.SNSTopicARN == "" {
			return fmt.Errorf("SNS_TOPIC_ARN is required when QUEUE_BACKEND=%s", QueueBackendSNS)
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}
	if c.OTPTTL <= 0 || c.OTPRateLimitTTL <= 0 {
		return fmt.Errorf("OTP_TTL and OTP_RATE_LIMIT_TTL must be positive")
	}
	if c.OTPMaxVerifyAttempts < 0 {
		return fmt.Errorf("OTP_MAX_VERIFY_ATTEMPTS must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

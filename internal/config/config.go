// Package config holds the process configuration for the billing service.
//
// Values resolve in priority order
//
//	OS environment -> .env file -> AWS SSM Parameter Store
//
// and are validated once at startup. A missing required value or a malformed
// one stops the process before it serves traffic.
package config

import (
	"time"

	"cashier/internal/types"
)

// SecretString is the redacted string type used for every credential.
type SecretString = types.SecretString

// Config is the top-level configuration. It is built once and never mutated;
// components receive only the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"cashier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Paddle        PaddleConfig
	AWS           AWSConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	WebhookPath    string        `envconfig:"PADDLE_WEBHOOK_PATH" default:"/paddle/webhook" validate:"startswith=/"`
}

// DatabaseConfig holds the Postgres DSN and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// PaddleConfig holds Paddle API credentials and webhook verification settings.
type PaddleConfig struct {
	APIKey     SecretString `envconfig:"PADDLE_API_KEY"`
	Sandbox    bool         `envconfig:"PADDLE_SANDBOX" default:"false"`
	APIBaseURL string       `envconfig:"PADDLE_API_BASE_URL" validate:"omitempty,url"`

	// WebhookSecret is the notification destination's secret key.
	WebhookSecret SecretString `envconfig:"PADDLE_WEBHOOK_SECRET" validate:"required"`
	// WebhookMaxVarianceSeconds bounds signature age in whole seconds. Zero
	// disables the check.
	WebhookMaxVarianceSeconds int    `envconfig:"PADDLE_WEBHOOK_MAX_VARIANCE" default:"5" validate:"gte=0"`
	SignatureHeader           string `envconfig:"PADDLE_SIGNATURE_HEADER" default:"Paddle-Signature"`

	// BillableType is stored on records created from webhooks when the
	// payload's custom_data names no billable type.
	BillableType string `envconfig:"CASHIER_BILLABLE_TYPE" default:"user"`
}

// Paddle API base URLs.
const (
	PaddleLiveURL    = "https://api.paddle.com"
	PaddleSandboxURL = "https://sandbox-api.paddle.com"
)

// BaseURL returns the API base URL: an explicit override, otherwise sandbox
// or live depending on Sandbox.
func (p PaddleConfig) BaseURL() string {
	switch {
	case p.APIBaseURL != "":
		return p.APIBaseURL
	case p.Sandbox:
		return PaddleSandboxURL
	default:
		return PaddleLiveURL
	}
}

// WebhookMaxVariance returns the signature age limit as a duration.
func (p PaddleConfig) WebhookMaxVariance() time.Duration {
	return time.Duration(p.WebhookMaxVarianceSeconds) * time.Second
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// WebhookEventsQueue receives a message per applied webhook. Empty
	// disables publishing.
	WebhookEventsQueue string `envconfig:"SQS_WEBHOOK_EVENTS" validate:"omitempty,url"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig holds admin access and CORS settings.
type SecurityConfig struct {
	// AdminAPIKeyHash is a bcrypt hash of the admin key. Empty disables the
	// admin routes.
	AdminAPIKeyHash    SecretString `envconfig:"ADMIN_API_KEY_HASH"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds metric settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Cashier"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds ldflags-injected build metadata.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)

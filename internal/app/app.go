// Package app wires the billing service from its configuration. cmd/api and
// cmd/webhook-lambda share it so both binaries serve the same router.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cashier/internal/api/handlers"
	"cashier/internal/billing"
	"cashier/internal/config"
	"cashier/internal/core"
	"cashier/internal/db"
	"cashier/internal/external"
	"cashier/internal/metrics"
	"cashier/internal/queue"
	"cashier/internal/webhook"
)

// paddleHTTPTimeout bounds a single Paddle API attempt.
const paddleHTTPTimeout = 15 * time.Second

// LoadConfig loads the configuration, resolving _SSM_PARAM variables from
// Parameter Store in the region named by AWS_REGION.
func LoadConfig() (*config.Config, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.LoadConfig(config.NewSSMProvider(region))
}

// NewLogger returns a JSON logger at the named level. Unknown levels fall
// back to info.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// Deps are the live clients the router is built on. Tests fill them with
// fakes.
type Deps struct {
	DB         db.DBTX
	SQS        queue.SQSSender
	CloudWatch metrics.CloudWatchClient
	HTTPClient *http.Client

	// Ping backs the "database" health probe. Nil skips the probe.
	Ping func(ctx context.Context) error
}

// Build opens the database pool and AWS clients and returns a mounted
// server. The pool is closed by the server's shutdown hooks.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "local" {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return nil, err
	}

	srv, err := Wire(cfg, logger, Deps{
		DB:         pool,
		SQS:        sqs.NewFromConfig(awsCfg),
		CloudWatch: cloudwatch.NewFromConfig(awsCfg),
		HTTPClient: &http.Client{Timeout: paddleHTTPTimeout},
		Ping:       pool.Ping,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	srv.OnShutdown = append(srv.OnShutdown, func(context.Context) error {
		pool.Close()
		return nil
	})
	return srv, nil
}

// Wire builds the repositories, services and handlers on deps and mounts
// every route.
func Wire(cfg *config.Config, logger *slog.Logger, deps Deps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Observability.EnableMetrics && deps.CloudWatch != nil {
		recorder = metrics.NewCloudWatchRecorder(deps.CloudWatch, cfg.Observability.MetricNamespace, logger)
	}
	srv.Metrics = recorder

	if deps.Ping != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.HealthProbeFunc{ProbeName: "database", Fn: deps.Ping})
	}

	ledger, err := db.NewWebhookEventRepository(deps.DB)
	if err != nil {
		return nil, fmt.Errorf("creating webhook ledger: %w", err)
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: paddleHTTPTimeout}
	}
	paddle := external.NewPaddleClient(httpClient, external.PaddleClientConfig{
		APIKey:  cfg.Paddle.APIKey,
		BaseURL: cfg.Paddle.BaseURL(),
		Logger:  logger,
	})

	billingSvc := billing.NewService(billing.Deps{
		Customers:     db.NewCustomerRepository(deps.DB),
		Subscriptions: db.NewSubscriptionRepository(deps.DB),
		Transactions:  db.NewTransactionRepository(deps.DB),
		Paddle:        paddle,
		BillableType:  cfg.Paddle.BillableType,
		Logger:        logger,
	})

	publisher := queue.NewEventPublisher(deps.SQS, cfg.AWS, logger)
	if !publisher.Enabled() {
		logger.Info("webhook outcome publishing disabled: no queue configured")
	}

	verifier := webhook.NewVerifier(webhook.VerifierConfig{
		Secret:      cfg.Paddle.WebhookSecret,
		MaxVariance: cfg.Paddle.WebhookMaxVariance(),
	})
	if !verifier.VarianceEnabled() {
		logger.Warn("webhook signature age check disabled")
	}

	srv.WebhookGate = webhook.SignatureMiddleware(verifier, cfg.Paddle.SignatureHeader, logger, recorder)
	srv.WebhookHandler = handlers.NewPaddleWebhookHandler(ledger, billingSvc, srv.Validator, publisher, recorder, logger)

	admin := handlers.NewAdminHandler(handlers.AdminDeps{
		Syncer:        billingSvc,
		Subscriptions: billingSvc,
		Events:        ledger,
		Validator:     srv.Validator,
		Logger:        logger,
	})
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Use(handlers.AdminKeyMiddleware(cfg.Security.AdminAPIKeyHash, logger))
			admin.RegisterRoutes(r)
		})
	})

	if err := srv.MountRoutes(); err != nil {
		return nil, fmt.Errorf("mounting routes: %w", err)
	}
	return srv, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	return pool, nil
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// Package main is the Lambda entry point for the billing service. It serves
// API Gateway HTTP API events through the same router as cmd/api, so the
// Paddle webhook endpoint and its signature gate behave identically.
//
// With APP_ENV=local one event is read from stdin and the response is
// written to stdout:
//
//	echo '{"rawPath":"/health","requestContext":{"http":{"method":"GET"}}}' | go run ./cmd/webhook-lambda
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"cashier/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("cashier webhook lambda starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	// Built once per container and reused across invocations.
	ctx := context.Background()
	srv, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	adapter := &httpAdapter{handler: srv.Handler()}

	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading API Gateway event from stdin")
		defer func() { _ = srv.Shutdown(ctx) }()
		return serveOnce(ctx, adapter, os.Stdin, os.Stdout)
	}

	lambda.Start(adapter.Handle)
	return nil
}

// serveOnce handles a single JSON event from in and writes the JSON response
// to out.
func serveOnce(ctx context.Context, adapter *httpAdapter, in io.Reader, out io.Writer) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading event: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no event received on stdin")
	}

	var event events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("parsing event: %w", err)
	}

	resp, err := adapter.Handle(ctx, event)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Package main implements the paddle-sim CLI tool, which signs a webhook
// payload the way Paddle does and delivers it to a running server.
//
// Usage:
//
//	go run ./cmd/tools/paddle-sim \
//	  --url=http://localhost:8080/paddle/webhook \
//	  --file=testdata/subscription_created.json
//
// Environment variables (used as defaults when flags are not set):
//
//	PADDLE_WEBHOOK_SECRET    - notification destination secret
//	PADDLE_SIGNATURE_HEADER  - header name, default Paddle-Signature
//
// With no --file the payload is read from stdin. --skew shifts the signed
// timestamp, e.g. --skew=-1m to exercise the staleness check.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cashier/internal/types"
	"cashier/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	url := flag.String("url", "http://localhost:8080/paddle/webhook", "Webhook endpoint URL")
	file := flag.String("file", "", "Payload file (default: stdin)")
	secret := flag.String("secret", os.Getenv("PADDLE_WEBHOOK_SECRET"), "Webhook secret (or PADDLE_WEBHOOK_SECRET env)")
	header := flag.String("header", envOr("PADDLE_SIGNATURE_HEADER", webhook.DefaultSignatureHeader), "Signature header name")
	skew := flag.Duration("skew", 0, "Offset applied to the signed timestamp")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *secret == "" {
		logger.Error("--secret or PADDLE_WEBHOOK_SECRET is required")
		os.Exit(1)
	}

	body, err := readPayload(*file, os.Stdin)
	if err != nil {
		logger.Error("failed to read payload", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := delivery{
		url:    *url,
		header: *header,
		secret: types.SecretString(*secret),
		at:     time.Now().Add(*skew),
	}
	status, respBody, err := d.send(ctx, &http.Client{Timeout: *timeout}, body)
	if err != nil {
		logger.Error("delivery failed", "error", err)
		os.Exit(1)
	}

	logger.Info("delivered", "status", status, "bytes", len(body))
	fmt.Println(string(respBody))
	if status >= 300 {
		os.Exit(2)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// delivery is one signed POST.
type delivery struct {
	url    string
	header string
	secret types.SecretString
	at     time.Time
}

func (d delivery) send(ctx context.Context, client *http.Client, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(d.header, webhook.Sign(body, d.at, d.secret))

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

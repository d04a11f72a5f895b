package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cashier/internal/types"
)

const (
	paddleBreakerName = "paddle"
	paddleUserAgent   = "cashier/1.0"

	// maxListPages bounds pagination so a misbehaving cursor cannot loop.
	maxListPages = 50
	listPageSize = "200"
)

// PaddleClientConfig holds the settings for PaddleClient.
type PaddleClientConfig struct {
	APIKey  types.SecretString
	BaseURL string
	Logger  *slog.Logger
}

// PaddleClient calls the Paddle Billing REST API. Every response is wrapped
// in a {data, error, meta} envelope; list endpoints page through
// meta.pagination.next.
type PaddleClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewPaddleClient creates a client using a BaseClient with the "paddle"
// breaker. httpClient may be nil.
func NewPaddleClient(httpClient *http.Client, cfg PaddleClientConfig, opts ...BaseClientOption) *PaddleClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PaddleClient{
		base:    NewBaseClient(httpClient, paddleBreakerName, DefaultRetryPolicy(), paddleUserAgent, opts...),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

type paddleAPIError struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type paddlePagination struct {
	Next    string `json:"next"`
	HasMore bool   `json:"has_more"`
}

type paddleMeta struct {
	RequestID  string            `json:"request_id"`
	Pagination *paddlePagination `json:"pagination"`
}

type paddleEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *paddleAPIError `json:"error"`
	Meta  paddleMeta      `json:"meta"`
}

// GetCustomer fetches a customer by Paddle id.
func (c *PaddleClient) GetCustomer(ctx context.Context, customerID string) (*PaddleCustomer, error) {
	var out PaddleCustomer
	if _, err := c.call(ctx, http.MethodGet, c.endpoint("/customers/"+url.PathEscape(customerID), nil), nil, &out, types.ErrCodeNotFoundCustomer); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSubscriptions returns every subscription of a customer.
func (c *PaddleClient) ListSubscriptions(ctx context.Context, customerID string) ([]PaddleSubscription, error) {
	q := url.Values{"customer_id": {customerID}, "per_page": {listPageSize}}
	return listAll[PaddleSubscription](ctx, c, c.endpoint("/subscriptions", q))
}

// ListTransactions returns every transaction of a customer.
func (c *PaddleClient) ListTransactions(ctx context.Context, customerID string) ([]PaddleTransaction, error) {
	q := url.Values{"customer_id": {customerID}, "per_page": {listPageSize}}
	return listAll[PaddleTransaction](ctx, c, c.endpoint("/transactions", q))
}

// CancelSubscription cancels a subscription immediately or at the end of the
// current billing period.
func (c *PaddleClient) CancelSubscription(ctx context.Context, subscriptionID, effectiveFrom string) (*PaddleSubscription, error) {
	return c.subscriptionAction(ctx, subscriptionID, "cancel", map[string]string{"effective_from": effectiveFrom})
}

// PauseSubscription pauses a subscription immediately or at the end of the
// current billing period.
func (c *PaddleClient) PauseSubscription(ctx context.Context, subscriptionID, effectiveFrom string) (*PaddleSubscription, error) {
	return c.subscriptionAction(ctx, subscriptionID, "pause", map[string]string{"effective_from": effectiveFrom})
}

// ResumeSubscription resumes a paused subscription immediately.
func (c *PaddleClient) ResumeSubscription(ctx context.Context, subscriptionID string) (*PaddleSubscription, error) {
	return c.subscriptionAction(ctx, subscriptionID, "resume", map[string]string{"effective_from": EffectiveImmediately})
}

func (c *PaddleClient) subscriptionAction(ctx context.Context, subscriptionID, action string, payload any) (*PaddleSubscription, error) {
	path := "/subscriptions/" + url.PathEscape(subscriptionID) + "/" + action
	var out PaddleSubscription
	if _, err := c.call(ctx, http.MethodPost, c.endpoint(path, nil), payload, &out, types.ErrCodeNotFoundSubscription); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "paddle subscription updated",
		"subscription_id", subscriptionID,
		"action", action,
		"status", out.Status,
	)
	return &out, nil
}

func listAll[T any](ctx context.Context, c *PaddleClient, next string) ([]T, error) {
	var all []T
	for page := 0; next != "" && page < maxListPages; page++ {
		var batch []T
		meta, err := c.call(ctx, http.MethodGet, next, nil, &batch, "")
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		next = ""
		if meta.Pagination != nil && meta.Pagination.HasMore {
			next = meta.Pagination.Next
		}
	}
	return all, nil
}

func (c *PaddleClient) endpoint(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// call performs one request and decodes envelope.data into out. A 404 maps to
// notFound when set; other non-2xx responses map to ErrCodeUpstreamPaddle.
func (c *PaddleClient) call(ctx context.Context, method, target string, payload, out any, notFound types.ErrorCode) (paddleMeta, error) {
	if c.apiKey.IsZero() {
		return paddleMeta{}, types.NewAppError(types.ErrCodeUpstreamPaddle, "paddle API key is not configured", nil)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return paddleMeta{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode paddle request", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return paddleMeta{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build paddle request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "paddle request failed", "method", method, "error", err)
		return paddleMeta{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return paddleMeta{}, types.NewAppError(types.ErrCodeUpstreamPaddle, "failed to read paddle response", err)
	}

	var env paddleEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return paddleMeta{}, types.NewAppError(types.ErrCodeUpstreamPaddle, "malformed paddle response", err)
		}
	}

	if resp.StatusCode >= 300 {
		return env.Meta, paddleStatusError(resp.StatusCode, env, notFound)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Meta, types.NewAppError(types.ErrCodeUpstreamPaddle, "malformed paddle response data", err)
		}
	}
	return env.Meta, nil
}

func paddleStatusError(status int, env paddleEnvelope, notFound types.ErrorCode) error {
	details := map[string]any{"status": status}
	if env.Meta.RequestID != "" {
		details["paddle_request_id"] = env.Meta.RequestID
	}
	msg := fmt.Sprintf("paddle API returned %d", status)
	if env.Error != nil {
		details["paddle_code"] = env.Error.Code
		if env.Error.Detail != "" {
			msg = env.Error.Detail
		}
	}

	if status == http.StatusNotFound && notFound != "" {
		return types.NewAppErrorWithDetails(notFound, msg, nil, details)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamPaddle, msg, nil, details)
}

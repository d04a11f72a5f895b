package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"cashier/internal/billing"
	"cashier/internal/core"
	"cashier/internal/external"
	"cashier/internal/types"
)

// AdminKeyHeader carries the operator key for /v1/admin routes.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware admits requests whose X-Admin-Key matches the bcrypt
// hash. With an empty hash every request is refused.
func AdminKeyMiddleware(hash types.SecretString, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "admin key required", nil))
				return
			}
			if hash.IsZero() || bcrypt.CompareHashAndPassword(hash.Bytes(), []byte(key)) != nil {
				logger.WarnContext(r.Context(), "admin key rejected", "path", r.URL.Path)
				core.Error(w, r, types.NewAppError(types.ErrCodePermissionAdmin, "admin key is not valid", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CustomerSyncer re-pulls a customer from Paddle.
type CustomerSyncer interface {
	SyncCustomer(ctx context.Context, paddleCustomerID string) (*billing.SyncResult, error)
}

// SubscriptionManager changes a subscription in Paddle and returns the
// updated local row.
type SubscriptionManager interface {
	CancelSubscription(ctx context.Context, paddleSubscriptionID, effectiveFrom string) (*types.Subscription, error)
	PauseSubscription(ctx context.Context, paddleSubscriptionID, effectiveFrom string) (*types.Subscription, error)
	ResumeSubscription(ctx context.Context, paddleSubscriptionID string) (*types.Subscription, error)
}

// EventInspector reads webhook ledger rows.
type EventInspector interface {
	Get(ctx context.Context, eventID string) (*types.WebhookEvent, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	syncer        CustomerSyncer
	subscriptions SubscriptionManager
	events        EventInspector
	validator     *core.Validator
	logger        *slog.Logger
}

// AdminDeps are the collaborators of AdminHandler.
type AdminDeps struct {
	Syncer        CustomerSyncer
	Subscriptions SubscriptionManager
	Events        EventInspector
	Validator     *core.Validator
	Logger        *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		syncer:        deps.Syncer,
		subscriptions: deps.Subscriptions,
		events:        deps.Events,
		validator:     deps.Validator,
		logger:        logger,
	}
}

// RegisterRoutes mounts the admin routes on r. The caller wraps r with
// AdminKeyMiddleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/customers/{paddleCustomerID}/sync", h.SyncCustomer)

	r.Route("/subscriptions/{paddleSubscriptionID}", func(r chi.Router) {
		r.Post("/cancel", h.CancelSubscription)
		r.Post("/pause", h.PauseSubscription)
		r.Post("/resume", h.ResumeSubscription)
	})

	r.Get("/webhook-events/{eventID}", h.GetWebhookEvent)
}

type syncCustomerParams struct {
	CustomerID string `json:"paddle_customer_id" validate:"required,paddle_id=ctm"`
}

// SyncCustomer handles POST /v1/admin/customers/{paddleCustomerID}/sync.
func (h *AdminHandler) SyncCustomer(w http.ResponseWriter, r *http.Request) {
	params := syncCustomerParams{CustomerID: chi.URLParam(r, "paddleCustomerID")}
	if err := h.validator.ValidateStruct(&params); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.syncer.SyncCustomer(r.Context(), params.CustomerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "customer sync failed",
			"customer_id", params.CustomerID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
}

type subscriptionActionParams struct {
	SubscriptionID string `json:"paddle_subscription_id" validate:"required,paddle_id=sub"`
	EffectiveFrom  string `json:"effective_from" validate:"omitempty,oneof=immediately next_billing_period"`
}

// subscriptionActionRequest reads the optional {"effective_from": ...} body.
// An absent body or field means next_billing_period.
func (h *AdminHandler) subscriptionActionRequest(w http.ResponseWriter, r *http.Request) (*subscriptionActionParams, error) {
	params := &subscriptionActionParams{}
	if err := core.DecodeOptionalJSON(w, r, params); err != nil {
		return nil, err
	}
	params.SubscriptionID = chi.URLParam(r, "paddleSubscriptionID")
	if err := h.validator.ValidateStruct(params); err != nil {
		return nil, err
	}
	if params.EffectiveFrom == "" {
		params.EffectiveFrom = external.EffectiveNextBillingPeriod
	}
	return params, nil
}

// CancelSubscription handles POST /v1/admin/subscriptions/{paddleSubscriptionID}/cancel.
func (h *AdminHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	params, err := h.subscriptionActionRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	sub, err := h.subscriptions.CancelSubscription(r.Context(), params.SubscriptionID, params.EffectiveFrom)
	h.writeSubscription(w, r, "cancel", params.SubscriptionID, sub, err)
}

// PauseSubscription handles POST /v1/admin/subscriptions/{paddleSubscriptionID}/pause.
func (h *AdminHandler) PauseSubscription(w http.ResponseWriter, r *http.Request) {
	params, err := h.subscriptionActionRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	sub, err := h.subscriptions.PauseSubscription(r.Context(), params.SubscriptionID, params.EffectiveFrom)
	h.writeSubscription(w, r, "pause", params.SubscriptionID, sub, err)
}

// ResumeSubscription handles POST /v1/admin/subscriptions/{paddleSubscriptionID}/resume.
// Paddle only resumes immediately, so no body is read.
func (h *AdminHandler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	params := subscriptionActionParams{SubscriptionID: chi.URLParam(r, "paddleSubscriptionID")}
	if err := h.validator.ValidateStruct(&params); err != nil {
		core.Error(w, r, err)
		return
	}
	sub, err := h.subscriptions.ResumeSubscription(r.Context(), params.SubscriptionID)
	h.writeSubscription(w, r, "resume", params.SubscriptionID, sub, err)
}

func (h *AdminHandler) writeSubscription(w http.ResponseWriter, r *http.Request, action, id string, sub *types.Subscription, err error) {
	if err != nil {
		h.logger.ErrorContext(r.Context(), "subscription action failed",
			"action", action,
			"subscription_id", id,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

type webhookEventParams struct {
	EventID string `json:"event_id" validate:"required,paddle_id=evt"`
}

// GetWebhookEvent handles GET /v1/admin/webhook-events/{eventID}. The stored
// payload is returned decompressed.
func (h *AdminHandler) GetWebhookEvent(w http.ResponseWriter, r *http.Request) {
	params := webhookEventParams{EventID: chi.URLParam(r, "eventID")}
	if err := h.validator.ValidateStruct(&params); err != nil {
		core.Error(w, r, err)
		return
	}

	ev, err := h.events.Get(r.Context(), params.EventID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ev})
}

package billing

import (
	"context"

	"cashier/internal/external"
	"cashier/internal/types"
)

// CancelSubscription cancels a locally known subscription in Paddle and
// stores the state Paddle returns. effectiveFrom is "immediately" or
// "next_billing_period".
func (s *Service) CancelSubscription(ctx context.Context, paddleSubscriptionID, effectiveFrom string) (*types.Subscription, error) {
	return s.subscriptionAction(ctx, "cancel", paddleSubscriptionID, func(ctx context.Context) (*external.PaddleSubscription, error) {
		return s.paddle.CancelSubscription(ctx, paddleSubscriptionID, effectiveFrom)
	})
}

// PauseSubscription pauses a locally known subscription in Paddle.
func (s *Service) PauseSubscription(ctx context.Context, paddleSubscriptionID, effectiveFrom string) (*types.Subscription, error) {
	return s.subscriptionAction(ctx, "pause", paddleSubscriptionID, func(ctx context.Context) (*external.PaddleSubscription, error) {
		return s.paddle.PauseSubscription(ctx, paddleSubscriptionID, effectiveFrom)
	})
}

// ResumeSubscription resumes a paused subscription immediately.
func (s *Service) ResumeSubscription(ctx context.Context, paddleSubscriptionID string) (*types.Subscription, error) {
	return s.subscriptionAction(ctx, "resume", paddleSubscriptionID, func(ctx context.Context) (*external.PaddleSubscription, error) {
		return s.paddle.ResumeSubscription(ctx, paddleSubscriptionID)
	})
}

// subscriptionAction loads the local row first so unknown subscriptions are
// refused before Paddle is called. The webhook that follows the action
// re-applies the same state and is harmless.
func (s *Service) subscriptionAction(
	ctx context.Context,
	action, paddleSubscriptionID string,
	call func(context.Context) (*external.PaddleSubscription, error),
) (*types.Subscription, error) {
	if s.paddle == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPaddle, "paddle API client is not configured", nil)
	}

	sub, err := s.subscriptions.GetByPaddleID(ctx, paddleSubscriptionID)
	if err != nil {
		return nil, err
	}

	remote, err := call(ctx)
	if err != nil {
		return nil, err
	}

	applySubscriptionState(sub, remote)
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription updated in paddle",
		"action", action,
		"subscription_id", paddleSubscriptionID,
		"status", sub.Status,
	)
	return sub, nil
}

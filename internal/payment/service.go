package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talkscene/talkscene/internal/user"
)

// Errors returned by the service.
var (
	// ErrNoProvider is returned when the payment integration is not
	// configured.
	ErrNoProvider = errors.New("payment: no payment provider configured")

	// ErrInvalidTier is returned for tiers that cannot be subscribed to.
	ErrInvalidTier = errors.New("payment: tier is not subscribable")

	// ErrNotSubscribed is returned by Cancel when the user has no active
	// subscription.
	ErrNotSubscribed = errors.New("payment: no active subscription")
)

// Service coordinates the payment provider with the local account record:
// a successful subscribe moves the user onto the paid tier, a cancel moves
// them back to free.
type Service struct {
	provider Provider
	users    user.Store
	log      *slog.Logger
}

// NewService creates a payment Service. provider may be nil when the
// integration is disabled; Subscribe and Cancel then fail with
// [ErrNoProvider].
func NewService(provider Provider, users user.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{provider: provider, users: users, log: log}
}

// Subscribe opens a subscription for u on the given tier and persists the
// tier change. The returned subscription carries the checkout URL for the
// client to complete payment.
func (s *Service) Subscribe(ctx context.Context, u *user.User, tier user.Tier, providerName string) (*Subscription, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	if !tier.IsValid() || tier == user.TierFree {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	sub, err := s.provider.CreateSubscription(ctx, CreateRequest{
		UserID:   u.ID,
		Email:    u.Email,
		Tier:     string(tier),
		Provider: providerName,
	})
	if err != nil {
		return nil, err
	}

	u.Tier = tier
	u.SubscriptionID = sub.ID
	u.SubscriptionProvider = sub.Provider
	if err := s.users.Update(ctx, u); err != nil {
		// The provider-side subscription exists but the local record does
		// not reflect it; surface the error so the client can retry.
		return nil, fmt.Errorf("payment: persist subscription for %q: %w", u.ID, err)
	}

	s.log.Info("subscription created", "user_id", u.ID, "tier", tier, "subscription_id", sub.ID)
	return sub, nil
}

// Cancel cancels u's subscription and returns the account to the free tier.
func (s *Service) Cancel(ctx context.Context, u *user.User) error {
	if s.provider == nil {
		return ErrNoProvider
	}
	if u.SubscriptionID == "" {
		return ErrNotSubscribed
	}

	if err := s.provider.CancelSubscription(ctx, u.SubscriptionID); err != nil {
		return err
	}

	subID := u.SubscriptionID
	u.Tier = user.TierFree
	u.SubscriptionID = ""
	u.SubscriptionProvider = ""
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("payment: persist cancellation for %q: %w", u.ID, err)
	}

	s.log.Info("subscription cancelled", "user_id", u.ID, "subscription_id", subID)
	return nil
}

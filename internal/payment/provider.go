// Package payment integrates the external subscription service that bills
// paid tiers.
package payment

import (
	"context"
	"time"
)

// Subscription is the provider's record of an active paid subscription.
type Subscription struct {
	// ID is the provider-assigned subscription reference.
	ID string `json:"id"`

	// Provider names the backing payment provider (e.g., "stripe").
	Provider string `json:"provider"`

	// Tier is the subscribed plan name.
	Tier string `json:"tier"`

	// CheckoutURL, when non-empty, is where the user completes payment.
	CheckoutURL string `json:"checkoutUrl,omitempty"`

	// CurrentPeriodEnd is when the paid period lapses.
	CurrentPeriodEnd time.Time `json:"currentPeriodEnd"`
}

// CreateRequest describes a new subscription to open.
type CreateRequest struct {
	// UserID is the local account the subscription belongs to.
	UserID string `json:"userId"`

	// Email is the billing contact.
	Email string `json:"email"`

	// Tier is the plan to subscribe to ("starter", "pro", "premium").
	Tier string `json:"tier"`

	// Provider selects the payment provider when the service fronts more
	// than one (e.g., "stripe", "paypal").
	Provider string `json:"provider"`
}

// Provider is the abstraction over the subscription billing service.
// Implementations must be safe for concurrent use.
type Provider interface {
	// CreateSubscription opens a subscription and returns the provider's
	// record, including a checkout URL when payment confirmation is needed.
	CreateSubscription(ctx context.Context, req CreateRequest) (*Subscription, error)

	// CancelSubscription cancels by provider subscription reference.
	// Cancelling an already cancelled subscription is not an error.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

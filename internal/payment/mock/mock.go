// Package mock provides a test double for the payment.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/talkscene/talkscene/internal/payment"
)

// Provider is a mock implementation of payment.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Subscription is returned by CreateSubscription.
	Subscription *payment.Subscription

	// CreateErr, if non-nil, is returned as the error from CreateSubscription.
	CreateErr error

	// CancelErr, if non-nil, is returned as the error from CancelSubscription.
	CancelErr error

	// --- Call records (read after test) ---

	// CreateCalls records every CreateRequest in order.
	CreateCalls []payment.CreateRequest

	// CancelCalls records every cancelled subscription ID in order.
	CancelCalls []string
}

// CreateSubscription records the call and returns the configured subscription.
func (p *Provider) CreateSubscription(_ context.Context, req payment.CreateRequest) (*payment.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CreateCalls = append(p.CreateCalls, req)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	if p.Subscription != nil {
		return p.Subscription, nil
	}
	return &payment.Subscription{ID: "sub-mock", Provider: req.Provider, Tier: req.Tier}, nil
}

// CancelSubscription records the call.
func (p *Provider) CancelSubscription(_ context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CancelCalls = append(p.CancelCalls, subscriptionID)
	return p.CancelErr
}

var _ payment.Provider = (*Provider)(nil)

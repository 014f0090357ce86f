package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTProvider talks to the subscription service over its JSON HTTP API.
type RESTProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Compile-time interface check.
var _ Provider = (*RESTProvider)(nil)

// NewRESTProvider creates a provider for the subscription service at baseURL.
func NewRESTProvider(baseURL, apiKey string) (*RESTProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("payment: baseURL must not be empty")
	}
	return &RESTProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// CreateSubscription implements [Provider].
func (p *RESTProvider) CreateSubscription(ctx context.Context, req CreateRequest) (*Subscription, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("payment: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/subscriptions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: build request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment: create subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, p.apiError("create subscription", resp)
	}

	var sub Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("payment: decode subscription: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("payment: provider returned subscription without id")
	}
	return &sub, nil
}

// CancelSubscription implements [Provider].
func (p *RESTProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return fmt.Errorf("payment: subscription id must not be empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return fmt.Errorf("payment: build request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("payment: cancel subscription: %w", err)
	}
	defer resp.Body.Close()

	// 404 means already gone, which is the state we wanted.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return p.apiError("cancel subscription", resp)
	}
	return nil
}

func (p *RESTProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func (p *RESTProvider) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("payment: %s: provider returned %d: %s", op, resp.StatusCode, body)
}

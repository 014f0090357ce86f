// Package mock provides a test double for the image.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/talkscene/talkscene/pkg/provider/image"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the Request passed to Generate.
	Req image.Request
}

// Provider is a mock implementation of image.Provider.
// Zero values cause Generate to return an empty Ref and nil error.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Ref is returned by Generate. May be nil (returns an empty Ref).
	Ref *image.Ref

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// --- Call records (read after test) ---

	// Calls records every invocation of Generate in order.
	Calls []GenerateCall
}

// Generate records the call and returns the configured Ref.
func (p *Provider) Generate(ctx context.Context, req image.Request) (*image.Ref, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, GenerateCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Ref != nil {
		return p.Ref, nil
	}
	return &image.Ref{}, nil
}

var _ image.Provider = (*Provider)(nil)

// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts to consumers and to verify the
// audio payloads passed to the STT backend.
package mock

import (
	"context"
	"sync"

	"github.com/talkscene/talkscene/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return an empty Transcript and nil error.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Transcript is returned by Transcribe when Transcripts is exhausted.
	Transcript *stt.Transcript

	// Transcripts, if non-empty, is consumed one element per Transcribe call.
	Transcripts []*stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// --- Call records (read after test) ---

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured transcript.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Transcripts) > 0 {
		t := p.Transcripts[0]
		p.Transcripts = p.Transcripts[1:]
		return t, nil
	}
	if p.Transcript != nil {
		return p.Transcript, nil
	}
	return &stt.Transcript{}, nil
}

var _ stt.Provider = (*Provider)(nil)

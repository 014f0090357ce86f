// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI audio) and
// presents a uniform single-shot interface: the caller submits one utterance
// and receives the complete encoded audio. Dialogue turns are short, so there
// is no streaming pipeline here.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., batch-annotating a transcript).
package tts

import "context"

// Voice describes a synthesis voice offered by a provider.
type Voice struct {
	// ID is the provider-assigned voice identifier.
	ID string
	// Name is a human-readable label.
	Name string
	// Gender is the perceived gender of the voice ("male", "female",
	// "neutral"). Informational only.
	Gender string
}

// Request describes one utterance to synthesise.
type Request struct {
	// Text is the utterance to speak. Must not be empty.
	Text string

	// VoiceID selects the synthesis voice. Must be one of the provider's
	// voices; providers return an error for unknown IDs.
	VoiceID string

	// Speed scales playback rate. Zero means the provider default (1.0).
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders the utterance and returns the complete encoded
	// audio (MP3 unless the implementation documents otherwise). Blocks
	// until synthesis finishes or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) ([]byte, error)

	// ListVoices returns all voices available from this provider.
	ListVoices(ctx context.Context) ([]Voice, error)
}

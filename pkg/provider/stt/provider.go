// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., OpenAI Whisper) and
// exposes a uniform single-shot interface: the caller submits one complete
// utterance recording and receives the recognised text. Turn-based dialogue
// practice records whole utterances client-side, so there is no streaming
// session abstraction here.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// AudioFormat identifies the container/codec of a submitted recording.
type AudioFormat string

// Audio formats accepted by providers. Not every provider supports every
// format; unsupported formats return an error from Transcribe.
const (
	FormatWebM AudioFormat = "webm"
	FormatWAV  AudioFormat = "wav"
	FormatMP3  AudioFormat = "mp3"
	FormatOgg  AudioFormat = "ogg"
	FormatM4A  AudioFormat = "m4a"
)

// Transcript is the recognition result for one utterance.
type Transcript struct {
	// Text is the recognised speech. May be empty when the recording
	// contained no intelligible speech.
	Text string

	// Language is the BCP-47 tag of the detected or requested language.
	// Empty when the provider does not report it.
	Language string

	// Confidence is the provider's overall confidence in [0, 1].
	// Zero when the provider does not report confidence.
	Confidence float64
}

// Request describes one utterance to transcribe.
type Request struct {
	// Audio is the complete encoded recording. Must not be empty.
	Audio []byte

	// Format is the container/codec of Audio.
	Format AudioFormat

	// Language is a BCP-47 hint for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Prompt is an optional vocabulary hint, typically the scenario context,
	// that biases recognition toward expected phrases.
	Prompt string
}

// Provider is the abstraction over any STT backend.
//
// Transcribe blocks until the recording has been processed or ctx is
// cancelled. An empty recognition result is not an error; callers must be
// prepared for Transcript.Text == "".
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}

// Package openai provides an STT provider backed by the OpenAI
// transcriptions API (Whisper).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/talkscene/talkscene/pkg/provider/stt"
)

// Provider implements stt.Provider using the OpenAI transcriptions API.
type Provider struct {
	client oai.Client
	model  string
}

// Compile-time interface check.
var _ stt.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI STT Provider. model is the transcription model
// name, e.g. "whisper-1".
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Transcribe implements stt.Provider.
//
// The standard transcription response carries no confidence score, so
// Transcript.Confidence is always zero from this backend. Callers that
// surface confidence must treat zero as "not reported".
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("openai: audio must not be empty")
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(req.Audio), fileName(req.Format), mimeType(req.Format)),
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = param.NewOpt(req.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: transcription: %w", err)
	}

	return &stt.Transcript{
		Text:     resp.Text,
		Language: req.Language,
	}, nil
}

// fileName picks a multipart filename matching the audio format. The API
// infers the container from the extension.
func fileName(f stt.AudioFormat) string {
	if f == "" {
		return "audio.webm"
	}
	return "audio." + string(f)
}

func mimeType(f stt.AudioFormat) string {
	switch f {
	case stt.FormatWAV:
		return "audio/wav"
	case stt.FormatMP3:
		return "audio/mpeg"
	case stt.FormatOgg:
		return "audio/ogg"
	case stt.FormatM4A:
		return "audio/mp4"
	default:
		return "audio/webm"
	}
}

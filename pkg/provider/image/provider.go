// Package image defines the Provider interface for image generation backends.
//
// An image provider wraps a text-to-image service (e.g., DALL-E) and exposes
// a single Generate call used to render character avatars. Implementations
// must be safe for concurrent use.
package image

import "context"

// Size is a requested output resolution, e.g. "1024x1024".
type Size string

// Sizes commonly supported by providers.
const (
	Size256  Size = "256x256"
	Size512  Size = "512x512"
	Size1024 Size = "1024x1024"
)

// Ref points at a generated image. Exactly one of URL and B64 is set,
// depending on the provider's delivery mode.
type Ref struct {
	// URL is a short-lived download link for the image.
	URL string
	// B64 is the base64-encoded image payload.
	B64 string
}

// Request describes one image to generate.
type Request struct {
	// Prompt is the text description of the desired image. Must not be empty.
	Prompt string
	// Size is the requested resolution. An empty Size means the provider
	// default.
	Size Size
}

// Provider is the abstraction over any image generation backend.
type Provider interface {
	// Generate renders one image for the prompt. Blocks until generation
	// finishes or ctx is cancelled.
	Generate(ctx context.Context, req Request) (*Ref, error)
}

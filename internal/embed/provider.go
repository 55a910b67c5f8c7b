// Package embed abstracts embedding backends behind a common provider interface.
package embed

import "context"

// Provider is the interface all embedding backends must implement.
// Text and image inputs must map into the same vector space for
// cross-modal search to work.
type Provider interface {
	// EmbedTexts returns embedding vectors for the given texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedImage returns an embedding vector for a single encoded image.
	EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error)
	// Name returns the provider identifier (e.g. "openai", "jina").
	Name() string
}

package core

import "context"

// EmbeddingProvider converts text into fixed-dimension vectors.
// Implementations must be deterministic for identical input and keep the
// dimension stable for the lifetime of an index instance.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// LLMProvider is the opaque text-completion collaborator. The core never
// retries on its behalf; callers degrade gracefully when it is unavailable.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// TextExtractor pulls plain text out of a document's raw bytes.
type TextExtractor interface {
	Text(data []byte) (string, error)
}

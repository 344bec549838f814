package core

import "context"

// EmbeddingProvider converts text into fixed-dimension vectors. EmbedTexts
// preserves input order: one vector per input, same dimensionality for all
// vectors from one model. Provider failures surface as *ProviderError.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionProvider generates a reply from an assembled prompt.
type CompletionProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

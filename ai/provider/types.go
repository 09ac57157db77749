// Package provider adapts embedding and chat models to the two collaborator
// roles of the enrichment pipeline: turning text into vectors and pulling a
// title and tags out of a document.
package provider

import "context"

// ProviderType names a model backend.
type ProviderType string

const (
	ProviderTypeLocal  ProviderType = "local"  // any OpenAI-compatible server (Ollama, LocalAI, vLLM)
	ProviderTypeOllama ProviderType = "ollama" // langchaingo ollama client
	ProviderTypeOpenAI ProviderType = "openai" // langchaingo openai client
)

// Encoder turns texts into fixed-dimension vectors, one per input, in order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// MetadataExtractor derives a title and short tag list from document text.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, text string) (Metadata, error)
}

// Provider is a backend that serves both roles.
type Provider interface {
	Encoder
	MetadataExtractor
	// ModelNames returns the embedding and chat model identifiers.
	ModelNames() (embed, chat string)
}

// Metadata is what the chat model extracts from a document.
type Metadata struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

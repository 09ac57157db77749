package provider

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/internal/httpclient"
)

// LangchainProvider serves both roles through langchaingo clients.
type LangchainProvider struct {
	embedder   embeddings.Embedder
	chat       llms.Model
	embedModel string
	chatModel  string
	dimension  int
}

// LangchainConfig configures a LangchainProvider.
type LangchainConfig struct {
	Type       ProviderType // ProviderTypeOllama or ProviderTypeOpenAI
	BaseURL    string       // ollama server, or an OpenAI-compatible base URL
	EmbedModel string
	ChatModel  string
	APIKey     string
	Dimension  int
}

// NewLangchainProvider builds separate embedding and chat clients, since the
// two roles use different models.
func NewLangchainProvider(cfg LangchainConfig, client *httpclient.SaferClient) (*LangchainProvider, error) {
	var (
		embedClient embeddings.EmbedderClient
		chat        llms.Model
	)

	switch cfg.Type {
	case ProviderTypeOllama:
		e, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithHTTPClient(client.Client),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create ollama embedding client")
		}
		c, err := ollama.New(
			ollama.WithModel(cfg.ChatModel),
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithHTTPClient(client.Client),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create ollama chat client")
		}
		embedClient, chat = e, c

	case ProviderTypeOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.ChatModel),
			openai.WithEmbeddingModel(cfg.EmbedModel),
			openai.WithHTTPClient(client),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		c, err := openai.New(opts...)
		if err != nil {
			return nil, errors.Wrap(err, "create openai client")
		}
		embedClient, chat = c, c

	default:
		return nil, errors.Newf("unsupported langchain provider: %s", cfg.Type)
	}

	embedder, err := embeddings.NewEmbedder(embedClient)
	if err != nil {
		return nil, errors.Wrap(err, "create embedder")
	}

	return &LangchainProvider{
		embedder:   embedder,
		chat:       chat,
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		dimension:  cfg.Dimension,
	}, nil
}

// ModelNames implements Provider.
func (p *LangchainProvider) ModelNames() (string, string) { return p.embedModel, p.chatModel }

// Dimension implements Encoder.
func (p *LangchainProvider) Dimension() int { return p.dimension }

// Encode implements Encoder.
func (p *LangchainProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "embed batch")
	}
	if err := checkVectors(vectors, len(texts), p.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// ExtractMetadata implements MetadataExtractor.
func (p *LangchainProvider) ExtractMetadata(ctx context.Context, text string) (Metadata, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, MetadataPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, truncateForPrompt(text)),
	}

	resp, err := p.chat.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(150),
	)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "extract metadata")
	}
	if len(resp.Choices) == 0 {
		return Metadata{}, errors.New("no response choices")
	}
	return ParseMetadata(resp.Choices[0].Content)
}

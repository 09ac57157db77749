package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/internal/httpclient"
)

// LocalProvider talks to an OpenAI-compatible inference server (Ollama,
// LocalAI, vLLM) over /v1/embeddings and /v1/chat/completions.
type LocalProvider struct {
	baseURL    string
	embedModel string
	chatModel  string
	apiKey     string
	dimension  int
	httpClient *httpclient.SaferClient
}

// LocalConfig configures a LocalProvider.
type LocalConfig struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
	APIKey     string // sent as a bearer token when set
	Dimension  int
}

// NewLocalProvider creates a provider for local inference
func NewLocalProvider(cfg LocalConfig, client *httpclient.SaferClient) *LocalProvider {
	return &LocalProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		apiKey:     cfg.APIKey,
		dimension:  cfg.Dimension,
		httpClient: client,
	}
}

// ChatCompletionRequest matches OpenAI API format (Ollama is compatible)
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse matches OpenAI API format
type ChatCompletionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// EmbeddingRequest matches the OpenAI /v1/embeddings request.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse matches the OpenAI /v1/embeddings response.
type EmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// ModelNames implements Provider.
func (lp *LocalProvider) ModelNames() (string, string) { return lp.embedModel, lp.chatModel }

// Dimension implements Encoder.
func (lp *LocalProvider) Dimension() int { return lp.dimension }

// Encode sends all texts in one embeddings request.
func (lp *LocalProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp EmbeddingResponse
	if err := lp.post(ctx, "/v1/embeddings", EmbeddingRequest{Model: lp.embedModel, Input: texts}, &resp); err != nil {
		return nil, errors.Wrap(err, "embed batch")
	}

	// The server may return entries out of order; index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errors.Newf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Newf("count mismatch: got %d vectors, want %d", len(resp.Data), len(texts))
	}
	if err := checkVectors(vectors, len(texts), lp.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// ExtractMetadata asks the chat model for a title and tags.
func (lp *LocalProvider) ExtractMetadata(ctx context.Context, text string) (Metadata, error) {
	req := ChatCompletionRequest{
		Model: lp.chatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: MetadataPrompt},
			{Role: "user", Content: truncateForPrompt(text)},
		},
		Temperature: 0,
		MaxTokens:   150,
	}

	var completion ChatCompletionResponse
	if err := lp.post(ctx, "/v1/chat/completions", req, &completion); err != nil {
		return Metadata{}, errors.Wrap(err, "extract metadata")
	}
	if len(completion.Choices) == 0 {
		return Metadata{}, errors.New("no completion choices returned")
	}
	msg := completion.Choices[0].Message
	if msg.Role != "" && msg.Role != "assistant" {
		return Metadata{}, errors.Newf("response was not from assistant (role %q)", msg.Role)
	}
	return ParseMetadata(msg.Content)
}

func (lp *LocalProvider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lp.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if lp.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+lp.apiKey)
	}

	resp, err := lp.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("local inference returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

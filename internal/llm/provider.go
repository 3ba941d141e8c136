package llm

import (
	"fmt"

	"github.com/minimind-ai/minimind/internal/domain"
)

// Provider constants
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Options carries provider selection and connection settings for NewClient.
type Options struct {
	Provider       string
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDims  int
}

// NewClient creates an inference client based on the provider name.
// Returns an error if the provider is unknown or a required credential is missing.
func NewClient(opts Options) (domain.InferenceClient, error) {
	switch opts.Provider {
	case ProviderOllama:
		return NewOllamaClient(opts.BaseURL, opts.ChatModel, opts.EmbeddingModel), nil

	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(opts.APIKey, opts.ChatModel, opts.EmbeddingModel, opts.EmbeddingDims), nil

	case ProviderMock:
		return NewMockClient(opts.EmbeddingDims), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: ollama, openai, mock)", opts.Provider)
	}
}

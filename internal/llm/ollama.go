package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minimind-ai/minimind/internal/domain"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaClient talks to a local Ollama server. Single-shot jobs go through
// /api/generate, chat-turn jobs through /api/chat, embeddings through /api/embed.
type OllamaClient struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

func NewOllamaClient(baseURL, chatModel, embedModel string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{},
	}
}

type generateOptions struct {
	Temperature float32  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	System  string           `json:"system,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []chatMessage    `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *generateOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (c *OllamaClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func (c *OllamaClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	opts := &generateOptions{Temperature: req.Temperature, Stop: req.Stop}
	if len(req.Messages) > 0 {
		return c.chat(ctx, req, opts)
	}
	return c.generate(ctx, req, opts)
}

func (c *OllamaClient) generate(ctx context.Context, req domain.CompletionRequest, opts *generateOptions) (string, error) {
	respBody, err := c.post(ctx, "/api/generate", generateRequest{
		Model:   c.chatModel,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal generate response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("generate API error: %s", result.Error)
	}

	return strings.TrimSpace(result.Response), nil
}

func (c *OllamaClient) chat(ctx context.Context, req domain.CompletionRequest, opts *generateOptions) (string, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	respBody, err := c.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    c.chatModel,
		Messages: messages,
		Stream:   false,
		Options:  opts,
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("chat API error: %s", result.Error)
	}

	return strings.TrimSpace(result.Message.Content), nil
}

func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	respBody, err := c.post(ctx, "/api/embed", ollamaEmbedRequest{
		Model: c.embedModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	var result ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("embed API error: %s", result.Error)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed API returned %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}

	return result.Embeddings, nil
}

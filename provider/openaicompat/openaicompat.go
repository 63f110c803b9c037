// Package openaicompat implements avicenna.Provider and
// avicenna.EmbeddingProvider for any OpenAI-compatible API.
//
// Works with OpenAI, vLLM, Ollama, Groq, Together, Mistral, and any other
// server that implements the chat completions and embeddings endpoints.
// Self-hosted vLLM is the primary deployment target, so the client defaults
// lean conservative: low temperature, bounded output.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	avicenna "github.com/avicenna-ai/avicenna"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// Provider implements avicenna.Provider against a chat completions endpoint.
type Provider struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	name        string
	temperature float64
	maxTokens   int
}

var _ avicenna.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the provider name reported by Name() and carried in
// dependency errors. Default "openai".
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithTemperature sets the sampling temperature. Default 0.2.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the completion length. Default 1024.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://vllm:8000/v1"). The /chat/completions path is appended
// automatically.
func NewProvider(apiKey, model, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		client:      &http.Client{},
		name:        "openai",
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat request and returns the complete response.
func (p *Provider) Chat(ctx context.Context, req avicenna.ChatRequest) (avicenna.ChatResponse, error) {
	msgs := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	body := chatBody{
		Model:       p.model,
		Messages:    msgs,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	var parsed chatReply
	if err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, p.name, body, &parsed); err != nil {
		return avicenna.ChatResponse{}, err
	}
	if len(parsed.Choices) == 0 {
		return avicenna.ChatResponse{}, &avicenna.ErrDependency{
			Service: p.name, Err: fmt.Errorf("response has no choices"),
		}
	}
	return avicenna.ChatResponse{
		Content: parsed.Choices[0].Message.Content,
		Usage: avicenna.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

type chatBody struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReply struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// postJSON sends a JSON POST with Bearer auth and decodes the JSON response.
// Transport failures and non-200 statuses come back as dependency errors so
// handlers can classify them uniformly.
func postJSON(ctx context.Context, client *http.Client, url, apiKey, service string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &avicenna.ErrDependency{Service: service, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &avicenna.ErrDependency{Service: service, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &avicenna.ErrDependency{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &avicenna.ErrDependency{
			Service: service,
			Err: &avicenna.ErrHTTP{
				Status:     resp.StatusCode,
				Body:       string(b),
				RetryAfter: avicenna.ParseRetryAfter(resp.Header.Get("Retry-After")),
			},
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &avicenna.ErrDependency{Service: service, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

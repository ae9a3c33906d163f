// Package provider builds llm.CallFunc values for the supported model
// backends. Callers never see HTTP details; transport failures surface as
// llm.ErrUnreachable and deadline overruns as llm.ErrTimeout so the turn
// engine can route them into offline mode.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/chronicle/pkg/llm"
)

const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"

	defaultTimeout = 60 * time.Second
)

// Config holds configuration for creating a model caller.
type Config struct {
	Provider string        // "openai", "anthropic", or "ollama"
	Model    string        // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string        // explicit API key (highest priority)
	BaseURL  string        // override base URL
	Timeout  time.Duration // per-call deadline; defaults to 60s
	Stream   bool          // consume streamed completions (openai-compatible only)
}

// NewCaller creates a llm.CallFunc based on the provided configuration.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//  3. Fall back to Ollama at localhost:11434
func NewCaller(cfg Config) (llm.CallFunc, error) {
	prov := strings.ToLower(cfg.Provider)
	model := cfg.Model
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(prov)
	}

	// No key and not explicitly local means we cannot reach a hosted
	// provider; degrade to the local runtime rather than failing setup.
	if apiKey == "" && prov != providerOllama && prov != "" {
		prov = providerOllama
	}

	switch prov {
	case providerOpenAI, "":
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		if cfg.Stream {
			return newOpenAIStreamCaller(apiKey, model, baseURL, timeout), nil
		}
		return newOpenAICaller(apiKey, model, baseURL, timeout), nil

	case providerAnthropic:
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return newAnthropicCaller(apiKey, model, baseURL, timeout), nil

	case providerOllama:
		if model == "" {
			model = "llama3.2"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(model, baseURL, timeout), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// NewGenerator wraps a configured caller as an llm.Generator, carrying the
// model name into responses for trace records.
func NewGenerator(cfg Config) (llm.Generator, error) {
	call, err := NewCaller(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	return llm.GeneratorFunc(func(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
		var sb strings.Builder
		if req.System != "" {
			sb.WriteString(req.System)
			sb.WriteString("\n\n")
		}
		sb.WriteString(req.Payload)
		if req.Instructions != "" {
			sb.WriteString("\n\n")
			sb.WriteString(req.Instructions)
		}

		start := time.Now()
		text, err := call(ctx, sb.String())
		if err != nil {
			return nil, err
		}
		return &llm.GenerationResponse{
			Text:    text,
			Model:   model,
			Elapsed: time.Since(start),
		}, nil
	}), nil
}

func resolveAPIKeyFromEnv(prov string) string {
	switch prov {
	case providerAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case providerOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

// classifyTransportErr maps HTTP client failures onto the llm sentinels.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", llm.ErrUnreachable, err)
}

// --- OpenAI caller ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newOpenAICaller(apiKey, model, baseURL string, timeout time.Duration) llm.CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := openAIRequest{
			Model: model,
			Messages: []openAIMessage{
				{Role: "user", Content: prompt},
			},
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", classifyTransportErr(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", classifyTransportErr(err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: openai status %d: %s", llm.ErrUnreachable, resp.StatusCode, string(body))
		}

		var result openAIResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("%w: unmarshal openai response: %v", llm.ErrMalformed, err)
		}

		if result.Error != nil {
			return "", fmt.Errorf("%w: openai error: %s", llm.ErrUnreachable, result.Error.Message)
		}

		if len(result.Choices) == 0 {
			return "", fmt.Errorf("%w: openai returned no choices", llm.ErrMalformed)
		}

		return result.Choices[0].Message.Content, nil
	}
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newAnthropicCaller(apiKey, model, baseURL string, timeout time.Duration) llm.CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := anthropicRequest{
			Model:     model,
			MaxTokens: 8192,
			Messages: []anthropicMessage{
				{Role: "user", Content: prompt},
			},
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", classifyTransportErr(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", classifyTransportErr(err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: anthropic status %d: %s", llm.ErrUnreachable, resp.StatusCode, string(body))
		}

		var result anthropicResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("%w: unmarshal anthropic response: %v", llm.ErrMalformed, err)
		}

		if result.Error != nil {
			return "", fmt.Errorf("%w: anthropic error: %s", llm.ErrUnreachable, result.Error.Message)
		}

		if len(result.Content) == 0 {
			return "", fmt.Errorf("%w: anthropic returned no content", llm.ErrMalformed)
		}

		return result.Content[0].Text, nil
	}
}

// --- Ollama caller ---

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func newOllamaCaller(model, baseURL string, timeout time.Duration) llm.CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := ollamaChatRequest{
			Model: model,
			Messages: []ollamaChatMessage{
				{Role: "user", Content: prompt},
			},
			Stream: false,
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/chat", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", classifyTransportErr(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", classifyTransportErr(err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: ollama status %d: %s", llm.ErrUnreachable, resp.StatusCode, string(body))
		}

		var result ollamaChatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("%w: unmarshal ollama response: %v", llm.ErrMalformed, err)
		}

		return result.Message.Content, nil
	}
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/chronicle/pkg/llm"
	"github.com/papercomputeco/chronicle/pkg/sse"
)

// streamDone is the sentinel data payload that terminates an OpenAI-style
// SSE completion stream.
const streamDone = "[DONE]"

type openAIStreamRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// newOpenAIStreamCaller returns a CallFunc that requests a streamed
// completion and accumulates the delta events into the full text. Long
// generations keep bytes flowing well before the deadline, so streaming
// avoids timing out turns that a buffered response would abandon.
func newOpenAIStreamCaller(apiKey, model, baseURL string, timeout time.Duration) llm.CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := openAIStreamRequest{
			Model: model,
			Messages: []openAIMessage{
				{Role: "user", Content: prompt},
			},
			Stream: true,
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
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", classifyTransportErr(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: openai stream status %d", llm.ErrUnreachable, resp.StatusCode)
		}

		reader := sse.NewReader(resp.Body)
		var text strings.Builder

		for {
			ev, err := reader.Next()
			if err != nil {
				return "", classifyTransportErr(err)
			}
			if ev == nil || ev.Data == streamDone {
				break
			}

			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return "", fmt.Errorf("%w: unmarshal stream chunk: %v", llm.ErrMalformed, err)
			}
			if chunk.Error != nil {
				return "", fmt.Errorf("%w: openai stream error: %s", llm.ErrUnreachable, chunk.Error.Message)
			}
			for _, choice := range chunk.Choices {
				text.WriteString(choice.Delta.Content)
			}
		}

		if text.Len() == 0 {
			return "", fmt.Errorf("%w: openai stream produced no content", llm.ErrMalformed)
		}

		return text.String(), nil
	}
}

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMAdapter streams an OpenAI-shaped chat completion from an upstream
// endpoint, token by token, via server-sent events. Grounded on the
// teacher's llm_openai.go consumeCompletionsStream, generalized from
// the legacy /v1/completions shape to /v1/chat/completions.
type LLMAdapter struct {
	baseURL string
	model   string
	pool    *Pool
	cache   *LLMCache // optional; nil disables caching
}

func NewLLMAdapter(baseURL, model string, pool *Pool, cache *LLMCache) *LLMAdapter {
	return &LLMAdapter{baseURL: baseURL, model: model, pool: pool, cache: cache}
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate streams the completion, invoking onToken for every delta as
// it arrives, and returns the accumulated result once the stream ends.
// If a cache is configured, a hit short-circuits the request entirely
// and delivers the cached text as a single synthetic token.
func (a *LLMAdapter) Generate(ctx context.Context, messages []ChatMessage, onToken TokenFunc) (*ChatResult, error) {
	start := time.Now()

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, messages); ok {
			if onToken != nil {
				onToken(cached)
			}
			return &ChatResult{
				Text:         cached,
				FinishReason: "cached",
				Cached:       true,
				TotalMs:      time.Since(start).Milliseconds(),
			}, nil
		}
	}

	client, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, NewError("llm", ErrKindProviderUnavailable, err)
	}
	defer a.pool.Release(client)

	reqBody := ChatRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewError("llm", ErrKindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewError("llm", ErrKindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, NewError("llm", ErrKindProviderRPC, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError("llm", ErrKindProviderRPC, fmt.Errorf("llm upstream status %d", resp.StatusCode))
	}

	result, err := consumeChatStream(resp.Body, onToken)
	if err != nil {
		return nil, NewError("llm", ErrKindProviderRPC, err)
	}
	result.TotalMs = time.Since(start).Milliseconds()

	if a.cache != nil && result.Text != "" {
		a.cache.Set(ctx, messages, result.Text)
	}

	return result, nil
}

// consumeChatStream parses "data: <json>" lines terminated by
// "data: [DONE]", skipping malformed lines silently — the exact
// contract the teacher's consumeCompletionsStream implements.
func consumeChatStream(body io.Reader, onToken TokenFunc) (*ChatResult, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	var finish string
	firstToken := true
	start := time.Now()
	var ttft int64

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // malformed line: skip, keep streaming
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if firstToken {
				ttft = time.Since(start).Milliseconds()
				firstToken = false
			}
			text.WriteString(choice.Delta.Content)
			if onToken != nil {
				onToken(choice.Delta.Content)
			}
		}
		if choice.FinishReason != nil {
			finish = *choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &ChatResult{
		Text:               text.String(),
		FinishReason:       finish,
		TimeToFirstTokenMs: ttft,
	}, nil
}

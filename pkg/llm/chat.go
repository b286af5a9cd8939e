package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const chatMaxTries = 3

// ChatGenerator implements TextGenerator against any OpenAI-compatible
// chat-completions endpoint (vLLM, Ollama's compat API, OpenAI itself).
// Transport-level failures and 429/5xx responses are retried with
// exponential backoff; other HTTP errors are permanent.
type ChatGenerator struct {
	log        *slog.Logger
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewChatGenerator(log *slog.Logger, baseURL, model, apiKey string) *ChatGenerator {
	return &ChatGenerator{
		log:        log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int64         `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *ChatGenerator) GenerateText(ctx context.Context, prompt string, temperature float64, maxTokens int64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		if attempt > 1 {
			g.log.Warn("chat completion retrying", "attempt", attempt, "model", g.model)
		}
		return g.complete(ctx, body)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(chatMaxTries))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return text, nil
}

func (g *ChatGenerator) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
	case resp.StatusCode != http.StatusOK:
		return "", backoff.Permanent(fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, truncate(string(payload), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to decode chat response: %w", err))
	}
	if parsed.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("chat endpoint error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("chat response has no choices"))
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

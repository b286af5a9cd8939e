package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicGenerator implements TextGenerator using the Anthropic API.
type AnthropicGenerator struct {
	log    *slog.Logger
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicGenerator creates an SDK-backed generator. The API key comes
// from the environment (ANTHROPIC_API_KEY), handled by the SDK.
func NewAnthropicGenerator(log *slog.Logger, model anthropic.Model) *AnthropicGenerator {
	return &AnthropicGenerator{
		log:    log,
		client: anthropic.NewClient(),
		model:  model,
	}
}

func (g *AnthropicGenerator) GenerateText(ctx context.Context, prompt string, temperature float64, maxTokens int64) (string, error) {
	start := time.Now()
	g.log.Debug("anthropic call starting", "model", g.model, "maxTokens", maxTokens, "promptLen", len(prompt))

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       g.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})

	duration := time.Since(start)
	if err != nil {
		g.log.Error("anthropic call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	g.log.Debug("anthropic call completed", "duration", duration, "stopReason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

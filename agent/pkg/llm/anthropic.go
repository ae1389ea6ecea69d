// Package llm provides the Anthropic-backed text generator used by the
// query workflow.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/getsentry/sentry-go"

	"github.com/luminalabs/askdb/api/metrics"
)

const systemPrompt = "You are a precise assistant for a MongoDB-backed campus database. Follow the instructions in each prompt exactly and return only the requested output."

// AnthropicGenerator implements workflow.TextGenerator on the Anthropic
// Messages API. The zero Model defaults to Claude Haiku.
type AnthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicGenerator(model anthropic.Model) *AnthropicGenerator {
	if model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(),
		model:  model,
	}
}

// Generate sends a single-turn prompt and returns the text of the response.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	// Start Sentry span for AI monitoring
	span := sentry.StartSpan(ctx, "gen_ai.chat", sentry.WithDescription(fmt.Sprintf("chat %s", g.model)))
	span.SetData("gen_ai.operation.name", "chat")
	span.SetData("gen_ai.request.model", string(g.model))
	span.SetData("gen_ai.request.max_tokens", maxTokens)
	span.SetData("gen_ai.system", "anthropic")
	ctx = span.Context()
	defer span.Finish()

	start := time.Now()
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       g.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	duration := time.Since(start)
	metrics.RecordAnthropicRequest("messages", duration, err)

	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return "", err
	}

	// Record token usage
	metrics.RecordAnthropicTokens(msg.Usage.InputTokens, msg.Usage.OutputTokens)

	span.SetData("gen_ai.usage.input_tokens", msg.Usage.InputTokens)
	span.SetData("gen_ai.usage.output_tokens", msg.Usage.OutputTokens)
	span.SetData("gen_ai.usage.total_tokens", msg.Usage.InputTokens+msg.Usage.OutputTokens)
	span.Status = sentry.SpanStatusOK

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

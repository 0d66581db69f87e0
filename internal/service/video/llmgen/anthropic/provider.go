// Package anthropic implements llmgen.Provider against the real Anthropic
// API, grounded on the teacher's internal/service/llm/providers/anthropic
// streaming client (same SDK, same NewStreaming/Accumulate/stream.Next loop,
// narrowed to llmgen's single-shot text+image request shape).
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"meridian/internal/service/video/llmgen"
)

const defaultMaxTokens = 4096

// Provider streams completions from Claude models.
type Provider struct {
	client *anthropic.Client
}

func New(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: &client}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Stream(ctx context.Context, req llmgen.Request) (<-chan llmgen.Chunk, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)}
	if len(req.ImageData) > 0 {
		mediaType := req.ImageMediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		blocks = append([]anthropic.ContentBlockParamUnion{anthropic.NewImageBlockBase64(mediaType, string(req.ImageData))}, blocks...)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	out := make(chan llmgen.Chunk, 16)

	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				out <- llmgen.Chunk{Err: fmt.Errorf("accumulate anthropic stream event: %w", err)}
				return
			}

			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok && delta.Delta.Type == "text_delta" {
				select {
				case <-ctx.Done():
					out <- llmgen.Chunk{Err: ctx.Err()}
					return
				case out <- llmgen.Chunk{TextDelta: delta.Delta.Text}:
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- llmgen.Chunk{Err: fmt.Errorf("anthropic streaming error: %w", err)}
			return
		}

		out <- llmgen.Chunk{Done: true}
	}()

	return out, nil
}

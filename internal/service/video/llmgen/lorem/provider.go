// Package lorem is a fake llmgen.Provider that emits generated lorem-ipsum
// text word by word, for tests and offline development. Grounded on the
// teacher's internal/service/llm/providers/lorem mock provider (same
// bozaro/golorem generator, same word-paced streaming goroutine), narrowed
// to llmgen's single-shot request shape.
package lorem

import (
	"context"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"meridian/internal/service/video/llmgen"
)

// Provider streams deterministic-shaped, non-deterministic-content lorem
// ipsum text. Model names control pacing: "lorem-fast", "lorem-slow",
// anything else streams at the default rate.
type Provider struct {
	generator *loremgen.Lorem
}

func New() *Provider {
	return &Provider{generator: loremgen.New()}
}

func (p *Provider) Name() string { return "lorem" }

func (p *Provider) Stream(ctx context.Context, req llmgen.Request) (<-chan llmgen.Chunk, error) {
	delay := streamDelay(req.Model)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	out := make(chan llmgen.Chunk, 16)

	go func() {
		defer close(out)

		targetWords := maxTokens
		text := p.generator.Paragraph(targetWords/12+1, targetWords/12+2)
		words := strings.Fields(text)
		if len(words) > targetWords {
			words = words[:targetWords]
		}

		for i, word := range words {
			piece := word
			if i > 0 {
				piece = " " + word
			}
			select {
			case <-ctx.Done():
				out <- llmgen.Chunk{Err: ctx.Err()}
				return
			case out <- llmgen.Chunk{TextDelta: piece}:
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				out <- llmgen.Chunk{Err: ctx.Err()}
				return
			}
		}

		out <- llmgen.Chunk{Done: true}
	}()

	return out, nil
}

func streamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 10 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

// Package llmgen defines the minimal LLM provider abstraction the video
// workflows stream against: incremental text deltas, optionally grounded in
// a single image (per-slide analysis). It mirrors the shape of the teacher's
// domainllm.StreamEvent but is narrowed to what spec.md's workflows need -
// no tool calls, no multi-turn history, no thinking blocks.
package llmgen

import "context"

// Request is a single-shot generation request: a system prompt, a user
// prompt, and an optional image to ground the response in (spec.md §4.6.4
// per_slide_analysis attaches the slide's first/last frame).
type Request struct {
	Model          string
	System         string
	Prompt         string
	ImageData      []byte
	ImageMediaType string
	MaxTokens      int
}

// Chunk is one increment of a streamed generation. A Chunk with Err set is
// terminal and no further chunks follow. A Chunk with Done set to true and
// Err nil marks a clean end of stream.
type Chunk struct {
	TextDelta string
	Done      bool
	Err       error
}

// Provider streams text generations from a single LLM backend.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

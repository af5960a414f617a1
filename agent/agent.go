// Package agent defines the contract between model-backed collaborators and
// LLM providers.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/hybrid-analyst/message"
	"github.com/sweetpotato0/hybrid-analyst/pkg/metrics"
	"github.com/sweetpotato0/hybrid-analyst/pkg/telemetry"
)

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Generate returns one assistant message for the conversation.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest bundles inputs for a non-streaming LLM invocation. Zero
// Temperature and MaxTokens keep the provider defaults.
type GenerateRequest struct {
	Messages    []*message.Message
	Temperature *float64
	MaxTokens   int64
	// JSON asks providers that support it for a JSON object response.
	JSON bool
}

// Usage reports provider token accounting when available.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// GenerateResponse captures the LLM reply for non-streaming calls.
type GenerateResponse struct {
	Message *message.Message
	Usage   Usage
}

// Text returns the trimmed reply content.
func (r *GenerateResponse) Text() string {
	if r == nil || r.Message == nil {
		return ""
	}
	return strings.TrimSpace(r.Message.Content)
}

// Temperature is a convenience for GenerateRequest.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// Validate checks the request before it is sent.
func (r *GenerateRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("generate request cannot be nil")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("generate request has no messages")
	}
	return nil
}

type instrumented struct {
	provider string
	next     LLMClient
}

// Instrument wraps a client with a tracing span and latency metrics.
func Instrument(provider string, client LLMClient) LLMClient {
	return &instrumented{provider: provider, next: client}
}

func (c *instrumented) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	ctx, span := telemetry.Start(ctx, "llm.generate",
		attribute.String("llm.provider", c.provider),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	started := time.Now()
	resp, err := c.next.Generate(ctx, req)
	var usage Usage
	if resp != nil {
		usage = resp.Usage
		span.SetAttributes(
			attribute.Int64("llm.input_tokens", usage.InputTokens),
			attribute.Int64("llm.output_tokens", usage.OutputTokens),
		)
	}
	metrics.ObserveLLM(c.provider, time.Since(started), usage.InputTokens, usage.OutputTokens, err)
	telemetry.End(span, err)
	return resp, err
}

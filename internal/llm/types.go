// Package llm implements the LLMGateway. It exposes exactly two live
// call paths used during a turn — CallDialogueLLM and CallFallbackLLM —
// plus an offline-only CallAdminLLM used by config tooling, never from
// the query hot path.
package llm

import (
	"context"
	"fmt"
)

// Message is one turn in a chat-style prompt.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a provider-agnostic generation request.
type Request struct {
	SystemPrompt string
	Messages     []Message
	JSONMode     bool
	MaxTokens    int
	Temperature  float64
}

// Response is a provider-agnostic generation result.
type Response struct {
	Text         string
	TokensIn     int
	TokensOut    int
	Model        string
}

// Provider is implemented by each wire-level LLM client.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	ModelName() string
}

// Brain identifies which configured role produced or attempted a call,
// used by UnavailableError and by tracing.
type Brain string

const (
	BrainDialogue Brain = "dialogue"
	BrainFallback Brain = "fallback"
	BrainAdmin    Brain = "admin"
)

// UnavailableError is returned whenever a live call path cannot produce
// a usable response — timeout, transport failure, non-2xx, or malformed
// body. Callers (TieredRouter, DialogueTurnProcessor) must treat this
// as "no response from this brain", never panic or crash the turn.
type UnavailableError struct {
	Brain Brain
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("llm unavailable (%s): %v", e.Brain, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

func unavailable(brain Brain, cause error) error {
	return &UnavailableError{Brain: brain, Cause: cause}
}

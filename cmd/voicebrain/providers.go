package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/voicebrain/engine/internal/config"
	"github.com/voicebrain/engine/internal/llm"
)

// buildProvider resolves a "provider:model" reference (e.g.
// "openai:gpt-4o-mini" or "anthropic:claude-3-5-haiku-latest") into a
// wire-level Provider, reading the provider's API key from the
// environment. An empty ref yields a nil Provider, which the Gateway
// treats as "brain not configured" rather than an error.
func buildProvider(ref string, timeout time.Duration) (llm.Provider, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	providerType, model, ok := strings.Cut(ref, ":")
	if !ok || model == "" {
		return nil, fmt.Errorf("model ref %q must be \"provider:model\"", ref)
	}

	apiKey := config.GetProviderAPIKey(providerType)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q (ref %q)", providerType, ref)
	}

	switch providerType {
	case "openai":
		return llm.NewOpenAIProvider(apiKey, model, timeout), nil
	case "anthropic":
		return llm.NewAnthropicProvider(apiKey, model, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (ref %q)", providerType, ref)
	}
}

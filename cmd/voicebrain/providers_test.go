package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProvider_EmptyRefYieldsNilProviderNoError(t *testing.T) {
	p, err := buildProvider("", time.Second)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBuildProvider_MissingColonIsError(t *testing.T) {
	_, err := buildProvider("gpt-4o-mini", time.Second)
	assert.Error(t, err)
}

func TestBuildProvider_UnsupportedProviderIsError(t *testing.T) {
	os.Setenv("COHERE_API_KEY", "x")
	defer os.Unsetenv("COHERE_API_KEY")
	_, err := buildProvider("cohere:command-r", time.Second)
	assert.Error(t, err)
}

func TestBuildProvider_MissingAPIKeyIsError(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	_, err := buildProvider("openai:gpt-4o-mini", time.Second)
	assert.Error(t, err)
}

func TestBuildProvider_OpenAIRefSucceeds(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-test")
	defer os.Unsetenv("OPENAI_API_KEY")
	p, err := buildProvider("openai:gpt-4o-mini", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestBuildProvider_AnthropicRefSucceeds(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	defer os.Unsetenv("ANTHROPIC_API_KEY")
	p, err := buildProvider("anthropic:claude-3-5-haiku-latest", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/hfentityengine/internal/ai"
	"github.com/ObiAU/hfentityengine/internal/config"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/store"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["resolve"])
}

func TestResolveRequiresText(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"resolve"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text")
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	s, err := openStore(context.Background(), &config.Config{}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
}

func TestNewCompleter(t *testing.T) {
	openai := newCompleter(&config.Config{OracleProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk"})
	assert.IsType(t, &ai.OpenAIClient{}, openai)

	anthropic := newCompleter(&config.Config{OracleProvider: config.ProviderAnthropic, AnthropicAPIKey: "sk"})
	assert.IsType(t, &ai.AnthropicClient{}, anthropic)
}

func TestBuildEnricher(t *testing.T) {
	cfg := &config.Config{OracleProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk", ProjectCacheSize: 8}
	e, err := buildEnricher(cfg, store.NewMemory(), logger.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, e)
}

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorizo/yorizo/internal/config"
	"github.com/yorizo/yorizo/internal/retriever"
)

func TestNewApp_MemoryStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.DSN = "memory"
	cfg.RAG.DefaultOwnerKey = "default-owner"

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &retriever.MemoryRepository{}, a.repo)
	assert.Equal(t, "gpt-4.1-mini", a.client.GetChatModel())
	assert.Equal(t, "text-embedding-3-small", a.client.GetEmbeddingModel())

	provider, dim := a.embedder.Describe()
	assert.Equal(t, "openai", provider)
	assert.Equal(t, 1536, dim)
	assert.Equal(t, "u1", a.ownerKey("u1"))
	assert.Equal(t, "default-owner", a.ownerKey(""))
	assert.Equal(t, "u1", a.indexOwner("u1", "acme"))
	assert.Equal(t, "acme", a.indexOwner("", "acme"))
	assert.Equal(t, "default-owner", a.indexOwner("", ""))
}

func TestNewApp_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.DSN = "memory"
	cfg.Embedding.Provider = "nope"

	_, err := newApp(cfg)
	assert.Error(t, err)
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, nil)
	assert.Equal(t, "No matching documents.\n", buf.String())

	buf.Reset()
	printResults(&buf, []retriever.Result{{ID: "d1", Title: "Cash", Text: "line one\nline two", Score: 0.5}})
	assert.Equal(t, "1. [0.5000] Cash (d1)\n   line one line two\n", buf.String())
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ingest", "search", "ask"} {
		assert.True(t, names[want], want)
	}
}

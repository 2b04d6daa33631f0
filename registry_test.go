package docstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/docstore/internal/logger"
)

func TestRegistrySharesOneCompiler(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "WARN", Output: &buf})
	t.Cleanup(func() { logger.Init(logger.Config{Level: "ERROR"}) })

	registry := NewRegistry()
	first := registry.Compiler(16)
	assert.Same(t, first, registry.Compiler(16))
	assert.Empty(t, buf.String())

	assert.Same(t, first, registry.Compiler(0))
	assert.Contains(t, buf.String(), "program cache already sized")
	assert.Contains(t, buf.String(), "requested=0")
	assert.Contains(t, buf.String(), "size=16")
}

func TestOpenWarnsOnConflictingCacheSize(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "WARN", Output: &buf})
	t.Cleanup(func() { logger.Init(logger.Config{Level: "ERROR"}) })

	registry := NewRegistry()
	cfg := DefaultConfig()
	cfg.Log.Level = "ERROR"
	cfg.Query.ProgramCacheSize = 8
	first, err := Open(cfg, registry)
	require.NoError(t, err)
	defer first.Close()
	assert.Empty(t, buf.String())

	other := DefaultConfig()
	other.Log.Level = "ERROR"
	other.Query.ProgramCacheSize = 64
	second, err := Open(other, registry)
	require.NoError(t, err)
	defer second.Close()
	assert.Contains(t, buf.String(), "requested=64")
}

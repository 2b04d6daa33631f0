package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept", "collection", "users")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "users", entry["collection"])
}

func TestInitReplacesGlobal(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "DEBUG", Output: &buf})
	Debug("plan", "kind", "index")
	assert.Contains(t, buf.String(), "kind=index")
}

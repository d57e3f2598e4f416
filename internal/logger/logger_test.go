package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certrag.log")
	l := NewIsolatedLogger(Options{FilePath: path, Level: "debug"})

	l.Info("ingest", "document indexed", map[string]interface{}{"chunks": 3})
	l.Error("retrieval", "search failed", map[string]interface{}{"error": errors.New("boom")})
	l.Debug("chunker", "split", nil)
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "document indexed", first["message"])
	assert.Equal(t, "ingest", first["module"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error"])
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certrag.log")
	l := NewIsolatedLogger(Options{FilePath: path, Level: "warn"})

	l.Info("ingest", "dropped", nil)
	l.Warn("ingest", "kept", nil)
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("x", "y", nil)
	assert.NoError(t, l.Sync())
}

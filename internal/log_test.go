package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instagram_poster.log")
	var console bytes.Buffer

	logger, err := NewLogger(path, &console, false)
	require.NoError(t, err)
	logger.Info("posted", "file", "a.jpg")
	logger.Debug("hidden")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, out := range []string{console.String(), string(data)} {
		assert.Contains(t, out, "msg=posted")
		assert.Contains(t, out, "file=a.jpg")
		assert.NotContains(t, out, "hidden")
	}
}

func TestNewLogger_AppendsAndDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poster.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	logger, err := NewLogger(path, &bytes.Buffer{}, true)
	require.NoError(t, err)
	logger.Debug("state transition", "to", StateSelecting)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "previous run\n")
	assert.Contains(t, string(data), "to=selecting")
}

func TestNewLogger_BadPath(t *testing.T) {
	_, err := NewLogger(filepath.Join(t.TempDir(), "missing", "x.log"), &bytes.Buffer{}, false)
	assert.Error(t, err)
}

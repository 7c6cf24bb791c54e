package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionID_StableWithinProcess(t *testing.T) {
	first := SessionID()
	second := SessionID()

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestNewLogger_WritesToSessionFile(t *testing.T) {
	// The log directory is resolved once per process, so this must be the
	// only test that touches the file-backed path.
	t.Setenv("HOME", t.TempDir())

	logger, err := NewLogger("test-component")
	require.NoError(t, err)

	logger.Infof("hello %s", "world")
	logger.Warnf("watch out")
	require.NoError(t, logger.Close())
	// Close is idempotent.
	require.NoError(t, logger.Close())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	path := filepath.Join(home, ".autopilot", "logs", SessionID()+"-autopilot.log")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "[test-component]")
	assert.Contains(t, content, "[INFO] hello world")
	assert.Contains(t, content, "[WARN] watch out")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Debugf("discarded")
	assert.NoError(t, logger.Close())
}

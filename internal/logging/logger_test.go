package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keoroanthony/go-storefront/configs"
)

func TestNewConsoleLogger(t *testing.T) {
	logger, err := New(config.LoggerConfig{Mode: "production"})
	require.NoError(t, err)
	logger.Info("hello")
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.log")
	logger, err := New(config.LoggerConfig{Mode: "development", FileEnable: true, Filename: path})
	require.NoError(t, err)

	logger.Info("order placed")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "order placed")
}

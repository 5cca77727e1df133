package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create logger with console output", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.NotNil(t, l)
	})

	t.Run("should create log file and directory", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "nested", "toolcore.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		defer l.Close()

		zl := l.GetZerolog()
		zl.Info().Str("component", "test").Msg("hello")

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})

	t.Run("should fall back to info on invalid level", func(t *testing.T) {
		l, err := New(Config{Level: "nonsense", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Run("should enable console with pretty output", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, "info", cfg.Level)
		assert.True(t, cfg.Console)
		assert.True(t, cfg.Pretty)
	})
}

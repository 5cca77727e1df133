package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uagent/toolcore/internal/config"
	"github.com/uagent/toolcore/internal/logger"
	"github.com/uagent/toolcore/pkg/executor"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Logging.Console = false
	cfg.Gateway.Enabled = false
	cfg.Audit.DBPath = filepath.Join(cfg.DataDir, "audit.db")
	cfg.Providers = []config.ProviderConfig{
		// Nothing listens here; the daemon must still come up and let the
		// health probe retry the provider later.
		{ID: "files-1", BaseURL: "http://127.0.0.1:1", AuthType: "none", MinConns: 1, MaxConns: 2, TimeoutSeconds: 1},
	}
	cfg.Tools = []config.ToolConfig{
		{Name: "file_operations:read_file", Providers: []string{"files-1"}, ConcurrencySafe: true},
		{Name: "user_interaction:ask_user", Interactive: true},
	}
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestDaemon(t *testing.T) {
	t.Run("should start with an unreachable provider and stop cleanly", func(t *testing.T) {
		cfg := testConfig(t)
		d, err := New(cfg, testLogger(t), "")
		require.NoError(t, err)

		require.NoError(t, d.Start())
		defer d.Stop()

		status := d.Status()
		assert.True(t, status.Running)
		assert.Equal(t, 2, status.Tools)
		assert.Equal(t, 1, status.Providers)

		require.NoError(t, d.Stop())
		assert.False(t, d.Status().Running)
	})

	t.Run("should refuse a second start", func(t *testing.T) {
		d, err := New(testConfig(t), testLogger(t), "")
		require.NoError(t, err)

		require.NoError(t, d.Start())
		defer d.Stop()

		assert.Error(t, d.Start())
	})

	t.Run("should route calls through the coordinator", func(t *testing.T) {
		d, err := New(testConfig(t), testLogger(t), "")
		require.NoError(t, err)
		require.NoError(t, d.Start())
		defer d.Stop()

		// The provider never warmed, so the call fails fast with a
		// classified error rather than hanging.
		result := d.Coordinator().Execute(context.Background(), "coder",
			"file_operations:read_file", map[string]interface{}{"path": "a.txt"}, time.Second)

		assert.False(t, result.Success)
		assert.Equal(t, executor.KindProviderUnavailable, result.ErrorKind)
	})

	t.Run("should reject a bad tool declaration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Tools = append(cfg.Tools, config.ToolConfig{Name: "broken"})

		_, err := New(cfg, testLogger(t), "")
		assert.Error(t, err)
	})
}

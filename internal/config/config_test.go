package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("should ship role permission tables", func(t *testing.T) {
		cfg := DefaultConfig()

		assert.Contains(t, cfg.Access.Roles["coder"], "file_operations:*")
		assert.Contains(t, cfg.Access.Roles["admin"], "*:*")
		assert.NotContains(t, cfg.Access.Roles["tester"], "file_operations:*")
	})

	t.Run("should ship a default rate limit fallback", func(t *testing.T) {
		cfg := DefaultConfig()

		limit, ok := cfg.Access.RateLimits["default"]
		require.True(t, ok)
		assert.Equal(t, 30, limit.Requests)
		assert.Equal(t, 60, limit.WindowSeconds)
	})

	t.Run("should validate cleanly", func(t *testing.T) {
		assert.NoError(t, Validate(DefaultConfig()))
	})
}

func TestLoader(t *testing.T) {
	t.Run("should return defaults when file is missing", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))

		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 7411, cfg.Gateway.Port)
		assert.NotEmpty(t, cfg.Audit.DBPath)
	})

	t.Run("should load and merge a JSON config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "toolcore.json")
		content := `{
			"gateway": {"enabled": true, "port": 9000},
			"data_dir": "` + dir + `",
			"providers": [
				{"id": "builtin", "base_url": "http://tools.internal:8080", "auth_type": "bearer", "credential": "tok", "min_conns": 1, "max_conns": 4}
			]
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Gateway.Port)
		require.Len(t, cfg.Providers, 1)
		assert.Equal(t, "builtin", cfg.Providers[0].ID)
		assert.Equal(t, 4, cfg.Providers[0].MaxConns)
		// Defaults survive the merge
		assert.Contains(t, cfg.Access.Roles["admin"], "*:*")
		assert.Equal(t, filepath.Join(dir, "audit.db"), cfg.Audit.DBPath)
	})

	t.Run("should fail on unreadable config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("should reject malformed permission strings", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Access.Roles["broken"] = []string{"file_operations"}

		err := Validate(cfg)
		assert.ErrorContains(t, err, "category:tool")
	})

	t.Run("should reject zero rate limits", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Access.RateLimits["web_services"] = RateLimitConfig{Requests: 0, WindowSeconds: 60}

		assert.Error(t, Validate(cfg))
	})

	t.Run("should reject provider without max_conns", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderConfig{{ID: "p1", BaseURL: "http://x"}}

		assert.ErrorContains(t, Validate(cfg), "max_conns")
	})

	t.Run("should reject duplicate provider ids", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderConfig{
			{ID: "p1", BaseURL: "http://a", MaxConns: 2},
			{ID: "p1", BaseURL: "http://b", MaxConns: 2},
		}

		assert.ErrorContains(t, Validate(cfg), "duplicate")
	})

	t.Run("should reject tool referencing unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tools = []ToolConfig{{Name: "file_operations:read_file", Providers: []string{"ghost"}}}

		assert.ErrorContains(t, Validate(cfg), "unknown provider")
	})

	t.Run("should allow interactive tool without providers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tools = []ToolConfig{{Name: "user_interaction:ask", Interactive: true}}

		assert.NoError(t, Validate(cfg))
	})

	t.Run("should reject unknown security level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Access.SecurityLevels["file_operations:write_file"] = "extreme"

		assert.ErrorContains(t, Validate(cfg), "security level")
	})
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateWith(t *testing.T, configJSON string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "toolcore.json")
	require.NoError(t, os.WriteFile(path, []byte(configJSON), 0644))

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })

	cmd := GetRootCmd()
	cmd.SetArgs([]string{"validate"})

	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)

	err := cmd.Execute()
	return output.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Run("should accept a valid config", func(t *testing.T) {
		output, err := runValidateWith(t, `{
			"providers": [
				{"id": "files-1", "base_url": "http://localhost:9000", "auth_type": "none", "min_conns": 1, "max_conns": 4}
			],
			"tools": [
				{"name": "file_operations:read_file", "providers": ["files-1"], "concurrency_safe": true}
			]
		}`)

		require.NoError(t, err)
		assert.Contains(t, output, "Configuration is valid")
	})

	t.Run("should reject a tool pointing at an unknown provider", func(t *testing.T) {
		_, err := runValidateWith(t, `{
			"tools": [
				{"name": "file_operations:read_file", "providers": ["missing"]}
			]
		}`)

		assert.Error(t, err)
	})

	t.Run("should reject malformed json", func(t *testing.T) {
		_, err := runValidateWith(t, `{not json`)
		assert.Error(t, err)
	})
}

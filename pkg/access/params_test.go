package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func compileSchema(t *testing.T, raw map[string]interface{}) *gojsonschema.Schema {
	t.Helper()
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	require.NoError(t, err)
	return schema
}

func TestValidateSchema(t *testing.T) {
	v := NewParamValidator(DefaultSafetyRules())
	schema := compileSchema(t, map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{"type": "string"},
			"max_bytes": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"file_path"},
	})

	t.Run("should accept well-formed input", func(t *testing.T) {
		err := v.Validate(schema, map[string]interface{}{
			"file_path": "src/main.go",
			"max_bytes": 4096,
		})
		assert.NoError(t, err)
	})

	t.Run("should name the missing required field", func(t *testing.T) {
		err := v.Validate(schema, map[string]interface{}{"max_bytes": 1})

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
	})

	t.Run("should reject mistyped fields", func(t *testing.T) {
		err := v.Validate(schema, map[string]interface{}{
			"file_path": "src/main.go",
			"max_bytes": "lots",
		})

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Contains(t, pe.Field, "max_bytes")
	})

	t.Run("should run safety checks when no schema is declared", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"file_path": "../../etc/passwd"})
		assert.Error(t, err)
	})
}

func TestPathSafety(t *testing.T) {
	v := NewParamValidator(DefaultSafetyRules())

	t.Run("should reject parent-directory traversal", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"file_path": "../../etc/passwd"})

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "file_path", pe.Field)
		assert.Contains(t, pe.Reason, "traversal")
	})

	t.Run("should reject protected system directories", func(t *testing.T) {
		for _, p := range []string{"/etc/shadow", "/proc/1/environ", "/root/.ssh/id_rsa"} {
			err := v.Validate(nil, map[string]interface{}{"path": p})
			assert.Error(t, err, p)
		}
	})

	t.Run("should reject home expansion", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"path": "~/secrets.txt"})
		assert.Error(t, err)
	})

	t.Run("should accept workspace-relative paths", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"file_path": "cmd/server/main.go"})
		assert.NoError(t, err)
	})
}

func TestURLSafety(t *testing.T) {
	v := NewParamValidator(DefaultSafetyRules())

	t.Run("should reject loopback targets", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"url": "http://127.0.0.1/admin"})

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "url", pe.Field)
		assert.Contains(t, pe.Reason, "local address")
	})

	t.Run("should reject localhost and private ranges", func(t *testing.T) {
		for _, u := range []string{
			"http://localhost:8080/",
			"https://0.0.0.0/",
			"http://10.0.0.5/api",
			"http://[::1]/",
		} {
			err := v.Validate(nil, map[string]interface{}{"url": u})
			assert.Error(t, err, u)
		}
	})

	t.Run("should reject disallowed schemes", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"url": "file:///etc/passwd"})

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Contains(t, pe.Reason, "scheme")
	})

	t.Run("should accept public https urls", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"url": "https://pkg.go.dev/net/http"})
		assert.NoError(t, err)
	})
}

func TestCommandSafety(t *testing.T) {
	v := NewParamValidator(DefaultSafetyRules())

	t.Run("should reject shell metacharacters", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"command": "ls; rm -rf /"})

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "command", pe.Field)
		assert.Contains(t, pe.Reason, "metacharacter")
	})

	t.Run("should reject denied command patterns", func(t *testing.T) {
		for _, c := range []string{"rm -rf build", "sudo make install", "shutdown now"} {
			err := v.Validate(nil, map[string]interface{}{"command": c})
			assert.Error(t, err, c)
		}
	})

	t.Run("should accept ordinary commands", func(t *testing.T) {
		err := v.Validate(nil, map[string]interface{}{"command": "go test ./..."})
		assert.NoError(t, err)
	})
}

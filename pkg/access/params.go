package access

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SafetyRules configures the fixed parameter safety predicates
type SafetyRules struct {
	AllowedURLSchemes []string
	DeniedDirs        []string
	DeniedCommands    []string
}

// DefaultSafetyRules returns the built-in ruleset
func DefaultSafetyRules() SafetyRules {
	return SafetyRules{
		AllowedURLSchemes: []string{"http", "https"},
		DeniedDirs:        []string{"/etc", "/sys", "/proc", "/dev", "/boot", "/root"},
		DeniedCommands: []string{
			"rm -rf", "mkfs", "fdisk", "dd if=",
			"shutdown", "reboot", "halt", "poweroff",
			"chmod 777", "chown root", "su -", "sudo",
		},
	}
}

// shellMetaChars abort command parameters outright; chaining and
// substitution have no legitimate use in a single tool command.
const shellMetaChars = ";&|`$><"

// ParamValidator validates call parameters against a tool's input contract
// and the fixed safety predicates. Violations are rejected, never
// silently sanitized.
type ParamValidator struct {
	rules SafetyRules
}

// NewParamValidator creates a validator with the given rules
func NewParamValidator(rules SafetyRules) *ParamValidator {
	if len(rules.AllowedURLSchemes) == 0 {
		rules.AllowedURLSchemes = DefaultSafetyRules().AllowedURLSchemes
	}
	return &ParamValidator{rules: rules}
}

// Validate checks params against the compiled schema (when the tool
// declared one) and then applies the safety predicates to every
// path-, url- and command-shaped parameter.
func (v *ParamValidator) Validate(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewGoLoader(params))
		if err != nil {
			return &ParameterError{Field: "(input)", Reason: err.Error()}
		}
		if !result.Valid() {
			first := result.Errors()[0]
			return &ParameterError{Field: first.Field(), Reason: first.Description()}
		}
	}

	for field, raw := range params {
		value, ok := raw.(string)
		if !ok {
			continue
		}

		switch {
		case isPathField(field):
			if reason := v.checkPath(value); reason != "" {
				return &ParameterError{Field: field, Reason: reason}
			}
		case isURLField(field):
			if reason := v.checkURL(value); reason != "" {
				return &ParameterError{Field: field, Reason: reason}
			}
		case isCommandField(field):
			if reason := v.checkCommand(value); reason != "" {
				return &ParameterError{Field: field, Reason: reason}
			}
		}
	}

	return nil
}

func isPathField(field string) bool {
	f := strings.ToLower(field)
	return f == "path" || strings.HasSuffix(f, "_path") || strings.HasSuffix(f, "_file") ||
		f == "file" || f == "filename" || f == "dir" || f == "directory"
}

func isURLField(field string) bool {
	f := strings.ToLower(field)
	return f == "url" || f == "uri" || strings.HasSuffix(f, "_url") || strings.HasSuffix(f, "_uri")
}

func isCommandField(field string) bool {
	f := strings.ToLower(field)
	return f == "command" || f == "cmd" || strings.HasSuffix(f, "_command") || f == "script"
}

func (v *ParamValidator) checkPath(p string) string {
	if p == "" {
		return "path is empty"
	}
	for _, segment := range strings.Split(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/") {
		if segment == ".." {
			return "path contains parent-directory traversal"
		}
	}
	if strings.Contains(p, "..") {
		return "path contains parent-directory traversal"
	}
	if strings.HasPrefix(p, "~") {
		return "path expands outside the workspace"
	}
	for _, dir := range v.rules.DeniedDirs {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return fmt.Sprintf("path targets protected directory %s", dir)
		}
	}
	return ""
}

func (v *ParamValidator) checkURL(raw string) string {
	if raw == "" {
		return "url is empty"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "url does not parse"
	}

	schemeOK := false
	for _, s := range v.rules.AllowedURLSchemes {
		if u.Scheme == s {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		return fmt.Sprintf("scheme %q is not allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "url has no host"
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return "url targets a local address"
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
			return "url targets a local address"
		}
	}
	return ""
}

func (v *ParamValidator) checkCommand(cmd string) string {
	if cmd == "" {
		return "command is empty"
	}
	if idx := strings.IndexAny(cmd, shellMetaChars); idx >= 0 {
		return fmt.Sprintf("command contains shell metacharacter %q", cmd[idx])
	}
	lowered := strings.ToLower(cmd)
	for _, denied := range v.rules.DeniedCommands {
		if strings.Contains(lowered, denied) {
			return fmt.Sprintf("command matches denied pattern %q", denied)
		}
	}
	return ""
}

package access

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uagent/toolcore/pkg/catalog"
)

// SecurityLevel classifies how dangerous a tool is
type SecurityLevel string

const (
	SecurityLow      SecurityLevel = "low"
	SecurityMedium   SecurityLevel = "medium"
	SecurityHigh     SecurityLevel = "high"
	SecurityCritical SecurityLevel = "critical"
)

// PermissionChecker validates role access to tools. Both tables are loaded
// once at startup and never mutated afterwards.
type PermissionChecker struct {
	roles          map[string][]string
	securityLevels map[string]SecurityLevel
}

// NewPermissionChecker creates a checker from the role permission table and
// the per-tool security level table.
func NewPermissionChecker(roles map[string][]string, securityLevels map[string]string) *PermissionChecker {
	levels := make(map[string]SecurityLevel, len(securityLevels))
	for key, level := range securityLevels {
		levels[key] = SecurityLevel(level)
	}
	return &PermissionChecker{
		roles:          roles,
		securityLevels: levels,
	}
}

// Check returns nil when role may use toolName, or a *PermissionError.
// A permission matches on the exact "category:tool" string, the category
// wildcard "category:*", or the global "*:*". Critical tools require the
// exact permission string: wildcards do not grant them.
func (pc *PermissionChecker) Check(role, toolName string) error {
	perms := pc.roles[role]
	denied := &PermissionError{Role: role, Tool: toolName}

	if pc.Level(toolName) == SecurityCritical {
		for _, perm := range perms {
			if perm == toolName {
				return nil
			}
		}
		log.Debug().
			Str("role", role).
			Str("tool", toolName).
			Msg("Critical tool requires an explicit permission grant")
		return denied
	}

	category := catalog.Category(toolName)
	for _, perm := range perms {
		if perm == toolName || perm == category+":*" || perm == "*:*" {
			return nil
		}
	}

	log.Debug().
		Str("role", role).
		Str("tool", toolName).
		Msg("Permission denied")

	return denied
}

// Level returns the security level for a tool, checking the exact key then
// the category wildcard, defaulting to medium.
func (pc *PermissionChecker) Level(toolName string) SecurityLevel {
	if level, ok := pc.securityLevels[toolName]; ok {
		return level
	}
	if idx := strings.Index(toolName, ":"); idx > 0 {
		if level, ok := pc.securityLevels[toolName[:idx]+":*"]; ok {
			return level
		}
	}
	return SecurityMedium
}

// Permissions returns the permission set for a role
func (pc *PermissionChecker) Permissions(role string) []string {
	perms := pc.roles[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

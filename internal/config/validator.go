package config

import (
	"fmt"
	"strings"
)

var validAuthTypes = map[string]bool{
	"none":    true,
	"api_key": true,
	"bearer":  true,
	"basic":   true,
}

var validSecurityLevels = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Validate checks the configuration for structural errors
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Gateway.Enabled && (cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535) {
		return fmt.Errorf("gateway port %d out of range", cfg.Gateway.Port)
	}

	for role, perms := range cfg.Access.Roles {
		if role == "" {
			return fmt.Errorf("empty role name in access config")
		}
		for _, perm := range perms {
			if err := validatePermission(perm); err != nil {
				return fmt.Errorf("role %q: %w", role, err)
			}
		}
	}

	for key, level := range cfg.Access.SecurityLevels {
		if !strings.Contains(key, ":") {
			return fmt.Errorf("security level key %q is not category:tool", key)
		}
		if !validSecurityLevels[level] {
			return fmt.Errorf("unknown security level %q for %q", level, key)
		}
	}

	for category, limit := range cfg.Access.RateLimits {
		if limit.Requests <= 0 {
			return fmt.Errorf("rate limit for %q must allow at least one request", category)
		}
		if limit.WindowSeconds <= 0 {
			return fmt.Errorf("rate limit window for %q must be positive", category)
		}
	}

	seen := make(map[string]bool)
	for _, p := range cfg.Providers {
		if err := ValidateProvider(p); err != nil {
			return err
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}

	providerIDs := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providerIDs[p.ID] = true
	}

	for _, tool := range cfg.Tools {
		if !strings.Contains(tool.Name, ":") {
			return fmt.Errorf("tool name %q is not category:tool", tool.Name)
		}
		if tool.Interactive {
			continue // interactive tools resolve through the correlator, not a provider
		}
		if len(tool.Providers) == 0 {
			return fmt.Errorf("tool %q has no providers", tool.Name)
		}
		for _, id := range tool.Providers {
			if !providerIDs[id] {
				return fmt.Errorf("tool %q references unknown provider %q", tool.Name, id)
			}
		}
	}

	if cfg.Audit.BufferSize <= 0 {
		return fmt.Errorf("audit buffer size must be positive")
	}

	return nil
}

// ValidateProvider checks a single provider entry
func ValidateProvider(p ProviderConfig) error {
	if p.ID == "" {
		return fmt.Errorf("provider id cannot be empty")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("provider %q: base_url cannot be empty", p.ID)
	}
	if p.AuthType != "" && !validAuthTypes[p.AuthType] {
		return fmt.Errorf("provider %q: unknown auth type %q", p.ID, p.AuthType)
	}
	if p.MaxConns <= 0 {
		return fmt.Errorf("provider %q: max_conns must be positive", p.ID)
	}
	if p.MinConns < 0 || p.MinConns > p.MaxConns {
		return fmt.Errorf("provider %q: min_conns must be between 0 and max_conns", p.ID)
	}
	return nil
}

func validatePermission(perm string) error {
	parts := strings.Split(perm, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("permission %q is not category:tool", perm)
	}
	return nil
}
